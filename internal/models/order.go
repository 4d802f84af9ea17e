package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderStatus is the normalized lifecycle status of an order. OPEN orders may
// still fill; CLOSED, CANCELED, EXPIRED and REJECTED are terminal. UNKNOWN
// marks a malformed exchange response and is never a valid remote state.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "OPEN"
	OrderStatusClosed   OrderStatus = "CLOSED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusExpired  OrderStatus = "EXPIRED"
	OrderStatusRejected OrderStatus = "REJECTED"
	OrderStatusUnknown  OrderStatus = "UNKNOWN"
)

// ParseOrderStatus maps an exchange status string onto the normalized set.
// Unrecognized or empty strings map to UNKNOWN.
func ParseOrderStatus(s string) OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW", "OPEN", "PARTIALLY_FILLED":
		return OrderStatusOpen
	case "FILLED", "CLOSED":
		return OrderStatusClosed
	case "CANCELED", "CANCELLED":
		return OrderStatusCanceled
	case "EXPIRED":
		return OrderStatusExpired
	case "REJECTED":
		return OrderStatusRejected
	default:
		return OrderStatusUnknown
	}
}

// Order is the single typed representation of an exchange order. Execution
// strategies parse the raw exchange payload into it exactly once; after
// placement only the status tracker mutates the status/fill fields.
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Type          OrderType   `json:"type"`
	Status        OrderStatus `json:"status"`
	Price         float64     `json:"price"`
	Average       float64     `json:"average,omitempty"`
	Amount        float64     `json:"amount"`
	Filled        float64     `json:"filled"`
	Remaining     float64     `json:"remaining"`
	Cost          float64     `json:"cost,omitempty"`
	TimeInForce   string      `json:"time_in_force,omitempty"`
	Timestamp     int64       `json:"timestamp"` // placement time, unix ms
	UpdateTime    int64       `json:"update_time,omitempty"`
}

func (o *Order) IsOpen() bool     { return o.Status == OrderStatusOpen }
func (o *Order) IsFilled() bool   { return o.Status == OrderStatusClosed }
func (o *Order) IsCanceled() bool { return o.Status == OrderStatusCanceled }

// IsTerminal reports whether the order can no longer transition.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusClosed, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// FillPrice is the price to settle against: the average fill price when the
// exchange reports one, the order price otherwise.
func (o *Order) FillPrice() float64 {
	if o.Average > 0 {
		return o.Average
	}
	return o.Price
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(id=%s, %s %s %s, price=%.8f, amount=%.8f, filled=%.8f, status=%s)",
		o.ID, o.Side, o.Type, o.Symbol, o.Price, o.Amount, o.Filled, o.Status)
}

// RawOrder is the wire-shaped order payload as returned by the exchange
// adapter, numeric fields still encoded as strings. It is parsed into an
// Order by the execution strategy and never leaves that boundary.
type RawOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice,omitempty"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	CumQuoteQty   string `json:"cummulativeQuoteQty"`
	Status        string `json:"status"`
	TimeInForce   string `json:"timeInForce"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	Time          int64  `json:"time"`
	UpdateTime    int64  `json:"updateTime"`
}

// CompletedTrade is one settled fill as recorded in the trade journal.
type CompletedTrade struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Fee       float64   `json:"fee"`
	GridPrice float64   `json:"grid_price,omitempty"` // 0 for non-grid orders
	Timestamp time.Time `json:"timestamp"`
}

// Error is the error payload returned by the exchange API.
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}
