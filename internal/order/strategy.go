package order

import (
	"context"
	"fmt"
	"strconv"

	"grid-engine-go/internal/models"
)

// ExecutionStrategy abstracts how orders reach the market so the manager and
// status tracker run unchanged across live, paper and backtest modes.
type ExecutionStrategy interface {
	// ExecuteMarketOrder places a market order, retrying per the strategy's
	// policy, and returns the typed order.
	ExecuteMarketOrder(ctx context.Context, side models.OrderSide, quantity, price float64) (*models.Order, error)
	// ExecuteLimitOrder places a resting limit order.
	ExecuteLimitOrder(ctx context.Context, side models.OrderSide, quantity, price float64) (*models.Order, error)
	// CancelOrder cancels a resting order by exchange ID.
	CancelOrder(ctx context.Context, orderID string) (*models.Order, error)
	// GetOrder queries the current state of an order by exchange ID.
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// ExecutionFailedError reports an order that could not be placed after the
// strategy exhausted its attempts. It carries the full order intent so
// callers can log and alert without reconstructing it.
type ExecutionFailedError struct {
	Side     models.OrderSide
	Type     models.OrderType
	Symbol   string
	Quantity float64
	Price    float64
	Attempts int
	Err      error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("failed to execute %s %s order for %s (qty=%.8f, price=%.8f) after %d attempts: %v",
		e.Side, e.Type, e.Symbol, e.Quantity, e.Price, e.Attempts, e.Err)
}

func (e *ExecutionFailedError) Unwrap() error { return e.Err }

// parseRawOrder converts the wire-shaped exchange payload into the typed
// order. This is the only place string numerics are parsed.
func parseRawOrder(raw *models.RawOrder) *models.Order {
	price, _ := strconv.ParseFloat(raw.Price, 64)
	average, _ := strconv.ParseFloat(raw.AvgPrice, 64)
	amount, _ := strconv.ParseFloat(raw.OrigQty, 64)
	filled, _ := strconv.ParseFloat(raw.ExecutedQty, 64)
	cost, _ := strconv.ParseFloat(raw.CumQuoteQty, 64)

	// Spot responses often omit avgPrice; recover it from the cumulative
	// quote quantity.
	if average == 0 && filled > 0 && cost > 0 {
		average = cost / filled
	}

	return &models.Order{
		ID:            strconv.FormatInt(raw.OrderID, 10),
		ClientOrderID: raw.ClientOrderID,
		Symbol:        raw.Symbol,
		Side:          models.OrderSide(raw.Side),
		Type:          models.OrderType(raw.Type),
		Status:        models.ParseOrderStatus(raw.Status),
		Price:         price,
		Average:       average,
		Amount:        amount,
		Filled:        filled,
		Remaining:     amount - filled,
		Cost:          cost,
		TimeInForce:   raw.TimeInForce,
		Timestamp:     raw.Time,
		UpdateTime:    raw.UpdateTime,
	}
}
