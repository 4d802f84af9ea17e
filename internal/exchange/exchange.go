package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grid-engine-go/internal/models"
)

// Exchange is the adapter boundary to the trading venue. Implementations
// return wire-shaped RawOrder payloads; the execution strategy layer parses
// them into typed orders exactly once.
type Exchange interface {
	// GetCurrentPrice returns the latest traded price for the symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	// GetBalances returns the free quote (fiat) and base (crypto) balances.
	GetBalances(ctx context.Context) (fiat float64, crypto float64, err error)
	// PlaceOrder submits an order. Price is ignored for market orders.
	PlaceOrder(ctx context.Context, symbol string, side models.OrderSide, orderType models.OrderType, quantity, price float64, clientOrderID string) (*models.RawOrder, error)
	// CancelOrder cancels an open order and returns its final payload.
	CancelOrder(ctx context.Context, symbol, orderID string) (*models.RawOrder, error)
	// FetchOrder queries the current payload of an order.
	FetchOrder(ctx context.Context, symbol, orderID string) (*models.RawOrder, error)
}

// PriceTick is one price observation from a market data stream.
type PriceTick struct {
	Price float64
	Time  time.Time
}

// PriceStreamer is implemented by exchanges that push live market data.
type PriceStreamer interface {
	StreamPrices(ctx context.Context, symbol string) (<-chan PriceTick, error)
}

// DataFetchError marks a failed read from the exchange. Callers use it to
// tell transient data problems apart from order placement failures.
type DataFetchError struct {
	Op  string
	Err error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s from exchange: %v", e.Op, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// OrderCancellationError marks a failed cancellation after all retries.
type OrderCancellationError struct {
	OrderID string
	Err     error
}

func (e *OrderCancellationError) Error() string {
	return fmt.Sprintf("failed to cancel order %s: %v", e.OrderID, e.Err)
}

func (e *OrderCancellationError) Unwrap() error { return e.Err }

// knownQuoteAssets are the quote suffixes recognized by SplitSymbol, most
// specific first.
var knownQuoteAssets = []string{"USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "USD"}

// SplitSymbol splits a concatenated pair like "BTCUSDT" into base and quote
// assets.
func SplitSymbol(symbol string) (base, quote string, err error) {
	s := strings.ToUpper(symbol)
	for _, q := range knownQuoteAssets {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q, nil
		}
	}
	return "", "", fmt.Errorf("cannot split symbol %q into base and quote assets", symbol)
}
