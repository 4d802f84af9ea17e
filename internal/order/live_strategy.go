package order

import (
	"context"
	"fmt"
	"time"

	"grid-engine-go/internal/exchange"
	"grid-engine-go/internal/models"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// LiveExecutionStrategy places orders against a real exchange with bounded
// retries and progressive slippage. The slippage step grows linearly with the
// attempt index up to the configured maximum, so the first attempt goes out
// at the requested price and later attempts chase the market.
type LiveExecutionStrategy struct {
	exchange    exchange.Exchange
	symbol      string
	maxRetries  int
	retryDelay  time.Duration
	maxSlippage float64
	logger      *zap.SugaredLogger
}

// NewLiveExecutionStrategy creates the strategy from config.
func NewLiveExecutionStrategy(ex exchange.Exchange, cfg *models.Config, logger *zap.SugaredLogger) *LiveExecutionStrategy {
	return &LiveExecutionStrategy{
		exchange:    ex,
		symbol:      cfg.Symbol,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		maxSlippage: cfg.MaxSlippage,
		logger:      logger,
	}
}

// ExecuteMarketOrder places a market order, retrying up to maxRetries times
// with a slippage-adjusted price on each attempt. Only a fully filled order
// counts as success: a placement that comes back still open is a partial
// fill, which is cancelled and retried with the full quantity at the next
// price.
func (s *LiveExecutionStrategy) ExecuteMarketOrder(ctx context.Context, side models.OrderSide, quantity, price float64) (*models.Order, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		adjusted := s.adjustPriceWithSlippage(price, side, attempt)
		raw, err := s.exchange.PlaceOrder(ctx, s.symbol, side, models.Market, quantity, adjusted, newClientOrderID())
		if err != nil {
			lastErr = err
			s.logger.Warnf("Market %s attempt %d/%d failed (price=%.8f): %v", side, attempt+1, s.maxRetries, adjusted, err)
		} else {
			placed := parseRawOrder(raw)
			if placed.Status == models.OrderStatusClosed {
				return placed, nil
			}
			lastErr = fmt.Errorf("market order %s came back %s with %.8f of %.8f filled", placed.ID, placed.Status, placed.Filled, placed.Amount)
			if placed.Status == models.OrderStatusOpen {
				s.logger.Infof("Market %s attempt %d/%d partially filled (%.8f of %.8f), cancelling order %s and retrying full quantity",
					side, attempt+1, s.maxRetries, placed.Filled, placed.Amount, placed.ID)
				if _, cancelErr := s.CancelOrder(ctx, placed.ID); cancelErr != nil {
					s.logger.Errorf("Unable to cancel partially filled order %s after retries: %v", placed.ID, cancelErr)
				}
			} else {
				s.logger.Warnf("Market %s attempt %d/%d came back %s, retrying", side, attempt+1, s.maxRetries, placed.Status)
			}
		}

		if attempt < s.maxRetries-1 {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return nil, &ExecutionFailedError{
					Side: side, Type: models.Market, Symbol: s.symbol,
					Quantity: quantity, Price: price, Attempts: attempt + 1, Err: ctx.Err(),
				}
			}
		}
	}
	return nil, &ExecutionFailedError{
		Side: side, Type: models.Market, Symbol: s.symbol,
		Quantity: quantity, Price: price, Attempts: s.maxRetries, Err: lastErr,
	}
}

// ExecuteLimitOrder places a resting limit order. Limit placements are not
// retried: a rejected limit is a pricing problem, not a transient one.
func (s *LiveExecutionStrategy) ExecuteLimitOrder(ctx context.Context, side models.OrderSide, quantity, price float64) (*models.Order, error) {
	raw, err := s.exchange.PlaceOrder(ctx, s.symbol, side, models.Limit, quantity, price, newClientOrderID())
	if err != nil {
		return nil, &ExecutionFailedError{
			Side: side, Type: models.Limit, Symbol: s.symbol,
			Quantity: quantity, Price: price, Attempts: 1, Err: err,
		}
	}
	return parseRawOrder(raw), nil
}

// GetOrder queries the current state of an order.
func (s *LiveExecutionStrategy) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	raw, err := s.exchange.FetchOrder(ctx, s.symbol, orderID)
	if err != nil {
		return nil, err
	}
	return parseRawOrder(raw), nil
}

// CancelOrder cancels an open order with the same retry policy as market
// placement.
func (s *LiveExecutionStrategy) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		raw, err := s.exchange.CancelOrder(ctx, s.symbol, orderID)
		if err == nil {
			return parseRawOrder(raw), nil
		}
		lastErr = err
		s.logger.Warnf("Cancel of order %s attempt %d/%d failed: %v", orderID, attempt+1, s.maxRetries, err)

		if attempt < s.maxRetries-1 {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return nil, &exchange.OrderCancellationError{OrderID: orderID, Err: ctx.Err()}
			}
		}
	}
	return nil, &exchange.OrderCancellationError{OrderID: orderID, Err: lastErr}
}

// adjustPriceWithSlippage moves the price toward the market by a step that
// grows with the attempt index: buys pay up, sells give way. Attempt 0 keeps
// the requested price.
func (s *LiveExecutionStrategy) adjustPriceWithSlippage(price float64, side models.OrderSide, attempt int) float64 {
	step := s.maxSlippage / float64(s.maxRetries) * float64(attempt)
	if side == models.Buy {
		return price * (1 + step)
	}
	return price * (1 - step)
}

// newClientOrderID builds a compact unique client order ID.
func newClientOrderID() string {
	id := uuid.New()
	return "x-" + base62.EncodeToString(id[:])
}
