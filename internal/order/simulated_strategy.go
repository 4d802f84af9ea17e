package order

import (
	"context"

	"grid-engine-go/internal/exchange"
	"grid-engine-go/internal/models"

	"go.uber.org/zap"
)

// SimulatedExecutionStrategy places orders against the backtest simulator.
// There is nothing to retry and no slippage to chase: the simulator either
// accepts an order or the request itself is malformed.
type SimulatedExecutionStrategy struct {
	exchange exchange.Exchange
	symbol   string
	logger   *zap.SugaredLogger
}

// NewSimulatedExecutionStrategy creates the strategy for one symbol.
func NewSimulatedExecutionStrategy(ex exchange.Exchange, symbol string, logger *zap.SugaredLogger) *SimulatedExecutionStrategy {
	return &SimulatedExecutionStrategy{exchange: ex, symbol: symbol, logger: logger}
}

// ExecuteMarketOrder places a market order, filled immediately by the
// simulator at the current price.
func (s *SimulatedExecutionStrategy) ExecuteMarketOrder(ctx context.Context, side models.OrderSide, quantity, price float64) (*models.Order, error) {
	raw, err := s.exchange.PlaceOrder(ctx, s.symbol, side, models.Market, quantity, price, newClientOrderID())
	if err != nil {
		return nil, &ExecutionFailedError{
			Side: side, Type: models.Market, Symbol: s.symbol,
			Quantity: quantity, Price: price, Attempts: 1, Err: err,
		}
	}
	return parseRawOrder(raw), nil
}

// ExecuteLimitOrder places a resting limit order in the simulator.
func (s *SimulatedExecutionStrategy) ExecuteLimitOrder(ctx context.Context, side models.OrderSide, quantity, price float64) (*models.Order, error) {
	raw, err := s.exchange.PlaceOrder(ctx, s.symbol, side, models.Limit, quantity, price, newClientOrderID())
	if err != nil {
		return nil, &ExecutionFailedError{
			Side: side, Type: models.Limit, Symbol: s.symbol,
			Quantity: quantity, Price: price, Attempts: 1, Err: err,
		}
	}
	return parseRawOrder(raw), nil
}

// CancelOrder cancels a resting order in the simulator.
func (s *SimulatedExecutionStrategy) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	raw, err := s.exchange.CancelOrder(ctx, s.symbol, orderID)
	if err != nil {
		return nil, err
	}
	return parseRawOrder(raw), nil
}

// GetOrder queries the simulator for the current state of an order.
func (s *SimulatedExecutionStrategy) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	raw, err := s.exchange.FetchOrder(ctx, s.symbol, orderID)
	if err != nil {
		return nil, err
	}
	return parseRawOrder(raw), nil
}
