package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"grid-engine-go/internal/exchange"
	"grid-engine-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyExchange fails a configurable number of placements and cancels, and
// half-fills a configurable number of placements, before filling cleanly. It
// records every attempt.
type flakyExchange struct {
	mu             sync.Mutex
	placeFailures  int
	partialFills   int
	cancelFailures int
	placeCalls     int
	cancelCalls    int
	placedPrices   []float64
	placedQtys     []float64
	clientOrderIDs []string
}

func (f *flakyExchange) GetCurrentPrice(context.Context, string) (float64, error) {
	return 0, errors.New("not implemented")
}

func (f *flakyExchange) GetBalances(context.Context) (float64, float64, error) {
	return 0, 0, errors.New("not implemented")
}

func (f *flakyExchange) PlaceOrder(_ context.Context, symbol string, side models.OrderSide, orderType models.OrderType, quantity, price float64, clientOrderID string) (*models.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	f.placedPrices = append(f.placedPrices, price)
	f.placedQtys = append(f.placedQtys, quantity)
	f.clientOrderIDs = append(f.clientOrderIDs, clientOrderID)
	if f.placeCalls <= f.placeFailures {
		return nil, fmt.Errorf("exchange unavailable (attempt %d)", f.placeCalls)
	}
	executed, status := quantity, "FILLED"
	if f.placeCalls <= f.placeFailures+f.partialFills {
		executed, status = quantity/2, "PARTIALLY_FILLED"
	}
	return &models.RawOrder{
		Symbol:      symbol,
		OrderID:     int64(f.placeCalls),
		Price:       strconv.FormatFloat(price, 'f', -1, 64),
		OrigQty:     strconv.FormatFloat(quantity, 'f', -1, 64),
		ExecutedQty: strconv.FormatFloat(executed, 'f', -1, 64),
		AvgPrice:    strconv.FormatFloat(price, 'f', -1, 64),
		Status:      status,
		Type:        string(orderType),
		Side:        string(side),
	}, nil
}

func (f *flakyExchange) CancelOrder(_ context.Context, symbol, orderID string) (*models.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if f.cancelCalls <= f.cancelFailures {
		return nil, fmt.Errorf("exchange unavailable (attempt %d)", f.cancelCalls)
	}
	id, _ := strconv.ParseInt(orderID, 10, 64)
	return &models.RawOrder{Symbol: symbol, OrderID: id, Status: "CANCELED", Side: "BUY", Type: "LIMIT"}, nil
}

func (f *flakyExchange) FetchOrder(context.Context, string, string) (*models.RawOrder, error) {
	return nil, errors.New("not implemented")
}

func testStrategyConfig() *models.Config {
	return &models.Config{
		Symbol:       "BTCUSDT",
		MaxRetries:   3,
		RetryDelayMs: 1,
		MaxSlippage:  0.03,
	}
}

func TestMarketOrderSucceedsFirstAttempt(t *testing.T) {
	ex := &flakyExchange{}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	o, err := s.ExecuteMarketOrder(context.Background(), models.Buy, 2, 1500)
	require.NoError(t, err)
	assert.Equal(t, 1, ex.placeCalls)
	assert.Equal(t, 1500.0, ex.placedPrices[0])
	assert.Equal(t, models.Buy, o.Side)
	assert.Equal(t, models.OrderStatusClosed, o.Status)
	assert.Equal(t, 2.0, o.Filled)
}

func TestMarketOrderRetriesWithProgressiveSlippage(t *testing.T) {
	ex := &flakyExchange{placeFailures: 2}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	o, err := s.ExecuteMarketOrder(context.Background(), models.Buy, 1, 1000)
	require.NoError(t, err)
	require.Equal(t, 3, ex.placeCalls)

	// Step is max_slippage/max_retries = 1% per attempt; buys pay up.
	assert.InDelta(t, 1000.0, ex.placedPrices[0], 1e-9)
	assert.InDelta(t, 1010.0, ex.placedPrices[1], 1e-9)
	assert.InDelta(t, 1020.0, ex.placedPrices[2], 1e-9)
	assert.Equal(t, models.OrderStatusClosed, o.Status)
}

func TestMarketSellSlippageMovesDown(t *testing.T) {
	ex := &flakyExchange{placeFailures: 1}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	_, err := s.ExecuteMarketOrder(context.Background(), models.Sell, 1, 1000)
	require.NoError(t, err)
	require.Equal(t, 2, ex.placeCalls)
	assert.InDelta(t, 1000.0, ex.placedPrices[0], 1e-9)
	assert.InDelta(t, 990.0, ex.placedPrices[1], 1e-9)
}

func TestMarketOrderPartialFillIsCancelledAndRetried(t *testing.T) {
	ex := &flakyExchange{partialFills: 1}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	o, err := s.ExecuteMarketOrder(context.Background(), models.Buy, 2, 1000)
	require.NoError(t, err)

	// The half-filled order was cancelled and the full quantity went out
	// again at the next slippage-adjusted price.
	require.Equal(t, 2, ex.placeCalls)
	assert.Equal(t, 1, ex.cancelCalls)
	assert.Equal(t, []float64{2, 2}, ex.placedQtys)
	assert.InDelta(t, 1000.0, ex.placedPrices[0], 1e-9)
	assert.InDelta(t, 1010.0, ex.placedPrices[1], 1e-9)

	assert.Equal(t, models.OrderStatusClosed, o.Status)
	assert.Equal(t, 2.0, o.Filled)
}

func TestMarketOrderPartialFillsExhaustRetries(t *testing.T) {
	ex := &flakyExchange{partialFills: 100}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	_, err := s.ExecuteMarketOrder(context.Background(), models.Buy, 2, 1000)
	require.Error(t, err)

	// Every attempt half-filled: each was cancelled once and the run ends in
	// the typed failure, never returning a partial fill as success.
	assert.Equal(t, 3, ex.placeCalls)
	assert.Equal(t, 3, ex.cancelCalls)

	var execErr *ExecutionFailedError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.Attempts)
}

func TestMarketOrderRetriesEvenWhenCancelFails(t *testing.T) {
	ex := &flakyExchange{partialFills: 1, cancelFailures: 100}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	o, err := s.ExecuteMarketOrder(context.Background(), models.Buy, 2, 1000)
	require.NoError(t, err)

	// The unconfirmable cancellation is logged, not fatal: the cancel was
	// retried to exhaustion and the placement still chased the market.
	require.Equal(t, 2, ex.placeCalls)
	assert.Equal(t, 3, ex.cancelCalls)
	assert.Equal(t, models.OrderStatusClosed, o.Status)
}

func TestMarketOrderFailsAfterExactlyMaxRetries(t *testing.T) {
	ex := &flakyExchange{placeFailures: 100}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	_, err := s.ExecuteMarketOrder(context.Background(), models.Sell, 1.5, 1600)
	require.Error(t, err)
	assert.Equal(t, 3, ex.placeCalls)

	var execErr *ExecutionFailedError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.Sell, execErr.Side)
	assert.Equal(t, models.Market, execErr.Type)
	assert.Equal(t, "BTCUSDT", execErr.Symbol)
	assert.Equal(t, 1.5, execErr.Quantity)
	assert.Equal(t, 1600.0, execErr.Price)
	assert.Equal(t, 3, execErr.Attempts)
}

func TestLimitOrderIsNotRetried(t *testing.T) {
	ex := &flakyExchange{placeFailures: 1}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	_, err := s.ExecuteLimitOrder(context.Background(), models.Buy, 1, 1400)
	require.Error(t, err)
	assert.Equal(t, 1, ex.placeCalls)

	var execErr *ExecutionFailedError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.Limit, execErr.Type)
}

func TestCancelOrderRetries(t *testing.T) {
	ex := &flakyExchange{cancelFailures: 2}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	o, err := s.CancelOrder(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 3, ex.cancelCalls)
	assert.Equal(t, models.OrderStatusCanceled, o.Status)
}

func TestCancelOrderFailsWithTypedError(t *testing.T) {
	ex := &flakyExchange{cancelFailures: 100}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	_, err := s.CancelOrder(context.Background(), "42")
	require.Error(t, err)
	assert.Equal(t, 3, ex.cancelCalls)

	var cancelErr *exchange.OrderCancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.Equal(t, "42", cancelErr.OrderID)
}

func TestClientOrderIDsAreUnique(t *testing.T) {
	ex := &flakyExchange{}
	s := NewLiveExecutionStrategy(ex, testStrategyConfig(), zap.NewNop().Sugar())

	_, err := s.ExecuteMarketOrder(context.Background(), models.Buy, 1, 1000)
	require.NoError(t, err)
	_, err = s.ExecuteLimitOrder(context.Background(), models.Buy, 1, 1000)
	require.NoError(t, err)

	require.Len(t, ex.clientOrderIDs, 2)
	assert.NotEmpty(t, ex.clientOrderIDs[0])
	assert.NotEmpty(t, ex.clientOrderIDs[1])
	assert.NotEqual(t, ex.clientOrderIDs[0], ex.clientOrderIDs[1])
}

func TestParseRawOrderDerivesAverageFromCost(t *testing.T) {
	o := parseRawOrder(&models.RawOrder{
		OrderID:     7,
		Symbol:      "BTCUSDT",
		Price:       "0",
		OrigQty:     "2",
		ExecutedQty: "2",
		CumQuoteQty: "3000",
		Status:      "FILLED",
		Side:        "BUY",
		Type:        "MARKET",
	})
	assert.Equal(t, "7", o.ID)
	assert.InDelta(t, 1500.0, o.Average, 1e-9)
	assert.InDelta(t, 1500.0, o.FillPrice(), 1e-9)
	assert.Zero(t, o.Remaining)
}
