package exchange

import (
	"context"
	"strconv"
	"testing"

	"grid-engine-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSim() *SimulatedExchange {
	return NewSimulatedExchange("BTCUSDT", 10000, 1, zap.NewNop().Sugar())
}

func TestSimMarketOrderFillsAtCurrentPrice(t *testing.T) {
	sim := newSim()
	sim.UpdatePrice(1500, 1510, 1490, 1505, 1000)

	raw, err := sim.PlaceOrder(context.Background(), "BTCUSDT", models.Buy, models.Market, 2, 0, "c1")
	require.NoError(t, err)

	assert.Equal(t, "FILLED", raw.Status)
	assert.Equal(t, "c1", raw.ClientOrderID)

	avg, _ := strconv.ParseFloat(raw.AvgPrice, 64)
	executed, _ := strconv.ParseFloat(raw.ExecutedQty, 64)
	assert.Equal(t, 1505.0, avg)
	assert.Equal(t, 2.0, executed)
}

func TestSimMarketOrderRejectedBeforeData(t *testing.T) {
	sim := newSim()
	_, err := sim.PlaceOrder(context.Background(), "BTCUSDT", models.Buy, models.Market, 1, 0, "")
	require.Error(t, err)
}

func TestSimRejectsUnknownSymbolAndBadQuantity(t *testing.T) {
	sim := newSim()
	sim.UpdatePrice(1500, 1500, 1500, 1500, 1000)

	_, err := sim.PlaceOrder(context.Background(), "ETHUSDT", models.Buy, models.Market, 1, 0, "")
	require.Error(t, err)

	_, err = sim.PlaceOrder(context.Background(), "BTCUSDT", models.Buy, models.Market, 0, 0, "")
	require.Error(t, err)
}

func TestSimLimitOrderRestsUntilPriceReached(t *testing.T) {
	sim := newSim()
	sim.UpdatePrice(1500, 1500, 1500, 1500, 1000)

	raw, err := sim.PlaceOrder(context.Background(), "BTCUSDT", models.Buy, models.Limit, 1, 1400, "")
	require.NoError(t, err)
	assert.Equal(t, "NEW", raw.Status)

	orderID := strconv.FormatInt(raw.OrderID, 10)

	// A candle that stays above the limit leaves the order resting.
	sim.UpdatePrice(1480, 1490, 1450, 1470, 2000)
	fetched, err := sim.FetchOrder(context.Background(), "BTCUSDT", orderID)
	require.NoError(t, err)
	assert.Equal(t, "NEW", fetched.Status)

	// A candle trading through 1400 fills it at the limit price.
	sim.UpdatePrice(1450, 1460, 1390, 1410, 3000)
	fetched, err = sim.FetchOrder(context.Background(), "BTCUSDT", orderID)
	require.NoError(t, err)
	assert.Equal(t, "FILLED", fetched.Status)

	avg, _ := strconv.ParseFloat(fetched.AvgPrice, 64)
	assert.Equal(t, 1400.0, avg)
}

func TestSimLimitSellFillsOnHigh(t *testing.T) {
	sim := newSim()
	sim.UpdatePrice(1500, 1500, 1500, 1500, 1000)

	raw, err := sim.PlaceOrder(context.Background(), "BTCUSDT", models.Sell, models.Limit, 1, 1600, "")
	require.NoError(t, err)
	orderID := strconv.FormatInt(raw.OrderID, 10)

	sim.UpdatePrice(1550, 1620, 1540, 1580, 2000)
	fetched, err := sim.FetchOrder(context.Background(), "BTCUSDT", orderID)
	require.NoError(t, err)
	assert.Equal(t, "FILLED", fetched.Status)
}

func TestSimCancelOrder(t *testing.T) {
	sim := newSim()
	sim.UpdatePrice(1500, 1500, 1500, 1500, 1000)

	raw, err := sim.PlaceOrder(context.Background(), "BTCUSDT", models.Buy, models.Limit, 1, 1400, "")
	require.NoError(t, err)
	orderID := strconv.FormatInt(raw.OrderID, 10)

	cancelled, err := sim.CancelOrder(context.Background(), "BTCUSDT", orderID)
	require.NoError(t, err)
	assert.Equal(t, "CANCELED", cancelled.Status)

	// A terminal order cannot be cancelled again.
	_, err = sim.CancelOrder(context.Background(), "BTCUSDT", orderID)
	require.Error(t, err)
}

func TestSimFetchUnknownOrderIsDataFetchError(t *testing.T) {
	sim := newSim()
	_, err := sim.FetchOrder(context.Background(), "BTCUSDT", "999")
	require.Error(t, err)

	var fetchErr *DataFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestSplitSymbol(t *testing.T) {
	base, quote, err := SplitSymbol("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	base, quote, err = SplitSymbol("ethbtc")
	require.NoError(t, err)
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "BTC", quote)

	_, _, err = SplitSymbol("USDT")
	require.Error(t, err)
}
