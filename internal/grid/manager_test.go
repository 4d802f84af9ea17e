package grid

import (
	"math"
	"testing"

	"grid-engine-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *models.Config {
	return &models.Config{
		BottomRange: 1000,
		TopRange:    2000,
		NumGrids:    11,
		SpacingType: "arithmetic",
	}
}

func newTestManager(t *testing.T, cfg *models.Config) *Manager {
	t.Helper()
	m := NewManager(cfg, zap.NewNop().Sugar())
	m.InitializeGridLevels()
	return m
}

func TestArithmeticGridComputation(t *testing.T) {
	m := newTestManager(t, testConfig())

	grids := m.PriceGrids()
	require.Len(t, grids, 11)
	assert.Equal(t, 1000.0, grids[0])
	assert.Equal(t, 2000.0, grids[10])
	assert.InDelta(t, 1100.0, grids[1], 1e-9)
	assert.InDelta(t, 1500.0, grids[5], 1e-9)
	assert.Equal(t, 1500.0, m.CentralPrice())
}

func TestArithmeticGridPartition(t *testing.T) {
	m := newTestManager(t, testConfig())

	// Grids at or below the central price buy, the rest sell.
	assert.Equal(t, []float64{1000, 1100, 1200, 1300, 1400, 1500}, m.BuyGrids())
	assert.Equal(t, []float64{1600, 1700, 1800, 1900, 2000}, m.SellGrids())

	for _, price := range m.BuyGrids() {
		assert.Equal(t, StateReadyToBuy, m.Level(price).State())
	}
	for _, price := range m.SellGrids() {
		assert.Equal(t, StateReadyToSell, m.Level(price).State())
	}
}

func TestGeometricGridComputation(t *testing.T) {
	cfg := testConfig()
	cfg.SpacingType = "geometric"
	cfg.PercentageSpacing = 0.05
	m := newTestManager(t, cfg)

	grids := m.PriceGrids()
	require.Len(t, grids, 11)
	assert.Equal(t, 1000.0, grids[0])
	for i := 1; i < len(grids); i++ {
		assert.InDelta(t, grids[i-1]*1.05, grids[i], 1e-9)
	}

	expectedCentral := math.Pow(2000*1000, 0.05)
	assert.InDelta(t, expectedCentral, m.CentralPrice(), 1e-9)
}

func TestDetectCrossingBuy(t *testing.T) {
	m := newTestManager(t, testConfig())

	// Falling through 1500: previous >= grid >= current.
	price, ok := m.DetectCrossing(1480, 1520, false)
	require.True(t, ok)
	assert.Equal(t, 1500.0, price)

	// Touching the grid exactly counts on both sides.
	price, ok = m.DetectCrossing(1400, 1400, false)
	require.True(t, ok)
	assert.Equal(t, 1400.0, price)

	// A fall spanning several grids reports the lowest one.
	price, ok = m.DetectCrossing(1150, 1450, false)
	require.True(t, ok)
	assert.Equal(t, 1200.0, price)

	// Rising prices never cross on the buy side.
	_, ok = m.DetectCrossing(1520, 1480, false)
	assert.False(t, ok)

	// Moving between grids crosses nothing.
	_, ok = m.DetectCrossing(1410, 1490, false)
	assert.False(t, ok)
}

func TestDetectCrossingSell(t *testing.T) {
	m := newTestManager(t, testConfig())

	// Rising through 1600: previous < grid <= current.
	price, ok := m.DetectCrossing(1610, 1580, true)
	require.True(t, ok)
	assert.Equal(t, 1600.0, price)

	// Landing exactly on the grid counts.
	price, ok = m.DetectCrossing(1700, 1650, true)
	require.True(t, ok)
	assert.Equal(t, 1700.0, price)

	// Starting exactly on the grid does not: previous must be strictly below.
	_, ok = m.DetectCrossing(1600, 1600, true)
	assert.False(t, ok)

	// A rise spanning several grids reports the lowest one.
	price, ok = m.DetectCrossing(1850, 1550, true)
	require.True(t, ok)
	assert.Equal(t, 1600.0, price)

	_, ok = m.DetectCrossing(1580, 1610, true)
	assert.False(t, ok)
}

func TestFindLowestCompletedBuyGrid(t *testing.T) {
	m := newTestManager(t, testConfig())

	assert.Nil(t, m.FindLowestCompletedBuyGrid())

	require.NoError(t, m.Level(1300).PlaceBuyOrder(&models.Order{ID: "1"}))
	require.NoError(t, m.Level(1100).PlaceBuyOrder(&models.Order{ID: "2"}))

	lvl := m.FindLowestCompletedBuyGrid()
	require.NotNil(t, lvl)
	assert.Equal(t, 1100.0, lvl.Price())

	m.ResetGridCycle(lvl)
	lvl = m.FindLowestCompletedBuyGrid()
	require.NotNil(t, lvl)
	assert.Equal(t, 1300.0, lvl.Price())
}

func TestOrderSizePerGrid(t *testing.T) {
	m := newTestManager(t, testConfig())

	// 11000 of account value over 11 grids at price 1000 buys 1.0 per grid.
	assert.InDelta(t, 1.0, m.OrderSizePerGrid(11000, 1000), 1e-9)
}

func TestLevelCycleStateMachine(t *testing.T) {
	lvl := NewLevel(1500, StateReadyToBuy)

	assert.True(t, lvl.CanPlaceBuyOrder())
	assert.False(t, lvl.CanPlaceSellOrder())

	buy := &models.Order{ID: "b1"}
	require.NoError(t, lvl.PlaceBuyOrder(buy))
	assert.Equal(t, StateReadyToSell, lvl.State())
	assert.Equal(t, buy, lvl.LatestBuyOrder())

	// A second buy without an intervening matched sell is rejected.
	err := lvl.PlaceBuyOrder(&models.Order{ID: "b2"})
	require.ErrorIs(t, err, ErrLevelNotReady)
	assert.Equal(t, 1, lvl.BuyOrderCount())

	sell := &models.Order{ID: "s1"}
	require.NoError(t, lvl.PlaceSellOrder(sell))
	assert.Equal(t, sell, lvl.LatestSellOrder())

	lvl.ResetBuyCycle()
	assert.Equal(t, StateReadyToBuy, lvl.State())
	assert.True(t, lvl.CanPlaceBuyOrder())

	// History survives the reset.
	assert.Equal(t, 1, lvl.BuyOrderCount())
	assert.Equal(t, 1, lvl.SellOrderCount())
}

func TestPlaceSellOnReadyToBuyLevelFails(t *testing.T) {
	lvl := NewLevel(1400, StateReadyToBuy)
	err := lvl.PlaceSellOrder(&models.Order{ID: "s1"})
	require.ErrorIs(t, err, ErrLevelNotReady)
}
