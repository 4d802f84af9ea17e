package grid

import (
	"math"

	"grid-engine-go/internal/models"

	"go.uber.org/zap"
)

// Manager owns the immutable price ladder and the per-level state table.
// The ladder, central price and buy/sell partitions are computed once at
// construction; levels are created by InitializeGridLevels and never
// recreated.
type Manager struct {
	bottomRange       float64
	topRange          float64
	numGrids          int
	spacing           models.SpacingType
	percentageSpacing float64

	priceGrids      []float64
	centralPrice    float64
	sortedBuyGrids  []float64 // grids <= central, ascending
	sortedSellGrids []float64 // grids > central, ascending
	levels          map[float64]*Level

	logger *zap.SugaredLogger
}

// NewManager computes the price ladder and central price from config.
func NewManager(cfg *models.Config, logger *zap.SugaredLogger) *Manager {
	m := &Manager{
		bottomRange:       cfg.BottomRange,
		topRange:          cfg.TopRange,
		numGrids:          cfg.NumGrids,
		spacing:           models.SpacingType(cfg.SpacingType),
		percentageSpacing: cfg.PercentageSpacing,
		levels:            make(map[float64]*Level),
		logger:            logger,
	}
	m.priceGrids = m.computeGrids()
	m.centralPrice = m.computeCentralPrice()
	return m
}

func (m *Manager) computeGrids() []float64 {
	grids := make([]float64, 0, m.numGrids)
	switch m.spacing {
	case models.SpacingGeometric:
		price := m.bottomRange
		for i := 0; i < m.numGrids; i++ {
			grids = append(grids, price)
			price *= 1 + m.percentageSpacing
		}
	default: // arithmetic
		step := (m.topRange - m.bottomRange) / float64(m.numGrids-1)
		for i := 0; i < m.numGrids; i++ {
			grids = append(grids, m.bottomRange+step*float64(i))
		}
		grids[m.numGrids-1] = m.topRange
	}
	return grids
}

func (m *Manager) computeCentralPrice() float64 {
	if m.spacing == models.SpacingGeometric {
		// TODO: revisit the geometric central price. (top*bottom)^spacing is
		// kept for compatibility with existing strategy configs but is
		// inconsistent in shape with the arithmetic midpoint.
		return math.Pow(m.topRange*m.bottomRange, m.percentageSpacing)
	}
	return (m.topRange + m.bottomRange) / 2
}

// InitializeGridLevels creates one level per grid price: READY_TO_BUY at or
// below the central price, READY_TO_SELL above it, and partitions the ladder
// into the buy and sell scan lists.
func (m *Manager) InitializeGridLevels() {
	m.sortedBuyGrids = m.sortedBuyGrids[:0]
	m.sortedSellGrids = m.sortedSellGrids[:0]
	for _, price := range m.priceGrids {
		if price <= m.centralPrice {
			m.sortedBuyGrids = append(m.sortedBuyGrids, price)
			m.levels[price] = NewLevel(price, StateReadyToBuy)
		} else {
			m.sortedSellGrids = append(m.sortedSellGrids, price)
			m.levels[price] = NewLevel(price, StateReadyToSell)
		}
	}
	m.logger.Infof("Initialized %d grid levels (%d buy, %d sell), central price %.8f",
		len(m.levels), len(m.sortedBuyGrids), len(m.sortedSellGrids), m.centralPrice)
}

// DetectCrossing returns the first grid price the market moved through
// between two consecutive ticks, scanning ascending with first match wins.
// For the buy side a level counts when previous >= grid >= current (price
// fell through or touched it); for the sell side when
// previous < grid <= current. Equality on the touched side counts.
func (m *Manager) DetectCrossing(current, previous float64, sell bool) (float64, bool) {
	gridList := m.sortedBuyGrids
	if sell {
		gridList = m.sortedSellGrids
	}
	for _, gridPrice := range gridList {
		if sell {
			if previous < gridPrice && gridPrice <= current {
				return gridPrice, true
			}
		} else {
			if previous >= gridPrice && gridPrice >= current {
				return gridPrice, true
			}
		}
	}
	return 0, false
}

// CrossedLevel returns the level crossed between two ticks, or nil.
func (m *Manager) CrossedLevel(current, previous float64, sell bool) *Level {
	gridPrice, ok := m.DetectCrossing(current, previous, sell)
	if !ok {
		return nil
	}
	return m.levels[gridPrice]
}

// Level returns the level at an exact grid price, or nil.
func (m *Manager) Level(price float64) *Level {
	return m.levels[price]
}

// Levels returns the levels in ladder order.
func (m *Manager) Levels() []*Level {
	out := make([]*Level, 0, len(m.levels))
	for _, price := range m.priceGrids {
		if lvl, ok := m.levels[price]; ok {
			out = append(out, lvl)
		}
	}
	return out
}

// FindLowestCompletedBuyGrid scans the buy grids ascending and returns the
// first level holding an unmatched buy (READY_TO_SELL), or nil. It picks
// which buy cycle an incoming sell closes.
func (m *Manager) FindLowestCompletedBuyGrid() *Level {
	for _, price := range m.sortedBuyGrids {
		if lvl := m.levels[price]; lvl != nil && lvl.CanPlaceSellOrder() {
			return lvl
		}
	}
	return nil
}

// OrderSizePerGrid derives the base-currency order size from the total
// account value spread evenly across the ladder.
func (m *Manager) OrderSizePerGrid(totalValue, currentPrice float64) float64 {
	return totalValue / float64(m.numGrids) / currentPrice
}

// ResetGridCycle resets a buy level after its matching sell was placed.
func (m *Manager) ResetGridCycle(buyLevel *Level) {
	buyLevel.ResetBuyCycle()
	m.logger.Debugf("Buy grid level at %.8f reset, ready for the next cycle", buyLevel.Price())
}

// CentralPrice returns the ladder's central price.
func (m *Manager) CentralPrice() float64 { return m.centralPrice }

// PriceGrids returns the full ladder, ascending.
func (m *Manager) PriceGrids() []float64 {
	out := make([]float64, len(m.priceGrids))
	copy(out, m.priceGrids)
	return out
}

// BuyGrids returns the buy partition of the ladder, ascending.
func (m *Manager) BuyGrids() []float64 {
	out := make([]float64, len(m.sortedBuyGrids))
	copy(out, m.sortedBuyGrids)
	return out
}

// SellGrids returns the sell partition of the ladder, ascending.
func (m *Manager) SellGrids() []float64 {
	out := make([]float64, len(m.sortedSellGrids))
	copy(out, m.sortedSellGrids)
	return out
}

// NumGrids returns the configured ladder size.
func (m *Manager) NumGrids() int { return m.numGrids }
