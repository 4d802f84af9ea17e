package order

import (
	"context"
	"sync"

	"grid-engine-go/internal/balance"
	"grid-engine-go/internal/events"
	"grid-engine-go/internal/grid"
	"grid-engine-go/internal/models"
	"grid-engine-go/internal/monitoring"

	"go.uber.org/zap"
)

// Notifier receives human-readable trade alerts. A nil notifier disables
// alerting.
type Notifier interface {
	Notify(title, message string)
}

// Manager turns price movements into grid orders. ExecuteOrder never returns
// an error: every failure inside a tick is logged and alerted, then the tick
// moves on, so one bad order can never stop the engine.
type Manager struct {
	grid      *grid.Manager
	book      *Book
	balances  *balance.Tracker
	validator *Validator
	strategy  ExecutionStrategy
	bus       *events.Bus
	notifier  Notifier
	metrics   *monitoring.Metrics
	logger    *zap.SugaredLogger

	// finalizeMu serializes level mutation and book insertion so a buy and a
	// sell finalizing concurrently cannot interleave on the same level.
	finalizeMu sync.Mutex
}

// NewManager wires the order manager. metrics may be nil.
func NewManager(gridMgr *grid.Manager, book *Book, balances *balance.Tracker, validator *Validator, strategy ExecutionStrategy, bus *events.Bus, notifier Notifier, metrics *monitoring.Metrics, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		grid:      gridMgr,
		book:      book,
		balances:  balances,
		validator: validator,
		strategy:  strategy,
		bus:       bus,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
	}
}

// ExecuteOrder checks whether the move from previousPrice to currentPrice
// crossed a grid level on the given side and, if so, runs the full
// size-validate-reserve-execute-finalize pipeline for it.
func (m *Manager) ExecuteOrder(ctx context.Context, side models.OrderSide, currentPrice, previousPrice float64) {
	switch side {
	case models.Buy:
		m.tryBuy(ctx, currentPrice, previousPrice)
	case models.Sell:
		m.trySell(ctx, currentPrice, previousPrice)
	default:
		m.logger.Errorf("ExecuteOrder called with unknown side %q", side)
	}
}

func (m *Manager) tryBuy(ctx context.Context, currentPrice, previousPrice float64) {
	level := m.grid.CrossedLevel(currentPrice, previousPrice, false)
	if level == nil {
		return
	}
	if !level.CanPlaceBuyOrder() {
		m.logger.Debugf("Buy grid at %.8f crossed but not ready (state %s), skipping", level.Price(), level.State())
		return
	}

	totalValue := m.balances.TotalBalanceValue(currentPrice)
	quantity := m.grid.OrderSizePerGrid(totalValue, currentPrice)

	adjusted, err := m.validator.AdjustAndValidateBuyQuantity(m.balances.Balance(), quantity, currentPrice)
	if err != nil {
		m.logger.Warnf("Buy at grid %.8f rejected by validation: %v", level.Price(), err)
		return
	}

	reserved := adjusted * currentPrice
	if err := m.balances.ReserveFundsForBuy(reserved); err != nil {
		m.logger.Warnf("Buy at grid %.8f could not reserve funds: %v", level.Price(), err)
		return
	}

	placed, err := m.strategy.ExecuteMarketOrder(ctx, models.Buy, adjusted, currentPrice)
	if err != nil {
		m.balances.ReleaseReservedBuyFunds(reserved)
		m.recordFailure(models.Buy)
		m.logger.Errorf("Buy at grid %.8f failed: %v", level.Price(), err)
		m.notify("Order execution failed", err.Error())
		return
	}

	m.finalizeBuyOrder(placed, level)
	m.recordPlaced(models.Buy)
	m.publishIfFilled(placed)
	m.logger.Infof("Placed buy for grid %.8f: %s", level.Price(), placed)
	m.notify("Buy order placed", placed.String())
}

func (m *Manager) trySell(ctx context.Context, currentPrice, previousPrice float64) {
	sellLevel := m.grid.CrossedLevel(currentPrice, previousPrice, true)
	if sellLevel == nil {
		return
	}
	if !sellLevel.CanPlaceSellOrder() {
		m.logger.Debugf("Sell grid at %.8f crossed but not ready (state %s), skipping", sellLevel.Price(), sellLevel.State())
		return
	}

	buyLevel := m.grid.FindLowestCompletedBuyGrid()
	if buyLevel == nil {
		m.logger.Debugf("Sell grid at %.8f crossed but no completed buy cycle to close", sellLevel.Price())
		return
	}
	buyOrder := buyLevel.LatestBuyOrder()
	if buyOrder == nil {
		m.logger.Errorf("Buy grid at %.8f is READY_TO_SELL but holds no buy order", buyLevel.Price())
		return
	}

	quantity := buyOrder.Filled
	if quantity <= 0 {
		quantity = buyOrder.Amount
	}

	adjusted, err := m.validator.AdjustAndValidateSellQuantity(m.balances.CryptoBalance(), quantity)
	if err != nil {
		m.logger.Warnf("Sell at grid %.8f rejected by validation: %v", sellLevel.Price(), err)
		return
	}

	if err := m.balances.ReserveFundsForSell(adjusted); err != nil {
		m.logger.Warnf("Sell at grid %.8f could not reserve crypto: %v", sellLevel.Price(), err)
		return
	}

	placed, err := m.strategy.ExecuteMarketOrder(ctx, models.Sell, adjusted, currentPrice)
	if err != nil {
		m.balances.ReleaseReservedSellFunds(adjusted)
		m.recordFailure(models.Sell)
		m.logger.Errorf("Sell at grid %.8f failed: %v", sellLevel.Price(), err)
		m.notify("Order execution failed", err.Error())
		return
	}

	m.finalizeSellOrder(placed, sellLevel, buyLevel)
	m.recordPlaced(models.Sell)
	m.publishIfFilled(placed)
	m.logger.Infof("Placed sell for grid %.8f closing buy cycle at %.8f: %s", sellLevel.Price(), buyLevel.Price(), placed)
	m.notify("Sell order placed", placed.String())
}

func (m *Manager) finalizeBuyOrder(placed *models.Order, level *grid.Level) {
	m.finalizeMu.Lock()
	defer m.finalizeMu.Unlock()

	if err := level.PlaceBuyOrder(placed); err != nil {
		m.logger.Errorf("Buy order %s executed but level %.8f refused it: %v", placed.ID, level.Price(), err)
	}
	m.book.AddBuyOrder(placed, level)
}

func (m *Manager) finalizeSellOrder(placed *models.Order, sellLevel, buyLevel *grid.Level) {
	m.finalizeMu.Lock()
	defer m.finalizeMu.Unlock()

	if err := sellLevel.PlaceSellOrder(placed); err != nil {
		m.logger.Errorf("Sell order %s executed but level %.8f refused it: %v", placed.ID, sellLevel.Price(), err)
	}
	m.book.AddSellOrder(placed, sellLevel)
	m.grid.ResetGridCycle(buyLevel)
}

// ExecuteTakeProfitOrStopLoss liquidates the full crypto position with a
// market sell outside the grid. takeProfit only selects the alert wording.
func (m *Manager) ExecuteTakeProfitOrStopLoss(ctx context.Context, currentPrice float64, takeProfit bool) {
	reason := "Stop loss"
	if takeProfit {
		reason = "Take profit"
	}

	crypto := m.balances.CryptoBalance()
	if crypto <= 0 {
		m.logger.Warnf("%s triggered at %.8f but no crypto to liquidate", reason, currentPrice)
		return
	}

	if err := m.balances.ReserveFundsForSell(crypto); err != nil {
		m.logger.Errorf("%s could not reserve crypto: %v", reason, err)
		return
	}

	placed, err := m.strategy.ExecuteMarketOrder(ctx, models.Sell, crypto, currentPrice)
	if err != nil {
		m.balances.ReleaseReservedSellFunds(crypto)
		m.recordFailure(models.Sell)
		m.logger.Errorf("%s liquidation failed: %v", reason, err)
		m.notify(reason+" failed", err.Error())
		return
	}

	m.finalizeMu.Lock()
	m.book.AddNonGridOrder(placed)
	m.finalizeMu.Unlock()
	m.recordPlaced(models.Sell)
	m.publishIfFilled(placed)

	m.logger.Infof("%s executed at %.8f: %s", reason, currentPrice, placed)
	m.notify(reason+" executed", placed.String())
}

// CancelOpenOrders cancels every order still resting on the book, publishing
// OrderCancelled for each so reservations are released. Used on shutdown.
func (m *Manager) CancelOpenOrders(ctx context.Context) {
	for _, o := range m.book.OpenOrders() {
		cancelled, err := m.strategy.CancelOrder(ctx, o.ID)
		if err != nil {
			m.logger.Errorf("Failed to cancel order %s on shutdown: %v", o.ID, err)
			continue
		}
		m.book.UpdateOrderStatus(o.ID, models.OrderStatusCanceled, cancelled.Filled, cancelled.Average, cancelled.UpdateTime)
		m.bus.PublishSync(events.OrderCancelled, o)
		m.logger.Infof("Cancelled resting order on shutdown: %s", o)
	}
}

func (m *Manager) notify(title, message string) {
	if m.notifier != nil {
		m.notifier.Notify(title, message)
	}
}

// publishIfFilled settles orders that came back already filled, typically
// market orders. Orders still open at placement are left to the status
// tracker, which publishes on the fill it observes.
func (m *Manager) publishIfFilled(placed *models.Order) {
	if placed.IsFilled() {
		m.bus.PublishSync(events.OrderCompleted, placed)
	}
}

func (m *Manager) recordPlaced(side models.OrderSide) {
	if m.metrics != nil {
		m.metrics.OrdersPlaced.WithLabelValues(string(side)).Inc()
	}
}

func (m *Manager) recordFailure(side models.OrderSide) {
	if m.metrics != nil {
		m.metrics.OrderFailures.WithLabelValues(string(side)).Inc()
	}
}
