package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grid-engine-go/internal/balance"
	"grid-engine-go/internal/downloader"
	"grid-engine-go/internal/events"
	"grid-engine-go/internal/exchange"
	"grid-engine-go/internal/grid"
	"grid-engine-go/internal/models"
	"grid-engine-go/internal/monitoring"
	"grid-engine-go/internal/order"
	"grid-engine-go/internal/persistence"

	"go.uber.org/zap"
)

// GridTradingBot wires the engine components together and drives them with
// price ticks: candles replayed from disk in backtest mode, the websocket
// ticker stream otherwise.
type GridTradingBot struct {
	cfg      *models.Config
	mode     models.TradingMode
	bus      *events.Bus
	gridMgr  *grid.Manager
	book     *order.Book
	balances *balance.Tracker
	fees     *balance.FeeCalculator
	orderMgr *order.Manager
	tracker  *order.StatusTracker
	ex       exchange.Exchange
	journal  persistence.TradeJournal
	metrics  *monitoring.Metrics
	logger   *zap.SugaredLogger

	mu          sync.Mutex
	lastPrice   float64
	equityCurve []float64
	stopped     bool
	stopCh      chan struct{}
}

// New builds the engine around a configured exchange adapter and execution
// strategy. The caller owns the journal's and notifier's lifecycles.
func New(cfg *models.Config, ex exchange.Exchange, strategy order.ExecutionStrategy, journal persistence.TradeJournal, notifier order.Notifier, metrics *monitoring.Metrics, logger *zap.SugaredLogger) *GridTradingBot {
	bus := events.NewBus(logger)
	fees := balance.NewFeeCalculator(cfg.TradingFee)
	balances := balance.NewTracker(fees, bus, logger)
	gridMgr := grid.NewManager(cfg, logger)
	book := order.NewBook()
	orderMgr := order.NewManager(gridMgr, book, balances, order.NewValidator(), strategy, bus, notifier, metrics, logger)
	tracker := order.NewStatusTracker(book, strategy, bus,
		time.Duration(cfg.PollingIntervalSec*float64(time.Second)), logger)

	b := &GridTradingBot{
		cfg:      cfg,
		mode:     cfg.TradingMode(),
		bus:      bus,
		gridMgr:  gridMgr,
		book:     book,
		balances: balances,
		fees:     fees,
		orderMgr: orderMgr,
		tracker:  tracker,
		ex:       ex,
		journal:  journal,
		metrics:  metrics,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	bus.Subscribe(events.OrderCompleted, b.onOrderCompleted)
	bus.SubscribeAsync(events.OrderCancelled, b.onOrderCancelled)
	bus.SubscribeAsync(events.StopBot, func(context.Context, events.Event) { b.requestStop() })
	return b
}

// Start seeds balances, initializes the grid and runs the engine until the
// context is cancelled, a stop is requested or a risk exit triggers.
func (b *GridTradingBot) Start(ctx context.Context) error {
	if err := b.balances.SetupBalances(ctx, b.mode, b.cfg.InitialBalance, b.cfg.InitialCryptoBalance, b.ex); err != nil {
		return err
	}
	b.gridMgr.InitializeGridLevels()
	b.bus.PublishSync(events.StartBot, b.cfg.Symbol)

	if b.mode == models.ModeBacktest {
		return fmt.Errorf("backtest mode is driven by RunBacktest, not Start")
	}
	return b.runLive(ctx)
}

func (b *GridTradingBot) runLive(ctx context.Context) error {
	streamer, ok := b.ex.(exchange.PriceStreamer)
	if !ok {
		return fmt.Errorf("exchange adapter does not stream prices")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks, err := streamer.StreamPrices(runCtx, b.cfg.Symbol)
	if err != nil {
		return err
	}

	b.tracker.StartTracking(runCtx)
	defer func() {
		b.tracker.StopTracking()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()
		b.orderMgr.CancelOpenOrders(shutdownCtx)
		b.bus.Wait()
	}()

	b.logger.Infof("Grid trading started in %s mode for %s", b.mode, b.cfg.Symbol)
	for {
		select {
		case tick, open := <-ticks:
			if !open {
				return fmt.Errorf("price stream for %s closed", b.cfg.Symbol)
			}
			if exit := b.handleTick(runCtx, tick.Price); exit {
				return nil
			}
		case <-b.stopCh:
			b.logger.Info("Stop requested, shutting down")
			return nil
		case <-runCtx.Done():
			return runCtx.Err()
		}
	}
}

// RunBacktest replays candles through the simulator. Each candle advances the
// simulated market, runs both order sides against the close price and then
// reconciles order statuses synchronously.
func (b *GridTradingBot) RunBacktest(ctx context.Context, sim *exchange.SimulatedExchange, klines []downloader.Kline) error {
	if b.mode != models.ModeBacktest {
		return fmt.Errorf("RunBacktest called in %s mode", b.mode)
	}
	if len(klines) == 0 {
		return fmt.Errorf("no candles to replay")
	}

	if err := b.balances.SetupBalances(ctx, b.mode, b.cfg.InitialBalance, b.cfg.InitialCryptoBalance, b.ex); err != nil {
		return err
	}
	b.gridMgr.InitializeGridLevels()
	b.bus.PublishSync(events.StartBot, b.cfg.Symbol)

	b.logger.Infof("Replaying %d candles for %s", len(klines), b.cfg.Symbol)
	for i, k := range klines {
		if err := ctx.Err(); err != nil {
			return err
		}
		sim.UpdatePrice(k.Open, k.High, k.Low, k.Close, k.CloseTime)
		if exit := b.handleTick(ctx, k.Close); exit {
			b.logger.Infof("Risk exit after %d of %d candles", i+1, len(klines))
			break
		}
	}
	b.bus.Wait()
	return nil
}

// handleTick runs one full engine cycle for a price observation. Returns true
// when a risk exit fired and the engine should stop.
func (b *GridTradingBot) handleTick(ctx context.Context, price float64) bool {
	b.mu.Lock()
	previous := b.lastPrice
	b.lastPrice = price
	b.mu.Unlock()

	if previous == 0 {
		return false
	}

	b.orderMgr.ExecuteOrder(ctx, models.Buy, price, previous)
	b.orderMgr.ExecuteOrder(ctx, models.Sell, price, previous)
	b.tracker.PollOnce(ctx)
	// Settlement handlers run async off the publish path; drain them so the
	// next tick sees settled balances.
	b.bus.Wait()

	equity := b.balances.TotalBalanceValue(price)
	b.mu.Lock()
	b.equityCurve = append(b.equityCurve, equity)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.CurrentPrice.Set(price)
		b.metrics.AccountValue.Set(equity)
		b.metrics.OpenOrders.Set(float64(len(b.book.OpenOrders())))
	}

	return b.checkRiskLimits(ctx, price)
}

// checkRiskLimits liquidates and stops the engine when the price leaves the
// configured take-profit/stop-loss band. Zero thresholds disable the exits.
func (b *GridTradingBot) checkRiskLimits(ctx context.Context, price float64) bool {
	if b.cfg.TakeProfitThreshold > 0 && price >= b.cfg.TakeProfitThreshold {
		b.logger.Infof("Take profit threshold %.8f reached at %.8f", b.cfg.TakeProfitThreshold, price)
		b.orderMgr.ExecuteTakeProfitOrStopLoss(ctx, price, true)
		b.tracker.PollOnce(ctx)
		return true
	}
	if b.cfg.StopLossThreshold > 0 && price <= b.cfg.StopLossThreshold {
		b.logger.Warnf("Stop loss threshold %.8f reached at %.8f", b.cfg.StopLossThreshold, price)
		b.orderMgr.ExecuteTakeProfitOrStopLoss(ctx, price, false)
		b.tracker.PollOnce(ctx)
		return true
	}
	return false
}

// onOrderCompleted journals a settled fill. It runs synchronously on the
// publish path so the journal is consistent with the book when a report is
// generated.
func (b *GridTradingBot) onOrderCompleted(_ context.Context, event events.Event) {
	o, ok := event.Payload.(*models.Order)
	if !ok {
		b.logger.Warnf("Order completed event with unexpected payload type %T", event.Payload)
		return
	}

	fillPrice := o.FillPrice()
	trade := &models.CompletedTrade{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Price:     fillPrice,
		Quantity:  o.Filled,
		Fee:       b.fees.CalculateFee(o.Filled * fillPrice),
		Timestamp: time.UnixMilli(o.UpdateTime),
	}
	if trade.Timestamp.IsZero() || o.UpdateTime == 0 {
		trade.Timestamp = time.Now()
	}
	if lvl, ok := b.book.GridLevelFor(o.ID); ok {
		trade.GridPrice = lvl.Price()
	}

	if err := b.journal.Append(trade); err != nil {
		b.logger.Errorf("Failed to journal trade for order %s: %v", o.ID, err)
	}
	if b.metrics != nil {
		b.metrics.OrdersFilled.WithLabelValues(string(o.Side)).Inc()
	}
}

// onOrderCancelled returns the unfilled remainder's reservation to the free
// balance so a cancelled order does not strand funds.
func (b *GridTradingBot) onOrderCancelled(_ context.Context, event events.Event) {
	o, ok := event.Payload.(*models.Order)
	if !ok {
		return
	}
	b.logger.Warnf("Order cancelled: %s", o)

	remaining := o.Amount - o.Filled
	if remaining <= 0 {
		return
	}
	switch o.Side {
	case models.Buy:
		b.balances.ReleaseReservedBuyFunds(remaining * o.Price)
	case models.Sell:
		b.balances.ReleaseReservedSellFunds(remaining)
	}
}

// requestStop asks the run loop to exit. Safe to call more than once.
func (b *GridTradingBot) requestStop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		close(b.stopCh)
	}
}

// Stop shuts the engine down from outside the run loop.
func (b *GridTradingBot) Stop() {
	b.requestStop()
}

// EquityCurve returns the per-tick account value history.
func (b *GridTradingBot) EquityCurve() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, len(b.equityCurve))
	copy(out, b.equityCurve)
	return out
}

// LastPrice returns the most recent price observation.
func (b *GridTradingBot) LastPrice() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPrice
}

// Balances exposes the ledger for reporting.
func (b *GridTradingBot) Balances() *balance.Tracker { return b.balances }

// Book exposes the order book for reporting.
func (b *GridTradingBot) Book() *order.Book { return b.book }

// Bus exposes the event bus for additional subscribers.
func (b *GridTradingBot) Bus() *events.Bus { return b.bus }
