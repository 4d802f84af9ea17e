package order

import (
	"context"
	"sync"
	"time"

	"grid-engine-go/internal/events"
	"grid-engine-go/internal/models"

	"go.uber.org/zap"
)

// StatusTracker polls open orders and reconciles the book against the
// exchange. Queries for a poll cycle run concurrently, one goroutine per open
// order; the results are applied sequentially so book and level mutation
// stays single-threaded.
type StatusTracker struct {
	book     *Book
	strategy ExecutionStrategy
	bus      *events.Bus
	interval time.Duration
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStatusTracker wires the tracker. Backtests skip StartTracking and drive
// PollOnce directly after each candle.
func NewStatusTracker(book *Book, strategy ExecutionStrategy, bus *events.Bus, interval time.Duration, logger *zap.SugaredLogger) *StatusTracker {
	return &StatusTracker{
		book:     book,
		strategy: strategy,
		bus:      bus,
		interval: interval,
		logger:   logger,
	}
}

// StartTracking begins periodic polling. Calling it while already running is
// a no-op.
func (t *StatusTracker) StartTracking(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.PollOnce(pollCtx)
			case <-pollCtx.Done():
				return
			}
		}
	}()
	t.logger.Infof("Order status tracking started, polling every %s", t.interval)
}

// StopTracking stops the polling loop and waits for the in-flight cycle.
func (t *StatusTracker) StopTracking() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.logger.Info("Order status tracking stopped")
}

// PollOnce runs one reconciliation cycle over every open order.
func (t *StatusTracker) PollOnce(ctx context.Context) {
	open := t.book.OpenOrders()
	if len(open) == 0 {
		return
	}

	remote := make([]*models.Order, len(open))
	var wg sync.WaitGroup
	for i, o := range open {
		wg.Add(1)
		go func(i int, o *models.Order) {
			defer wg.Done()
			result, err := t.strategy.GetOrder(ctx, o.ID)
			if err != nil {
				t.logger.Errorf("Failed to query status of order %s: %v", o.ID, err)
				return
			}
			remote[i] = result
		}(i, o)
	}
	wg.Wait()

	for i, r := range remote {
		if r == nil {
			continue
		}
		t.apply(open[i], r)
	}
}

// apply reconciles one tracked order against its remote observation.
func (t *StatusTracker) apply(local, remote *models.Order) {
	switch remote.Status {
	case models.OrderStatusClosed:
		if t.book.UpdateOrderStatus(local.ID, models.OrderStatusClosed, remote.Filled, remote.Average, remote.UpdateTime) {
			t.logger.Infof("Order filled: %s", local)
			t.bus.PublishSync(events.OrderCompleted, local)
		}

	case models.OrderStatusCanceled:
		if t.book.UpdateOrderStatus(local.ID, models.OrderStatusCanceled, remote.Filled, remote.Average, remote.UpdateTime) {
			t.logger.Warnf("Order cancelled on the exchange: %s", local)
			t.bus.PublishSync(events.OrderCancelled, local)
		}

	case models.OrderStatusOpen:
		if remote.Filled > local.Filled {
			t.book.UpdateOrderStatus(local.ID, models.OrderStatusOpen, remote.Filled, remote.Average, remote.UpdateTime)
			t.logger.Debugf("Order %s partially filled: %.8f/%.8f", local.ID, remote.Filled, local.Amount)
		}

	case models.OrderStatusUnknown:
		// A malformed response, not a real exchange state. Leave the order
		// open so the next cycle retries.
		t.logger.Errorf("Order %s returned an unknown status, response may be malformed", local.ID)

	default:
		// EXPIRED and REJECTED land here. Record the terminal state but do
		// not settle anything against it.
		t.book.UpdateOrderStatus(local.ID, remote.Status, remote.Filled, remote.Average, remote.UpdateTime)
		t.logger.Warnf("Order %s reached unhandled terminal status %s", local.ID, remote.Status)
	}
}
