package order

import (
	"sync"

	"grid-engine-go/internal/grid"
	"grid-engine-go/internal/models"
)

// Book is the in-memory record of every order the engine has placed this
// session, partitioned into grid buys, grid sells and non-grid orders, with a
// mapping from order ID back to the grid level it serves. It is rebuilt from
// scratch on startup.
type Book struct {
	mu            sync.RWMutex
	buyOrders     []*models.Order
	sellOrders    []*models.Order
	nonGridOrders []*models.Order
	byID          map[string]*models.Order
	levelByID     map[string]*grid.Level
}

// NewBook creates an empty order book.
func NewBook() *Book {
	return &Book{
		byID:      make(map[string]*models.Order),
		levelByID: make(map[string]*grid.Level),
	}
}

// AddBuyOrder records a grid buy order and its level.
func (b *Book) AddBuyOrder(order *models.Order, level *grid.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buyOrders = append(b.buyOrders, order)
	b.byID[order.ID] = order
	b.levelByID[order.ID] = level
}

// AddSellOrder records a grid sell order and its level.
func (b *Book) AddSellOrder(order *models.Order, level *grid.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sellOrders = append(b.sellOrders, order)
	b.byID[order.ID] = order
	b.levelByID[order.ID] = level
}

// AddNonGridOrder records an order outside the ladder, e.g. a take-profit or
// stop-loss liquidation.
func (b *Book) AddNonGridOrder(order *models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nonGridOrders = append(b.nonGridOrders, order)
	b.byID[order.ID] = order
}

// Order returns the tracked order with the given ID.
func (b *Book) Order(id string) (*models.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byID[id]
	return o, ok
}

// GridLevelFor returns the grid level an order was placed against. Non-grid
// orders have none.
func (b *Book) GridLevelFor(orderID string) (*grid.Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lvl, ok := b.levelByID[orderID]
	return lvl, ok
}

// OpenOrders returns a snapshot of every order still in OPEN status.
func (b *Book) OpenOrders() []*models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var open []*models.Order
	for _, o := range b.byID {
		if o.IsOpen() {
			open = append(open, o)
		}
	}
	return open
}

// BuyOrders returns a snapshot of the grid buy orders in placement order.
func (b *Book) BuyOrders() []*models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*models.Order, len(b.buyOrders))
	copy(out, b.buyOrders)
	return out
}

// SellOrders returns a snapshot of the grid sell orders in placement order.
func (b *Book) SellOrders() []*models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*models.Order, len(b.sellOrders))
	copy(out, b.sellOrders)
	return out
}

// NonGridOrders returns a snapshot of the non-grid orders.
func (b *Book) NonGridOrders() []*models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*models.Order, len(b.nonGridOrders))
	copy(out, b.nonGridOrders)
	return out
}

// UpdateOrderStatus applies a remote status observation to a tracked order.
// Terminal statuses are monotonic: once an order is CLOSED, CANCELED, EXPIRED
// or REJECTED no further update touches it. Returns whether the order
// transitioned into the given status by this call.
func (b *Book) UpdateOrderStatus(orderID string, status models.OrderStatus, filled, average float64, updateTime int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.byID[orderID]
	if !ok || o.IsTerminal() {
		return false
	}

	transitioned := o.Status != status
	o.Status = status
	if filled > o.Filled {
		o.Filled = filled
		o.Remaining = o.Amount - filled
	}
	if average > 0 {
		o.Average = average
	}
	if updateTime > o.UpdateTime {
		o.UpdateTime = updateTime
	}
	return transitioned
}
