package grid

import (
	"errors"
	"fmt"

	"grid-engine-go/internal/models"
)

// CycleState is the per-level position in the buy/sell cycle.
type CycleState int

const (
	StateReadyToBuy CycleState = iota
	StateReadyToSell
	StateCompleted
)

func (s CycleState) String() string {
	switch s {
	case StateReadyToBuy:
		return "READY_TO_BUY"
	case StateReadyToSell:
		return "READY_TO_SELL"
	case StateCompleted:
		return "COMPLETED"
	}
	return fmt.Sprintf("CycleState(%d)", int(s))
}

// ErrLevelNotReady reports an order placed against a level whose state does
// not admit it. Callers treat it as a recoverable validation failure.
var ErrLevelNotReady = errors.New("grid level is not ready for this order")

// Level is one price rung of the grid. Levels are created once at grid
// initialization and never deleted; all mutation happens under the order
// manager's finalize lock, so the methods themselves take no lock.
type Level struct {
	price      float64
	state      CycleState
	buyOrders  []*models.Order
	sellOrders []*models.Order
}

// NewLevel creates a level at the given price in the given starting state.
func NewLevel(price float64, state CycleState) *Level {
	return &Level{price: price, state: state}
}

func (l *Level) Price() float64    { return l.price }
func (l *Level) State() CycleState { return l.state }

// CanPlaceBuyOrder reports whether the level accepts a buy order.
func (l *Level) CanPlaceBuyOrder() bool { return l.state == StateReadyToBuy }

// CanPlaceSellOrder reports whether the level accepts a sell order.
func (l *Level) CanPlaceSellOrder() bool { return l.state == StateReadyToSell }

// PlaceBuyOrder records a buy order and moves the level to READY_TO_SELL. At
// most one unmatched buy owns a level at a time; a second buy without an
// intervening matched sell is rejected.
func (l *Level) PlaceBuyOrder(order *models.Order) error {
	if !l.CanPlaceBuyOrder() {
		return fmt.Errorf("%w: cannot place buy at %.8f, state %s", ErrLevelNotReady, l.price, l.state)
	}
	l.buyOrders = append(l.buyOrders, order)
	l.state = StateReadyToSell
	return nil
}

// PlaceSellOrder records a sell order against the level.
func (l *Level) PlaceSellOrder(order *models.Order) error {
	if !l.CanPlaceSellOrder() {
		return fmt.Errorf("%w: cannot place sell at %.8f, state %s", ErrLevelNotReady, l.price, l.state)
	}
	l.sellOrders = append(l.sellOrders, order)
	return nil
}

// ResetBuyCycle returns the level to READY_TO_BUY after its buy has been
// matched by a sell, closing the cycle.
func (l *Level) ResetBuyCycle() {
	l.state = StateReadyToBuy
}

// LatestBuyOrder returns the most recent buy order at this level, or nil.
func (l *Level) LatestBuyOrder() *models.Order {
	if len(l.buyOrders) == 0 {
		return nil
	}
	return l.buyOrders[len(l.buyOrders)-1]
}

// LatestSellOrder returns the most recent sell order at this level, or nil.
func (l *Level) LatestSellOrder() *models.Order {
	if len(l.sellOrders) == 0 {
		return nil
	}
	return l.sellOrders[len(l.sellOrders)-1]
}

// BuyOrderCount returns how many buy orders the level has accepted.
func (l *Level) BuyOrderCount() int { return len(l.buyOrders) }

// SellOrderCount returns how many sell orders the level has accepted.
func (l *Level) SellOrderCount() int { return len(l.sellOrders) }

func (l *Level) String() string {
	return fmt.Sprintf("Level(price=%.8f, state=%s, buys=%d, sells=%d)",
		l.price, l.state, len(l.buyOrders), len(l.sellOrders))
}
