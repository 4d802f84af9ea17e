package balance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"grid-engine-go/internal/events"
	"grid-engine-go/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrInsufficientBalance reports a fiat reservation exceeding the
	// available balance.
	ErrInsufficientBalance = errors.New("insufficient fiat balance")
	// ErrInsufficientCryptoBalance reports a crypto reservation exceeding the
	// available crypto balance.
	ErrInsufficientCryptoBalance = errors.New("insufficient crypto balance")
)

// Fetcher supplies startup balances in live and paper modes.
type Fetcher interface {
	GetBalances(ctx context.Context) (fiat float64, crypto float64, err error)
}

// Tracker is the fiat/crypto ledger. Funds move available -> reserved when an
// order is placed, and reserved -> spent/received when its completion event
// arrives, so `balance + reserved_fiat` always equals funds not yet spent.
// Only the tracker mutates this state; it is initialized once at startup and
// never recreated.
type Tracker struct {
	mu             sync.Mutex
	fees           *FeeCalculator
	balance        float64
	cryptoBalance  float64
	reservedFiat   float64
	reservedCrypto float64
	totalFees      float64
	logger         *zap.SugaredLogger
}

// NewTracker creates the ledger and subscribes it to order completion events.
func NewTracker(fees *FeeCalculator, bus *events.Bus, logger *zap.SugaredLogger) *Tracker {
	t := &Tracker{fees: fees, logger: logger}
	bus.SubscribeAsync(events.OrderCompleted, t.onOrderCompleted)
	return t
}

// SetupBalances seeds the ledger: fixed values in backtest mode, fetched from
// the exchange otherwise.
func (t *Tracker) SetupBalances(ctx context.Context, mode models.TradingMode, initialFiat, initialCrypto float64, fetcher Fetcher) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if mode == models.ModeBacktest {
		t.balance = initialFiat
		t.cryptoBalance = initialCrypto
		t.logger.Infof("Seeded backtest balances: fiat=%.8f crypto=%.8f", initialFiat, initialCrypto)
		return nil
	}

	fiat, crypto, err := fetcher.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch startup balances: %w", err)
	}
	t.balance = fiat
	t.cryptoBalance = crypto
	t.logger.Infof("Fetched exchange balances: fiat=%.8f crypto=%.8f", fiat, crypto)
	return nil
}

// ReserveFundsForBuy moves amount from the available fiat balance into the
// reserved bucket, failing when the balance does not cover it.
func (t *Tracker) ReserveFundsForBuy(amount float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balance < amount {
		return fmt.Errorf("%w: need %.8f, have %.8f", ErrInsufficientBalance, amount, t.balance)
	}
	t.balance -= amount
	t.reservedFiat += amount
	t.logger.Debugf("Reserved %.8f fiat, available %.8f, reserved %.8f", amount, t.balance, t.reservedFiat)
	return nil
}

// ReserveFundsForSell moves quantity from the available crypto balance into
// the reserved bucket, failing when the crypto balance does not cover it.
func (t *Tracker) ReserveFundsForSell(quantity float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cryptoBalance < quantity {
		return fmt.Errorf("%w: need %.8f, have %.8f", ErrInsufficientCryptoBalance, quantity, t.cryptoBalance)
	}
	t.cryptoBalance -= quantity
	t.reservedCrypto += quantity
	t.logger.Debugf("Reserved %.8f crypto, available %.8f, reserved %.8f", quantity, t.cryptoBalance, t.reservedCrypto)
	return nil
}

// ReleaseReservedBuyFunds rolls a fiat reservation back after a failed
// placement. No completion event will arrive for the order.
func (t *Tracker) ReleaseReservedBuyFunds(amount float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if amount > t.reservedFiat {
		amount = t.reservedFiat
	}
	t.reservedFiat -= amount
	t.balance += amount
}

// ReleaseReservedSellFunds rolls a crypto reservation back after a failed
// placement.
func (t *Tracker) ReleaseReservedSellFunds(quantity float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if quantity > t.reservedCrypto {
		quantity = t.reservedCrypto
	}
	t.reservedCrypto -= quantity
	t.cryptoBalance += quantity
}

// onOrderCompleted settles the ledger against the true fill reported by the
// exchange.
func (t *Tracker) onOrderCompleted(_ context.Context, event events.Event) {
	order, ok := event.Payload.(*models.Order)
	if !ok {
		t.logger.Warnf("Order completed event with unexpected payload type %T", event.Payload)
		return
	}

	switch order.Side {
	case models.Buy:
		t.updateAfterBuy(order.Filled, order.FillPrice())
	case models.Sell:
		t.updateAfterSell(order.Filled, order.FillPrice())
	default:
		t.logger.Warnf("Order completed event with unknown side %q for order %s", order.Side, order.ID)
	}
}

// updateAfterBuy consumes the fiat reservation: the true cost (fill value
// plus fee) comes out of reserved_fiat, clamped at zero with any over- or
// under-shoot settled against the available balance, and the filled quantity
// lands in the crypto balance.
func (t *Tracker) updateAfterBuy(quantity, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fee := t.fees.CalculateFee(quantity * price)
	totalCost := quantity*price + fee
	t.reservedFiat -= totalCost

	if t.reservedFiat < 0 {
		t.balance += t.reservedFiat
		t.reservedFiat = 0
	}

	t.cryptoBalance += quantity
	t.totalFees += fee
	t.logger.Infof("Buy settled: qty=%.8f price=%.8f fee=%.8f, fiat=%.8f reserved=%.8f crypto=%.8f",
		quantity, price, fee, t.balance, t.reservedFiat, t.cryptoBalance)
}

// updateAfterSell is the crypto-side mirror of updateAfterBuy.
func (t *Tracker) updateAfterSell(quantity, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fee := t.fees.CalculateFee(quantity * price)
	t.reservedCrypto -= quantity

	if t.reservedCrypto < 0 {
		t.cryptoBalance += t.reservedCrypto
		t.reservedCrypto = 0
	}

	t.balance += quantity*price - fee
	t.totalFees += fee
	t.logger.Infof("Sell settled: qty=%.8f price=%.8f fee=%.8f, fiat=%.8f crypto=%.8f reserved=%.8f",
		quantity, price, fee, t.balance, t.cryptoBalance, t.reservedCrypto)
}

// Balance returns the available fiat balance.
func (t *Tracker) Balance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// CryptoBalance returns the available crypto balance.
func (t *Tracker) CryptoBalance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cryptoBalance
}

// ReservedFiat returns the fiat earmarked for in-flight buy orders.
func (t *Tracker) ReservedFiat() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reservedFiat
}

// ReservedCrypto returns the crypto earmarked for in-flight sell orders.
func (t *Tracker) ReservedCrypto() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reservedCrypto
}

// TotalFees returns the accumulated fees paid.
func (t *Tracker) TotalFees() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalFees
}

// AdjustedFiatBalance reports available plus reserved fiat.
func (t *Tracker) AdjustedFiatBalance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance + t.reservedFiat
}

// AdjustedCryptoBalance reports available plus reserved crypto.
func (t *Tracker) AdjustedCryptoBalance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cryptoBalance + t.reservedCrypto
}

// TotalBalanceValue reports the total account value at the given market
// price, reservations included.
func (t *Tracker) TotalBalanceValue(price float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance + t.reservedFiat + (t.cryptoBalance+t.reservedCrypto)*price
}
