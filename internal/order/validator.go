package order

import (
	"errors"
	"fmt"

	"grid-engine-go/internal/balance"
)

// ErrInvalidOrderQuantity reports a quantity that is zero, negative or
// otherwise unusable after adjustment.
var ErrInvalidOrderQuantity = errors.New("invalid order quantity")

// defaultTolerance shaves the adjusted buy quantity just under the available
// balance so float rounding never pushes the order cost over it.
const defaultTolerance = 1e-6

// Validator checks and adjusts order quantities against available funds
// before any reservation is made.
type Validator struct {
	tolerance float64
}

// NewValidator creates a validator with the default rounding tolerance.
func NewValidator() *Validator {
	return &Validator{tolerance: defaultTolerance}
}

// AdjustAndValidateBuyQuantity returns the requested quantity when the fiat
// balance covers its cost, otherwise the largest quantity the balance does
// cover. A quantity that adjusts to zero or below is rejected with
// balance.ErrInsufficientBalance.
func (v *Validator) AdjustAndValidateBuyQuantity(fiatBalance, quantity, price float64) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: buy quantity %.8f", ErrInvalidOrderQuantity, quantity)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: buy price %.8f", ErrInvalidOrderQuantity, price)
	}

	adjusted := quantity
	if quantity*price > fiatBalance {
		adjusted = fiatBalance / price * (1 - v.tolerance)
	}
	if adjusted <= 0 || adjusted*price > fiatBalance {
		return 0, fmt.Errorf("%w: need %.8f, have %.8f", balance.ErrInsufficientBalance, quantity*price, fiatBalance)
	}
	return adjusted, nil
}

// AdjustAndValidateSellQuantity caps the requested quantity at the available
// crypto balance. A quantity that adjusts to zero or below is rejected with
// balance.ErrInsufficientCryptoBalance.
func (v *Validator) AdjustAndValidateSellQuantity(cryptoBalance, quantity float64) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: sell quantity %.8f", ErrInvalidOrderQuantity, quantity)
	}

	adjusted := quantity
	if quantity > cryptoBalance {
		adjusted = cryptoBalance
	}
	if adjusted <= 0 {
		return 0, fmt.Errorf("%w: need %.8f, have %.8f", balance.ErrInsufficientCryptoBalance, quantity, cryptoBalance)
	}
	return adjusted, nil
}
