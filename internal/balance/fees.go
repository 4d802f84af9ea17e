package balance

// FeeCalculator derives the exchange fee for a trade value at a flat rate.
type FeeCalculator struct {
	tradingFee float64
}

// NewFeeCalculator creates a calculator with the given fee rate, e.g. 0.001
// for 10 bps.
func NewFeeCalculator(tradingFee float64) *FeeCalculator {
	return &FeeCalculator{tradingFee: tradingFee}
}

// CalculateFee returns the fee charged on a trade of the given quote value.
func (f *FeeCalculator) CalculateFee(tradeValue float64) float64 {
	return tradeValue * f.tradingFee
}
