package cost

import "github.com/sells-group/riskdoc/internal/catalog"

// PriceTable resolves per-MTok prices for a provider/model pair.
type PriceTable interface {
	Price(provider, model string) (catalog.ModelPrice, bool)
}

// Calculator computes costs for provider usage.
type Calculator struct {
	prices PriceTable
}

// NewCalculator creates a Calculator with the given price table.
func NewCalculator(prices PriceTable) *Calculator {
	return &Calculator{prices: prices}
}

// Cost computes the cost of one call. The second value is false when the
// provider/model pair is not priced, in which case the cost is 0.
func (c *Calculator) Cost(provider, model string, input, output int64) (float64, bool) {
	rate, ok := c.prices.Price(provider, model)
	if !ok {
		return 0, false
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output

	return inCost + outCost, true
}
