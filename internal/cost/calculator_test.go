package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/riskdoc/internal/catalog"
)

func testPrices() *catalog.Catalog {
	return &catalog.Catalog{
		Version:  "test",
		Currency: "EUR",
		Prices: map[string]map[string]catalog.ModelPrice{
			"anthropic": {
				"haiku":  {Input: 0.80, Output: 4.00},
				"sonnet": {Input: 3.00, Output: 15.00},
			},
			"mistral": {
				"large": {Input: 2.00, Output: 6.00},
			},
		},
	}
}

func TestCost(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testPrices())

	tests := []struct {
		name     string
		provider string
		model    string
		input    int64
		output   int64
		want     float64
		known    bool
	}{
		{
			name: "haiku simple", provider: "anthropic", model: "haiku",
			input: 1000000, output: 100000,
			want: 0.80 + 0.40, known: true,
		},
		{
			name: "sonnet", provider: "anthropic", model: "sonnet",
			input: 1000000, output: 100000,
			want: 3.00 + 1.50, known: true,
		},
		{
			name: "mistral large", provider: "mistral", model: "large",
			input: 12000, output: 3000,
			// 0.012 * 2 + 0.003 * 6
			want: 0.024 + 0.018, known: true,
		},
		{
			name: "unknown model returns 0", provider: "anthropic", model: "unknown",
			input: 1000000, output: 1000000,
			want: 0, known: false,
		},
		{
			name: "unknown provider returns 0", provider: "openai", model: "large",
			input: 1000000, output: 1000000,
			want: 0, known: false,
		},
		{
			name: "zero tokens returns 0", provider: "anthropic", model: "haiku",
			want: 0, known: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := calc.Cost(tt.provider, tt.model, tt.input, tt.output)
			assert.Equal(t, tt.known, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCost_UnknownIsExactlyZero(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testPrices())

	got, ok := calc.Cost("anthropic", "unknown", 123456, 654321)
	assert.False(t, ok)
	assert.Equal(t, 0.0, got)
}

func TestCost_DefaultCatalog(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(catalog.Default())

	got, ok := calc.Cost("mistral", "mistral-large-latest", 1000000, 1000000)
	assert.True(t, ok)
	assert.InDelta(t, (2.00+6.00)*0.92, got, 1e-9)
}
