package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ModelPrice is the price of one million tokens.
type ModelPrice struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Plan holds the commercial terms of one subscription plan.
type Plan struct {
	Monthly   float64 `yaml:"monthly"`
	Annual    float64 `yaml:"annual"`
	InfraCost float64 `yaml:"infra_cost"`
	// Quota is the number of AI calls allowed per month. 0 means unlimited.
	Quota int `yaml:"quota"`
}

// Paid reports whether the plan has a non-zero price.
func (p Plan) Paid() bool {
	return p.Monthly > 0 || p.Annual > 0
}

// Catalog is the read-only price and plan table. Model prices are
// expressed in the catalog currency once loaded.
type Catalog struct {
	Version  string `yaml:"version"`
	Currency string `yaml:"currency"`
	// PriceCurrency is the currency provider prices are quoted in.
	PriceCurrency string `yaml:"price_currency"`
	// ExchangeRate converts PriceCurrency into Currency.
	ExchangeRate float64                          `yaml:"exchange_rate"`
	Prices       map[string]map[string]ModelPrice `yaml:"prices"`
	Plans        map[string]Plan                  `yaml:"plans"`
}

// Price returns the per-MTok price for a provider/model pair.
func (c *Catalog) Price(provider, model string) (ModelPrice, bool) {
	models, ok := c.Prices[provider]
	if !ok {
		return ModelPrice{}, false
	}
	p, ok := models[model]
	return p, ok
}

// Plan returns the plan with the given name.
func (c *Catalog) Plan(name string) (Plan, bool) {
	p, ok := c.Plans[name]
	return p, ok
}

// LoadFile reads a catalog from a YAML file and converts provider prices
// into the catalog currency.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) normalize() error {
	if c.Version == "" {
		return eris.New("catalog: version is required")
	}
	if c.Currency == "" {
		return eris.New("catalog: currency is required")
	}
	if c.PriceCurrency == "" {
		c.PriceCurrency = c.Currency
	}
	if c.ExchangeRate == 0 {
		if c.PriceCurrency != c.Currency {
			return eris.Errorf("catalog: exchange_rate required to convert %s to %s", c.PriceCurrency, c.Currency)
		}
		c.ExchangeRate = 1
	}
	if c.ExchangeRate < 0 {
		return eris.New("catalog: exchange_rate must be positive")
	}

	for provider, models := range c.Prices {
		for name, p := range models {
			if p.Input < 0 || p.Output < 0 {
				return eris.Errorf("catalog: negative price for %s/%s", provider, name)
			}
			models[name] = ModelPrice{
				Input:  p.Input * c.ExchangeRate,
				Output: p.Output * c.ExchangeRate,
			}
		}
	}
	// Prices are now in the catalog currency.
	c.PriceCurrency = c.Currency
	c.ExchangeRate = 1

	for name, p := range c.Plans {
		if p.Monthly < 0 || p.Annual < 0 || p.InfraCost < 0 || p.Quota < 0 {
			return eris.Errorf("catalog: negative value in plan %q", name)
		}
	}
	return nil
}

// Default returns the built-in catalog used when no file is configured.
func Default() *Catalog {
	c, err := Parse([]byte(defaultYAML))
	if err != nil {
		panic(err)
	}
	return c
}

const defaultYAML = `
version: "2025-10"
currency: EUR
price_currency: USD
exchange_rate: 0.92
prices:
  mistral:
    mistral-large-latest: {input: 2.00, output: 6.00}
    mistral-small-latest: {input: 0.20, output: 0.60}
  anthropic:
    claude-haiku-4-5-20251001: {input: 0.80, output: 4.00}
    claude-sonnet-4-5-20250929: {input: 3.00, output: 15.00}
    claude-opus-4-6: {input: 15.00, output: 75.00}
plans:
  free:    {monthly: 0,  annual: 0,   infra_cost: 0.5, quota: 5}
  starter: {monthly: 19, annual: 190, infra_cost: 2,   quota: 50}
  pro:     {monthly: 49, annual: 490, infra_cost: 5,   quota: 200}
  expert:  {monthly: 99, annual: 990, infra_cost: 10,  quota: 0}
`
