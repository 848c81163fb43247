package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/billing"
	"github.com/sells-group/riskdoc/internal/catalog"
	"github.com/sells-group/riskdoc/internal/config"
	"github.com/sells-group/riskdoc/internal/cost"
	"github.com/sells-group/riskdoc/internal/monitoring"
	"github.com/sells-group/riskdoc/internal/orchestrator"
	"github.com/sells-group/riskdoc/internal/provider"
	"github.com/sells-group/riskdoc/internal/resilience"
	"github.com/sells-group/riskdoc/internal/store"
	"github.com/sells-group/riskdoc/pkg/anthropic"
	"github.com/sells-group/riskdoc/pkg/mistral"
)

// appEnv holds the store and the services built on top of it.
type appEnv struct {
	Store        store.Store
	Catalog      *catalog.Catalog
	Accountant   *cost.Accountant
	Orchestrator *orchestrator.Orchestrator
	Margins      *billing.Calculator
	Evaluator    *monitoring.Evaluator
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode, opens and migrates the store and
// wires every service. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return buildEnv(cfg, st, cat), nil
}

// buildEnv wires services over an open store.
func buildEnv(c *config.Config, st store.Store, cat *catalog.Catalog) *appEnv {
	acct := cost.NewAccountant(cost.NewCalculator(cat), st)
	margins := billing.NewCalculator(cat, st, st)

	opts := []orchestrator.Option{
		orchestrator.WithBreakers(resilience.NewServiceBreakers(resilience.FromCircuitConfig(c.Circuit))),
		orchestrator.WithImportRecorder(st),
	}
	opts = append(opts, providerOptions(c)...)

	return &appEnv{
		Store:        st,
		Catalog:      cat,
		Accountant:   acct,
		Orchestrator: orchestrator.New(c.Pipeline, acct, opts...),
		Margins:      margins,
		Evaluator: monitoring.NewEvaluator(c.Monitoring, cat, monitoring.Sources{
			Usage:         st,
			Imports:       st,
			Activity:      st,
			Subscriptions: st,
			Margins:       margins,
		}),
	}
}

// providerOptions wires the hosted providers. A provider without a key is
// still wired: its step fails fast and the chain falls back.
func providerOptions(c *config.Config) []orchestrator.Option {
	if c.Mistral.Key == "" {
		zap.L().Warn("RISKDOC_MISTRAL_KEY not set, provider A steps will fall back")
	}
	if c.Anthropic.Key == "" {
		zap.L().Warn("RISKDOC_ANTHROPIC_KEY not set, provider B steps will fall back")
	}

	mistralClient := mistral.NewClient(c.Mistral.Key,
		mistral.WithBaseURL(c.Mistral.BaseURL),
		mistral.WithModel(c.Mistral.Model),
	)
	claudeClient := anthropic.NewClient(c.Anthropic.Key)

	return []orchestrator.Option{
		orchestrator.WithProvider(provider.NewMistral(c.Mistral, mistralClient)),
		orchestrator.WithProvider(provider.NewClaude(c.Anthropic, claudeClient)),
	}
}

func loadCatalog(c config.CatalogConfig) (*catalog.Catalog, error) {
	if c.Path == "" {
		zap.L().Debug("no catalog file configured, using built-in prices and plans")
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(c.Path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("catalog loaded", zap.String("path", c.Path), zap.String("version", cat.Version))
	return cat, nil
}

func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "riskdoc.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{MaxConns: c.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}
