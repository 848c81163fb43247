// Package orchestrator runs the tiered extraction chain: format
// extraction, then provider structuring with fallback down to the
// deterministic structurer.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/config"
	"github.com/sells-group/riskdoc/internal/cost"
	"github.com/sells-group/riskdoc/internal/docextract"
	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/internal/provider"
	"github.com/sells-group/riskdoc/internal/resilience"
	"github.com/sells-group/riskdoc/internal/structurer"
)

const (
	defaultProviderTimeout = 120 * time.Second
	importRecordTimeout    = 5 * time.Second
)

// errNotConfigured is the cause recorded when a tier names a provider
// that was not wired in.
var errNotConfigured = eris.New("orchestrator: provider not configured")

// ImportRecorder stores one record per completed extraction.
type ImportRecorder interface {
	RecordImport(ctx context.Context, rec *model.ImportRecord) error
}

// Chain returns the ordered engines tried for a tier. Every chain ends
// with the deterministic structurer.
func Chain(tier model.Tier) []model.Engine {
	switch tier {
	case model.TierComplete:
		return []model.Engine{model.EngineProviderB, model.EngineProviderA, model.EngineDeterministic}
	case model.TierAdvanced:
		return []model.Engine{model.EngineProviderA, model.EngineDeterministic}
	default:
		return []model.Engine{model.EngineDeterministic}
	}
}

// Orchestrator owns the extraction chain. It is safe for concurrent use;
// the only shared mutable state is the breaker registry.
type Orchestrator struct {
	registry   *docextract.Registry
	scan       *docextract.ScanHeuristic
	providers  map[model.Engine]provider.Provider
	breakers   *resilience.ServiceBreakers
	retry      resilience.RetryConfig
	timeout    time.Duration
	accountant *cost.Accountant
	imports    ImportRecorder
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProvider wires a provider for its engine tag.
func WithProvider(p provider.Provider) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.providers[p.Engine()] = p
		}
	}
}

// WithBreakers shares a breaker registry across orchestrators.
func WithBreakers(b *resilience.ServiceBreakers) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.breakers = b
		}
	}
}

// WithImportRecorder enables import records for volume alerting.
func WithImportRecorder(r ImportRecorder) Option {
	return func(o *Orchestrator) { o.imports = r }
}

// WithRegistry replaces the format extractor registry.
func WithRegistry(r *docextract.Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// New creates an Orchestrator from the pipeline settings.
func New(cfg config.PipelineConfig, accountant *cost.Accountant, opts ...Option) *Orchestrator {
	timeout := time.Duration(cfg.ProviderTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	o := &Orchestrator{
		registry:   docextract.NewRegistry(),
		scan:       docextract.NewScanHeuristic(cfg.ScanThreshold),
		providers:  make(map[model.Engine]provider.Provider),
		breakers:   resilience.NewServiceBreakers(resilience.FromCircuitConfig(config.CircuitConfig{})),
		retry:      resilience.FromPipelineConfig(cfg),
		timeout:    timeout,
		accountant: accountant,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Breakers exposes the breaker registry for health reporting.
func (o *Orchestrator) Breakers() *resilience.ServiceBreakers {
	return o.breakers
}

// Extract turns a raw document into a structured candidate at the
// requested tier. The only errors returned are *docextract.UnreadableError
// and context.Canceled from the caller. Provider failures, including the
// caller's deadline passing, fall through to the next engine in the chain.
func (o *Orchestrator) Extract(ctx context.Context, doc model.RawDocument, tier model.Tier) (*model.Extraction, error) {
	log := zap.L().With(
		zap.String("component", "orchestrator"),
		zap.String("tenant_id", doc.TenantID),
		zap.String("format", string(doc.Format)),
		zap.String("tier", string(tier)),
	)

	text, err := o.registry.Extract(ctx, doc.Content, doc.Format)
	if err != nil {
		log.Warn("orchestrator: unreadable document", zap.Error(err))
		return nil, err
	}

	out := &model.Extraction{
		RequestedTier: tier,
		Format:        doc.Format,
		Metadata:      text.Metadata,
		Attempts:      []model.Attempt{},
	}
	if doc.Format == model.FormatPDF {
		out.LikelyScanned = o.scan.FromPages(text.Pages)
	}

	chain := Chain(tier)
	for _, engine := range chain {
		// The caller gave up; usage of earlier steps is already recorded.
		// A passed deadline instead skips straight to the deterministic step.
		if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Info("orchestrator: request abandoned", zap.Error(err))
			return nil, err
		}

		if engine == model.EngineDeterministic {
			start := o.now()
			out.Candidate = structurer.Basic(text.Body)
			out.Attempts = append(out.Attempts, model.Attempt{
				Engine:    engine,
				Succeeded: true,
				Duration:  o.now().Sub(start),
			})
			break
		}

		cand, attempt := o.runProvider(ctx, log, doc, engine, text.Body)
		out.Attempts = append(out.Attempts, attempt)
		if cand != nil {
			out.Candidate = cand
			break
		}
	}

	out.Engine = out.Candidate.Engine
	out.Degraded = out.Engine != chain[0]

	o.recordImport(ctx, log, doc, out.Engine)

	log.Info("orchestrator: extraction complete",
		zap.String("engine", string(out.Engine)),
		zap.Bool("degraded", out.Degraded),
		zap.Bool("likely_scanned", out.LikelyScanned),
		zap.Int("attempts", len(out.Attempts)),
		zap.Int("risks", len(out.Candidate.Risks)),
	)
	return out, nil
}

// runProvider runs one provider step. It returns a nil candidate when the
// step failed for any reason.
func (o *Orchestrator) runProvider(ctx context.Context, log *zap.Logger, doc model.RawDocument, engine model.Engine, text string) (*model.StructuredCandidate, model.Attempt) {
	attempt := model.Attempt{Engine: engine}
	start := o.now()

	p, ok := o.providers[engine]
	if !ok {
		attempt.Error = errNotConfigured.Error()
		log.Warn("orchestrator: provider step skipped", zap.String("engine", string(engine)))
		return nil, attempt
	}
	attempt.Model = p.Model()

	if err := ctx.Err(); err != nil {
		attempt.Error = err.Error()
		log.Warn("orchestrator: caller deadline passed, skipping provider",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		return nil, attempt
	}

	res, err := o.callProvider(ctx, doc, p, text, &attempt)
	attempt.Duration = o.now().Sub(start)
	if err != nil {
		attempt.Error = err.Error()
		log.Warn("orchestrator: provider step failed, falling back",
			zap.String("provider", p.Name()),
			zap.String("model", p.Model()),
			zap.Error(err),
		)
		return nil, attempt
	}

	attempt.Succeeded = true
	return res.Candidate, attempt
}

// callProvider guards the call with the provider's breaker and the retry
// policy. Each attempt runs detached from caller cancellation, bounded by
// the earlier of the provider timeout and the caller's deadline, and is
// accounted as soon as the provider answered.
func (o *Orchestrator) callProvider(ctx context.Context, doc model.RawDocument, p provider.Provider, text string, attempt *model.Attempt) (*provider.Result, error) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		detached, cancel = context.WithDeadline(detached, deadline)
		defer cancel()
	}

	retry := o.retry
	retry.OnRetry = resilience.RetryLogger(p.Name(), p.Model())

	res, err := resilience.ExecuteVal(detached, o.breakers.Get(p.Name()), func(bctx context.Context) (*provider.Result, error) {
		return resilience.DoVal(bctx, retry, func(rctx context.Context) (*provider.Result, error) {
			actx, cancel := context.WithTimeout(rctx, o.timeout)
			defer cancel()

			res, err := p.Structure(actx, text, doc.Format)
			o.account(ctx, doc, p, res, err, attempt)
			return res, err
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &provider.ProviderError{Provider: p.Name(), Model: p.Model(), Cause: err}
	}
	return res, err
}

// account records a usage event whenever the provider reported tokens,
// whether or not its answer was usable.
func (o *Orchestrator) account(ctx context.Context, doc model.RawDocument, p provider.Provider, res *provider.Result, err error, attempt *model.Attempt) {
	var (
		usage      *provider.Usage
		confidence *int
	)
	switch {
	case err == nil && res != nil:
		usage = &res.Usage
		if res.Candidate != nil {
			c := res.Candidate.Confidence
			confidence = &c
		}
	default:
		var pErr *provider.ProviderError
		if errors.As(err, &pErr) {
			usage = pErr.Usage
		}
	}
	if usage == nil {
		return
	}

	attempt.InputTokens += usage.InputTokens
	attempt.OutputTokens += usage.OutputTokens

	if o.accountant == nil {
		return
	}
	o.accountant.Record(ctx, cost.UsageInput{
		TenantID:     doc.TenantID,
		UserID:       doc.UserID,
		CompanyID:    doc.CompanyID,
		Function:     model.FunctionImport,
		Provider:     p.Name(),
		Model:        p.Model(),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Confidence:   confidence,
	})
}

func (o *Orchestrator) recordImport(ctx context.Context, log *zap.Logger, doc model.RawDocument, engine model.Engine) {
	if o.imports == nil {
		return
	}
	rec := &model.ImportRecord{
		ID:        uuid.NewString(),
		TenantID:  doc.TenantID,
		UserID:    doc.UserID,
		CompanyID: doc.CompanyID,
		Filename:  doc.Filename,
		Format:    doc.Format,
		SizeBytes: doc.Size(),
		Engine:    engine,
		CreatedAt: o.now().UTC(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), importRecordTimeout)
	defer cancel()
	if err := o.imports.RecordImport(rctx, rec); err != nil {
		log.Error("orchestrator: failed to record import", zap.String("import_id", rec.ID), zap.Error(err))
	}
}
