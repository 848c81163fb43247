package cost

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/model"
)

const persistTimeout = 5 * time.Second

// UsageWriter persists usage events.
type UsageWriter interface {
	InsertUsage(ctx context.Context, ev *model.UsageEvent) error
}

// UsageInput carries the fields of a usage event before pricing.
type UsageInput struct {
	TenantID     string
	UserID       string
	CompanyID    string
	Function     model.UsageFunction
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Confidence   *int
}

// Accountant prices provider calls and appends them to the usage log.
type Accountant struct {
	calc   *Calculator
	writer UsageWriter
	now    func() time.Time
}

// NewAccountant creates an Accountant.
func NewAccountant(calc *Calculator, writer UsageWriter) *Accountant {
	return &Accountant{calc: calc, writer: writer, now: time.Now}
}

// Record prices the call and persists it. It never fails: unknown
// price pairs cost 0 and persistence errors are only logged. The write
// runs on a context detached from ctx so an abandoned request still
// gets its usage recorded.
func (a *Accountant) Record(ctx context.Context, in UsageInput) model.UsageEvent {
	log := zap.L().With(
		zap.String("component", "accountant"),
		zap.String("tenant_id", in.TenantID),
		zap.String("provider", in.Provider),
		zap.String("model", in.Model),
	)

	amount, ok := a.calc.Cost(in.Provider, in.Model, in.InputTokens, in.OutputTokens)
	if !ok {
		log.Warn("cost: no price for provider/model, recording zero cost")
	}

	ev := model.UsageEvent{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		UserID:       in.UserID,
		CompanyID:    in.CompanyID,
		Function:     in.Function,
		Provider:     in.Provider,
		Model:        in.Model,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		Cost:         amount,
		Confidence:   in.Confidence,
		Status:       model.UsageStatusPending,
		CreatedAt:    a.now().UTC(),
	}
	if ev.Function == "" {
		ev.Function = model.FunctionImport
	}

	if a.writer == nil {
		return ev
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := a.writer.InsertUsage(wctx, &ev); err != nil {
		log.Error("cost: failed to persist usage event",
			zap.String("usage_id", ev.ID),
			zap.Int64("input_tokens", ev.InputTokens),
			zap.Int64("output_tokens", ev.OutputTokens),
			zap.Float64("cost", ev.Cost),
			zap.Error(err),
		)
		return ev
	}

	log.Debug("cost: usage recorded",
		zap.String("usage_id", ev.ID),
		zap.Int64("input_tokens", ev.InputTokens),
		zap.Int64("output_tokens", ev.OutputTokens),
		zap.Float64("cost", ev.Cost),
	)
	return ev
}
