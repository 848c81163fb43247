// Package billing computes per-tenant gross margin from plan revenue,
// infrastructure cost and accrued AI usage cost.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/catalog"
	"github.com/sells-group/riskdoc/internal/model"
)

// ErrTenantNotFound matches every *TenantNotFoundError via errors.Is.
var ErrTenantNotFound = eris.New("billing: tenant not found")

// TenantNotFoundError reports a tenant whose plan cannot be resolved.
type TenantNotFoundError struct {
	TenantID string
	Reason   string
}

func (e *TenantNotFoundError) Error() string {
	return fmt.Sprintf("billing: tenant %s not found: %s", e.TenantID, e.Reason)
}

// Is makes errors.Is(err, ErrTenantNotFound) true.
func (e *TenantNotFoundError) Is(target error) bool {
	return target == ErrTenantNotFound
}

// SubscriptionSource resolves a tenant's current subscription. A nil
// subscription with a nil error means the tenant is unknown.
type SubscriptionSource interface {
	GetSubscription(ctx context.Context, tenantID string) (*model.Subscription, error)
}

// UsageCostSource sums accrued usage cost for a tenant in [from, to).
type UsageCostSource interface {
	SumUsageCost(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
}

// PlanCatalog resolves plan terms by name.
type PlanCatalog interface {
	Plan(name string) (catalog.Plan, bool)
}

// MarginSnapshot is the margin of one tenant over one period. Derived,
// never stored.
type MarginSnapshot struct {
	TenantID         string            `json:"tenant_id"`
	Plan             string            `json:"plan"`
	BillingMode      model.BillingMode `json:"billing_mode"`
	Period           string            `json:"period"`
	Revenue          float64           `json:"revenue"`
	InfraCost        float64           `json:"infra_cost"`
	AICost           float64           `json:"ai_cost"`
	GrossMargin      float64           `json:"gross_margin"`
	MarginPercentage float64           `json:"margin_percentage"`
}

// Calculator computes margin snapshots.
type Calculator struct {
	plans PlanCatalog
	subs  SubscriptionSource
	usage UsageCostSource
}

// NewCalculator creates a margin Calculator over a read-only plan catalog.
func NewCalculator(plans PlanCatalog, subs SubscriptionSource, usage UsageCostSource) *Calculator {
	return &Calculator{plans: plans, subs: subs, usage: usage}
}

// MarginForTenant computes the tenant's margin for the period.
func (c *Calculator) MarginForTenant(ctx context.Context, tenantID string, period Period) (*MarginSnapshot, error) {
	sub, err := c.subs.GetSubscription(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrapf(err, "billing: get subscription for %s", tenantID)
	}
	if sub == nil {
		return nil, &TenantNotFoundError{TenantID: tenantID, Reason: "no subscription"}
	}
	plan, ok := c.plans.Plan(sub.Plan)
	if !ok {
		return nil, &TenantNotFoundError{TenantID: tenantID, Reason: fmt.Sprintf("unknown plan %q", sub.Plan)}
	}

	aiCost, err := c.usage.SumUsageCost(ctx, tenantID, period.Start, period.End)
	if err != nil {
		return nil, eris.Wrapf(err, "billing: sum usage cost for %s", tenantID)
	}

	snap := &MarginSnapshot{
		TenantID:    tenantID,
		Plan:        sub.Plan,
		BillingMode: sub.BillingMode,
		Period:      period.String(),
		Revenue:     MonthlyRevenue(plan, sub.BillingMode),
		InfraCost:   plan.InfraCost,
		AICost:      aiCost,
	}
	snap.GrossMargin = snap.Revenue - snap.InfraCost - snap.AICost
	if snap.Revenue != 0 {
		snap.MarginPercentage = snap.GrossMargin / snap.Revenue * 100
	}

	zap.L().Debug("billing: margin computed",
		zap.String("tenant_id", tenantID),
		zap.String("period", snap.Period),
		zap.Float64("revenue", snap.Revenue),
		zap.Float64("ai_cost", snap.AICost),
		zap.Float64("gross_margin", snap.GrossMargin),
	)
	return snap, nil
}

// MonthlyRevenue is the plan price attributed to one month.
func MonthlyRevenue(plan catalog.Plan, mode model.BillingMode) float64 {
	if mode == model.BillingAnnual {
		return plan.Annual / 12
	}
	return plan.Monthly
}
