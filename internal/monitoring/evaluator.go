// Package monitoring evaluates account-level alert rules and delivers
// their findings to a webhook.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/riskdoc/internal/billing"
	"github.com/sells-group/riskdoc/internal/config"
	"github.com/sells-group/riskdoc/internal/model"
)

// UsageCounter counts usage events per tenant in [from, to).
type UsageCounter interface {
	CountUsageByTenant(ctx context.Context, from, to time.Time) ([]model.UsageCount, error)
}

// ImportSource aggregates imports per user in [from, to).
type ImportSource interface {
	ImportStats(ctx context.Context, from, to time.Time) ([]model.ImportStat, error)
}

// ActivitySource lists last-login information per user.
type ActivitySource interface {
	ListUserActivity(ctx context.Context) ([]model.UserActivity, error)
}

// SubscriptionLister lists every tenant subscription.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
}

// MarginSource computes a tenant's margin for a period.
type MarginSource interface {
	MarginForTenant(ctx context.Context, tenantID string, period billing.Period) (*billing.MarginSnapshot, error)
}

// Sources bundles the collaborators the rules read from.
type Sources struct {
	Usage         UsageCounter
	Imports       ImportSource
	Activity      ActivitySource
	Subscriptions SubscriptionLister
	Margins       MarginSource
}

type rule struct {
	name string
	eval func(ctx context.Context, now time.Time) ([]Alert, error)
}

// Evaluator runs the alert rules.
type Evaluator struct {
	cfg   config.MonitoringConfig
	plans billing.PlanCatalog
	src   Sources
	now   func() time.Time
}

// NewEvaluator creates an Evaluator. Zero thresholds fall back to the
// defaults: 80%/95% quota, 10 imports or 500 MiB, 30 inactive days.
func NewEvaluator(cfg config.MonitoringConfig, plans billing.PlanCatalog, src Sources) *Evaluator {
	if cfg.QuotaWarnRatio <= 0 {
		cfg.QuotaWarnRatio = 0.80
	}
	if cfg.QuotaCriticalRatio <= 0 {
		cfg.QuotaCriticalRatio = 0.95
	}
	if cfg.MassImportCount <= 0 {
		cfg.MassImportCount = 10
	}
	if cfg.MassImportBytes <= 0 {
		cfg.MassImportBytes = 500 * 1024 * 1024
	}
	if cfg.ChurnInactiveDays <= 0 {
		cfg.ChurnInactiveDays = 30
	}
	return &Evaluator{cfg: cfg, plans: plans, src: src, now: time.Now}
}

// AllAlerts runs the four rules concurrently and returns their alerts in
// rule order: quota, mass import, churn risk, negative margin. A rule
// that fails is logged and contributes nothing.
func (e *Evaluator) AllAlerts(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.evaluator"))
	now := e.now().UTC()

	rules := []rule{
		{"quota", e.quotaAlerts},
		{"mass_import", e.massImportAlerts},
		{"churn_risk", e.churnAlerts},
		{"negative_margin", e.marginAlerts},
	}
	results := make([][]Alert, len(rules))

	var g errgroup.Group
	for i, r := range rules {
		g.Go(func() error {
			alerts, err := r.eval(ctx, now)
			if err != nil {
				log.Error("monitoring: rule failed", zap.String("rule", r.name), zap.Error(err))
				return nil
			}
			results[i] = alerts
			return nil
		})
	}
	_ = g.Wait()

	var all []Alert
	for _, alerts := range results {
		all = append(all, alerts...)
	}
	log.Debug("monitoring: evaluation complete", zap.Int("alerts", len(all)))
	return all
}

func (e *Evaluator) quotaAlerts(ctx context.Context, now time.Time) ([]Alert, error) {
	period := billing.MonthPeriod(now)
	counts, err := e.src.Usage.CountUsageByTenant(ctx, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	subs, err := e.src.Subscriptions.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	planOf := make(map[string]string, len(subs))
	for _, s := range subs {
		planOf[s.TenantID] = s.Plan
	}

	sort.Slice(counts, func(i, j int) bool { return counts[i].TenantID < counts[j].TenantID })

	var alerts []Alert
	for _, c := range counts {
		planName, ok := planOf[c.TenantID]
		if !ok {
			continue
		}
		plan, ok := e.plans.Plan(planName)
		if !ok || plan.Quota == 0 {
			continue
		}

		ratio := float64(c.Count) / float64(plan.Quota)
		var sev Severity
		switch {
		case ratio > e.cfg.QuotaCriticalRatio:
			sev = SeverityHigh
		case ratio > e.cfg.QuotaWarnRatio:
			sev = SeverityMedium
		default:
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertQuota,
			Severity: sev,
			Message: fmt.Sprintf("Tenant %s used %d of %d AI calls this month (%.0f%%)",
				c.TenantID, c.Count, plan.Quota, ratio*100),
			TenantID: c.TenantID,
			Details: map[string]any{
				"plan":  planName,
				"used":  c.Count,
				"quota": plan.Quota,
				"ratio": ratio,
			},
			Timestamp: now,
		})
	}
	return alerts, nil
}

func (e *Evaluator) massImportAlerts(ctx context.Context, now time.Time) ([]Alert, error) {
	period := billing.MonthPeriod(now)
	stats, err := e.src.Imports.ImportStats(ctx, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].UserID < stats[j].UserID })

	var alerts []Alert
	for _, s := range stats {
		if s.Count <= e.cfg.MassImportCount && s.TotalBytes <= e.cfg.MassImportBytes {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertMassImport,
			Severity: SeverityMedium,
			Message: fmt.Sprintf("User %s imported %d documents (%.1f MiB) this month",
				s.UserID, s.Count, float64(s.TotalBytes)/(1024*1024)),
			TenantID: s.TenantID,
			UserID:   s.UserID,
			Details: map[string]any{
				"imports":     s.Count,
				"total_bytes": s.TotalBytes,
			},
			Timestamp: now,
		})
	}
	return alerts, nil
}

func (e *Evaluator) churnAlerts(ctx context.Context, now time.Time) ([]Alert, error) {
	users, err := e.src.Activity.ListUserActivity(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := now.AddDate(0, 0, -e.cfg.ChurnInactiveDays)

	var alerts []Alert
	for _, u := range users {
		if !u.Active {
			continue
		}
		plan, ok := e.plans.Plan(u.Plan)
		if !ok || !plan.Paid() {
			continue
		}
		// Never logged in counts as inactive.
		if u.LastLoginAt != nil && u.LastLoginAt.After(cutoff) {
			continue
		}

		details := map[string]any{"plan": u.Plan}
		msg := fmt.Sprintf("User %s on paid plan %s has never logged in", u.UserID, u.Plan)
		if u.LastLoginAt != nil {
			days := int(now.Sub(*u.LastLoginAt).Hours() / 24)
			details["days_inactive"] = days
			msg = fmt.Sprintf("User %s on paid plan %s has not logged in for %d days", u.UserID, u.Plan, days)
		}
		alerts = append(alerts, Alert{
			Type:      AlertChurnRisk,
			Severity:  SeverityMedium,
			Message:   msg,
			TenantID:  u.TenantID,
			UserID:    u.UserID,
			Details:   details,
			Timestamp: now,
		})
	}
	return alerts, nil
}

func (e *Evaluator) marginAlerts(ctx context.Context, now time.Time) ([]Alert, error) {
	subs, err := e.src.Subscriptions.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	period := billing.MonthPeriod(now)

	var alerts []Alert
	for _, s := range subs {
		snap, err := e.src.Margins.MarginForTenant(ctx, s.TenantID, period)
		if errors.Is(err, billing.ErrTenantNotFound) {
			continue
		}
		if err != nil {
			zap.L().Warn("monitoring: margin unavailable for tenant",
				zap.String("component", "monitoring.evaluator"),
				zap.String("tenant_id", s.TenantID),
				zap.Error(err),
			)
			continue
		}
		if snap.GrossMargin >= 0 {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertNegativeMargin,
			Severity: SeverityHigh,
			Message: fmt.Sprintf("Tenant %s has a negative margin of %.2f for %s",
				s.TenantID, snap.GrossMargin, snap.Period),
			TenantID: s.TenantID,
			Details: map[string]any{
				"revenue":      snap.Revenue,
				"infra_cost":   snap.InfraCost,
				"ai_cost":      snap.AICost,
				"gross_margin": snap.GrossMargin,
			},
			Timestamp: now,
		})
	}
	return alerts, nil
}
