package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskdoc/internal/catalog"
	"github.com/sells-group/riskdoc/internal/model"
)

type mockSubs struct {
	mock.Mock
}

func (m *mockSubs) GetSubscription(ctx context.Context, tenantID string) (*model.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

type mockUsage struct {
	mock.Mock
}

func (m *mockUsage) SumUsageCost(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).(float64), args.Error(1)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(`
version: "test"
currency: EUR
plans:
  free:    {monthly: 0,  annual: 0,   infra_cost: 0.5, quota: 5}
  pro:     {monthly: 49, annual: 480, infra_cost: 5,   quota: 200}
`))
	require.NoError(t, err)
	return c
}

var october = MonthPeriod(time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC))

func TestMarginForTenant(t *testing.T) {
	tests := []struct {
		name        string
		plan        string
		mode        model.BillingMode
		aiCost      float64
		wantRevenue float64
		wantGross   float64
		wantPct     float64
	}{
		{"monthly pro", "pro", model.BillingMonthly, 4, 49, 40, 40.0 / 49 * 100},
		{"annual pro", "pro", model.BillingAnnual, 0, 40, 35, 87.5},
		{"free plan zero revenue", "free", model.BillingMonthly, 1.5, 0, -2, 0},
		{"negative margin", "pro", model.BillingMonthly, 60, 49, -16, -16.0 / 49 * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &mockSubs{}
			subs.On("GetSubscription", mock.Anything, "t1").
				Return(&model.Subscription{TenantID: "t1", Plan: tt.plan, BillingMode: tt.mode, Active: true}, nil)
			usage := &mockUsage{}
			usage.On("SumUsageCost", mock.Anything, "t1", october.Start, october.End).Return(tt.aiCost, nil)

			calc := NewCalculator(testCatalog(t), subs, usage)
			snap, err := calc.MarginForTenant(context.Background(), "t1", october)
			require.NoError(t, err)

			assert.Equal(t, "2025-10", snap.Period)
			assert.InDelta(t, tt.wantRevenue, snap.Revenue, 1e-9)
			assert.InDelta(t, tt.aiCost, snap.AICost, 1e-9)
			assert.InDelta(t, tt.wantGross, snap.GrossMargin, 1e-9)
			assert.InDelta(t, tt.wantPct, snap.MarginPercentage, 1e-9)
			usage.AssertExpectations(t)
		})
	}
}

func TestMarginForTenant_ZeroRevenueIsExactlyZeroPercent(t *testing.T) {
	t.Parallel()

	subs := &mockSubs{}
	subs.On("GetSubscription", mock.Anything, "t1").Return(&model.Subscription{Plan: "free"}, nil)
	usage := &mockUsage{}
	usage.On("SumUsageCost", mock.Anything, "t1", mock.Anything, mock.Anything).Return(0.0, nil)

	snap, err := NewCalculator(testCatalog(t), subs, usage).MarginForTenant(context.Background(), "t1", october)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.MarginPercentage)
}

func TestMarginForTenant_TenantNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sub  *model.Subscription
	}{
		{"no subscription", nil},
		{"unknown plan", &model.Subscription{TenantID: "t1", Plan: "enterprise"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &mockSubs{}
			if tt.sub == nil {
				subs.On("GetSubscription", mock.Anything, "t1").Return(nil, nil)
			} else {
				subs.On("GetSubscription", mock.Anything, "t1").Return(tt.sub, nil)
			}
			usage := &mockUsage{}

			_, err := NewCalculator(testCatalog(t), subs, usage).MarginForTenant(context.Background(), "t1", october)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTenantNotFound))

			var tnf *TenantNotFoundError
			require.True(t, errors.As(err, &tnf))
			assert.Equal(t, "t1", tnf.TenantID)
			usage.AssertNotCalled(t, "SumUsageCost", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestMarginForTenant_SourceErrors(t *testing.T) {
	t.Parallel()

	subs := &mockSubs{}
	subs.On("GetSubscription", mock.Anything, "t1").Return(nil, errors.New("db down"))
	_, err := NewCalculator(testCatalog(t), subs, &mockUsage{}).MarginForTenant(context.Background(), "t1", october)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTenantNotFound))

	subs = &mockSubs{}
	subs.On("GetSubscription", mock.Anything, "t1").Return(&model.Subscription{Plan: "pro"}, nil)
	usage := &mockUsage{}
	usage.On("SumUsageCost", mock.Anything, "t1", mock.Anything, mock.Anything).Return(0.0, errors.New("timeout"))
	_, err = NewCalculator(testCatalog(t), subs, usage).MarginForTenant(context.Background(), "t1", october)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum usage cost")
}

func TestMonthPeriod(t *testing.T) {
	t.Parallel()

	p := MonthPeriod(time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), p.End)
	assert.Equal(t, "2025-12", p.String())
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 10, 19, 8, 0, 0, 0, time.UTC)

	p, err := ParsePeriod("", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-10", p.String())

	p, err = ParsePeriod("2024-02", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), p.End)

	_, err = ParsePeriod("02/2024", now)
	assert.Error(t, err)
}
