package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/internal/store"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListUsage(ctx context.Context, filter store.UsageFilter) ([]model.UsageEvent, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.UsageEvent), args.Error(1)
}

func sampleEvents() []model.UsageEvent {
	conf := 80
	at := time.Date(2025, 10, 3, 14, 0, 0, 0, time.UTC)
	return []model.UsageEvent{
		{ID: "e1", TenantID: "t1", Provider: "mistral", Model: "mistral-large-latest", InputTokens: 1000, OutputTokens: 100, Cost: 0.0025, Status: model.UsageStatusValidated, Function: model.FunctionImport, Confidence: &conf, CreatedAt: at},
		{ID: "e2", TenantID: "t1", Provider: "anthropic", Model: "claude-sonnet-4-5-20250929", InputTokens: 2000, OutputTokens: 200, Cost: 0.0083, Status: model.UsageStatusRejected, Function: model.FunctionImport, CreatedAt: at},
		{ID: "e3", TenantID: "t2", Provider: "mistral", Model: "mistral-large-latest", InputTokens: 500, OutputTokens: 50, Cost: 0.0012, Status: model.UsageStatusPending, Function: model.FunctionImport, CreatedAt: at},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	got := Summarize(sampleEvents())
	require.Len(t, got, 2)

	assert.Equal(t, "anthropic", got[0].Provider)
	assert.Equal(t, 1, got[0].Calls)
	assert.Equal(t, 1, got[0].Rejected)

	assert.Equal(t, "mistral", got[1].Provider)
	assert.Equal(t, 2, got[1].Calls)
	assert.Equal(t, int64(1500), got[1].InputTokens)
	assert.Equal(t, int64(150), got[1].OutputTokens)
	assert.InDelta(t, 0.0037, got[1].Cost, 1e-9)
	assert.Equal(t, 1, got[1].Validated)
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Summarize(nil))
}

func TestUsageXLSX(t *testing.T) {
	t.Parallel()

	data, err := UsageXLSX(sampleEvents())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	assert.Equal(t, []string{eventsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(eventsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "2025-10-03T14:00:00Z", rows[1][0])
	assert.Equal(t, "mistral", rows[1][5])
	assert.Equal(t, "1000", rows[1][7])
	assert.Equal(t, "80", rows[1][10])
	assert.Equal(t, "validated", rows[1][11])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"anthropic", "claude-sonnet-4-5-20250929", "1"}, summary[1][:3])
	assert.Equal(t, "2", summary[2][2])
}

func TestExportUsage_Pages(t *testing.T) {
	t.Parallel()

	full := make([]model.UsageEvent, pageSize)
	for i := range full {
		full[i] = model.UsageEvent{ID: "x", Provider: "mistral", Model: "m"}
	}

	src := &mockLister{}
	src.On("ListUsage", mock.Anything, mock.MatchedBy(func(f store.UsageFilter) bool {
		return f.Offset == 0 && f.Limit == pageSize && f.TenantID == "t1"
	})).Return(full, nil).Once()
	src.On("ListUsage", mock.Anything, mock.MatchedBy(func(f store.UsageFilter) bool {
		return f.Offset == pageSize
	})).Return(sampleEvents(), nil).Once()

	data, err := ExportUsage(context.Background(), src, store.UsageFilter{TenantID: "t1"})
	require.NoError(t, err)
	src.AssertExpectations(t)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := f.GetRows(eventsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, pageSize+3+1)
}

func TestExportUsage_ListError(t *testing.T) {
	t.Parallel()

	src := &mockLister{}
	src.On("ListUsage", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := ExportUsage(context.Background(), src, store.UsageFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report: list usage")
}
