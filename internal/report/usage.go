// Package report renders usage accounting as spreadsheets for finance
// review.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/internal/store"
)

const (
	eventsSheet  = "Usage"
	summarySheet = "By provider"
	pageSize     = 500
)

// UsageLister pages through usage events.
type UsageLister interface {
	ListUsage(ctx context.Context, filter store.UsageFilter) ([]model.UsageEvent, error)
}

// ProviderSummary aggregates usage for one provider/model pair.
type ProviderSummary struct {
	Provider     string
	Model        string
	Calls        int
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Validated    int
	Rejected     int
}

// Summarize groups events by provider and model, sorted by provider then model.
func Summarize(events []model.UsageEvent) []ProviderSummary {
	idx := make(map[[2]string]*ProviderSummary)
	for _, ev := range events {
		key := [2]string{ev.Provider, ev.Model}
		s, ok := idx[key]
		if !ok {
			s = &ProviderSummary{Provider: ev.Provider, Model: ev.Model}
			idx[key] = s
		}
		s.Calls++
		s.InputTokens += ev.InputTokens
		s.OutputTokens += ev.OutputTokens
		s.Cost += ev.Cost
		switch ev.Status {
		case model.UsageStatusValidated:
			s.Validated++
		case model.UsageStatusRejected:
			s.Rejected++
		}
	}

	out := make([]ProviderSummary, 0, len(idx))
	for _, s := range idx {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// ExportUsage loads every event matching filter and renders the workbook.
func ExportUsage(ctx context.Context, src UsageLister, filter store.UsageFilter) ([]byte, error) {
	var events []model.UsageEvent
	filter.Limit = pageSize
	for offset := 0; ; offset += pageSize {
		filter.Offset = offset
		page, err := src.ListUsage(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "report: list usage")
		}
		events = append(events, page...)
		if len(page) < pageSize {
			break
		}
	}
	return UsageXLSX(events)
}

// UsageXLSX renders one row per event plus a per-provider summary sheet.
func UsageXLSX(events []model.UsageEvent) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", eventsSheet); err != nil {
		return nil, eris.Wrap(err, "report: rename sheet")
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, eris.Wrap(err, "report: create summary sheet")
	}

	writeRow(f, eventsSheet, 1, []any{
		"Date", "Tenant", "User", "Company", "Function", "Provider", "Model",
		"Input tokens", "Output tokens", "Cost", "Confidence", "Status", "ID",
	})
	for i, ev := range events {
		var confidence any = ""
		if ev.Confidence != nil {
			confidence = *ev.Confidence
		}
		writeRow(f, eventsSheet, i+2, []any{
			ev.CreatedAt.UTC().Format(time.RFC3339),
			ev.TenantID,
			ev.UserID,
			ev.CompanyID,
			string(ev.Function),
			ev.Provider,
			ev.Model,
			ev.InputTokens,
			ev.OutputTokens,
			ev.Cost,
			confidence,
			string(ev.Status),
			ev.ID,
		})
	}
	_ = f.SetColWidth(eventsSheet, "A", "A", 22)
	_ = f.SetColWidth(eventsSheet, "B", "D", 16)
	_ = f.SetColWidth(eventsSheet, "G", "G", 28)
	_ = f.SetColWidth(eventsSheet, "M", "M", 38)

	writeRow(f, summarySheet, 1, []any{
		"Provider", "Model", "Calls", "Input tokens", "Output tokens", "Cost", "Validated", "Rejected",
	})
	summary := Summarize(events)
	for i, s := range summary {
		writeRow(f, summarySheet, i+2, []any{
			s.Provider, s.Model, s.Calls, s.InputTokens, s.OutputTokens, s.Cost, s.Validated, s.Rejected,
		})
	}
	_ = f.SetColWidth(summarySheet, "B", "B", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, eris.Wrap(err, "report: write xlsx")
	}

	zap.L().Info("report: usage export rendered",
		zap.Int("rows", len(events)),
		zap.Int("providers", len(summary)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(sheet, cell, &values)
}
