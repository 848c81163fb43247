// Package docextract turns raw uploaded bytes into plain text and tables.
package docextract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/model"
)

// ErrUnreadableDocument matches every *UnreadableError via errors.Is.
var ErrUnreadableDocument = eris.New("docextract: unreadable document")

// UnreadableError reports bytes that cannot be parsed as the declared format.
type UnreadableError struct {
	Format model.Format
	Cause  error
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("docextract: unreadable %s document: %v", e.Format, e.Cause)
}

func (e *UnreadableError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrUnreadableDocument) true.
func (e *UnreadableError) Is(target error) bool {
	return target == ErrUnreadableDocument
}

func unreadable(format model.Format, cause error) *UnreadableError {
	return &UnreadableError{Format: format, Cause: cause}
}

// Table is one 2-D cell grid. Headers is nil when the first row did not
// look like a header row; it is advisory only.
type Table struct {
	Name    string     `json:"name,omitempty"`
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows"`
}

// ExtractedText is the output of a format extractor.
type ExtractedText struct {
	Body   string   `json:"body"`
	Tables []Table  `json:"tables,omitempty"`
	Pages  []string `json:"pages,omitempty"`
	// Markup and Markdown are review renderings. Structurers never read them.
	Markup   string            `json:"markup,omitempty"`
	Markdown string            `json:"markdown,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Extractor converts bytes of one format into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*ExtractedText, error)
}

// Registry dispatches to the extractor registered for a format.
type Registry struct {
	extractors map[model.Format]Extractor
}

// NewRegistry returns a registry with the tabular, word and PDF extractors.
func NewRegistry() *Registry {
	return &Registry{extractors: map[model.Format]Extractor{
		model.FormatTabular: &TabularExtractor{},
		model.FormatWord:    NewWordExtractor(),
		model.FormatPDF:     &PDFExtractor{},
	}}
}

// Register adds or replaces the extractor for a format.
func (r *Registry) Register(format model.Format, e Extractor) {
	r.extractors[format] = e
}

// Extract parses data as the declared format. Every failure is an
// *UnreadableError.
func (r *Registry) Extract(ctx context.Context, data []byte, format model.Format) (*ExtractedText, error) {
	e, ok := r.extractors[format]
	if !ok {
		return nil, unreadable(format, eris.Errorf("unsupported format %q", format))
	}
	if len(data) == 0 {
		return nil, unreadable(format, eris.New("empty document"))
	}

	out, err := e.Extract(ctx, data)
	if err != nil {
		var ue *UnreadableError
		if errors.As(err, &ue) {
			return nil, ue
		}
		return nil, unreadable(format, err)
	}

	zap.L().Debug("docextract: extracted",
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)),
		zap.Int("body_chars", len([]rune(out.Body))),
		zap.Int("tables", len(out.Tables)),
	)
	return out, nil
}

// detectHeader applies the first-row rule to a grid: the first row is a
// header iff at least one of its cells is non-empty and not numeric.
func detectHeader(rows [][]string) (headers []string, data [][]string) {
	if len(rows) == 0 {
		return nil, rows
	}
	for _, cell := range rows[0] {
		c := strings.TrimSpace(cell)
		if c != "" && !isNumeric(c) {
			return rows[0], rows[1:]
		}
	}
	return nil, rows
}

// isNumeric accepts plain, decimal-comma and space-grouped numbers.
func isNumeric(s string) bool {
	if !strings.ContainsAny(s, "0123456789") {
		return false
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	s = strings.TrimSuffix(s, "%")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// gridText renders a grid one row per line with pipe-separated cells.
func gridText(t Table) string {
	var b strings.Builder
	if t.Headers != nil {
		b.WriteString(strings.Join(t.Headers, " | "))
		b.WriteByte('\n')
	}
	for _, row := range t.Rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteByte('\n')
	}
	return b.String()
}

// trimGrid drops fully empty rows and trailing empty cells.
func trimGrid(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		end := len(row)
		for end > 0 && strings.TrimSpace(row[end-1]) == "" {
			end--
		}
		if end == 0 {
			continue
		}
		out = append(out, row[:end])
	}
	return out
}
