package docextract

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/riskdoc/internal/model"
)

var (
	zipMagic = []byte("PK\x03\x04")
	// Legacy .xls and other OLE2 compound files.
	oleMagic = []byte("\xd0\xcf\x11\xe0")
)

// minPrintableRatio is the share of printable runes a CSV body needs.
const minPrintableRatio = 0.95

// TabularExtractor reads spreadsheets: .xlsx workbooks, with a CSV
// fallback for non-zip input.
type TabularExtractor struct{}

// Extract returns one table per sheet.
func (e *TabularExtractor) Extract(ctx context.Context, data []byte) (*ExtractedText, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return e.extractXLSX(ctx, data)
	}
	if bytes.HasPrefix(data, oleMagic) {
		return nil, unreadable(model.FormatTabular, eris.New("legacy xls workbooks are not supported"))
	}
	return e.extractCSV(data)
}

func (e *TabularExtractor) extractXLSX(ctx context.Context, data []byte) (*ExtractedText, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, unreadable(model.FormatTabular, eris.Wrap(err, "xlsx: open"))
	}

	out := &ExtractedText{Metadata: map[string]string{"source": "xlsx"}}
	var body strings.Builder
	for _, sheet := range f.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "xlsx: context cancelled")
		}

		var grid [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			grid = append(grid, rowToStrings(row))
		}

		t := newTable(sheet.Name, grid)
		out.Tables = append(out.Tables, t)
		writeSection(&body, t)
	}
	out.Body = strings.TrimSpace(body.String())
	out.Metadata["sheets"] = strconv.Itoa(len(out.Tables))
	return out, nil
}

func (e *TabularExtractor) extractCSV(data []byte) (*ExtractedText, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	encoding := "utf-8"
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, unreadable(model.FormatTabular, eris.Wrap(err, "csv: decode windows-1252"))
		}
		data = decoded
		encoding = "windows-1252"
	}
	if err := checkText(data); err != nil {
		return nil, unreadable(model.FormatTabular, err)
	}

	delim := sniffDelimiter(data)
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var grid [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, unreadable(model.FormatTabular, eris.Wrap(err, "csv: read row"))
		}
		grid = append(grid, record)
	}

	t := newTable("csv", grid)
	var body strings.Builder
	writeSection(&body, t)
	return &ExtractedText{
		Body:   strings.TrimSpace(body.String()),
		Tables: []Table{t},
		Metadata: map[string]string{
			"source":    "csv",
			"encoding":  encoding,
			"delimiter": string(delim),
		},
	}, nil
}

// checkText rejects binary content: control characters other than tab,
// CR and LF, or too few printable runes.
func checkText(data []byte) error {
	var total, printable int
	for _, r := range string(data) {
		total++
		switch {
		case r == '\t' || r == '\r' || r == '\n':
			printable++
		case unicode.IsControl(r):
			return eris.Errorf("csv: binary content (control character %U)", r)
		case r != utf8.RuneError && unicode.IsPrint(r):
			printable++
		}
	}
	if total == 0 {
		return eris.New("csv: no text")
	}
	if float64(printable)/float64(total) < minPrintableRatio {
		return eris.Errorf("csv: binary content (%d of %d runes printable)", printable, total)
	}
	return nil
}

// sniffDelimiter picks the most frequent of ';', ',' and tab on the first line.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{';', ',', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func newTable(name string, grid [][]string) Table {
	grid = trimGrid(grid)
	headers, rows := detectHeader(grid)
	if rows == nil {
		rows = [][]string{}
	}
	return Table{Name: name, Headers: headers, Rows: rows}
}

func writeSection(b *strings.Builder, t Table) {
	if len(t.Rows) == 0 && t.Headers == nil {
		return
	}
	if t.Name != "" {
		b.WriteString("## ")
		b.WriteString(t.Name)
		b.WriteByte('\n')
	}
	b.WriteString(gridText(t))
	b.WriteByte('\n')
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
