package docextract

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/sells-group/riskdoc/internal/model"
)

// PDFExtractor reads native-text PDFs page by page. Image-only pages
// yield empty text; OCR is out of scope.
type PDFExtractor struct{}

// Extract returns the page-joined body, per-page text and document info.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (*ExtractedText, error) {
	pdf, err := readPDF(data)
	if err != nil {
		return nil, unreadable(model.FormatPDF, err)
	}

	pages := make([]string, 0, pdf.PageCount)
	for pageNr := 1; pageNr <= pdf.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pdf: context cancelled")
		}
		pages = append(pages, pageText(pdf, pageNr))
	}

	var body strings.Builder
	for _, p := range pages {
		if p == "" {
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n\n")
		}
		body.WriteString(p)
	}

	return &ExtractedText{
		Body:     body.String(),
		Pages:    pages,
		Metadata: pdfInfo(pdf),
	}, nil
}

func readPDF(data []byte) (*pdfmodel.Context, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	pdf, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: read")
	}
	return pdf, nil
}

func pdfInfo(pdf *pdfmodel.Context) map[string]string {
	meta := map[string]string{"pages": strconv.Itoa(pdf.PageCount)}
	for k, v := range map[string]string{
		"title":    pdf.XRefTable.Title,
		"author":   pdf.XRefTable.Author,
		"subject":  pdf.XRefTable.Subject,
		"creator":  pdf.XRefTable.Creator,
		"producer": pdf.XRefTable.Producer,
		"created":  pdf.XRefTable.CreationDate,
		"modified": pdf.XRefTable.ModDate,
	} {
		if v = strings.TrimSpace(v); v != "" {
			meta[k] = v
		}
	}
	return meta
}

func pageText(pdf *pdfmodel.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdf, pageNr)
	if err != nil {
		zap.L().Debug("pdf: no page content", zap.Int("page", pageNr), zap.Error(err))
		return ""
	}
	if r == nil {
		return ""
	}
	content, err := io.ReadAll(r)
	if err != nil || len(content) == 0 {
		return ""
	}
	return cleanPDFText(textFromContentStream(content))
}

// textFromContentStream interprets the text-showing operators of a page
// content stream (Tj, TJ, ', ") and turns line moves (Td, TD, T*, Tm, ET)
// into line breaks.
func textFromContentStream(data []byte) string {
	var (
		sb       strings.Builder
		operands []string
		lastTy   float64
		array    []string
		inArray  bool
	)
	newline := func() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteralString(data[i:])
			i += n
			if inArray {
				array = append(array, s)
			} else {
				operands = append(operands, s)
			}
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			end := bytes.IndexByte(data[i:], '>')
			if end < 0 {
				i = len(data)
				continue
			}
			s := decodeHexString(data[i+1 : i+end])
			i += end + 1
			if inArray {
				array = append(array, s)
			} else {
				operands = append(operands, s)
			}
		case c == '/':
			i++
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
		case c == '[':
			inArray = true
			array = array[:0]
			i++
		case c == ']':
			inArray = false
			i++
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			tok := string(data[start:i])
			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				if inArray {
					// Large negative kerning in TJ arrays is a word gap.
					if f < -200 {
						array = append(array, " ")
					}
					continue
				}
				operands = append(operands, tok)
				lastTy = f
				continue
			}

			switch tok {
			case "Tj":
				if len(operands) > 0 {
					sb.WriteString(operands[len(operands)-1])
				}
			case "TJ":
				for _, s := range array {
					sb.WriteString(s)
				}
			case "'", "\"":
				newline()
				if len(operands) > 0 {
					sb.WriteString(operands[len(operands)-1])
				}
			case "Td", "TD":
				if lastTy != 0 {
					newline()
				} else if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			case "T*", "Tm", "ET":
				newline()
			}
			operands = operands[:0]
			lastTy = 0
		}
	}
	return sb.String()
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

// readLiteralString reads a balanced (...) string starting at data[0] and
// returns the decoded text and the number of bytes consumed.
func readLiteralString(data []byte) (string, int) {
	var raw []byte
	depth := 0
	i := 0
	for ; i < len(data); i++ {
		c := data[i]
		if c == '\\' && i+1 < len(data) {
			raw = append(raw, c, data[i+1])
			i++
			continue
		}
		if c == '(' {
			depth++
			if depth == 1 {
				continue
			}
		}
		if c == ')' {
			depth--
			if depth == 0 {
				i++
				break
			}
		}
		raw = append(raw, c)
	}
	return decodePDFBytes(unescapePDFString(raw)), i
}

// unescapePDFString handles the backslash escapes of literal strings.
func unescapePDFString(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			out = append(out, raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b', 'f':
		case '\n', '\r':
			// line continuation
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				out = append(out, byte(val))
			} else {
				out = append(out, raw[i])
			}
		}
	}
	return out
}

func decodeHexString(h []byte) string {
	clean := bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, h)
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	b := make([]byte, hex.DecodedLen(len(clean)))
	n, err := hex.Decode(b, clean)
	if err != nil {
		return ""
	}
	return decodePDFBytes(b[:n])
}

// decodePDFBytes decodes UTF-16BE strings (with BOM) and treats anything
// else as Windows-1252, which covers PDFDocEncoding for printable text.
func decodePDFBytes(b []byte) string {
	if bytes.HasPrefix(b, []byte{0xFE, 0xFF}) {
		s, err := xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(s)
		}
	}
	for _, c := range b {
		if c >= 0x80 {
			s, err := charmap.Windows1252.NewDecoder().Bytes(b)
			if err == nil {
				return string(s)
			}
			break
		}
	}
	return string(b)
}

// cleanPDFText collapses blank runs inside lines and drops empty lines.
func cleanPDFText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
					prevSpace = true
				}
			case unicode.IsPrint(r):
				sb.WriteRune(r)
				prevSpace = false
			}
		}
		if l := strings.TrimSpace(sb.String()); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
