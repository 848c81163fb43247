package docextract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/model"
)

// WordExtractor reads .docx documents: body text, tables, core
// properties, and a sanitized HTML/Markdown rendering for review.
type WordExtractor struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// NewWordExtractor creates a WordExtractor.
func NewWordExtractor() *WordExtractor {
	return &WordExtractor{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

const (
	maxDocumentXMLBytes = 64 << 20
	maxXMLDepth         = 256
)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockTable
)

type wordBlock struct {
	kind  blockKind
	level int
	text  string
	grid  [][]string
}

// Extract parses word/document.xml and docProps/core.xml.
func (e *WordExtractor) Extract(ctx context.Context, data []byte) (*ExtractedText, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, unreadable(model.FormatWord, eris.Wrap(err, "docx: open zip"))
	}

	doc := findZipFile(zr, "word/document.xml")
	if doc == nil {
		return nil, unreadable(model.FormatWord, eris.New("docx: word/document.xml not found in archive"))
	}

	blocks, err := readDocumentXML(doc)
	if err != nil {
		return nil, unreadable(model.FormatWord, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "docx: context cancelled")
	}

	meta := map[string]string{}
	if core := findZipFile(zr, "docProps/core.xml"); core != nil {
		if err := readCoreProps(core, meta); err != nil {
			zap.L().Warn("docx: unreadable core properties", zap.Error(err))
		}
	}

	out := &ExtractedText{Metadata: meta}
	var body strings.Builder
	var paragraphs int
	for _, b := range blocks {
		switch b.kind {
		case blockTable:
			t := newTable("table "+strconv.Itoa(len(out.Tables)+1), b.grid)
			out.Tables = append(out.Tables, t)
			body.WriteString(gridText(t))
		default:
			paragraphs++
			body.WriteString(b.text)
			body.WriteByte('\n')
		}
	}
	out.Body = strings.TrimSpace(body.String())
	meta["paragraphs"] = strconv.Itoa(paragraphs)
	meta["tables"] = strconv.Itoa(len(out.Tables))

	out.Markup = e.policy.Sanitize(renderHTML(blocks))
	md, err := e.md.ConvertString(out.Markup)
	if err != nil {
		zap.L().Warn("docx: markdown rendering failed", zap.Error(err))
	} else {
		out.Markdown = strings.TrimSpace(md)
	}
	return out, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// readDocumentXML walks the WordprocessingML token stream. Paragraphs
// inside a table cell are joined into the cell text; nested tables are
// flattened into their enclosing cell.
func readDocumentXML(f *zip.File) ([]wordBlock, error) {
	if f.UncompressedSize64 > maxDocumentXMLBytes {
		return nil, eris.Errorf("docx: document.xml too large (%d bytes)", f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrap(err, "docx: open document.xml")
	}
	defer rc.Close()

	// The size header can lie; a truncated stream fails to parse.
	dec := xml.NewDecoder(io.LimitReader(rc, maxDocumentXMLBytes))
	depth := 0
	var (
		blocks      []wordBlock
		para        strings.Builder
		cell        strings.Builder
		row         []string
		grid        [][]string
		style       string
		inParagraph bool
		inText      bool
		tblDepth    int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "docx: parse document.xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return nil, eris.Errorf("docx: document.xml exceeds nesting depth %d", maxXMLDepth)
			}
			switch t.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					grid = nil
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					cell.Reset()
				}
			case "p":
				inParagraph = true
				para.Reset()
				style = ""
			case "pStyle":
				if inParagraph {
					style = attrVal(t, "val")
				}
			case "t":
				inText = inParagraph
			case "tab":
				if inParagraph {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inParagraph {
					para.WriteByte('\n')
				}
			}

		case xml.CharData:
			if inText {
				para.Write(t)
			}

		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				inParagraph = false
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if tblDepth > 0 {
					if cell.Len() > 0 {
						cell.WriteByte(' ')
					}
					cell.WriteString(text)
					continue
				}
				if level := headingLevel(style); level > 0 {
					blocks = append(blocks, wordBlock{kind: blockHeading, level: level, text: text})
				} else {
					blocks = append(blocks, wordBlock{kind: blockParagraph, text: text})
				}
			case "tc":
				if tblDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if tblDepth == 1 {
					grid = append(grid, row)
				}
			case "tbl":
				if tblDepth == 1 {
					blocks = append(blocks, wordBlock{kind: blockTable, grid: grid})
				}
				tblDepth--
			}
		}
	}
	return blocks, nil
}

func attrVal(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// headingLevel maps a paragraph style to a heading level, 0 for body text.
// "Heading1" and "Titre1" are 1, "Title" is 1, "Subtitle" is 2.
func headingLevel(style string) int {
	lower := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	switch lower {
	case "title", "titre":
		return 1
	case "subtitle", "sous-titre":
		return 2
	}
	for _, prefix := range []string{"heading", "titre"} {
		if rest, ok := strings.CutPrefix(lower, prefix); ok {
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

var coreProps = map[string]string{
	"title":          "title",
	"subject":        "subject",
	"creator":        "author",
	"lastModifiedBy": "last_modified_by",
	"created":        "created",
	"modified":       "modified",
	"description":    "description",
}

func readCoreProps(f *zip.File, meta map[string]string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrap(err, "docx: open core.xml")
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "docx: parse core.xml")
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		key, ok := coreProps[se.Name.Local]
		if !ok {
			continue
		}
		var v string
		if err := dec.DecodeElement(&v, &se); err != nil {
			return eris.Wrapf(err, "docx: decode %s", se.Name.Local)
		}
		if v = strings.TrimSpace(v); v != "" {
			meta[key] = v
		}
	}
}

func renderHTML(blocks []wordBlock) string {
	var b strings.Builder
	for _, blk := range blocks {
		switch blk.kind {
		case blockHeading:
			fmt.Fprintf(&b, "<h%d>%s</h%d>\n", blk.level, html.EscapeString(blk.text), blk.level)
		case blockParagraph:
			text := strings.ReplaceAll(html.EscapeString(blk.text), "\n", "<br>")
			fmt.Fprintf(&b, "<p>%s</p>\n", text)
		case blockTable:
			t := newTable("", blk.grid)
			b.WriteString("<table>\n")
			if t.Headers != nil {
				b.WriteString("<thead><tr>")
				for _, h := range t.Headers {
					fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(h))
				}
				b.WriteString("</tr></thead>\n")
			}
			b.WriteString("<tbody>\n")
			for _, row := range t.Rows {
				b.WriteString("<tr>")
				for _, c := range row {
					fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(c))
				}
				b.WriteString("</tr>\n")
			}
			b.WriteString("</tbody>\n</table>\n")
		}
	}
	return b.String()
}
