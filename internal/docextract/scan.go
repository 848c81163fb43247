package docextract

import (
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultScanThreshold is the average characters per page below which a
// PDF is considered image-scanned.
const DefaultScanThreshold = 100.0

// LowTextDensity reports chars/pages < threshold. Zero pages is never
// low density.
func LowTextDensity(chars, pages int, threshold float64) bool {
	if pages <= 0 {
		return false
	}
	return float64(chars)/float64(pages) < threshold
}

// ScanHeuristic flags PDFs that are probably scanned images. The result is
// advisory and never changes extraction.
type ScanHeuristic struct {
	Threshold float64
}

// NewScanHeuristic returns a heuristic with the given threshold, or the
// default when threshold <= 0.
func NewScanHeuristic(threshold float64) *ScanHeuristic {
	if threshold <= 0 {
		threshold = DefaultScanThreshold
	}
	return &ScanHeuristic{Threshold: threshold}
}

// IsLikelyScanned parses the PDF and measures its text density. A PDF that
// cannot be parsed is reported as not scanned.
func (h *ScanHeuristic) IsLikelyScanned(data []byte) bool {
	pdf, err := readPDF(data)
	if err != nil {
		zap.L().Warn("scan: unparseable pdf, assuming native text", zap.Error(err))
		return false
	}
	pages := make([]string, 0, pdf.PageCount)
	for pageNr := 1; pageNr <= pdf.PageCount; pageNr++ {
		pages = append(pages, pageText(pdf, pageNr))
	}
	return h.FromPages(pages)
}

// FromPages applies the heuristic to already extracted page text.
func (h *ScanHeuristic) FromPages(pages []string) bool {
	chars := 0
	for _, p := range pages {
		chars += utf8.RuneCountInString(p)
	}
	return LowTextDensity(chars, len(pages), h.Threshold)
}
