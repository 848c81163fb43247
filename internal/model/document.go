package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Format is the declared format of an uploaded document.
type Format string

const (
	FormatTabular Format = "tabular"
	FormatWord    Format = "word"
	FormatPDF     Format = "pdf"
)

// ParseFormat maps a format tag or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "tabular", "xlsx", "xlsm", "csv":
		return FormatTabular, nil
	case "word", "docx":
		return FormatWord, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", eris.Errorf("model: unknown document format %q", s)
	}
}

// Tier is the requested extraction service level.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierAdvanced Tier = "advanced"
	TierComplete Tier = "complete"
)

// ParseTier validates a tier tag.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierBasic:
		return TierBasic, nil
	case TierAdvanced:
		return TierAdvanced, nil
	case TierComplete:
		return TierComplete, nil
	default:
		return "", eris.Errorf("model: unknown extraction tier %q", s)
	}
}

// RawDocument is an uploaded document as handed over by the storage
// collaborator. It is consumed once and never mutated.
type RawDocument struct {
	Content   []byte `json:"-"`
	Format    Format `json:"format"`
	Filename  string `json:"filename,omitempty"`
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id,omitempty"`
}

// Size returns the document size in bytes.
func (d RawDocument) Size() int64 {
	return int64(len(d.Content))
}
