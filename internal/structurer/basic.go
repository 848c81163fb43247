// Package structurer holds the deterministic, offline structuring engine.
package structurer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/riskdoc/internal/model"
)

// BasicConfidence is the fixed confidence of deterministic candidates.
const BasicConfidence = 50

// nameLabels are folded (lower-case, accent-free) labels that introduce a
// legal name. Longer labels come first so "denomination sociale" wins over
// "denomination".
var nameLabels = []string{
	"denomination sociale",
	"nom de l'entreprise",
	"raison sociale",
	"company name",
	"etablissement",
	"denomination",
	"legal name",
	"entreprise",
	"societe",
	"company",
}

var siretRe = regexp.MustCompile(`\b\d{3}[ .-]?\d{3}[ .-]?\d{3}[ .-]?\d{5}\b`)

// Basic extracts what it can with fixed patterns: the legal name and the
// SIRET number. It never fails and returns the same candidate for the same
// text.
func Basic(text string) *model.StructuredCandidate {
	c := model.NewCandidate(model.EngineDeterministic)
	c.Confidence = BasicConfidence

	info := &model.CompanyInfo{}
	if name, ok := legalName(text); ok {
		info.LegalName = &name
	}
	if id, ok := legalIdentifier(text); ok {
		info.LegalIdentifier = &id
	}
	if !info.IsEmpty() {
		c.Company = info
	}
	return c
}

// legalName returns the value of the first "label : Value" line whose label
// is a known company-name label. The value must start with an upper-case
// letter and runs to the end of the line.
func legalName(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !isNameLabel(label) {
			continue
		}
		value = strings.TrimSpace(value)
		first, _ := firstRune(value)
		if !unicode.IsUpper(first) {
			continue
		}
		return value, true
	}
	return "", false
}

func isNameLabel(label string) bool {
	folded := fold(label)
	folded = strings.TrimLeftFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	folded = strings.TrimSpace(folded)
	for _, l := range nameLabels {
		if folded == l {
			return true
		}
	}
	return false
}

// legalIdentifier returns the first 14-digit SIRET with its separators
// removed.
func legalIdentifier(text string) (string, bool) {
	m := siretRe.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, m), true
}

// fold lower-cases s, strips diacritics, and normalizes apostrophes and
// blank runs.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = strings.ReplaceAll(out, "’", "'")
	return strings.Join(strings.Fields(out), " ")
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}
