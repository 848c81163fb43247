package provider

import "unicode/utf8"

// TruncationMarker is appended to text cut to a provider's input budget.
const TruncationMarker = "\n\n[... document truncated ...]"

// Truncate keeps at most maxBytes bytes of text, cut on a rune boundary,
// and appends TruncationMarker when anything was dropped. maxBytes <= 0
// disables truncation.
func Truncate(text string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text, false
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationMarker, true
}
