package util

import "strings"

// SanitizeText strips bytes that Postgres text columns reject, in particular
// NUL (0x00) which some PDF extractors emit, plus other non-printing controls.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")

	out := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			out = append(out, ch)
			continue
		}
		if ch < 0x20 {
			continue
		}
		out = append(out, ch)
	}
	return strings.TrimSpace(string(out))
}

// Excerpt returns the first maxRunes runes of s with collapsed whitespace,
// appending an ellipsis when the text was shortened. Used for citation
// excerpts and query-log previews.
func Excerpt(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(SanitizeText(s)), " ")
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}
