package highlight

import "strings"

// Span is a byte-offset match region within a single block of text. The
// core's scorer produces Spans directly (it knows match boundaries from
// token positions, regex matches, or Levenshtein windows); ApplySpans
// marks them up in text without re-running the search that found them.
type Span struct {
	Start int
	End   int
}

// ApplySpans wraps each non-overlapping, ascending Span in text with wrap,
// the rendering counterpart to the core's byte-offset highlight spans
// (spec.md §4.I); internal/export uses it to bold Markdown snippets. Spans
// must already be sorted ascending by Start and non-overlapping; a span
// that starts before the end of the previous one is skipped.
func ApplySpans(text string, spans []Span, wrap func(string) string) string {
	if len(spans) == 0 {
		return text
	}
	if wrap == nil {
		wrap = func(s string) string { return s }
	}

	var out strings.Builder
	pos := 0
	for _, s := range spans {
		if s.Start < pos || s.End > len(text) || s.Start >= s.End {
			continue
		}
		out.WriteString(text[pos:s.Start])
		out.WriteString(wrap(text[s.Start:s.End]))
		pos = s.End
	}
	out.WriteString(text[pos:])
	return out.String()
}
