package query

import (
	"github.com/dlclark/regexp2"
)

// compiledRegex wraps regexp2.Regexp, chosen over stdlib regexp because the
// Rust engine this spec was distilled from exposes backtracking constructs
// (lookaround, backreferences) that re_exported RE2-style query strings
// sometimes use; regexp2 matches that surface instead of silently
// rejecting patterns stdlib's regexp can't parse.
type compiledRegex struct {
	re *regexp2.Regexp
}

func compileRegex(pattern string) (*compiledRegex, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	return &compiledRegex{re: re}, nil
}

// FindMatch returns the first match's (start, end) byte offsets in text, or
// ok=false if there is no match.
func (c *compiledRegex) FindMatch(text string) (start, end int, ok bool) {
	m, err := c.re.FindStringMatch(text)
	if err != nil || m == nil {
		return 0, 0, false
	}
	// regexp2 reports rune positions; convert them to byte offsets.
	runes := []rune(text)
	start = len(string(runes[:m.Index]))
	end = start + len(string(runes[m.Index:m.Index+m.Length]))
	return start, end, true
}
