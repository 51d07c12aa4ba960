// Package tokenize provides the single, deterministic text→token function
// shared by indexing and query-term parsing. Symmetric use at both sites is
// required for terms to match.
package tokenize

import "unicode"

// Token is one scanned term plus its starting byte offset in the source text.
type Token struct {
	Text   string
	Offset int
}

// Scan splits text into maximal runs of Unicode letters or digits,
// case-folding each run to lower case. Underscore counts as a letter.
// Combining marks attach to the run they trail. Punctuation and whitespace
// separate runs and are discarded; there is no stemming or stop-word removal.
func Scan(text string) []Token {
	var tokens []Token
	runes := []rune(text)
	n := len(runes)

	byteOffset := make([]int, n+1)
	off := 0
	for i, r := range runes {
		byteOffset[i] = off
		off += runeLen(r)
	}
	byteOffset[n] = off

	i := 0
	for i < n {
		if !isTokenRune(runes[i]) {
			i++
			continue
		}
		start := i
		for i < n && (isTokenRune(runes[i]) || isCombining(runes[i])) {
			i++
		}
		term := make([]rune, 0, i-start)
		for _, r := range runes[start:i] {
			term = append(term, unicode.ToLower(r))
		}
		tokens = append(tokens, Token{Text: string(term), Offset: byteOffset[start]})
	}
	return tokens
}

// Fold lowercases a single query term rune by rune, the same way Scan
// does, for comparing a bare query term against indexed tokens. Unlike
// Scan it neither trims nor splits the term at punctuation.
func Fold(term string) string {
	runes := []rune(term)
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = unicode.ToLower(r)
	}
	return string(out)
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isCombining(r rune) bool {
	return unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || unicode.Is(unicode.Me, r)
}

func runeLen(r rune) int {
	switch {
	case r < 0x80:
		return 1
	case r < 0x800:
		return 2
	case r < 0x10000:
		return 3
	default:
		return 4
	}
}
