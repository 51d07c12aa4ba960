package query

import (
	"sort"

	"github.com/sahilm/fuzzy"

	"github.com/heffrey78/claude-tools/internal/invindex"
)

// Suggest returns up to max "did you mean" candidates for term when a query
// term has zero postings. It uses sahilm/fuzzy's subsequence matcher over
// the index's known vocabulary — a different matching style than the
// bounded-Levenshtein scoring used for fuzzy: queries, appropriate here
// because we want "close enough to be worth offering", not a scored match.
func Suggest(idx *invindex.Index, term string, max int) []string {
	vocab := idx.Vocabulary()
	if len(vocab) == 0 {
		return nil
	}
	matches := fuzzy.Find(term, vocab)
	sort.Sort(matches)
	if len(matches) > max {
		matches = matches[:max]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = vocab[m.Index]
	}
	return out
}
