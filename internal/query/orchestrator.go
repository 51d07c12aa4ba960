// Package query implements the boolean/regex/filter query language, its
// BM25-style scorer, and the Search Orchestrator that composes them into a
// single ranked query pipeline, per spec.md §4.E-I.
package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
	"github.com/heffrey78/claude-tools/internal/highlight"
	"github.com/heffrey78/claude-tools/internal/invindex"
	"github.com/heffrey78/claude-tools/internal/tokenize"
)

// cancelBatchSize is how many candidates the orchestrator scores before
// re-checking the cancellation token, per spec.md §4.I/§5.
const cancelBatchSize = 64

// maxHighlightSpansPerMessage bounds highlight spans returned per matched
// Message, per spec.md §4.I.
const maxHighlightSpansPerMessage = 5

// HighlightSpan is one matched region inside a Message's Block, built on
// highlight.Span so export's Markdown snippet renderer (which calls
// internal/highlight.ApplySpans) can consume it directly without reshaping.
type HighlightSpan struct {
	MessageIndex int
	BlockIndex   int
	highlight.Span
}

// SearchResult is one ranked hit, per spec.md §3.
type SearchResult struct {
	ConversationID     string
	Score              float64
	MatchedMessageIdxs []int
	Highlights         map[int][]HighlightSpan // keyed by MessageIndex
}

// Summary reports what the orchestrator actually did, for callers that want
// to render a query explanation or debug a zero-result search.
type Summary struct {
	AST            *Node
	Filters        *FilterSet
	TotalCandidates int
	MatchedCount    int
	Elapsed         time.Duration
	EmptyCorpus     bool
}

// SearchRequest bundles the Search Orchestrator's inputs, per spec.md §6.
type SearchRequest struct {
	Query      string
	Filters    *FilterSet
	Now        time.Time
	MaxResults int
}

// Search runs the full D-H pipeline: parse, filter, candidate gathering,
// scoring, ranking, and highlighting. It never panics on malformed input;
// invalid queries are rejected with a classified *QueryError.
func Search(ctx context.Context, c *corpus.Corpus, idx *invindex.Index, req SearchRequest) ([]SearchResult, Summary, error) {
	start := time.Now()

	if len(c.Conversations) == 0 {
		return nil, Summary{EmptyCorpus: true}, nil
	}

	ast, err := Parse(req.Query)
	if err != nil {
		return nil, Summary{}, err
	}

	allowed, err := filterAllowed(c, req.Filters)
	if err != nil {
		return nil, Summary{}, err
	}

	var results []SearchResult
	var totalCandidates int

	if ast == nil {
		// Empty query: match-all, rank by recency per spec.md §6/§8.
		results, totalCandidates = matchAllRanked(c, allowed)
	} else if ast.HasTextLeaf() {
		results, totalCandidates, err = searchIndexed(ctx, c, idx, ast, allowed, req.Now)
	} else {
		results, totalCandidates, err = searchScan(ctx, c, ast, allowed, req.Now)
	}
	if err != nil {
		return nil, Summary{}, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ci := c.ByID(results[i].ConversationID)
		cj := c.ByID(results[j].ConversationID)
		if ci != nil && cj != nil && !ci.LastTS.Equal(cj.LastTS) {
			return ci.LastTS.After(cj.LastTS)
		}
		return results[i].ConversationID < results[j].ConversationID
	})

	if req.MaxResults > 0 && len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}

	summary := Summary{
		AST:             ast,
		Filters:         req.Filters,
		TotalCandidates: totalCandidates,
		MatchedCount:    len(results),
		Elapsed:         time.Since(start),
	}
	return results, summary, nil
}

func filterAllowed(c *corpus.Corpus, fs *FilterSet) (map[int32]bool, error) {
	allowed := make(map[int32]bool, len(c.Conversations))
	for i, conv := range c.Conversations {
		ok, err := fs.Matches(conv)
		if err != nil {
			return nil, err
		}
		if ok {
			allowed[int32(i)] = true
		}
	}
	return allowed, nil
}

func matchAllRanked(c *corpus.Corpus, allowed map[int32]bool) ([]SearchResult, int) {
	var results []SearchResult
	for i, conv := range c.Conversations {
		if !allowed[int32(i)] {
			continue
		}
		results = append(results, SearchResult{ConversationID: conv.ID, Score: 1})
	}
	return results, len(results)
}

// searchIndexed handles AST trees containing at least one Term/Phrase leaf:
// candidates come from the union of leaf postings, restricted by filters,
// then the AST is evaluated per-candidate over its term occurrences.
func searchIndexed(ctx context.Context, c *corpus.Corpus, idx *invindex.Index, ast *Node, allowed map[int32]bool, now time.Time) ([]SearchResult, int, error) {
	leaves := ast.Leaves()

	candidateSet := make(map[int32]bool)
	for _, leaf := range leaves {
		if leaf.Kind != NodeTerm {
			continue
		}
		entry, ok := idx.Lookup(leaf.Text)
		if !ok {
			continue
		}
		for _, p := range entry.Postings {
			if allowed[p.ConvOrdinal] {
				candidateSet[p.ConvOrdinal] = true
			}
		}
	}
	// Phrase leaves narrow via their first word's postings; the final
	// substring check happens during per-candidate evaluation.
	for _, leaf := range leaves {
		if leaf.Kind != NodePhrase {
			continue
		}
		words := tokenize.Scan(leaf.Text)
		if len(words) == 0 {
			continue
		}
		entry, ok := idx.Lookup(words[0].Text)
		if !ok {
			continue
		}
		for _, p := range entry.Postings {
			if allowed[p.ConvOrdinal] {
				candidateSet[p.ConvOrdinal] = true
			}
		}
	}

	ordinals := make([]int32, 0, len(candidateSet))
	for ord := range candidateSet {
		ordinals = append(ordinals, ord)
	}
	sort.Slice(ordinals, func(i, j int) bool { return ordinals[i] < ordinals[j] })

	var results []SearchResult
	for i, ord := range ordinals {
		if i%cancelBatchSize == 0 {
			select {
			case <-ctx.Done():
				return nil, 0, cancelledErr()
			default:
			}
		}

		conv := c.Conversations[ord]
		termFreq := conversationTermFreq(idx, ord, leaves)
		present := func(term string) bool { return termFreq[tokenize.Fold(term)] > 0 }

		if !evaluateAST(ast, conv, present) {
			continue
		}

		score := scoreTextCandidate(idx, conv, ord, termFreq, now)
		if score <= 0 {
			continue
		}

		results = append(results, SearchResult{
			ConversationID: conv.ID,
			Score:          score,
			Highlights:     highlightTermLeaves(idx, ord, leaves),
		})
	}
	return results, len(ordinals), nil
}

// searchScan handles regex/fuzzy-only trees: no index path exists, so the
// filter-reduced candidate set is scanned directly.
func searchScan(ctx context.Context, c *corpus.Corpus, ast *Node, allowed map[int32]bool, now time.Time) ([]SearchResult, int, error) {
	ordinals := make([]int32, 0, len(allowed))
	for ord := range allowed {
		ordinals = append(ordinals, ord)
	}
	sort.Slice(ordinals, func(i, j int) bool { return ordinals[i] < ordinals[j] })

	leaves := ast.Leaves()

	var results []SearchResult
	for i, ord := range ordinals {
		if i%cancelBatchSize == 0 {
			select {
			case <-ctx.Done():
				return nil, 0, cancelledErr()
			default:
			}
		}

		conv := c.Conversations[ord]
		present := func(string) bool { return false } // no Term leaves on this path
		if !evaluateAST(ast, conv, present) {
			continue
		}

		var best float64
		highlights := make(map[int][]HighlightSpan)
		for _, leaf := range leaves {
			score, spans := scoreScanCandidate(leaf, conv, now)
			best += score
			for _, s := range spans {
				hs := highlights[s.MessageIndex]
				if len(hs) >= maxHighlightSpansPerMessage {
					continue
				}
				highlights[s.MessageIndex] = append(hs, HighlightSpan{
					MessageIndex: s.MessageIndex, BlockIndex: s.BlockIndex, Span: s.Span,
				})
			}
		}
		if best <= 0 {
			continue
		}
		results = append(results, SearchResult{ConversationID: conv.ID, Score: best, Highlights: highlights})
	}
	return results, len(ordinals), nil
}

// conversationTermFreq counts, for a single conversation ordinal, how many
// times each Term leaf occurs, from the index's postings. A Phrase leaf is
// counted by the occurrences of its first word, under that word's key.
func conversationTermFreq(idx *invindex.Index, ordinal int32, leaves []*Node) map[string]int {
	freq := make(map[string]int)
	for _, leaf := range leaves {
		switch leaf.Kind {
		case NodeTerm:
			entry, ok := idx.Lookup(leaf.Text)
			if !ok {
				continue
			}
			term := tokenize.Fold(leaf.Text)
			for _, p := range entry.Postings {
				if p.ConvOrdinal == ordinal {
					freq[term]++
				}
			}
		case NodePhrase:
			words := tokenize.Scan(leaf.Text)
			if len(words) == 0 {
				continue
			}
			entry, ok := idx.Lookup(words[0].Text)
			if !ok {
				continue
			}
			term := words[0].Text
			for _, p := range entry.Postings {
				if p.ConvOrdinal == ordinal {
					freq[term]++
				}
			}
		}
	}
	return freq
}

// evaluateAST walks the AST deciding pass/fail for one conversation. Term
// presence comes from the caller's index-backed closure; Phrase/Regex/Fuzzy
// are evaluated by scanning the conversation's textual blocks directly,
// since index postings alone can't confirm adjacency or edit distance.
func evaluateAST(node *Node, conv *corpus.Conversation, present func(string) bool) bool {
	if node == nil {
		return true
	}
	switch node.Kind {
	case NodeAnd:
		for _, c := range node.Children {
			if !evaluateAST(c, conv, present) {
				return false
			}
		}
		return true
	case NodeOr:
		for _, c := range node.Children {
			if evaluateAST(c, conv, present) {
				return true
			}
		}
		return false
	case NodeNot:
		return !evaluateAST(node.Children[0], conv, present)
	case NodeTerm:
		return present(node.Text)
	case NodePhrase:
		return conversationContainsPhrase(conv, node.Text)
	case NodeRegex:
		return conversationMatchesRegex(conv, node.Compiled)
	case NodeFuzzy:
		return conversationMatchesFuzzy(conv, node.Text, node.FuzzyBudget)
	default:
		return false
	}
}

func conversationContainsPhrase(conv *corpus.Conversation, phrase string) bool {
	folded := strings.ToLower(strings.TrimSpace(phrase))
	if folded == "" {
		return false
	}
	for _, msg := range conv.Messages {
		for _, b := range msg.Blocks {
			if strings.Contains(strings.ToLower(blockText(b)), folded) {
				return true
			}
		}
	}
	return false
}

func conversationMatchesRegex(conv *corpus.Conversation, re *compiledRegex) bool {
	if re == nil {
		return false
	}
	for _, msg := range conv.Messages {
		for _, b := range msg.Blocks {
			if _, _, ok := re.FindMatch(blockText(b)); ok {
				return true
			}
		}
	}
	return false
}

func conversationMatchesFuzzy(conv *corpus.Conversation, term string, budget int) bool {
	for _, msg := range conv.Messages {
		for _, b := range msg.Blocks {
			if _, _, _, ok := bestFuzzyMatch(blockText(b), term, budget); ok {
				return true
			}
		}
	}
	return false
}

// highlightTermLeaves builds highlight spans for Term leaves from posting
// positions, bounded per message by maxHighlightSpansPerMessage. Phrase
// leaves produce no highlight spans.
func highlightTermLeaves(idx *invindex.Index, ordinal int32, leaves []*Node) map[int][]HighlightSpan {
	out := make(map[int][]HighlightSpan)
	for _, leaf := range leaves {
		if leaf.Kind != NodeTerm {
			continue
		}
		entry, ok := idx.Lookup(leaf.Text)
		if !ok {
			continue
		}
		for _, p := range entry.Postings {
			if p.ConvOrdinal != ordinal {
				continue
			}
			spans := out[int(p.MessageIndex)]
			if len(spans) >= maxHighlightSpansPerMessage {
				continue
			}
			out[int(p.MessageIndex)] = append(spans, HighlightSpan{
				MessageIndex: int(p.MessageIndex),
				BlockIndex:   int(p.BlockIndex),
				Span: highlight.Span{
					Start: int(p.Position),
					End:   int(p.Position) + len(tokenize.Fold(leaf.Text)),
				},
			})
		}
	}
	return out
}
