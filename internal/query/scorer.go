package query

import (
	"math"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
	"github.com/heffrey78/claude-tools/internal/highlight"
	"github.com/heffrey78/claude-tools/internal/invindex"
	"github.com/heffrey78/claude-tools/internal/tokenize"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75

	shortConversationMessages = 3
	shortConversationPenalty  = 0.5

	recencyHalfLifeDays = 30.0
)

// scored pairs one candidate's conversation ordinal with its final score.
type scored struct {
	ordinal int32
	score   float64
}

// scoreTextCandidate computes spec.md §4.H's score for a term/phrase query
// against one candidate conversation, given its per-term occurrence counts.
//
// role_weight(t,d) is treated as a constant 1 and omitted from the sum:
// original_source/src/claude/search.rs's score_conversation has no
// per-role scoring factor of its own — role only narrows the candidate
// set upstream, via message_role_filter — so there is no weighting
// behavior to port. FilterSet.Roles (filter.go) is this engine's
// equivalent role restriction, applied before scoring rather than during
// it.
func scoreTextCandidate(idx *invindex.Index, conv *corpus.Conversation, ordinal int32, termFreq map[string]int, now time.Time) float64 {
	if len(termFreq) == 0 {
		return 0
	}
	docLen := float64(idx.DocLength(ordinal))
	avgLen := idx.AvgDocTokenCount
	if avgLen <= 0 {
		avgLen = docLen
	}
	if avgLen == 0 {
		avgLen = 1
	}

	var sum float64
	for term, tf := range termFreq {
		entry, ok := idx.Lookup(term)
		if !ok {
			continue
		}
		norm := float64(tf) / (float64(tf) + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
		sum += norm * idfOf(entry.DocFreq, idx.TotalConversations)
	}

	sum *= recencyBoost(conv.LastTS, now)
	sum *= lengthNorm(conv.TotalMessages())
	return sum
}

// idfOf is spec.md §4.H's idf(t) = ln(1 + (N-df+0.5)/(df+0.5)).
func idfOf(df, n int) float64 {
	if df <= 0 {
		df = 1
	}
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// recencyBoost doubles as age->0 and decays to 1 as age->infinity.
func recencyBoost(lastTS, now time.Time) float64 {
	if lastTS.IsZero() {
		return 1
	}
	ageDays := now.Sub(lastTS).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 + math.Exp(-ageDays/recencyHalfLifeDays)
}

// lengthNorm downweights conversations shorter than 3 messages by 0.5, per
// spec.md §4.H, to keep single-line hits from dominating rankings.
func lengthNorm(messageCount int) float64 {
	if messageCount < shortConversationMessages {
		return shortConversationPenalty
	}
	return 1
}

// scoreScanCandidate implements spec.md §4.H's regex/fuzzy full-scan
// scoring path: each matching Block contributes 1/(1+distance), distance 0
// for regex, then the same recency/length adjustments apply.
func scoreScanCandidate(node *Node, conv *corpus.Conversation, now time.Time) (float64, []matchSpan) {
	var sum float64
	var spans []matchSpan

	for msgIdx, msg := range conv.Messages {
		for blockIdx, block := range msg.Blocks {
			text := blockText(block)
			if text == "" {
				continue
			}
			switch node.Kind {
			case NodeRegex:
				if start, end, ok := node.Compiled.FindMatch(text); ok {
					sum += 1
					spans = append(spans, matchSpan{MessageIndex: msgIdx, BlockIndex: blockIdx, Span: highlight.Span{Start: start, End: end}})
				}
			case NodeFuzzy:
				if start, end, dist, ok := bestFuzzyMatch(text, node.Text, node.FuzzyBudget); ok {
					sum += 1 / float64(1+dist)
					spans = append(spans, matchSpan{MessageIndex: msgIdx, BlockIndex: blockIdx, Span: highlight.Span{Start: start, End: end}})
				}
			}
		}
	}
	if sum == 0 {
		return 0, nil
	}
	sum *= recencyBoost(conv.LastTS, now)
	sum *= lengthNorm(conv.TotalMessages())
	return sum, spans
}

func blockText(b corpus.Block) string {
	switch b.Kind {
	case corpus.BlockText:
		return b.Text
	case corpus.BlockToolResp:
		return b.Text
	default:
		return ""
	}
}

// matchSpan is a byte-offset highlight span within one Message's Block,
// built on highlight.Span so the same shape serves both the core's scorer
// and export's Markdown snippet renderer (internal/highlight.ApplySpans).
type matchSpan struct {
	MessageIndex int
	BlockIndex   int
	highlight.Span
}

// bestFuzzyMatch scans text's tokens for the closest match to term within
// budget edits, returning the tightest match found.
func bestFuzzyMatch(text, term string, budget int) (start, end, dist int, ok bool) {
	folded := tokenize.Fold(term)
	best := budget + 1
	for _, tok := range tokenize.Scan(text) {
		d := boundedLevenshtein(tok.Text, folded, best)
		if d < best {
			best = d
			start = tok.Offset
			end = tok.Offset + len(tok.Text)
			ok = true
			dist = d
			if best == 0 {
				return start, end, dist, true
			}
		}
	}
	return start, end, dist, ok
}

// boundedLevenshtein computes edit distance between a and b, treating
// insertion/deletion/substitution as cost 1, but bails out early (returning
// maxDist+1) once it can prove the distance exceeds maxDist.
func boundedLevenshtein(a, b string, maxDist int) int {
	ra, rb := []rune(a), []rune(b)
	if abs(len(ra)-len(rb)) > maxDist {
		return maxDist + 1
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > maxDist {
			return maxDist + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
