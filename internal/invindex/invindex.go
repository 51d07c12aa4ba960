// Package invindex builds and queries the in-memory inverted index: a
// term→postings map built once per corpus load and never mutated after.
package invindex

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/heffrey78/claude-tools/internal/corpus"
	"github.com/heffrey78/claude-tools/internal/tokenize"
)

// Posting is one occurrence of a term, per spec.md §3's Token Posting.
type Posting struct {
	ConvOrdinal  int32
	MessageIndex int32
	BlockIndex   int32
	Position     uint32
}

// TermEntry is a term's full postings list plus its document frequency.
type TermEntry struct {
	DocFreq  int
	Postings []Posting
}

// Index is the immutable, built inverted index over a Corpus snapshot.
type Index struct {
	terms    map[string]*TermEntry
	convIDs  []string       // ordinal -> conversation id
	convByID map[string]int32 // conversation id -> ordinal

	// TotalConversations is the document count used by IDF.
	TotalConversations int

	// DocTokenCount[ordinal] is the number of tokens indexed for that
	// conversation, and AvgDocTokenCount their mean; both feed the
	// scorer's BM25-style tf_norm length normalization.
	DocTokenCount    []int32
	AvgDocTokenCount float64

	// CorpusHash is copied from the Corpus this Index was built from, so
	// callers can detect staleness without holding onto the Corpus.
	CorpusHash uint64
}

// DocLength returns the token count indexed for a conversation ordinal.
func (idx *Index) DocLength(ordinal int32) int32 {
	if int(ordinal) < 0 || int(ordinal) >= len(idx.DocTokenCount) {
		return 0
	}
	return idx.DocTokenCount[ordinal]
}

// Lookup returns a term's postings list and whether it exists.
func (idx *Index) Lookup(term string) (*TermEntry, bool) {
	e, ok := idx.terms[tokenize.Fold(term)]
	return e, ok
}

// ConversationID resolves an ordinal back to its conversation id.
func (idx *Index) ConversationID(ordinal int32) string {
	if int(ordinal) < 0 || int(ordinal) >= len(idx.convIDs) {
		return ""
	}
	return idx.convIDs[ordinal]
}

// Vocabulary returns every distinct term in the index, for "did you mean"
// suggestion lookups. Order is unspecified.
func (idx *Index) Vocabulary() []string {
	out := make([]string, 0, len(idx.terms))
	for term := range idx.terms {
		out = append(out, term)
	}
	return out
}

// Ordinal resolves a conversation id to its ordinal, or -1 if absent.
func (idx *Index) Ordinal(id string) int32 {
	if ord, ok := idx.convByID[id]; ok {
		return ord
	}
	return -1
}

type localIndex map[string][]Posting

// Build constructs an Index from a Corpus. Work is parallelized one worker
// per conversation, bounded by GOMAXPROCS; each worker emits a local
// partial index that the merge step concatenates and sorts, per spec.md
// §4.D. The resulting Index is never mutated.
func Build(ctx context.Context, c *corpus.Corpus) (*Index, error) {
	n := len(c.Conversations)

	idx := &Index{
		terms:              make(map[string]*TermEntry),
		convIDs:            make([]string, n),
		convByID:           make(map[string]int32, n),
		TotalConversations: n,
		CorpusHash:         c.Hash,
	}
	for i, conv := range c.Conversations {
		idx.convIDs[i] = conv.ID
		idx.convByID[conv.ID] = int32(i)
	}
	if n == 0 {
		return idx, nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	partials := make([]localIndex, n)
	idx.DocTokenCount = make([]int32, n)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, conv := range c.Conversations {
		i, conv := i, conv
		group.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			local := buildConversation(int32(i), conv)
			partials[i] = local
			var count int32
			for _, postings := range local {
				count += int32(len(postings))
			}
			idx.DocTokenCount[i] = count
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var totalTokens int64
	for _, count := range idx.DocTokenCount {
		totalTokens += int64(count)
	}
	if n > 0 {
		idx.AvgDocTokenCount = float64(totalTokens) / float64(n)
	}

	for _, local := range partials {
		for term, postings := range local {
			entry, ok := idx.terms[term]
			if !ok {
				entry = &TermEntry{}
				idx.terms[term] = entry
			}
			entry.DocFreq++
			entry.Postings = append(entry.Postings, postings...)
		}
	}

	for _, entry := range idx.terms {
		sort.Slice(entry.Postings, func(i, j int) bool {
			a, b := entry.Postings[i], entry.Postings[j]
			if a.ConvOrdinal != b.ConvOrdinal {
				return a.ConvOrdinal < b.ConvOrdinal
			}
			if a.MessageIndex != b.MessageIndex {
				return a.MessageIndex < b.MessageIndex
			}
			if a.BlockIndex != b.BlockIndex {
				return a.BlockIndex < b.BlockIndex
			}
			return a.Position < b.Position
		})
	}

	return idx, nil
}

// buildConversation tokenizes every textual block of one conversation and
// returns a local term->postings map scoped to that conversation only
// (DocFreq is not yet meaningful here — it is derived during merge).
func buildConversation(ordinal int32, conv *corpus.Conversation) localIndex {
	local := make(localIndex)
	for msgIdx, msg := range conv.Messages {
		for blockIdx, block := range msg.Blocks {
			text := textOf(block)
			if text == "" {
				continue
			}
			for _, tok := range tokenize.Scan(text) {
				local[tok.Text] = append(local[tok.Text], Posting{
					ConvOrdinal:  ordinal,
					MessageIndex: int32(msgIdx),
					BlockIndex:   int32(blockIdx),
					Position:     uint32(tok.Offset),
				})
			}
		}
	}
	return local
}

// textOf extracts the searchable text from a Block. Tool names are
// included for tool-use/tool-result blocks so "tool_name:bash"-style text
// matches are reachable through plain term search as well as filters.
func textOf(b corpus.Block) string {
	switch b.Kind {
	case corpus.BlockText:
		return b.Text
	case corpus.BlockToolResp:
		if b.ToolName == "" {
			return b.Text
		}
		return b.ToolName + " " + b.Text
	case corpus.BlockToolUse:
		return b.ToolName
	default:
		return ""
	}
}
