package query

import (
	"context"
	"testing"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
	"github.com/heffrey78/claude-tools/internal/invindex"
)

func textConv(id, project, text string, lastTS time.Time) *corpus.Conversation {
	return &corpus.Conversation{
		ID:      id,
		Project: project,
		Messages: []corpus.Message{
			{Role: corpus.RoleUser, Timestamp: lastTS, HasTime: true, Blocks: []corpus.Block{{Kind: corpus.BlockText, Text: text}}},
		},
		FirstTS:            lastTS,
		LastTS:              lastTS,
		HasTime:             true,
		MessageCountByRole:  map[corpus.Role]int{corpus.RoleUser: 1},
		ToolNames:           map[string]struct{}{},
		Models:              map[string]struct{}{},
	}
}

func buildTestIndex(t *testing.T, c *corpus.Corpus) *invindex.Index {
	t.Helper()
	idx, err := invindex.Build(context.Background(), c)
	if err != nil {
		t.Fatalf("invindex.Build: %v", err)
	}
	return idx
}

func TestSearchBooleanWithExclusion(t *testing.T) {
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{
		textConv("c1", "p", "rust error handling", now),
		textConv("c2", "p", "python error syntax", now),
	}}
	idx := buildTestIndex(t, c)

	results, _, err := Search(context.Background(), c, idx, SearchRequest{
		Query:      "(rust OR python) AND error NOT syntax",
		Now:        now,
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ConversationID != "c1" {
		t.Fatalf("expected only c1, got %+v", results)
	}
	if results[0].Score <= 0 {
		t.Errorf("expected positive score")
	}
}

func TestSearchRegexMatch(t *testing.T) {
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{
		textConv("c1", "p", "async fn foo() -> Result<(), E>", now),
		textConv("c2", "p", "def foo(): pass", now),
	}}
	idx := buildTestIndex(t, c)

	results, _, err := Search(context.Background(), c, idx, SearchRequest{
		Query:      `regex:async\s+fn\s+\w+.*->.*Result`,
		Now:        now,
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ConversationID != "c1" {
		t.Fatalf("expected only c1, got %+v", results)
	}
	if len(results[0].Highlights) == 0 {
		t.Errorf("expected a highlight span")
	}
}

func TestSearchRelativeDateFilter(t *testing.T) {
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	c1Last := time.Date(2025, 6, 19, 10, 0, 0, 0, time.UTC)
	c2Last := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{
		textConv("c1", "p", "error here", c1Last),
		textConv("c2", "p", "error there", c2Last),
	}}
	idx := buildTestIndex(t, c)

	after := now.AddDate(0, 0, -7)
	results, _, err := Search(context.Background(), c, idx, SearchRequest{
		Query:      "error",
		Filters:    &FilterSet{AfterTS: after, HasAfter: true},
		Now:        now,
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ConversationID != "c1" {
		t.Fatalf("expected only c1, got %+v", results)
	}
}

func TestSearchEmptyQueryRanksByRecency(t *testing.T) {
	ts20 := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	ts19 := time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC)
	ts18 := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{
		textConv("a", "p", "x", ts19),
		textConv("b", "p", "y", ts20),
		textConv("c", "p", "z", ts18),
	}}
	idx := buildTestIndex(t, c)

	results, _, err := Search(context.Background(), c, idx, SearchRequest{Query: "", Now: ts20, MaxResults: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Equal scores (match-all) tie-break by last_ts descending.
	if results[0].ConversationID != "b" || results[1].ConversationID != "a" || results[2].ConversationID != "c" {
		t.Errorf("unexpected order: %+v", results)
	}
}

func TestSearchNoMatches(t *testing.T) {
	now := time.Now()
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{textConv("a", "p", "hello", now)}}
	idx := buildTestIndex(t, c)

	results, summary, err := Search(context.Background(), c, idx, SearchRequest{Query: "nonexistentterm", Now: now, MaxResults: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %+v", results)
	}
	if summary.MatchedCount != 0 {
		t.Errorf("matched count = %d, want 0", summary.MatchedCount)
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	c := &corpus.Corpus{}
	idx := buildTestIndex(t, c)
	results, summary, err := Search(context.Background(), c, idx, SearchRequest{Query: "anything", Now: time.Now(), MaxResults: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !summary.EmptyCorpus || len(results) != 0 {
		t.Errorf("expected EmptyCorpus summary, got %+v", summary)
	}
}

func TestSearchPropagatesSyntaxError(t *testing.T) {
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{textConv("a", "p", "x", time.Now())}}
	idx := buildTestIndex(t, c)
	_, _, err := Search(context.Background(), c, idx, SearchRequest{Query: "(unbalanced", Now: time.Now(), MaxResults: 10})
	if err == nil {
		t.Fatal("expected a syntax error")
	}
}

func TestSearchCancelled(t *testing.T) {
	now := time.Now()
	var convs []*corpus.Conversation
	for i := 0; i < 200; i++ {
		convs = append(convs, textConv(string(rune('a'+i%26))+string(rune(i)), "p", "error", now))
	}
	c := &corpus.Corpus{Conversations: convs}
	idx := buildTestIndex(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Search(ctx, c, idx, SearchRequest{Query: "error", Now: now, MaxResults: 10})
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	qe, ok := err.(*QueryError)
	if !ok || qe.Kind != KindCancelled {
		t.Errorf("expected Cancelled, got %v", err)
	}
}

func TestSearchDeterministic(t *testing.T) {
	now := time.Now()
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{
		textConv("a", "p", "rust error", now),
		textConv("b", "p", "rust warning", now),
	}}
	idx := buildTestIndex(t, c)

	r1, _, _ := Search(context.Background(), c, idx, SearchRequest{Query: "rust", Now: now, MaxResults: 10})
	r2, _, _ := Search(context.Background(), c, idx, SearchRequest{Query: "rust", Now: now, MaxResults: 10})
	if len(r1) != len(r2) {
		t.Fatalf("non-deterministic result count")
	}
	for i := range r1 {
		if r1[i].ConversationID != r2[i].ConversationID || r1[i].Score != r2[i].Score {
			t.Errorf("result %d differs between runs", i)
		}
	}
}
