package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
)

func makeConv(id, project string, msgs ...corpus.Message) *corpus.Conversation {
	c := &corpus.Conversation{
		ID:                 id,
		Project:            project,
		MessageCountByRole: map[corpus.Role]int{},
		ToolNames:          map[string]struct{}{},
		Models:             map[string]struct{}{},
	}
	for _, m := range msgs {
		c.Messages = append(c.Messages, m)
		c.MessageCountByRole[m.Role]++
		if m.Model != "" {
			c.Models[m.Model] = struct{}{}
		}
		for _, b := range m.Blocks {
			if b.Kind == corpus.BlockToolUse && b.ToolName != "" {
				c.ToolNames[b.ToolName] = struct{}{}
			}
		}
		if m.HasTime {
			if !c.HasTime || m.Timestamp.Before(c.FirstTS) {
				c.FirstTS = m.Timestamp
			}
			if !c.HasTime || m.Timestamp.After(c.LastTS) {
				c.LastTS = m.Timestamp
			}
			c.HasTime = true
		}
	}
	if c.HasTime {
		c.Duration = c.LastTS.Sub(c.FirstTS)
	}
	return c
}

func TestComputeEmptyCorpus(t *testing.T) {
	b, err := Compute(context.Background(), &corpus.Corpus{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if b.Basic.TotalConversations != 0 {
		t.Errorf("expected 0 conversations")
	}
}

func TestComputeBasicCounts(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{
		makeConv("a", "proj1",
			corpus.Message{Role: corpus.RoleUser, Timestamp: t0, HasTime: true},
			corpus.Message{Role: corpus.RoleAssist, Timestamp: t0.Add(time.Minute), HasTime: true, Model: "claude-3"},
		),
		makeConv("b", "proj2",
			corpus.Message{Role: corpus.RoleUser, Timestamp: t0, HasTime: true},
		),
	}}

	b, err := Compute(context.Background(), c)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if b.Basic.TotalConversations != 2 {
		t.Errorf("total conversations = %d, want 2", b.Basic.TotalConversations)
	}
	if b.Basic.TotalMessages != 3 {
		t.Errorf("total messages = %d, want 3", b.Basic.TotalMessages)
	}
	if b.Basic.TotalProjects != 2 {
		t.Errorf("total projects = %d, want 2", b.Basic.TotalProjects)
	}
	if b.Models.MessagesByModel["claude-3"] != 1 {
		t.Errorf("expected 1 message for claude-3, got %d", b.Models.MessagesByModel["claude-3"])
	}
}

func TestComputeCompletionRate(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	completed := makeConv("a", "p",
		corpus.Message{Role: corpus.RoleUser, Timestamp: t0, HasTime: true},
		corpus.Message{Role: corpus.RoleAssist, Timestamp: t0, HasTime: true},
	)
	unfinished := makeConv("b", "p",
		corpus.Message{Role: corpus.RoleUser, Timestamp: t0, HasTime: true},
	)
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{completed, unfinished}}

	b, err := Compute(context.Background(), c)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if b.Quality.CompletionRate != 0.5 {
		t.Errorf("completion rate = %v, want 0.5", b.Quality.CompletionRate)
	}
}

func TestComputeToolUsage(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	c := &corpus.Corpus{Conversations: []*corpus.Conversation{
		makeConv("a", "p",
			corpus.Message{Role: corpus.RoleAssist, Timestamp: t0, HasTime: true, Blocks: []corpus.Block{{Kind: corpus.BlockToolUse, ToolName: "bash"}}},
		),
	}}
	b, err := Compute(context.Background(), c)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if b.Tools.CountByTool["bash"] != 1 {
		t.Errorf("bash count = %d, want 1", b.Tools.CountByTool["bash"])
	}
	if b.Tools.CountByToolAndRole["bash"][corpus.RoleAssist] != 1 {
		t.Errorf("expected bash used once by assistant role")
	}
}

func TestMemoReusesResultForSameHash(t *testing.T) {
	c := &corpus.Corpus{Hash: 42, Conversations: []*corpus.Conversation{makeConv("a", "p")}}
	var memo Memo
	first, err := memo.Get(context.Background(), c)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := memo.Get(context.Background(), c)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Errorf("expected the same cached Bundles pointer")
	}
}

func TestMemoRecomputesOnHashChange(t *testing.T) {
	var memo Memo
	c1 := &corpus.Corpus{Hash: 1, Conversations: []*corpus.Conversation{makeConv("a", "p")}}
	c2 := &corpus.Corpus{Hash: 2, Conversations: []*corpus.Conversation{makeConv("a", "p"), makeConv("b", "p")}}

	b1, _ := memo.Get(context.Background(), c1)
	b2, _ := memo.Get(context.Background(), c2)
	if b1.CorpusHash == b2.CorpusHash {
		t.Errorf("expected different corpus hashes")
	}
	if b2.Basic.TotalConversations != 2 {
		t.Errorf("expected recompute to reflect the new corpus")
	}
}
