package query

import (
	"testing"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
)

func testConversation() *corpus.Conversation {
	return &corpus.Conversation{
		ID:                 "c1",
		Project:            "claude-tools",
		FirstTS:            time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		LastTS:             time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		Duration:           4 * 24 * time.Hour,
		MessageCountByRole: map[corpus.Role]int{corpus.RoleUser: 3, corpus.RoleAssist: 3},
		ToolNames:          map[string]struct{}{"bash": {}},
		Models:             map[string]struct{}{"claude-3": {}},
	}
}

func TestFilterNilMatchesEverything(t *testing.T) {
	var fs *FilterSet
	ok, err := fs.Matches(testConversation())
	if err != nil || !ok {
		t.Fatalf("expected nil filter to match, got ok=%v err=%v", ok, err)
	}
}

func TestFilterByRole(t *testing.T) {
	fs := &FilterSet{Roles: []corpus.Role{corpus.RoleSystem}}
	ok, _ := fs.Matches(testConversation())
	if ok {
		t.Errorf("expected no match for a role the conversation never used")
	}
}

func TestFilterByProjectGlob(t *testing.T) {
	fs := &FilterSet{ProjectGlob: "claude-*"}
	ok, err := fs.Matches(testConversation())
	if err != nil || !ok {
		t.Fatalf("expected glob match, got ok=%v err=%v", ok, err)
	}

	fs2 := &FilterSet{ProjectGlob: "other-*"}
	ok2, _ := fs2.Matches(testConversation())
	if ok2 {
		t.Errorf("expected no match for a non-matching glob")
	}
}

func TestFilterByDateWindow(t *testing.T) {
	conv := testConversation()
	fs := &FilterSet{
		AfterTS:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		HasAfter: true,
		BeforeTS: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		HasBefore: true,
	}
	ok, err := fs.Matches(conv)
	if err != nil || !ok {
		t.Fatalf("expected conv within window to match, got ok=%v err=%v", ok, err)
	}

	fs2 := &FilterSet{AfterTS: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), HasAfter: true}
	ok2, _ := fs2.Matches(conv)
	if ok2 {
		t.Errorf("expected first_ts < after to fail the filter")
	}
}

func TestFilterByMessageCountRange(t *testing.T) {
	conv := testConversation()
	conv.Messages = make([]corpus.Message, 6)
	fs := &FilterSet{HasMsgRange: true, MinMessages: 10, MaxMessages: 20}
	ok, _ := fs.Matches(conv)
	if ok {
		t.Errorf("expected a conversation with 6 messages to fail a 10-20 range filter")
	}
}

func TestFilterByToolName(t *testing.T) {
	conv := testConversation()
	fs := &FilterSet{ToolNames: []string{"bash"}}
	ok, _ := fs.Matches(conv)
	if !ok {
		t.Errorf("expected tool-name match")
	}

	fs2 := &FilterSet{ToolNames: []string{"curl"}}
	ok2, _ := fs2.Matches(conv)
	if ok2 {
		t.Errorf("expected no match for an unused tool")
	}
}
