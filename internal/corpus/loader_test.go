package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTranscript(t *testing.T, root, project, id, content string) {
	t.Helper()
	dir := filepath.Join(root, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, id+".jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadMissingRoot(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := l.Load(context.Background()); err != ErrCorpusMissing {
		t.Fatalf("err = %v, want ErrCorpusMissing", err)
	}
}

func TestLoadEmptyRoot(t *testing.T) {
	root := t.TempDir()
	l := NewLoader(root)
	c, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Conversations) != 0 {
		t.Errorf("expected an empty corpus, got %d conversations", len(c.Conversations))
	}
}

func TestLoadBasicConversation(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "proj-a", "conv-1", ""+
		`{"type":"user","timestamp":1700000000,"message":{"role":"user","content":"hi"}}`+"\n"+
		`{"type":"assistant","timestamp":1700000010,"model":"claude-3","message":{"role":"assistant","content":"hello"}}`+"\n"+
		`{"type":"tool_use","timestamp":1700000020,"name":"bash","input":{"command":"ls"}}`+"\n",
	)

	l := NewLoader(root)
	c, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(c.Conversations))
	}
	conv := c.Conversations[0]
	if conv.ID != "conv-1" {
		t.Errorf("id = %q", conv.ID)
	}
	if conv.Project != "proj-a" {
		t.Errorf("project = %q", conv.Project)
	}
	if conv.TotalMessages() != 3 {
		t.Errorf("total messages = %d, want 3", conv.TotalMessages())
	}
	if !conv.HasTool("bash") {
		t.Errorf("expected HasTool(bash)")
	}
	if !conv.HasModel("claude-3") {
		t.Errorf("expected HasModel(claude-3)")
	}
	if !conv.HasTime {
		t.Errorf("expected HasTime")
	}
	if conv.Duration <= 0 {
		t.Errorf("expected positive duration, got %v", conv.Duration)
	}
}

func TestLoadFileWithMalformedLines(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "proj-a", "conv-1", ""+
		`{"type":"user","timestamp":1700000000,"message":{"role":"user","content":"hi"}}`+"\n"+
		`not valid json at all`+"\n"+
		`{"type":"assistant","timestamp":1700000010,"message":{"role":"assistant","content":"hello"}}`+"\n",
	)

	l := NewLoader(root)
	c, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Conversations) != 1 {
		t.Fatalf("expected 1 conversation despite malformed line, got %d", len(c.Conversations))
	}
	found := false
	for _, d := range c.Diagnostics {
		if d.Kind == DiagMalformedLine {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a RecordMalformed diagnostic, got %+v", c.Diagnostics)
	}
}

func TestLoadFileWithNoParseableLines(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "proj-a", "empty-conv", `{"type":"progress","value":1}`+"\n")

	l := NewLoader(root)
	c, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Conversations) != 0 {
		t.Fatalf("expected no conversations, got %d", len(c.Conversations))
	}
	found := false
	for _, d := range c.Diagnostics {
		if d.Kind == DiagEmptyFile {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an EmptyFile diagnostic, got %+v", c.Diagnostics)
	}
}

func TestLoadHashStableAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "proj-a", "conv-1", `{"type":"user","timestamp":1700000000,"message":{"role":"user","content":"hi"}}`+"\n")

	l := NewLoader(root)
	c1, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c2, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c1.Hash != c2.Hash {
		t.Errorf("hash changed across identical loads: %d != %d", c1.Hash, c2.Hash)
	}
}

func TestLoadMultipleProjectsSorted(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "zeta", "z1", `{"type":"user","timestamp":1700000000,"message":{"role":"user","content":"z"}}`+"\n")
	writeTranscript(t, root, "alpha", "a1", `{"type":"user","timestamp":1700000000,"message":{"role":"user","content":"a"}}`+"\n")

	l := NewLoader(root)
	c, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(c.Conversations))
	}
	if c.Conversations[0].ID != "a1" || c.Conversations[1].ID != "z1" {
		t.Errorf("expected conversations sorted by id, got %q then %q", c.Conversations[0].ID, c.Conversations[1].ID)
	}
}
