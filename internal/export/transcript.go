package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
)

// Exporter writes a single conversation's transcript to disk, grounded on
// the teacher's internal/export.Exporter session-export flow, adapted from
// a Codex session to a corpus.Conversation.
type Exporter struct {
	overrideDir string
	cwd         string
}

// New returns an Exporter writing under overrideDir (if set) or
// <cwd>/docs/claude-tools otherwise.
func New(overrideDir string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("export: resolve cwd: %w", err)
	}
	return &Exporter{overrideDir: strings.TrimSpace(overrideDir), cwd: cwd}, nil
}

// Export writes conv's transcript to disk in the requested format and
// returns the written path.
func (e *Exporter) Export(conv *corpus.Conversation, format Format) (string, error) {
	path, err := e.outputPath(conv, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("export: create export directory: %w", err)
	}

	now := time.Now().UTC()
	var content string
	switch format {
	case FormatJSON:
		content, err = transcriptJSON(conv, now)
	case FormatHTML:
		content, err = markdownToHTML(BuildConversationMarkdown(conv, now))
	default:
		content = BuildConversationMarkdown(conv, now)
	}
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("export: write export file: %w", err)
	}
	return path, nil
}

type transcriptView struct {
	ID           string    `json:"id"`
	Project      string    `json:"project"`
	Exported     time.Time `json:"exported"`
	MessageCount int       `json:"message_count"`
	Messages     []struct {
		Role    string `json:"role"`
		Model   string `json:"model,omitempty"`
		Content string `json:"content"`
	} `json:"messages"`
}

func transcriptJSON(conv *corpus.Conversation, now time.Time) (string, error) {
	view := transcriptView{ID: conv.ID, Project: conv.Project, Exported: now, MessageCount: conv.TotalMessages()}
	for _, m := range conv.Messages {
		content := renderBlocks(m.Blocks)
		if m.Role == corpus.RoleUser {
			content = sanitizeUserTranscriptContent(content)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		view.Messages = append(view.Messages, struct {
			Role    string `json:"role"`
			Model   string `json:"model,omitempty"`
			Content string `json:"content"`
		}{Role: string(m.Role), Model: m.Model, Content: content})
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal transcript json: %w", err)
	}
	return string(b), nil
}

// BuildConversationMarkdown renders the full transcript of conv to Markdown.
func BuildConversationMarkdown(conv *corpus.Conversation, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation %s\n\n", conv.ID)
	fmt.Fprintf(&b, "Exported: %s\n\n", now.Format(time.RFC3339))
	b.WriteString("```text\n")
	fmt.Fprintf(&b, "project: %s\n", safeValue(conv.Project))
	fmt.Fprintf(&b, "message_count: %d\n", conv.TotalMessages())
	if conv.HasTime {
		fmt.Fprintf(&b, "span: %s — %s\n", conv.FirstTS.Format(time.RFC3339), conv.LastTS.Format(time.RFC3339))
	}
	b.WriteString("```\n\n")
	b.WriteString(BuildTranscriptMarkdown(conv.Messages))
	return b.String()
}

// BuildTranscriptMarkdown renders messages as a sequence of Markdown
// sections, one per message, grounded on the teacher's
// BuildTranscriptMarkdown — user and assistant messages (including any
// tool-use blocks they carry) render as prose; messages of every other
// role render under a "Tool" heading as fenced code.
func BuildTranscriptMarkdown(messages []corpus.Message) string {
	var b strings.Builder
	for _, m := range messages {
		content := renderBlocks(m.Blocks)
		if m.Role == corpus.RoleUser {
			content = sanitizeUserTranscriptContent(content)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		switch m.Role {
		case corpus.RoleUser:
			b.WriteString("## User\n\n")
			b.WriteString(content + "\n\n")
		case corpus.RoleAssist:
			header := "## Assistant"
			if m.Model != "" {
				header += fmt.Sprintf(" (%s)", m.Model)
			}
			b.WriteString(header + "\n\n")
			b.WriteString(content + "\n\n")
		default:
			b.WriteString("## Tool\n\n")
			b.WriteString("```text\n")
			b.WriteString(content + "\n")
			b.WriteString("```\n\n")
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func renderBlocks(blocks []corpus.Block) string {
	var parts []string
	for _, blk := range blocks {
		switch blk.Kind {
		case corpus.BlockText:
			if t := strings.TrimSpace(blk.Text); t != "" {
				parts = append(parts, t)
			}
		case corpus.BlockToolUse:
			parts = append(parts, fmt.Sprintf("[tool-use: %s]\n%s", blk.ToolName, blk.ToolInputJSON))
		case corpus.BlockToolResp:
			parts = append(parts, fmt.Sprintf("[tool-result: %s]\n%s", blk.ToolName, blk.Text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// sanitizeUserTranscriptContent strips stale CLAUDE.md preamble blocks that
// Claude Code injects at the start of a session — the same noisy-heading
// problem the teacher's sanitizeUserTranscriptContent solves for Codex's
// AGENTS.md preamble, adapted to this tool's CLAUDE.md equivalent.
func sanitizeUserTranscriptContent(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	lower := strings.ToLower(content)
	if strings.Contains(lower, "<system-reminder>") {
		content = stripStaleClaudeMDBlock(content)
		if strings.TrimSpace(content) == "" {
			return ""
		}
		return content
	}

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isClaudeMDHeadingLine(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

var claudeMDHeadingLineRe = regexp.MustCompile(`(?i)^[\s#>*` + "`" + `-]*claude\.md (instructions|contents) for\b`)
var systemReminderBlockRe = regexp.MustCompile(`(?is)<system-reminder>.*?</system-reminder>`)

func isClaudeMDHeadingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	return claudeMDHeadingLineRe.MatchString(trimmed)
}

func stripStaleClaudeMDBlock(content string) string {
	path, ok := claudeMDPathFromContent(content)
	if !ok {
		return content
	}
	if claudeMDFileExists(path) {
		return content
	}

	lines := strings.Split(content, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if isClaudeMDHeadingLine(line) {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")
	joined = systemReminderBlockRe.ReplaceAllString(joined, "")
	return strings.TrimSpace(joined)
}

func claudeMDPathFromContent(content string) (string, bool) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !isClaudeMDHeadingLine(trimmed) {
			continue
		}
		lower := strings.ToLower(trimmed)
		idx := strings.Index(lower, "for")
		if idx < 0 {
			continue
		}
		path := strings.TrimSpace(trimmed[idx+len("for"):])
		path = strings.Trim(path, "`'\"")
		if path == "" {
			return "", false
		}
		return path, true
	}
	return "", false
}

func claudeMDFileExists(path string) bool {
	st, err := os.Stat(filepath.Join(path, "CLAUDE.md"))
	return err == nil && !st.IsDir()
}

func (e *Exporter) outputPath(conv *corpus.Conversation, format Format) (string, error) {
	ext := "md"
	switch format {
	case FormatHTML:
		ext = "html"
	case FormatJSON:
		ext = "json"
	}
	if e.overrideDir != "" {
		dir := e.overrideDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(e.cwd, dir)
		}
		return filepath.Join(dir, safeFileName(conv.ID)+"."+ext), nil
	}
	return filepath.Join(e.cwd, "docs", "claude-tools", safeFileName(conv.ID)+"."+ext), nil
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "conversation"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}

func safeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}
