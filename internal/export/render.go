// Package export renders the core's SearchResult/Artifact/Bundles results
// to Markdown, HTML, and JSON. It depends on the core's public types but
// the core never depends on it, per SPEC_FULL.md §1's scope boundary:
// export is rendering *policy*, not query/timeline/analytics logic.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/heffrey78/claude-tools/internal/analytics"
	"github.com/heffrey78/claude-tools/internal/corpus"
	"github.com/heffrey78/claude-tools/internal/highlight"
	"github.com/heffrey78/claude-tools/internal/query"
	"github.com/heffrey78/claude-tools/internal/timeline"
)

// Format names a rendering target for the export subcommand.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// markdownToHTML converts md to sanitized HTML via goldmark + bluemonday,
// the pairing SPEC_FULL.md's ambient stack names for every HTML render.
func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("export: convert markdown: %w", err)
	}
	policy := bluemonday.UGCPolicy()
	return policy.Sanitize(buf.String()), nil
}

// RenderSearch renders a ranked search response in the requested format.
func RenderSearch(c *corpus.Corpus, results []query.SearchResult, summary query.Summary, format Format) (string, error) {
	md := searchMarkdown(c, results, summary)
	switch format {
	case FormatMarkdown, "":
		return md, nil
	case FormatHTML:
		return markdownToHTML(md)
	case FormatJSON:
		data, err := json.MarshalIndent(searchJSONView(c, results, summary), "", "  ")
		if err != nil {
			return "", fmt.Errorf("export: marshal search results: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("export: unknown format %q", format)
	}
}

func searchMarkdown(c *corpus.Corpus, results []query.SearchResult, summary query.Summary) string {
	var b strings.Builder
	b.WriteString("# Search Results\n\n")
	if summary.EmptyCorpus {
		b.WriteString("_The corpus is empty._\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d match(es) out of %d candidate(s), in %s.\n\n", summary.MatchedCount, summary.TotalCandidates, summary.Elapsed)

	for i, r := range results {
		conv := c.ByID(r.ConversationID)
		fmt.Fprintf(&b, "## %d. %s (score %.3f)\n\n", i+1, r.ConversationID, r.Score)
		if conv != nil {
			fmt.Fprintf(&b, "Project: `%s` · Messages: %d · Last active: %s\n\n",
				conv.Project, conv.TotalMessages(), conv.LastTS.Format(time.RFC3339))
			b.WriteString(highlightSnippets(conv, r))
		}
	}
	return b.String()
}

// highlightSnippets renders a short Markdown excerpt per matched block,
// bolding the byte ranges the core flagged in HighlightSpan via
// highlight.ApplySpans — the same span-application primitive the core
// produces spans for in the first place (spec.md §4.I).
func highlightSnippets(conv *corpus.Conversation, r query.SearchResult) string {
	if len(r.Highlights) == 0 {
		return ""
	}

	msgIdxs := make([]int, 0, len(r.Highlights))
	for idx := range r.Highlights {
		msgIdxs = append(msgIdxs, idx)
	}
	sort.Ints(msgIdxs)

	bold := func(s string) string { return "**" + s + "**" }

	var b strings.Builder
	for _, msgIdx := range msgIdxs {
		if msgIdx < 0 || msgIdx >= len(conv.Messages) {
			continue
		}
		msg := conv.Messages[msgIdx]
		spans := r.Highlights[msgIdx]
		sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

		byBlock := make(map[int][]highlight.Span)
		var blockOrder []int
		for _, span := range spans {
			if span.BlockIndex < 0 || span.BlockIndex >= len(msg.Blocks) {
				continue
			}
			if _, seen := byBlock[span.BlockIndex]; !seen {
				blockOrder = append(blockOrder, span.BlockIndex)
			}
			byBlock[span.BlockIndex] = append(byBlock[span.BlockIndex], span.Span)
		}

		for _, blockIdx := range blockOrder {
			text := blockSnippetText(msg.Blocks[blockIdx])
			marked := highlight.ApplySpans(text, byBlock[blockIdx], bold)
			fmt.Fprintf(&b, "> %s\n\n", strings.TrimSpace(marked))
		}
	}
	return b.String()
}

func blockSnippetText(b corpus.Block) string {
	switch b.Kind {
	case corpus.BlockToolResp:
		return b.ToolName + " " + b.Text
	case corpus.BlockToolUse:
		return b.ToolName
	default:
		return b.Text
	}
}

type searchResultView struct {
	ConversationID string `json:"conversation_id"`
	Project        string `json:"project,omitempty"`
	Score          float64 `json:"score"`
	MessageCount   int     `json:"message_count,omitempty"`
	LastActive     string  `json:"last_active,omitempty"`
}

type searchJSON struct {
	EmptyCorpus     bool               `json:"empty_corpus"`
	TotalCandidates int                `json:"total_candidates"`
	MatchedCount    int                `json:"matched_count"`
	ElapsedMS       float64            `json:"elapsed_ms"`
	Results         []searchResultView `json:"results"`
}

func searchJSONView(c *corpus.Corpus, results []query.SearchResult, summary query.Summary) searchJSON {
	out := searchJSON{
		EmptyCorpus:     summary.EmptyCorpus,
		TotalCandidates: summary.TotalCandidates,
		MatchedCount:    summary.MatchedCount,
		ElapsedMS:       float64(summary.Elapsed.Microseconds()) / 1000,
	}
	for _, r := range results {
		view := searchResultView{ConversationID: r.ConversationID, Score: r.Score}
		if conv := c.ByID(r.ConversationID); conv != nil {
			view.Project = conv.Project
			view.MessageCount = conv.TotalMessages()
			if conv.HasTime {
				view.LastActive = conv.LastTS.Format(time.RFC3339)
			}
		}
		out.Results = append(out.Results, view)
	}
	return out
}

// RenderTimeline renders a Timeline Artifact in the requested format.
func RenderTimeline(art *timeline.Artifact, format Format) (string, error) {
	md := timelineMarkdown(art)
	switch format {
	case FormatMarkdown, "":
		return md, nil
	case FormatHTML:
		return markdownToHTML(md)
	case FormatJSON:
		data, err := json.MarshalIndent(art, "", "  ")
		if err != nil {
			return "", fmt.Errorf("export: marshal timeline artifact: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("export: unknown format %q", format)
	}
}

func timelineMarkdown(art *timeline.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Timeline (span %s, bin %s)\n\n", art.Span, art.BinSize)

	b.WriteString("## Project ranking\n\n")
	for i, proj := range art.ProjectRanking {
		trend := trendArrow(art.Trend[proj])
		total := 0
		for _, v := range art.ProjectBins[proj] {
			total += v
		}
		fmt.Fprintf(&b, "%d. **%s** — %d messages %s\n", i+1, proj, total, trend)
	}

	if len(art.TopTools) > 0 {
		b.WriteString("\n## Top tools\n\n")
		for _, tool := range art.TopTools {
			fmt.Fprintf(&b, "- `%s` — %d use(s)\n", tool, art.ToolCounts[tool])
		}
	}
	return b.String()
}

func trendArrow(t int) string {
	switch {
	case t > 0:
		return "↑"
	case t < 0:
		return "↓"
	default:
		return "→"
	}
}

// RenderAnalytics renders an Analytics Bundles result in the requested format.
func RenderAnalytics(b *analytics.Bundles, format Format) (string, error) {
	md := analyticsMarkdown(b)
	switch format {
	case FormatMarkdown, "":
		return md, nil
	case FormatHTML:
		return markdownToHTML(md)
	case FormatJSON:
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return "", fmt.Errorf("export: marshal analytics bundles: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("export: unknown format %q", format)
	}
}

func analyticsMarkdown(b *analytics.Bundles) string {
	var out strings.Builder
	out.WriteString("# Analytics\n\n")
	fmt.Fprintf(&out, "Conversations: %d · Messages: %d · Projects: %d\n\n",
		b.Basic.TotalConversations, b.Basic.TotalMessages, b.Basic.TotalProjects)

	fmt.Fprintf(&out, "Completion rate: %.1f%% · Avg duration: %.0fs · Avg messages/conversation: %.1f\n\n",
		b.Quality.CompletionRate*100, b.Quality.AvgDurationSeconds, b.Quality.AvgMessagesPerConv)

	out.WriteString("## Model usage\n\n")
	models := make([]string, 0, len(b.Models.ConversationsByModel))
	for m := range b.Models.ConversationsByModel {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		fmt.Fprintf(&out, "- `%s` — %d conversation(s), %d message(s)\n", m, b.Models.ConversationsByModel[m], b.Models.MessagesByModel[m])
	}

	out.WriteString("\n## Tool usage\n\n")
	tools := make([]string, 0, len(b.Tools.CountByTool))
	for t := range b.Tools.CountByTool {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return b.Tools.CountByTool[tools[i]] > b.Tools.CountByTool[tools[j]] })
	for _, t := range tools {
		fmt.Fprintf(&out, "- `%s` — %d use(s)\n", t, b.Tools.CountByTool[t])
	}
	return out.String()
}
