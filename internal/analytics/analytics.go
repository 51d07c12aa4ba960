// Package analytics computes the six aggregate bundles spec.md §4.J names
// over a loaded Corpus: basic counts, temporal histograms, model usage,
// tool usage, project breakdown, and quality metrics. Supplements the
// distilled spec.md with the original Rust implementation's analytics
// module, which this spec otherwise drops from its core scope.
package analytics

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/heffrey78/claude-tools/internal/corpus"
)

// BasicCounts is the first bundle: corpus-wide totals.
type BasicCounts struct {
	TotalConversations int
	TotalMessages      int
	TotalProjects       int
}

// Temporal is the second bundle: activity histograms over the corpus span.
type Temporal struct {
	// HourOfDay[h] counts messages whose timestamp hour (UTC) is h, for
	// h in [0,24).
	HourOfDay [24]int
	// Weekday[d] counts messages by time.Weekday, for d in [0,7).
	Weekday [7]int
	// DailyCounts maps a YYYY-MM-DD key to the message count that day.
	DailyCounts map[string]int
}

// ModelUsage is the third bundle: per-model conversation and message counts.
type ModelUsage struct {
	ConversationsByModel map[string]int
	MessagesByModel      map[string]int
}

// ToolUsage is the fourth bundle: per-tool and per-(tool,role) counts.
type ToolUsage struct {
	CountByTool       map[string]int
	CountByToolAndRole map[string]map[corpus.Role]int
}

// ProjectBreakdown is the fifth bundle: per-project activity.
type ProjectBreakdown struct {
	MessagesByProject map[string]int
	ToolUsesByProject map[string]int
}

// Quality is the sixth bundle: aggregate health signals.
type Quality struct {
	AvgDurationSeconds    float64
	MedianDurationSeconds float64
	AvgMessagesPerConv    float64
	CompletionRate        float64 // fraction whose last message role is assistant
}

// Bundles is the full analytics result, memoised by the caller on CorpusHash.
type Bundles struct {
	CorpusHash uint64
	Basic      BasicCounts
	Temporal   Temporal
	Models     ModelUsage
	Tools      ToolUsage
	Projects   ProjectBreakdown
	Quality    Quality
}

// partial is one worker's contribution, merged by Compute's reduce step.
type partial struct {
	messages           int
	hourOfDay          [24]int
	weekday            [7]int
	daily              map[string]int
	convsByModel       map[string]int
	msgsByModel        map[string]int
	toolCounts         map[string]int
	toolRoleCounts     map[string]map[corpus.Role]int
	msgsByProject      map[string]int
	toolUsesByProject  map[string]int
	durationsSeconds   []float64
	lastIsAssistant    int
}

func newPartial() *partial {
	return &partial{
		daily:             make(map[string]int),
		convsByModel:      make(map[string]int),
		msgsByModel:       make(map[string]int),
		toolCounts:        make(map[string]int),
		toolRoleCounts:    make(map[string]map[corpus.Role]int),
		msgsByProject:     make(map[string]int),
		toolUsesByProject: make(map[string]int),
	}
}

// Compute runs a single parallel pass over c, one worker per conversation
// bounded by GOMAXPROCS, with a final sequential reduce, per spec.md §5.
func Compute(ctx context.Context, c *corpus.Corpus) (*Bundles, error) {
	n := len(c.Conversations)
	projectSet := make(map[string]struct{})

	if n == 0 {
		return &Bundles{CorpusHash: c.Hash, Temporal: Temporal{DailyCounts: map[string]int{}}}, nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	partials := make([]*partial, n)
	var mu sync.Mutex

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
			partials[i] = analyzeConversation(conv)
			mu.Lock()
			projectSet[conv.Project] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := newPartial()
	for _, p := range partials {
		mergeInto(merged, p)
	}

	b := &Bundles{CorpusHash: c.Hash}
	b.Basic = BasicCounts{
		TotalConversations: n,
		TotalMessages:      merged.messages,
		TotalProjects:      len(projectSet),
	}
	b.Temporal = Temporal{HourOfDay: merged.hourOfDay, Weekday: merged.weekday, DailyCounts: merged.daily}
	b.Models = ModelUsage{ConversationsByModel: merged.convsByModel, MessagesByModel: merged.msgsByModel}
	b.Tools = ToolUsage{CountByTool: merged.toolCounts, CountByToolAndRole: merged.toolRoleCounts}
	b.Projects = ProjectBreakdown{MessagesByProject: merged.msgsByProject, ToolUsesByProject: merged.toolUsesByProject}
	b.Quality = computeQuality(merged, n)

	return b, nil
}

func analyzeConversation(conv *corpus.Conversation) *partial {
	p := newPartial()
	p.messages = conv.TotalMessages()

	for model := range conv.Models {
		p.convsByModel[model]++
	}
	for _, msg := range conv.Messages {
		if msg.HasTime {
			p.hourOfDay[msg.Timestamp.Hour()]++
			p.weekday[int(msg.Timestamp.Weekday())]++
			p.daily[msg.Timestamp.Format("2006-01-02")]++
		}
		if msg.Model != "" {
			p.msgsByModel[msg.Model]++
		}
		for _, b := range msg.Blocks {
			if b.Kind == corpus.BlockToolUse && b.ToolName != "" {
				p.toolCounts[b.ToolName]++
				if p.toolRoleCounts[b.ToolName] == nil {
					p.toolRoleCounts[b.ToolName] = make(map[corpus.Role]int)
				}
				p.toolRoleCounts[b.ToolName][msg.Role]++
				p.toolUsesByProject[conv.Project]++
			}
		}
	}
	p.msgsByProject[conv.Project] = conv.TotalMessages()

	if conv.HasTime {
		p.durationsSeconds = append(p.durationsSeconds, conv.Duration.Seconds())
	}
	if lastMessageIsAssistant(conv) {
		p.lastIsAssistant = 1
	}
	return p
}

func lastMessageIsAssistant(conv *corpus.Conversation) bool {
	if len(conv.Messages) == 0 {
		return false
	}
	return conv.Messages[len(conv.Messages)-1].Role == corpus.RoleAssist
}

func mergeInto(dst, src *partial) {
	dst.messages += src.messages
	for i := 0; i < 24; i++ {
		dst.hourOfDay[i] += src.hourOfDay[i]
	}
	for i := 0; i < 7; i++ {
		dst.weekday[i] += src.weekday[i]
	}
	for k, v := range src.daily {
		dst.daily[k] += v
	}
	for k, v := range src.convsByModel {
		dst.convsByModel[k] += v
	}
	for k, v := range src.msgsByModel {
		dst.msgsByModel[k] += v
	}
	for k, v := range src.toolCounts {
		dst.toolCounts[k] += v
	}
	for tool, roles := range src.toolRoleCounts {
		if dst.toolRoleCounts[tool] == nil {
			dst.toolRoleCounts[tool] = make(map[corpus.Role]int)
		}
		for role, v := range roles {
			dst.toolRoleCounts[tool][role] += v
		}
	}
	for k, v := range src.msgsByProject {
		dst.msgsByProject[k] += v
	}
	for k, v := range src.toolUsesByProject {
		dst.toolUsesByProject[k] += v
	}
	dst.durationsSeconds = append(dst.durationsSeconds, src.durationsSeconds...)
	dst.lastIsAssistant += src.lastIsAssistant
}

func computeQuality(merged *partial, totalConversations int) Quality {
	q := Quality{}
	if totalConversations > 0 {
		q.AvgMessagesPerConv = float64(merged.messages) / float64(totalConversations)
		q.CompletionRate = float64(merged.lastIsAssistant) / float64(totalConversations)
	}
	if len(merged.durationsSeconds) > 0 {
		var sum float64
		for _, d := range merged.durationsSeconds {
			sum += d
		}
		q.AvgDurationSeconds = sum / float64(len(merged.durationsSeconds))
		q.MedianDurationSeconds = median(merged.durationsSeconds)
	}
	return q
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
