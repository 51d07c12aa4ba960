// Package timeline builds per-project activity bins over a time window and
// derives project ranking, tool tallies, and trend indicators, per spec.md
// §4.K. internal/timeline/cache.go adds the in-memory LRU artifact cache
// from §4.L.
package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
	"github.com/heffrey78/claude-tools/internal/dateparse"
)

// Period names the four fixed (span, bin size) pairs spec.md §6 defines.
type Period string

const (
	PeriodLast24h   Period = "last-24h"
	PeriodLast48h   Period = "last-48h"
	PeriodLastWeek  Period = "last-week"
	PeriodLastMonth Period = "last-month"
)

// SpanAndBin resolves a Period to its fixed (span, bin size) pair.
func (p Period) SpanAndBin() (time.Duration, time.Duration, error) {
	switch p {
	case PeriodLast24h:
		return 24 * time.Hour, time.Hour, nil
	case PeriodLast48h:
		return 48 * time.Hour, 2 * time.Hour, nil
	case PeriodLastWeek:
		return 7 * 24 * time.Hour, 6 * time.Hour, nil
	case PeriodLastMonth:
		return dateparse.MonthDays * 24 * time.Hour, 24 * time.Hour, nil
	default:
		return 0, 0, fmt.Errorf("timeline: invalid period %q", p)
	}
}

const topToolsLimit = 10

// Artifact is one built timeline: the unit the Timeline Cache stores and
// derives from.
type Artifact struct {
	CorpusHash uint64
	Now        time.Time
	Span       time.Duration
	BinSize    time.Duration
	NumBins    int

	// ProjectBins[project][i] is the message count in bin i (0 = oldest),
	// covering [Now-Span + i*BinSize, Now-Span + (i+1)*BinSize).
	ProjectBins map[string][]int

	// ToolBins[tool][i] is the tool-use count in bin i, kept alongside
	// ProjectBins so get_filtered can slice tool totals as precisely as
	// project totals instead of just replaying the cached aggregate.
	ToolBins map[string][]int

	ToolCounts    map[string]int
	ToolByProject map[string]map[string]int // only populated when Detailed, not preserved by derivation
	Detailed      bool

	ProjectRanking []string       // projects ordered by total activity desc
	Trend          map[string]int // -1, 0, or 1 per project
	TopTools       []string
}

// Build scans c for Messages whose timestamp falls in [now-span, now) and
// bins them per project, per spec.md §4.K. Binning is half-open; a Message
// exactly on a bin boundary belongs to the later bin.
func Build(c *corpus.Corpus, period Period, now time.Time, detailed bool) (*Artifact, error) {
	span, bin, err := period.SpanAndBin()
	if err != nil {
		return nil, err
	}
	return build(c, c.Hash, span, bin, now, detailed)
}

func build(c *corpus.Corpus, corpusHash uint64, span, bin time.Duration, now time.Time, detailed bool) (*Artifact, error) {
	if bin <= 0 || span <= 0 {
		return nil, fmt.Errorf("timeline: span and bin size must be positive")
	}
	numBins := int(span / bin)
	windowStart := now.Add(-span)

	art := &Artifact{
		CorpusHash:  corpusHash,
		Now:         now,
		Span:        span,
		BinSize:     bin,
		NumBins:     numBins,
		ProjectBins: make(map[string][]int),
		ToolBins:    make(map[string][]int),
		ToolCounts:  make(map[string]int),
		Detailed:    detailed,
	}
	if detailed {
		art.ToolByProject = make(map[string]map[string]int)
	}

	for _, conv := range c.Conversations {
		if !conv.HasTime {
			continue
		}
		if !conv.FirstTS.Before(now) || conv.LastTS.Before(windowStart) {
			continue // [first_ts, last_ts] does not intersect [windowStart, now)
		}

		for _, msg := range conv.Messages {
			if !msg.HasTime {
				continue
			}
			if msg.Timestamp.Before(windowStart) || !msg.Timestamp.Before(now) {
				continue
			}
			idx := int(msg.Timestamp.Sub(windowStart) / bin)
			if idx >= numBins {
				idx = numBins - 1
			}
			if idx < 0 {
				continue
			}

			bins := art.ProjectBins[conv.Project]
			if bins == nil {
				bins = make([]int, numBins)
				art.ProjectBins[conv.Project] = bins
			}
			bins[idx]++

			for _, b := range msg.Blocks {
				if b.Kind != corpus.BlockToolUse || b.ToolName == "" {
					continue
				}
				art.ToolCounts[b.ToolName]++
				toolBins := art.ToolBins[b.ToolName]
				if toolBins == nil {
					toolBins = make([]int, numBins)
					art.ToolBins[b.ToolName] = toolBins
				}
				toolBins[idx]++
				if detailed {
					if art.ToolByProject[b.ToolName] == nil {
						art.ToolByProject[b.ToolName] = make(map[string]int)
					}
					art.ToolByProject[b.ToolName][conv.Project]++
				}
			}
		}
	}

	art.ProjectRanking = rankProjects(art.ProjectBins)
	art.Trend = computeTrend(art.ProjectBins)
	art.TopTools = topTools(art.ToolCounts, topToolsLimit)

	return art, nil
}

// rankProjects orders projects by total activity descending, tie-broken by
// the index of the most recent bin with any activity (higher index wins).
func rankProjects(projectBins map[string][]int) []string {
	projects := make([]string, 0, len(projectBins))
	for p := range projectBins {
		projects = append(projects, p)
	}

	total := func(bins []int) int {
		sum := 0
		for _, v := range bins {
			sum += v
		}
		return sum
	}
	mostRecentActive := func(bins []int) int {
		for i := len(bins) - 1; i >= 0; i-- {
			if bins[i] > 0 {
				return i
			}
		}
		return -1
	}

	sort.Slice(projects, func(i, j int) bool {
		bi, bj := projectBins[projects[i]], projectBins[projects[j]]
		ti, tj := total(bi), total(bj)
		if ti != tj {
			return ti > tj
		}
		ri, rj := mostRecentActive(bi), mostRecentActive(bj)
		if ri != rj {
			return ri > rj
		}
		return projects[i] < projects[j]
	})
	return projects
}

// computeTrend returns sign(secondHalf - firstHalf) message counts per
// project, per spec.md §4.K.
func computeTrend(projectBins map[string][]int) map[string]int {
	out := make(map[string]int, len(projectBins))
	for project, bins := range projectBins {
		mid := len(bins) / 2
		var first, second int
		for i, v := range bins {
			if i < mid {
				first += v
			} else {
				second += v
			}
		}
		switch {
		case second > first:
			out[project] = 1
		case second < first:
			out[project] = -1
		default:
			out[project] = 0
		}
	}
	return out
}

func topTools(counts map[string]int, limit int) []string {
	tools := make([]string, 0, len(counts))
	for t := range counts {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool {
		if counts[tools[i]] != counts[tools[j]] {
			return counts[tools[i]] > counts[tools[j]]
		}
		return tools[i] < tools[j]
	})
	if len(tools) > limit {
		tools = tools[:limit]
	}
	return tools
}
