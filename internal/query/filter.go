package query

import (
	"path/filepath"
	"time"

	"github.com/heffrey78/claude-tools/internal/corpus"
)

// FilterSet is the optional structured predicate bundle applied before
// scoring, per spec.md §3. A nil or zero-valued field means "unconstrained".
type FilterSet struct {
	Roles         []corpus.Role
	Models        []string
	ToolNames     []string
	ProjectGlob   string
	AfterTS       time.Time
	HasAfter      bool
	BeforeTS      time.Time
	HasBefore     bool
	MinMessages   int
	MaxMessages   int
	HasMsgRange   bool
	MinDuration   time.Duration
	MaxDuration   time.Duration
	HasDurRange   bool
}

// Matches reports whether conv passes every constraint in f, per the
// conjunction defined in spec.md §4.G. Filters never touch the index.
func (f *FilterSet) Matches(conv *corpus.Conversation) (bool, error) {
	if f == nil {
		return true, nil
	}
	if len(f.Roles) > 0 && !hasAnyRole(conv, f.Roles) {
		return false, nil
	}
	if len(f.Models) > 0 && !hasAnyModel(conv, f.Models) {
		return false, nil
	}
	if len(f.ToolNames) > 0 && !hasAnyTool(conv, f.ToolNames) {
		return false, nil
	}
	if f.ProjectGlob != "" {
		ok, err := filepath.Match(f.ProjectGlob, conv.Project)
		if err != nil {
			return false, &QueryError{Kind: KindInvalidFilter, Pos: -1, Detail: err.Error()}
		}
		if !ok {
			return false, nil
		}
	}
	if f.HasAfter && conv.FirstTS.Before(f.AfterTS) {
		return false, nil
	}
	if f.HasBefore && !conv.LastTS.Before(f.BeforeTS) {
		return false, nil
	}
	if f.HasMsgRange {
		n := conv.TotalMessages()
		if n < f.MinMessages || n > f.MaxMessages {
			return false, nil
		}
	}
	if f.HasDurRange {
		if conv.Duration < f.MinDuration || conv.Duration > f.MaxDuration {
			return false, nil
		}
	}
	return true, nil
}

func hasAnyRole(conv *corpus.Conversation, roles []corpus.Role) bool {
	for _, r := range roles {
		if conv.MessageCountByRole[r] > 0 {
			return true
		}
	}
	return false
}

func hasAnyModel(conv *corpus.Conversation, models []string) bool {
	for _, m := range models {
		if conv.HasModel(m) {
			return true
		}
	}
	return false
}

func hasAnyTool(conv *corpus.Conversation, tools []string) bool {
	for _, t := range tools {
		if conv.HasTool(t) {
			return true
		}
	}
	return false
}
