package query

import (
	"testing"
	"time"
)

func TestBoundedLevenshteinExact(t *testing.T) {
	if d := boundedLevenshtein("cat", "cat", 2); d != 0 {
		t.Errorf("distance = %d, want 0", d)
	}
}

func TestBoundedLevenshteinOneEdit(t *testing.T) {
	if d := boundedLevenshtein("cat", "cot", 2); d != 1 {
		t.Errorf("distance = %d, want 1", d)
	}
}

func TestBoundedLevenshteinExceedsBudget(t *testing.T) {
	if d := boundedLevenshtein("cat", "dog", 1); d <= 1 {
		t.Errorf("distance = %d, want > 1", d)
	}
}

func TestIdfDecreasesWithDocFreq(t *testing.T) {
	rare := idfOf(1, 100)
	common := idfOf(50, 100)
	if rare <= common {
		t.Errorf("expected rarer terms to have higher idf: rare=%v common=%v", rare, common)
	}
}

func TestLengthNormPenalizesShortConversations(t *testing.T) {
	if lengthNorm(2) != shortConversationPenalty {
		t.Errorf("expected penalty for short conversations")
	}
	if lengthNorm(5) != 1 {
		t.Errorf("expected no penalty for longer conversations")
	}
}

func TestRecencyBoostDecaysWithAge(t *testing.T) {
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	fresh := recencyBoost(now, now)
	old := recencyBoost(now.AddDate(0, -6, 0), now)
	if fresh <= old {
		t.Errorf("expected a fresher conversation to score higher: fresh=%v old=%v", fresh, old)
	}
	if fresh != 2 {
		t.Errorf("expected age=0 to double the boost, got %v", fresh)
	}
	if old <= 1 {
		t.Errorf("expected the boost to decay toward 1, got %v", old)
	}
}
