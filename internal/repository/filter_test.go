package repository

import (
	"errors"
	"fmt"
	"testing"

	"mindscribe-go/internal/model"
)

func TestFilterMatch(t *testing.T) {
	entry := &model.JournalEntry{UserID: "u1", AnalysisPerformed: true, AnalysisAlert: true}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"owner in set", Filter{OwnerIDs: []string{"u0", "u1"}}, true},
		{"owner not in set", Filter{OwnerIDs: []string{"u2"}}, false},
		{"unanalyzed only", Filter{AnalysisPerformed: Bool(false)}, false},
		{"active alerts", Filter{AnalysisAlert: Bool(true), AlertResolved: Bool(false)}, true},
		{"no alert", Filter{AnalysisAlert: Bool(false)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(entry); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterValidate(t *testing.T) {
	ids := make([]string, MaxInFilter+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
	}
	if err := (Filter{OwnerIDs: ids}).Validate(); !errors.Is(err, ErrFilterTooBroad) {
		t.Errorf("expected ErrFilterTooBroad, got %v", err)
	}
	if err := (Filter{OwnerIDs: ids[:MaxInFilter]}).Validate(); err != nil {
		t.Errorf("expected %d owners to be accepted, got %v", MaxInFilter, err)
	}
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 65)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
	}
	chunks := ChunkIDs(ids, 0)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != MaxInFilter || len(chunks[2]) != 5 {
		t.Errorf("unexpected chunk sizes %d/%d", len(chunks[0]), len(chunks[2]))
	}
	if ChunkIDs(nil, 10) != nil {
		t.Error("expected no chunks for empty input")
	}
}
