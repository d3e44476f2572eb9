package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/vsm/pkg/schema"
)

// JournalSummary aggregates the journal of one document.
type JournalSummary struct {
	Key          string         `json:"key"`
	Entries      int64          `json:"entries"`
	LastRevision int64          `json:"last_revision"`
	Actions      map[string]int `json:"actions"`
	FirstAt      *time.Time     `json:"first_at,omitempty"`
	LastAt       *time.Time     `json:"last_at,omitempty"`
}

// SummarizeJournal replays the journal of key and counts entries per action.
// Returns an error if sequence gaps are detected.
func SummarizeJournal(ctx context.Context, s Store, key string) (*JournalSummary, error) {
	entries, err := s.ListJournal(ctx, key, JournalFilter{})
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}

	sum := &JournalSummary{Key: key, Actions: make(map[string]int)}
	for i, e := range entries {
		if expected := int64(i + 1); e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in journal %s: expected %d, got %d", key, expected, e.Sequence)
		}
		sum.Entries++
		sum.Actions[e.Action]++
		if e.Revision > sum.LastRevision {
			sum.LastRevision = e.Revision
		}
		ts := e.Timestamp
		if sum.FirstAt == nil {
			sum.FirstAt = &ts
		}
		sum.LastAt = &ts
	}
	return sum, nil
}
