package ingest

import (
	"context"
	"fmt"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/event"
)

// RunState is the memory of one run. Events persisted earlier in the run
// are recognised without asking the store.
type RunState struct {
	seen map[string]struct{}
}

func NewRunState() *RunState {
	return &RunState{seen: make(map[string]struct{})}
}

func (s *RunState) Seen(key string) bool {
	_, ok := s.seen[key]
	return ok
}

func (s *RunState) Mark(key string) {
	s.seen[key] = struct{}{}
}

func (s *RunState) Len() int {
	return len(s.seen)
}

// DedupKey identifies an event for duplicate detection.
func DedupKey(ev event.ValidatedEvent) string {
	return event.TitleKey(ev.Title) + "|" + ev.Date.String()
}

type Deduplicator struct {
	events database.EventRepository
}

func NewDeduplicator(events database.EventRepository) *Deduplicator {
	return &Deduplicator{events: events}
}

// IsDuplicate reports whether ev matches an event already persisted, in
// this run or before it.
func (d *Deduplicator) IsDuplicate(ctx context.Context, run *RunState, ev event.ValidatedEvent) (bool, error) {
	if run != nil && run.Seen(DedupKey(ev)) {
		return true, nil
	}

	exists, err := d.events.ExistsByTitleKey(ctx, event.TitleKey(ev.Title), ev.Date.String())
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	return exists, nil
}
