package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/event"
)

// ErrDuplicate means the store already holds a scraped event with the same
// title and date.
var ErrDuplicate = errors.New("duplicate event")

// PersistenceError is a store failure while saving one event. Nothing from
// that event was written.
type PersistenceError struct {
	Title string
	Date  string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist event %q on %s: %v", e.Title, e.Date, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type Persisted struct {
	EventID int64
	Resolution
}

type Persister struct {
	store    Store
	resolver *Resolver
}

func NewPersister(store Store, resolver *Resolver) *Persister {
	if resolver == nil {
		resolver = NewResolver()
	}
	return &Persister{store: store, resolver: resolver}
}

// Persist resolves ev's entities and inserts it in a single transaction.
func (p *Persister) Persist(ctx context.Context, ev event.ValidatedEvent) (Persisted, error) {
	var out Persisted

	err := p.store.InTx(ctx, func(repos database.Repositories) error {
		res, err := p.resolver.Resolve(ctx, repos, ev)
		if err != nil {
			return err
		}

		id, err := repos.Events.InsertEvent(ctx, newEventRow(ev, res))
		if errors.Is(err, database.ErrConflict) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}

		out = Persisted{EventID: id, Resolution: res}
		return nil
	})

	if errors.Is(err, ErrDuplicate) {
		return Persisted{}, ErrDuplicate
	}
	if err != nil {
		return Persisted{}, &PersistenceError{Title: ev.Title, Date: ev.Date.String(), Err: err}
	}
	return out, nil
}

func newEventRow(ev event.ValidatedEvent, res Resolution) database.NewEvent {
	return database.NewEvent{
		Title:          ev.Title,
		TitleKey:       event.TitleKey(ev.Title),
		Description:    ev.Description,
		Date:           ev.Date.String(),
		StartTime:      ev.StartTime.String(),
		EndTime:        ev.EndTime.String(),
		Category:       ev.Category,
		ImageURL:       ev.ImageURL,
		ExternalURL:    ev.ExternalURL,
		OrganizationID: res.OrganizationID,
		LocationID:     res.LocationID,
		SourceName:     ev.SourceName,
		SourceURL:      ev.PageURL,
	}
}
