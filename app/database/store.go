package database

import (
	"context"
	"fmt"
)

// Store hands out repositories bound either to the connection pool or to a
// single transaction.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Repos() Repositories {
	return reposFor(s.db)
}

func (s *Store) Events() EventRepository {
	return NewEventRepository(s.db)
}

func (s *Store) Runs() RunRepository {
	return NewRunRepository(s.db)
}

// InTx runs fn in one transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(reposFor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func reposFor(db DBTX) Repositories {
	return Repositories{
		Organizations: NewOrganizationRepository(db),
		Locations:     NewLocationRepository(db),
		Events:        NewEventRepository(db),
	}
}
