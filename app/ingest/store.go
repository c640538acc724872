package ingest

import (
	"context"

	"github.com/ducksgather/harvester/app/database"
)

// Store is the slice of the database the pipeline needs.
type Store interface {
	Ping(ctx context.Context) error
	InTx(ctx context.Context, fn func(database.Repositories) error) error
	Events() database.EventRepository
}
