package database

import (
	"context"
)

type OrganizationRepository interface {
	GetOrganizationByName(ctx context.Context, name string) (*Organization, error)
	CreateOrganization(ctx context.Context, name string) (int64, error)
}

type LocationRepository interface {
	GetLocation(ctx context.Context, buildingName, roomNumber string) (*Location, error)
	CreateLocation(ctx context.Context, loc Location) (int64, error)
}

type EventRepository interface {
	ExistsByTitleKey(ctx context.Context, titleKey, date string) (bool, error)
	InsertEvent(ctx context.Context, ev NewEvent) (int64, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	GetEventCount(ctx context.Context) (int, error)
}

type RunRepository interface {
	SaveRun(ctx context.Context, run RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetRun(ctx context.Context, id string) (*RunRecord, error)
}

// Repositories groups the repositories that share one connection or
// transaction.
type Repositories struct {
	Organizations OrganizationRepository
	Locations     LocationRepository
	Events        EventRepository
}
