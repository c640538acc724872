package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/event"
)

// Resolution holds the entity IDs an event points at. A nil ID means the
// event has no such entity.
type Resolution struct {
	OrganizationID      *int64
	LocationID          *int64
	OrganizationCreated bool
	LocationCreated     bool
}

// Resolver finds or creates the Organization and Location an event refers
// to. Creation that loses a race to a concurrent writer falls back to the
// row the winner created.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

func (r *Resolver) Resolve(ctx context.Context, repos database.Repositories, ev event.ValidatedEvent) (Resolution, error) {
	var res Resolution

	if ev.OrganizationName != "" {
		id, created, err := resolveOrganization(ctx, repos.Organizations, ev.OrganizationName)
		if err != nil {
			return Resolution{}, err
		}
		res.OrganizationID = &id
		res.OrganizationCreated = created
	}

	if ev.Location != nil {
		id, created, err := resolveLocation(ctx, repos.Locations, ev.Location)
		if err != nil {
			return Resolution{}, err
		}
		res.LocationID = &id
		res.LocationCreated = created
	}

	return res, nil
}

func resolveOrganization(ctx context.Context, repo database.OrganizationRepository, name string) (int64, bool, error) {
	org, err := repo.GetOrganizationByName(ctx, name)
	if err != nil {
		return 0, false, err
	}
	if org != nil {
		return org.ID, false, nil
	}

	id, err := repo.CreateOrganization(ctx, name)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, database.ErrConflict) {
		return 0, false, err
	}

	org, err = repo.GetOrganizationByName(ctx, name)
	if err != nil {
		return 0, false, err
	}
	if org == nil {
		return 0, false, fmt.Errorf("organization %q conflicted on insert but cannot be found", name)
	}
	return org.ID, false, nil
}

func resolveLocation(ctx context.Context, repo database.LocationRepository, loc *event.LocationDescriptor) (int64, bool, error) {
	existing, err := repo.GetLocation(ctx, loc.BuildingName, loc.RoomNumber)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	id, err := repo.CreateLocation(ctx, database.Location{
		BuildingName: loc.BuildingName,
		RoomNumber:   loc.RoomNumber,
		Address:      loc.Address,
		Latitude:     loc.Latitude,
		Longitude:    loc.Longitude,
	})
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, database.ErrConflict) {
		return 0, false, err
	}

	existing, err = repo.GetLocation(ctx, loc.BuildingName, loc.RoomNumber)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, fmt.Errorf("location %q room %q conflicted on insert but cannot be found", loc.BuildingName, loc.RoomNumber)
	}
	return existing.ID, false, nil
}
