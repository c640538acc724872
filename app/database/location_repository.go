package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type LocationRepo struct {
	db DBTX
}

func NewLocationRepository(db DBTX) *LocationRepo {
	return &LocationRepo{db: db}
}

// GetLocation looks a location up by building and room. An absent room is
// the empty string. Returns nil when there is no match.
func (r *LocationRepo) GetLocation(ctx context.Context, buildingName, roomNumber string) (*Location, error) {
	var (
		loc     Location
		address sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, building_name, room_number, address, latitude, longitude, created_at
		FROM locations
		WHERE building_name = ? AND room_number = ?
	`, buildingName, roomNumber).Scan(&loc.ID, &loc.BuildingName, &loc.RoomNumber, &address, &loc.Latitude, &loc.Longitude, &loc.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	loc.Address = address.String
	return &loc, nil
}

func (r *LocationRepo) CreateLocation(ctx context.Context, loc Location) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO locations (building_name, room_number, address, latitude, longitude)
		VALUES (?, ?, ?, ?, ?)
	`, loc.BuildingName, loc.RoomNumber, nullString(loc.Address), loc.Latitude, loc.Longitude)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("location %q room %q: %w", loc.BuildingName, loc.RoomNumber, ErrConflict)
		}
		return 0, fmt.Errorf("failed to create location: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read location id: %w", err)
	}
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
