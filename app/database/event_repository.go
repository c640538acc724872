package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type EventRepo struct {
	db DBTX
}

func NewEventRepository(db DBTX) *EventRepo {
	return &EventRepo{db: db}
}

// ExistsByTitleKey reports whether any event, scraped or created by hand,
// with the same title key already exists on date.
func (r *EventRepo) ExistsByTitleKey(ctx context.Context, titleKey, date string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM events
			WHERE title_key = ? AND date = ?
		)
	`, titleKey, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate event: %w", err)
	}
	return exists, nil
}

// InsertEvent stores a scraped event with no creator.
func (r *EventRepo) InsertEvent(ctx context.Context, ev NewEvent) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events (
			title, title_key, description, date, start_time, end_time, category,
			image_url, external_url, organization_id, location_id, created_by,
			is_scraped, source_name, source_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 1, ?, ?)
	`,
		ev.Title, ev.TitleKey, nullString(ev.Description), ev.Date, ev.StartTime, ev.EndTime, ev.Category,
		nullString(ev.ImageURL), nullString(ev.ExternalURL), ev.OrganizationID, ev.LocationID,
		nullString(ev.SourceName), nullString(ev.SourceURL),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("event %q on %s: %w", ev.Title, ev.Date, ErrConflict)
		}
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}
	return id, nil
}

// ListEvents returns events ordered by date and start time.
func (r *EventRepo) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Category != "" {
		conditions = append(conditions, "e.category = ?")
		args = append(args, filter.Category)
	}
	if filter.From != "" {
		conditions = append(conditions, "e.date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conditions = append(conditions, "e.date <= ?")
		args = append(args, filter.To)
	}

	query := `
		SELECT e.id, e.title, e.description, e.date, e.start_time, e.end_time, e.category,
			e.image_url, e.external_url, e.organization_id, e.location_id, e.created_by,
			e.is_scraped, e.source_name, e.source_url, e.created_at, e.updated_at,
			o.name, l.building_name, l.room_number
		FROM events e
		LEFT JOIN organizations o ON o.id = e.organization_id
		LEFT JOIN locations l ON l.id = e.location_id`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY e.date, e.start_time, e.id"
	if filter.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev                                    Event
			description, imageURL, externalURL    sql.NullString
			sourceName, sourceURL                 sql.NullString
			orgName, buildingName, roomNumber     sql.NullString
			organizationID, locationID, createdBy sql.NullInt64
		)
		err := rows.Scan(
			&ev.ID, &ev.Title, &description, &ev.Date, &ev.StartTime, &ev.EndTime, &ev.Category,
			&imageURL, &externalURL, &organizationID, &locationID, &createdBy,
			&ev.IsScraped, &sourceName, &sourceURL, &ev.CreatedAt, &ev.UpdatedAt,
			&orgName, &buildingName, &roomNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev.Description = description.String
		ev.ImageURL = imageURL.String
		ev.ExternalURL = externalURL.String
		ev.SourceName = sourceName.String
		ev.SourceURL = sourceURL.String
		ev.OrganizationName = orgName.String
		ev.BuildingName = buildingName.String
		ev.RoomNumber = roomNumber.String
		ev.OrganizationID = int64Ptr(organizationID)
		ev.LocationID = int64Ptr(locationID)
		ev.CreatedBy = int64Ptr(createdBy)

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

func (r *EventRepo) GetEventCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
