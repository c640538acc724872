package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type OrganizationRepo struct {
	db DBTX
}

func NewOrganizationRepository(db DBTX) *OrganizationRepo {
	return &OrganizationRepo{db: db}
}

// GetOrganizationByName returns nil when no organization has that exact name.
func (r *OrganizationRepo) GetOrganizationByName(ctx context.Context, name string) (*Organization, error) {
	var org Organization
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at
		FROM organizations
		WHERE name = ?
	`, name).Scan(&org.ID, &org.Name, &org.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

func (r *OrganizationRepo) CreateOrganization(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO organizations (name) VALUES (?)`, name)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("organization %q: %w", name, ErrConflict)
		}
		return 0, fmt.Errorf("failed to create organization: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read organization id: %w", err)
	}
	return id, nil
}
