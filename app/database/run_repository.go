package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type RunRepo struct {
	db DBTX
}

func NewRunRepository(db DBTX) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) SaveRun(ctx context.Context, run RunRecord) error {
	failures := run.Failures
	if failures == nil {
		failures = []RunFailure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("failed to encode run failures: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (
			id, sources, status, started_at, finished_at,
			pages_fetched, pages_failed, candidates, extraction_errors,
			validation_failures, warnings, duplicates_skipped,
			organizations_created, locations_created, events_inserted,
			persistence_errors, failures, abort_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, strings.Join(run.Sources, ","), run.Status, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.PagesFetched, run.PagesFailed, run.Candidates, run.ExtractionErrors,
		run.ValidationFailures, run.Warnings, run.DuplicatesSkipped,
		run.OrganizationsCreated, run.LocationsCreated, run.EventsInserted,
		run.PersistenceErrors, string(failuresJSON), nullString(run.AbortReason),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const runColumns = `
	id, sources, status, started_at, finished_at,
	pages_fetched, pages_failed, candidates, extraction_errors,
	validation_failures, warnings, duplicates_skipped,
	organizations_created, locations_created, events_inserted,
	persistence_errors, failures, abort_reason`

// ListRuns returns the most recent runs first.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns nil when no run has that id.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scrape_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run          RunRecord
		sources      string
		failuresJSON string
		abortReason  sql.NullString
	)
	err := row.Scan(
		&run.ID, &sources, &run.Status, &run.StartedAt, &run.FinishedAt,
		&run.PagesFetched, &run.PagesFailed, &run.Candidates, &run.ExtractionErrors,
		&run.ValidationFailures, &run.Warnings, &run.DuplicatesSkipped,
		&run.OrganizationsCreated, &run.LocationsCreated, &run.EventsInserted,
		&run.PersistenceErrors, &failuresJSON, &abortReason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if sources != "" {
		run.Sources = strings.Split(sources, ",")
	}
	run.AbortReason = abortReason.String
	if err := json.Unmarshal([]byte(failuresJSON), &run.Failures); err != nil {
		return nil, fmt.Errorf("failed to decode run failures: %w", err)
	}
	return &run, nil
}
