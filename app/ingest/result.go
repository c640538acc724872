package ingest

import (
	"time"

	"github.com/ducksgather/harvester/app/database"
)

const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// Failure stages.
const (
	StageFetch    = "fetch"
	StageExtract  = "extract"
	StageValidate = "validate"
	StagePersist  = "persist"
	StageSource   = "source"
)

const maxRecordedFailures = 500

type Failure struct {
	Stage   string   `json:"stage"`
	Source  string   `json:"source"`
	URL     string   `json:"url,omitempty"`
	Title   string   `json:"title,omitempty"`
	Reasons []string `json:"reasons"`
}

// RunResult summarises one ingestion run.
type RunResult struct {
	ID                   string    `json:"id"`
	Sources              []string  `json:"sources"`
	Status               string    `json:"status"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	PagesFetched         int       `json:"pages_fetched"`
	PagesFailed          int       `json:"pages_failed"`
	Candidates           int       `json:"candidates"`
	ExtractionErrors     int       `json:"extraction_errors"`
	ValidationFailures   int       `json:"validation_failures"`
	Warnings             int       `json:"warnings"`
	DuplicatesSkipped    int       `json:"duplicates_skipped"`
	OrganizationsCreated int       `json:"organizations_created"`
	LocationsCreated     int       `json:"locations_created"`
	EventsInserted       int       `json:"events_inserted"`
	PersistenceErrors    int       `json:"persistence_errors"`
	Failures             []Failure `json:"failures"`
	FailuresTruncated    bool      `json:"failures_truncated,omitempty"`
	AbortReason          string    `json:"abort_reason,omitempty"`
}

func (r *RunResult) Aborted() bool {
	return r.Status == StatusAborted
}

func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunResult) addFailure(f Failure) {
	if len(r.Failures) >= maxRecordedFailures {
		r.FailuresTruncated = true
		return
	}
	r.Failures = append(r.Failures, f)
}

// Record converts the result to its stored form.
func (r *RunResult) Record() database.RunRecord {
	failures := make([]database.RunFailure, len(r.Failures))
	for i, f := range r.Failures {
		failures[i] = database.RunFailure(f)
	}

	return database.RunRecord{
		ID:                   r.ID,
		Sources:              r.Sources,
		Status:               r.Status,
		StartedAt:            r.StartedAt,
		FinishedAt:           r.FinishedAt,
		PagesFetched:         r.PagesFetched,
		PagesFailed:          r.PagesFailed,
		Candidates:           r.Candidates,
		ExtractionErrors:     r.ExtractionErrors,
		ValidationFailures:   r.ValidationFailures,
		Warnings:             r.Warnings,
		DuplicatesSkipped:    r.DuplicatesSkipped,
		OrganizationsCreated: r.OrganizationsCreated,
		LocationsCreated:     r.LocationsCreated,
		EventsInserted:       r.EventsInserted,
		PersistenceErrors:    r.PersistenceErrors,
		Failures:             failures,
		AbortReason:          r.AbortReason,
	}
}
