package api

import (
	"time"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/source"
	"github.com/ducksgather/harvester/app/tasks"
)

// RunFactory builds a crawl task for the named sources; no names means every
// enabled source.
type RunFactory func(sources []string) (tasks.TaskInterface, error)

type SourceCatalog interface {
	GetConfigs() []*source.Config
	GetConfigCount() int
}

var _ SourceCatalog = (*source.Catalog)(nil)

type Handler struct {
	eventRepo database.EventRepository
	runRepo   database.RunRepository
	catalog   SourceCatalog
	scheduler tasks.TaskSchedulerInterface
	newRun    RunFactory
}

type triggerRequest struct {
	Sources []string `json:"sources"`
}

type eventView struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Category     string `json:"category"`
	ImageURL     string `json:"image_url,omitempty"`
	ExternalURL  string `json:"external_url,omitempty"`
	Organization string `json:"organization,omitempty"`
	Building     string `json:"building,omitempty"`
	Room         string `json:"room,omitempty"`
	Source       string `json:"source,omitempty"`
	Scraped      bool   `json:"is_scraped"`
}

func newEventView(ev database.Event) eventView {
	return eventView{
		ID:           ev.ID,
		Title:        ev.Title,
		Description:  ev.Description,
		Date:         ev.Date,
		StartTime:    ev.StartTime,
		EndTime:      ev.EndTime,
		Category:     ev.Category,
		ImageURL:     ev.ImageURL,
		ExternalURL:  ev.ExternalURL,
		Organization: ev.OrganizationName,
		Building:     ev.BuildingName,
		Room:         ev.RoomNumber,
		Source:       ev.SourceName,
		Scraped:      ev.IsScraped,
	}
}

type runView struct {
	ID                   string                `json:"id"`
	Sources              []string              `json:"sources"`
	Status               string                `json:"status"`
	StartedAt            time.Time             `json:"started_at"`
	FinishedAt           time.Time             `json:"finished_at"`
	Duration             string                `json:"duration"`
	PagesFetched         int                   `json:"pages_fetched"`
	PagesFailed          int                   `json:"pages_failed"`
	Candidates           int                   `json:"candidates"`
	ExtractionErrors     int                   `json:"extraction_errors"`
	ValidationFailures   int                   `json:"validation_failures"`
	Warnings             int                   `json:"warnings"`
	DuplicatesSkipped    int                   `json:"duplicates_skipped"`
	OrganizationsCreated int                   `json:"organizations_created"`
	LocationsCreated     int                   `json:"locations_created"`
	EventsInserted       int                   `json:"events_inserted"`
	PersistenceErrors    int                   `json:"persistence_errors"`
	AbortReason          string                `json:"abort_reason,omitempty"`
	Failures             []database.RunFailure `json:"failures,omitempty"`
}

func newRunView(run database.RunRecord, withFailures bool) runView {
	v := runView{
		ID:                   run.ID,
		Sources:              run.Sources,
		Status:               run.Status,
		StartedAt:            run.StartedAt,
		FinishedAt:           run.FinishedAt,
		Duration:             run.FinishedAt.Sub(run.StartedAt).String(),
		PagesFetched:         run.PagesFetched,
		PagesFailed:          run.PagesFailed,
		Candidates:           run.Candidates,
		ExtractionErrors:     run.ExtractionErrors,
		ValidationFailures:   run.ValidationFailures,
		Warnings:             run.Warnings,
		DuplicatesSkipped:    run.DuplicatesSkipped,
		OrganizationsCreated: run.OrganizationsCreated,
		LocationsCreated:     run.LocationsCreated,
		EventsInserted:       run.EventsInserted,
		PersistenceErrors:    run.PersistenceErrors,
		AbortReason:          run.AbortReason,
	}
	if withFailures {
		v.Failures = run.Failures
	}
	return v
}
