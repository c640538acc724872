package database

import (
	"time"

	"github.com/shopspring/decimal"
)

type Organization struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

type Location struct {
	ID           int64
	BuildingName string
	RoomNumber   string // '' when the location has no room
	Address      string
	Latitude     decimal.NullDecimal
	Longitude    decimal.NullDecimal
	CreatedAt    time.Time
}

type Event struct {
	ID             int64
	Title          string
	Description    string
	Date           string // YYYY-MM-DD
	StartTime      string // HH:MM:SS
	EndTime        string // HH:MM:SS
	Category       string
	ImageURL       string
	ExternalURL    string
	OrganizationID *int64
	LocationID     *int64
	CreatedBy      *int64
	IsScraped      bool
	SourceName     string
	SourceURL      string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Joined for listings
	OrganizationName string
	BuildingName     string
	RoomNumber       string
}

// NewEvent is a scraped event ready to insert.
type NewEvent struct {
	Title          string
	TitleKey       string
	Description    string
	Date           string
	StartTime      string
	EndTime        string
	Category       string
	ImageURL       string
	ExternalURL    string
	OrganizationID *int64
	LocationID     *int64
	SourceName     string
	SourceURL      string
}

type EventFilter struct {
	Category string
	From     string // inclusive YYYY-MM-DD
	To       string // inclusive YYYY-MM-DD
	Limit    int
}

type RunFailure struct {
	Stage   string   `json:"stage"`
	Source  string   `json:"source"`
	URL     string   `json:"url,omitempty"`
	Title   string   `json:"title,omitempty"`
	Reasons []string `json:"reasons"`
}

type RunRecord struct {
	ID                   string
	Sources              []string
	Status               string
	StartedAt            time.Time
	FinishedAt           time.Time
	PagesFetched         int
	PagesFailed          int
	Candidates           int
	ExtractionErrors     int
	ValidationFailures   int
	Warnings             int
	DuplicatesSkipped    int
	OrganizationsCreated int
	LocationsCreated     int
	EventsInserted       int
	PersistenceErrors    int
	Failures             []RunFailure
	AbortReason          string
}
