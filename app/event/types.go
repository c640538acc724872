package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CandidateEvent is an event record as found in source markup. Every field is
// raw text; an empty string means the source did not carry the field.
type CandidateEvent struct {
	SourceName string
	PageURL    string
	Index      int

	Title         string
	Description   string
	Start         string
	End           string
	Category      string
	VenueName     string
	VenueRoom     string
	VenueAddress  string
	Latitude      string
	Longitude     string
	OrganizerName string
	ExternalURL   string
	ImageURL      string
}

// HasLocation reports whether any location sub-field is present.
func (c CandidateEvent) HasLocation() bool {
	return c.VenueName != "" || c.VenueRoom != "" || c.VenueAddress != "" ||
		c.Latitude != "" || c.Longitude != ""
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// TimeOfDay is a wall-clock time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(time.TimeOnly, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return TimeOfDayOf(t), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) After(other TimeOfDay) bool {
	return t.seconds() > other.seconds()
}

// LocationDescriptor is the validated location an event points at.
// BuildingName is always set; RoomNumber may be empty.
type LocationDescriptor struct {
	BuildingName string
	RoomNumber   string
	Address      string
	Latitude     decimal.NullDecimal
	Longitude    decimal.NullDecimal
}

// ValidatedEvent is the strict shape accepted by the store. Values are only
// produced by Validator and are not modified afterwards.
type ValidatedEvent struct {
	Title            string
	Category         string
	Date             Date
	StartTime        TimeOfDay
	EndTime          TimeOfDay
	Description      string
	ExternalURL      string
	ImageURL         string
	OrganizationName string
	Location         *LocationDescriptor

	SourceName string
	PageURL    string
}
