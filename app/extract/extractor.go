package extract

import (
	"cmp"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/ducksgather/harvester/app/event"
	"github.com/ducksgather/harvester/app/fetch"
	"github.com/ducksgather/harvester/app/source"
)

// Extractor turns a fetched listing page into candidate events. The
// sequence is finite and single pass. A record that cannot be read yields a
// non-nil error and extraction moves on to the next record.
type Extractor interface {
	Extract(page fetch.RawListingPage) iter.Seq2[event.CandidateEvent, error]
}

// ExtractionError is a block or item on a page that could not be decoded.
type ExtractionError struct {
	PageURL string
	Index   int
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s record %d: %v", e.PageURL, e.Index, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// New builds the extractor for a source's format and field mapping.
func New(cfg *source.Config, now func() time.Time) (Extractor, error) {
	// The catalog has already applied defaults; a zero mapping means the
	// config was built by hand.
	format := cmp.Or(cfg.Format, source.FormatJSONLD)
	fields := cfg.Fields
	if fields == (source.FieldMapping{}) {
		fields = source.DefaultMapping(format)
	}
	switch format {
	case source.FormatJSONLD:
		return NewJSONLD(fields), nil
	case source.FormatICal:
		return NewICal(fields, time.Duration(cfg.Settings.RecurrenceHorizonDays)*24*time.Hour, now), nil
	case source.FormatRSS:
		return NewRSS(fields), nil
	default:
		return nil, fmt.Errorf("unsupported source format: %s", cfg.Format)
	}
}

// mapFields reads every mapped field through get. Unmapped fields and
// fields get cannot find stay empty.
func mapFields(m source.FieldMapping, page fetch.RawListingPage, index int, get func(path string) string) event.CandidateEvent {
	lookup := func(path string) string {
		if path == "" {
			return ""
		}
		return strings.TrimSpace(get(path))
	}

	return event.CandidateEvent{
		SourceName:    page.SourceName,
		PageURL:       page.URL,
		Index:         index,
		Title:         lookup(m.Title),
		Description:   lookup(m.Description),
		Start:         lookup(m.Start),
		End:           lookup(m.End),
		Category:      lookup(m.Category),
		VenueName:     lookup(m.VenueName),
		VenueRoom:     lookup(m.VenueRoom),
		VenueAddress:  lookup(m.VenueAddress),
		Latitude:      lookup(m.Latitude),
		Longitude:     lookup(m.Longitude),
		OrganizerName: lookup(m.Organizer),
		ExternalURL:   resolveReference(page.URL, lookup(m.ExternalURL)),
		ImageURL:      resolveReference(page.URL, lookup(m.ImageURL)),
	}
}

// resolveReference makes a root-relative or protocol-relative link absolute
// against the page it was found on. Anything else is returned as is.
func resolveReference(pageURL, ref string) string {
	if !strings.HasPrefix(ref, "/") || strings.ContainsAny(ref, " \t\n") {
		return ref
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}
