package extract

import (
	"bytes"
	"fmt"
	"iter"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/ducksgather/harvester/app/event"
	"github.com/ducksgather/harvester/app/fetch"
	"github.com/ducksgather/harvester/app/source"
)

const maxOccurrencesPerEvent = 500

// ICal reads VEVENTs from an iCalendar feed. Recurring events are expanded
// into one candidate per occurrence between now and now+horizon.
type ICal struct {
	fields  source.FieldMapping
	horizon time.Duration
	now     func() time.Time
}

func NewICal(fields source.FieldMapping, horizon time.Duration, now func() time.Time) *ICal {
	if now == nil {
		now = time.Now
	}
	return &ICal{fields: fields, horizon: horizon, now: now}
}

type icalInstant struct {
	t       time.Time
	allDay  bool
	present bool
}

func (i icalInstant) String() string {
	if !i.present {
		return ""
	}
	if i.allDay {
		return i.t.Format(time.DateOnly)
	}
	return i.t.Format(time.RFC3339)
}

func (x *ICal) Extract(page fetch.RawListingPage) iter.Seq2[event.CandidateEvent, error] {
	return func(yield func(event.CandidateEvent, error) bool) {
		cal, err := ics.ParseCalendar(bytes.NewReader(page.Body))
		if err != nil {
			yield(event.CandidateEvent{}, &ExtractionError{PageURL: page.URL, Err: fmt.Errorf("failed to parse calendar: %w", err)})
			return
		}

		index := 0
		for i, ve := range cal.Events() {
			get := func(path string) string { return propertyText(ve, path) }

			start, startErr := x.instant(ve, x.fields.Start)
			end, endErr := x.instant(ve, x.fields.End)
			if startErr != nil || endErr != nil {
				err := startErr
				if err == nil {
					err = endErr
				}
				if !yield(event.CandidateEvent{}, &ExtractionError{PageURL: page.URL, Index: i, Err: err}) {
					return
				}
				continue
			}

			for _, occ := range x.occurrences(ve, start, end) {
				candidate := mapFields(x.fields, page, index, get)
				candidate.Start = occ[0].String()
				candidate.End = occ[1].String()
				index++
				if !yield(candidate, nil) {
					return
				}
			}
		}
	}
}

// occurrences returns (start, end) pairs for ve. Events without RRULE
// yield themselves once.
func (x *ICal) occurrences(ve *ics.VEvent, start, end icalInstant) [][2]icalInstant {
	single := [][2]icalInstant{{start, end}}

	prop := ve.GetProperty(ics.ComponentPropertyRrule)
	if prop == nil || prop.Value == "" || !start.present || x.horizon <= 0 {
		return single
	}

	r, err := rrule.StrToRRule(prop.Value)
	if err != nil {
		return single
	}
	r.DTStart(start.t)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, part := range strings.Split(ex.Value, ",") {
			if t, err := parseICalTime(strings.TrimSpace(part), tzid(ex.ICalParameters), start.t.Location()); err == nil {
				set.ExDate(t.t)
			}
		}
	}

	now := x.now()
	times := set.Between(now.Add(-24*time.Hour), now.Add(x.horizon), true)
	if len(times) > maxOccurrencesPerEvent {
		times = times[:maxOccurrencesPerEvent]
	}

	duration := time.Duration(0)
	if end.present {
		duration = end.t.Sub(start.t)
	}

	out := make([][2]icalInstant, 0, len(times))
	for _, t := range times {
		occStart := icalInstant{t: t, allDay: start.allDay, present: true}
		occEnd := icalInstant{}
		if end.present {
			occEnd = icalInstant{t: t.Add(duration), allDay: end.allDay, present: true}
		}
		out = append(out, [2]icalInstant{occStart, occEnd})
	}
	return out
}

// instant reads a date or date-time property. Floating times are read in
// time.Local, which holds the configured timezone.
func (x *ICal) instant(ve *ics.VEvent, name string) (icalInstant, error) {
	if name == "" {
		return icalInstant{}, nil
	}
	prop := ve.GetProperty(ics.ComponentProperty(strings.ToUpper(name)))
	if prop == nil || strings.TrimSpace(prop.Value) == "" {
		return icalInstant{}, nil
	}

	inst, err := parseICalTime(strings.TrimSpace(prop.Value), tzid(prop.ICalParameters), time.Local)
	if err != nil {
		return icalInstant{}, fmt.Errorf("invalid %s %q: %w", strings.ToUpper(name), prop.Value, err)
	}
	if params := prop.ICalParameters["VALUE"]; len(params) > 0 && strings.EqualFold(params[0], "DATE") {
		inst.allDay = true
	}
	return inst, nil
}

func parseICalTime(v, tz string, floating *time.Location) (icalInstant, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return icalInstant{t: t, present: true}, err
	case strings.Contains(v, "T"):
		loc := floating
		if tz != "" {
			if l, err := time.LoadLocation(tz); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return icalInstant{t: t, present: true}, err
	default:
		t, err := time.ParseInLocation("20060102", v, floating)
		return icalInstant{t: t, allDay: true, present: true}, err
	}
}

func tzid(params map[string][]string) string {
	if vs := params["TZID"]; len(vs) > 0 {
		return strings.Trim(vs[0], `"`)
	}
	return ""
}

// propertyText returns the text of a named property with the iCalendar
// escapes undone. GEO.lat and GEO.lon select one half of a GEO value.
func propertyText(ve *ics.VEvent, path string) string {
	name, part, _ := strings.Cut(strings.ToUpper(path), ".")
	prop := ve.GetProperty(ics.ComponentProperty(name))
	if prop == nil {
		return ""
	}

	switch name {
	case string(ics.ComponentPropertyGeo):
		return geoPart(prop.Value, part)
	case string(ics.ComponentPropertyOrganizer):
		if cn := prop.ICalParameters["CN"]; len(cn) > 0 && cn[0] != "" {
			return strings.Trim(cn[0], `"`)
		}
		return strings.TrimPrefix(strings.TrimPrefix(prop.Value, "mailto:"), "MAILTO:")
	case string(ics.ComponentPropertyCategories):
		first, _, _ := strings.Cut(prop.Value, ",")
		return unescapeText(first)
	}
	return unescapeText(prop.Value)
}

func geoPart(value, part string) string {
	lat, lon, ok := strings.Cut(value, ";")
	if !ok {
		return ""
	}
	if part == "LON" || part == "LONGITUDE" {
		return lon
	}
	return lat
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
