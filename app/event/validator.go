package event

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RuleTitle     = "title"
	RuleDate      = "date"
	RuleStartTime = "start_time"
	RuleEndTime   = "end_time"
	RuleCategory  = "category"
)

type Violation struct {
	Rule    string
	Message string
}

func (v Violation) String() string {
	return v.Rule + ": " + v.Message
}

// ValidationError lists every rule a candidate broke.
type ValidationError struct {
	Title      string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid event %q: %s", e.Title, strings.Join(parts, "; "))
}

type Result struct {
	Event      ValidatedEvent
	Violations []Violation
	Warnings   []string
}

func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Title: r.Event.Title, Violations: r.Violations}
}

var (
	zonedLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04Z07:00",
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04Z0700",
		time.RFC1123Z,
		time.RFC1123,
	}
	localLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		time.DateTime,
		"2006-01-02 15:04",
	}
	roomSuffix = regexp.MustCompile(`(?i)^(.*?)[,\s]+(?:room|rm\.?)\s*#?\s*([\p{L}\p{N}-]+)$`)
)

// Validator checks normalized candidates against the event rules. Dates
// and times are interpreted in Location; Now decides what "past" means.
type Validator struct {
	Location *time.Location
	Now      func() time.Time
}

func NewValidator(loc *time.Location) *Validator {
	if loc == nil {
		loc = time.Local
	}
	return &Validator{Location: loc, Now: time.Now}
}

func (v *Validator) Validate(c CandidateEvent) Result {
	var res Result
	ev := &res.Event
	ev.SourceName = c.SourceName
	ev.PageURL = c.PageURL
	ev.Title = c.Title
	ev.Description = c.Description
	ev.OrganizationName = c.OrganizerName

	violate := func(rule, format string, args ...any) {
		res.Violations = append(res.Violations, Violation{Rule: rule, Message: fmt.Sprintf(format, args...)})
	}
	warn := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if c.Title == "" {
		violate(RuleTitle, "title is required")
	}

	start, startHasTime, startErr := v.parseInstant(c.Start)
	switch {
	case c.Start == "":
		violate(RuleDate, "date is required")
		violate(RuleStartTime, "start time is required")
	case startErr != nil:
		violate(RuleDate, "cannot parse start %q", c.Start)
		violate(RuleStartTime, "cannot parse start %q", c.Start)
	default:
		ev.Date = DateOf(start)
		if ev.Date.Before(DateOf(v.Now().In(v.Location))) {
			violate(RuleDate, "date %s is in the past", ev.Date)
		}
		if startHasTime {
			ev.StartTime = TimeOfDayOf(start)
		} else {
			violate(RuleStartTime, "start %q has no time of day", c.Start)
		}
	}

	end, endHasTime, endErr := v.parseInstant(c.End)
	switch {
	case c.End == "":
		violate(RuleEndTime, "end time is required")
	case endErr != nil:
		violate(RuleEndTime, "cannot parse end %q", c.End)
	case !endHasTime:
		violate(RuleEndTime, "end %q has no time of day", c.End)
	default:
		ev.EndTime = TimeOfDayOf(end)
		if startErr == nil && startHasTime && !ev.EndTime.After(ev.StartTime) {
			violate(RuleEndTime, "end time %s is not after start time %s", ev.EndTime, ev.StartTime)
		}
	}

	if c.Category == "" {
		ev.Category = DefaultCategory
	} else if canonical, ok := CanonicalCategory(c.Category); ok {
		ev.Category = canonical
	} else {
		violate(RuleCategory, "unknown category %q", c.Category)
	}

	if c.ExternalURL != "" {
		if isAbsoluteURL(c.ExternalURL) {
			ev.ExternalURL = c.ExternalURL
		} else {
			warn("dropped malformed external url %q", c.ExternalURL)
		}
	}
	if c.ImageURL != "" {
		if isAbsoluteURL(c.ImageURL) {
			ev.ImageURL = c.ImageURL
		} else {
			warn("dropped malformed image url %q", c.ImageURL)
		}
	}

	if c.HasLocation() {
		ev.Location = v.location(c, warn)
	}

	return res
}

func (v *Validator) location(c CandidateEvent, warn func(string, ...any)) *LocationDescriptor {
	building, room := c.VenueName, c.VenueRoom
	if room == "" {
		if m := roomSuffix.FindStringSubmatch(building); m != nil && strings.TrimSpace(m[1]) != "" {
			building, room = strings.TrimSpace(m[1]), m[2]
		}
	}
	if building == "" {
		warn("dropped location without a building name")
		return nil
	}

	loc := &LocationDescriptor{
		BuildingName: building,
		RoomNumber:   room,
		Address:      c.VenueAddress,
	}
	if c.Latitude == "" && c.Longitude == "" {
		return loc
	}
	lat, latErr := decimal.NewFromString(c.Latitude)
	lon, lonErr := decimal.NewFromString(c.Longitude)
	switch {
	case latErr != nil || lonErr != nil:
		warn("dropped unparseable coordinates %q,%q", c.Latitude, c.Longitude)
	case lat.Abs().GreaterThan(decimal.NewFromInt(90)) || lon.Abs().GreaterThan(decimal.NewFromInt(180)):
		warn("dropped out of range coordinates %s,%s", lat, lon)
	default:
		loc.Latitude = decimal.NewNullDecimal(lat)
		loc.Longitude = decimal.NewNullDecimal(lon)
	}
	return loc
}

// parseInstant reads s as a point in time in v.Location. A bare date parses
// successfully with hasTime false.
func (v *Validator) parseInstant(s string) (t time.Time, hasTime bool, err error) {
	if s == "" {
		return time.Time{}, false, fmt.Errorf("empty")
	}
	for _, layout := range zonedLayouts {
		if t, err = time.Parse(layout, s); err == nil {
			return t.In(v.Location), true, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err = time.ParseInLocation(layout, s, v.Location); err == nil {
			return t, true, nil
		}
	}
	if t, err = time.ParseInLocation(time.DateOnly, s, v.Location); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognized time format %q", s)
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
