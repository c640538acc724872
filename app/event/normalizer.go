package event

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Limits are the maximum persisted lengths, in characters.
type Limits struct {
	Title       int
	Description int
	Venue       int
	Room        int
	Address     int
	Organizer   int
	Category    int
	URL         int
	Coordinate  int
}

var DefaultLimits = Limits{
	Title:       255,
	Description: 2000,
	Venue:       255,
	Room:        50,
	Address:     500,
	Organizer:   255,
	Category:    100,
	URL:         500,
	Coordinate:  32,
}

type Normalizer struct {
	limits Limits
}

func NewNormalizer() *Normalizer {
	return &Normalizer{limits: DefaultLimits}
}

func NewNormalizerWithLimits(limits Limits) *Normalizer {
	return &Normalizer{limits: limits}
}

// Normalize cleans the free-text fields of c. It never fails and
// Normalize(Normalize(c)) == Normalize(c).
func (n *Normalizer) Normalize(c CandidateEvent) CandidateEvent {
	c.Title = n.text(c.Title, n.limits.Title)
	c.Description = n.text(c.Description, n.limits.Description)
	c.Category = n.text(c.Category, n.limits.Category)
	c.VenueName = n.text(c.VenueName, n.limits.Venue)
	c.VenueRoom = n.text(c.VenueRoom, n.limits.Room)
	c.VenueAddress = n.text(c.VenueAddress, n.limits.Address)
	c.OrganizerName = n.text(c.OrganizerName, n.limits.Organizer)

	c.Start = CollapseWhitespace(c.Start)
	c.End = CollapseWhitespace(c.End)
	c.Latitude = Truncate(CollapseWhitespace(c.Latitude), n.limits.Coordinate)
	c.Longitude = Truncate(CollapseWhitespace(c.Longitude), n.limits.Coordinate)
	c.ExternalURL = Truncate(CollapseWhitespace(c.ExternalURL), n.limits.URL)
	c.ImageURL = Truncate(CollapseWhitespace(c.ImageURL), n.limits.URL)

	return c
}

// text runs the cleanup to a fixed point. Every pass that changes the text
// unwraps a layer of markup or escaping, so len(s)+1 passes always suffice.
func (n *Normalizer) text(s string, limit int) string {
	for range len(s) + 1 {
		if s == "" {
			break
		}
		next := CollapseWhitespace(StripMarkup(norm.NFKC.String(s)))
		if next == s {
			break
		}
		s = next
	}
	return Truncate(s, limit)
}

// StripMarkup converts an HTML fragment to its readable text, dropping
// script and style content. Entity-escaped markup is unwrapped until the
// text stops changing.
func StripMarkup(s string) string {
	for range len(s) + 1 {
		if !strings.ContainsAny(s, "<&") {
			return s
		}
		next := stripOnce(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func stripOnce(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style, noscript, template, iframe").Remove()
	doc.Find("br, p, div, li, tr, td, h1, h2, h3, h4, h5, h6").AfterHtml(" ")
	return doc.Text()
}

// CollapseWhitespace replaces runs of whitespace with one space and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most max characters.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}

// TitleKey is the comparison key for duplicate detection: case-folded with
// whitespace collapsed.
func TitleKey(title string) string {
	return cases.Fold().String(CollapseWhitespace(norm.NFKC.String(title)))
}
