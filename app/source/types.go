package source

import (
	"strconv"
	"strings"
)

const (
	FormatJSONLD = "jsonld"
	FormatICal   = "ical"
	FormatRSS    = "rss"

	PagePlaceholder = "{page}"
)

type Config struct {
	Name       string         // Derived from filename (without .yml extension)
	Format     string         `yaml:"format"`
	URLs       []string       `yaml:"urls"`
	Pagination *Pagination    `yaml:"pagination"`
	Settings   ConfigSettings `yaml:"settings"`
	Fields     FieldMapping   `yaml:"fields"`
}

// Pagination describes follow-up listing pages. Template pages are
// numbered from Start through MaxPages, where the first URL counts as page 1.
type Pagination struct {
	Template string `yaml:"template"`
	Start    int    `yaml:"start"`
	MaxPages int    `yaml:"max_pages"`
}

type ConfigSettings struct {
	Enabled               bool `yaml:"enabled"`
	Timeout               int  `yaml:"timeout"`                 // seconds, 0 uses --fetch-timeout
	RecurrenceHorizonDays int  `yaml:"recurrence_horizon_days"` // ical only
}

// FieldMapping names, per event field, where the value lives in a source
// record. The path syntax depends on the format: dotted JSON keys for jsonld,
// property names for ical, item fields or "prefix:name" extensions for rss.
type FieldMapping struct {
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	Start        string `yaml:"start"`
	End          string `yaml:"end"`
	Category     string `yaml:"category"`
	VenueName    string `yaml:"venue_name"`
	VenueRoom    string `yaml:"venue_room"`
	VenueAddress string `yaml:"venue_address"`
	Latitude     string `yaml:"latitude"`
	Longitude    string `yaml:"longitude"`
	Organizer    string `yaml:"organizer"`
	ExternalURL  string `yaml:"external_url"`
	ImageURL     string `yaml:"image_url"`
}

// Paginated reports whether the source walks numbered listing pages.
func (c *Config) Paginated() bool {
	return c.Pagination != nil && c.Pagination.Template != ""
}

// PageURLs returns every listing page in crawl order.
func (c *Config) PageURLs() []string {
	pages := append([]string(nil), c.URLs...)
	if !c.Paginated() {
		return pages
	}
	for n := c.Pagination.Start; n <= c.Pagination.MaxPages; n++ {
		pages = append(pages, strings.ReplaceAll(c.Pagination.Template, PagePlaceholder, strconv.Itoa(n)))
	}
	return pages
}
