package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/event"
	"github.com/ducksgather/harvester/app/fetch"
	"github.com/ducksgather/harvester/app/source"
)

var campusTZ = func() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		panic(err)
	}
	return loc
}()

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	db, err := database.NewConnection(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)
	return database.NewStore(db)
}

func testValidator() *event.Validator {
	v := event.NewValidator(campusTZ)
	v.Now = func() time.Time { return time.Date(2030, 5, 1, 9, 0, 0, 0, campusTZ) }
	return v
}

func testFetcher() *fetch.Fetcher {
	policy := fetch.DefaultRetryPolicy()
	policy.MaxAttempts = 2
	policy.InitialBackoff = time.Millisecond
	policy.MaxBackoff = 2 * time.Millisecond
	return fetch.NewFetcher(nil, "HarvesterTest/1.0", 2*time.Second, policy)
}

// calendarServer serves pages by path. Unknown paths are 404, paths mapped
// to a number are answered with that status.
type calendarServer struct {
	*httptest.Server
	mu    sync.Mutex
	pages map[string]any
	hits  map[string]int
}

func newCalendarServer(t *testing.T, pages map[string]any) *calendarServer {
	t.Helper()
	cs := &calendarServer{pages: pages, hits: make(map[string]int)}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.hits[r.URL.Path]++
		page, ok := cs.pages[r.URL.Path]
		cs.mu.Unlock()

		switch p := page.(type) {
		case string:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(p))
		case int:
			w.WriteHeader(p)
		default:
			if !ok {
				http.NotFound(w, r)
			}
		}
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *calendarServer) Hits(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hits[path]
}

func jsonLDSource(name string, urls []string, template string) *source.Config {
	cfg := &source.Config{
		Name:     name,
		Format:   source.FormatJSONLD,
		URLs:     urls,
		Settings: source.ConfigSettings{Enabled: true},
		Fields:   source.DefaultMapping(source.FormatJSONLD),
	}
	if template != "" {
		cfg.Pagination = &source.Pagination{Template: template, Start: 2, MaxPages: 10}
	}
	return cfg
}

type ldEvent struct {
	Title     string
	Date      string
	Start     string
	End       string
	Organizer string
	Venue     string
}

func (e ldEvent) json() string {
	var extra []string
	if e.Organizer != "" {
		extra = append(extra, fmt.Sprintf(`"organizer": {"@type": "Organization", "name": %q}`, e.Organizer))
	}
	if e.Venue != "" {
		extra = append(extra, fmt.Sprintf(`"location": {"@type": "Place", "name": %q}`, e.Venue))
	}
	fields := []string{
		`"@type": "Event"`,
		fmt.Sprintf(`"name": %q`, e.Title),
		fmt.Sprintf(`"startDate": "%sT%s:00-07:00"`, e.Date, e.Start),
		fmt.Sprintf(`"endDate": "%sT%s:00-07:00"`, e.Date, e.End),
	}
	return "{" + strings.Join(append(fields, extra...), ", ") + "}"
}

func listingPage(events ...ldEvent) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.json()
	}
	return `<html><body><script type="application/ld+json">[` + strings.Join(parts, ",") + `]</script></body></html>`
}

// flakyStore wraps a real store and fails transactions on demand.
type flakyStore struct {
	*database.Store
	mu       sync.Mutex
	txCalls  int
	failTx   func(call int) bool
	downOnTx bool
	down     bool
}

func (s *flakyStore) InTx(ctx context.Context, fn func(database.Repositories) error) error {
	s.mu.Lock()
	s.txCalls++
	call := s.txCalls
	fail := s.failTx != nil && s.failTx(call)
	if fail && s.downOnTx {
		s.down = true
	}
	s.mu.Unlock()

	if fail {
		return errors.New("disk I/O error")
	}
	return s.Store.InTx(ctx, fn)
}

func (s *flakyStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("database is closed")
	}
	return s.Store.Ping(ctx)
}
