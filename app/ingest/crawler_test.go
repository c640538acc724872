package ingest

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/source"
)

func TestCrawlerInsertsAndConverges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	server := newCalendarServer(t, map[string]any{
		"/": listingPage(
			ldEvent{Title: "Hack Night", Date: "2030-05-02", Start: "18:00", End: "21:00", Organizer: "Computer Science Club", Venue: "Erb Memorial Union, Room 145"},
			ldEvent{Title: "hack   NIGHT", Date: "2030-05-02", Start: "18:00", End: "21:00"},
			ldEvent{Title: "Last Week's Lecture", Date: "2030-04-20", Start: "10:00", End: "11:00"},
		),
		"/calendar/2": listingPage(
			ldEvent{Title: "Jazz Combo", Date: "2030-05-02", Start: "19:00", End: "20:30", Organizer: "Computer Science Club", Venue: "Erb Memorial Union, Room 145"},
		),
	})
	src := jsonLDSource("uoregon", []string{server.URL + "/"}, server.URL+"/calendar/{page}")

	first, err := NewCrawler(store, testFetcher(), testValidator(), []*source.Config{src}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, first.Status)
	assert.Equal(t, []string{"uoregon"}, first.Sources)
	assert.Equal(t, 2, first.PagesFetched)
	assert.Equal(t, 0, first.PagesFailed)
	assert.Equal(t, 4, first.Candidates)
	assert.Equal(t, 2, first.EventsInserted)
	assert.Equal(t, 1, first.DuplicatesSkipped)
	assert.Equal(t, 1, first.ValidationFailures)
	assert.Equal(t, 1, first.OrganizationsCreated)
	assert.Equal(t, 1, first.LocationsCreated)
	require.Len(t, first.Failures, 1)
	assert.Equal(t, StageValidate, first.Failures[0].Stage)
	assert.Equal(t, "Last Week's Lecture", first.Failures[0].Title)

	second, err := NewCrawler(store, testFetcher(), testValidator(), []*source.Config{src}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, second.EventsInserted)
	assert.Equal(t, 3, second.DuplicatesSkipped)
	assert.Equal(t, 0, second.OrganizationsCreated)
	assert.Equal(t, 0, second.LocationsCreated)

	events, err := store.Events().ListEvents(ctx, database.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Hack Night", events[0].Title)
	assert.Equal(t, "Jazz Combo", events[1].Title)
	assert.Equal(t, "Erb Memorial Union", events[0].BuildingName)
	assert.Equal(t, "145", events[0].RoomNumber)
	assert.Equal(t, *events[0].LocationID, *events[1].LocationID)
	assert.Equal(t, *events[0].OrganizationID, *events[1].OrganizationID)
	assert.True(t, events[0].IsScraped)
	assert.Nil(t, events[0].CreatedBy)
	assert.Equal(t, "General", events[0].Category)
	assert.Equal(t, "18:00:00", events[0].StartTime)
}

func TestCrawlerPaginationStopsOnEmptyPage(t *testing.T) {
	server := newCalendarServer(t, map[string]any{
		"/":           listingPage(ldEvent{Title: "Page One", Date: "2030-05-02", Start: "10:00", End: "11:00"}),
		"/calendar/2": listingPage(ldEvent{Title: "Page Two", Date: "2030-05-03", Start: "10:00", End: "11:00"}),
		"/calendar/3": `<html><body><p>No more events</p></body></html>`,
		"/calendar/4": listingPage(ldEvent{Title: "Never Reached", Date: "2030-05-04", Start: "10:00", End: "11:00"}),
	})
	src := jsonLDSource("uoregon", []string{server.URL + "/"}, server.URL+"/calendar/{page}")

	res, err := NewCrawler(newTestStore(t), testFetcher(), testValidator(), []*source.Config{src}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.PagesFetched)
	assert.Equal(t, 0, res.PagesFailed)
	assert.Equal(t, 2, res.EventsInserted)
	assert.Equal(t, 0, server.Hits("/calendar/4"))
}

func TestCrawlerPaginationStopsOnNotFound(t *testing.T) {
	server := newCalendarServer(t, map[string]any{
		"/":           listingPage(ldEvent{Title: "Page One", Date: "2030-05-02", Start: "10:00", End: "11:00"}),
		"/calendar/2": listingPage(ldEvent{Title: "Page Two", Date: "2030-05-03", Start: "10:00", End: "11:00"}),
	})
	src := jsonLDSource("uoregon", []string{server.URL + "/"}, server.URL+"/calendar/{page}")

	res, err := NewCrawler(newTestStore(t), testFetcher(), testValidator(), []*source.Config{src}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.PagesFetched)
	assert.Equal(t, 0, res.PagesFailed)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 1, server.Hits("/calendar/3"))
	assert.Equal(t, 0, server.Hits("/calendar/4"))
}

func TestCrawlerIsolatesPageAndRecordFailures(t *testing.T) {
	server := newCalendarServer(t, map[string]any{
		"/broken": http.StatusServiceUnavailable,
		"/mixed": `<html><body>
<script type="application/ld+json">{"@type": "Event", "name": </script>
<script type="application/ld+json">` + ldEvent{Title: "Survivor", Date: "2030-05-02", Start: "12:00", End: "13:00"}.json() + `</script>
<script type="application/ld+json">{"@type": "Event", "name": "Backwards", "startDate": "2030-05-02T12:00:00-07:00", "endDate": "2030-05-02T11:00:00-07:00"}</script>
</body></html>`,
	})
	src := jsonLDSource("campus", []string{server.URL + "/broken", server.URL + "/mixed"}, "")

	res, err := NewCrawler(newTestStore(t), testFetcher(), testValidator(), []*source.Config{src}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.PagesFailed)
	assert.Equal(t, 1, res.PagesFetched)
	assert.Equal(t, 2, server.Hits("/broken"))
	assert.Equal(t, 1, res.ExtractionErrors)
	assert.Equal(t, 1, res.ValidationFailures)
	assert.Equal(t, 1, res.EventsInserted)

	stages := map[string]int{}
	for _, f := range res.Failures {
		stages[f.Stage]++
	}
	assert.Equal(t, map[string]int{StageFetch: 1, StageExtract: 1, StageValidate: 1}, stages)
}

func TestCrawlerContinuesAfterPersistenceError(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newTestStore(t), failTx: func(call int) bool { return call == 1 }}
	server := newCalendarServer(t, map[string]any{
		"/": listingPage(
			ldEvent{Title: "Unlucky", Date: "2030-05-02", Start: "10:00", End: "11:00", Organizer: "Ghost Org"},
			ldEvent{Title: "Lucky", Date: "2030-05-02", Start: "12:00", End: "13:00"},
		),
	})
	src := jsonLDSource("uoregon", []string{server.URL + "/"}, "")

	res, err := NewCrawler(store, testFetcher(), testValidator(), []*source.Config{src}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.PersistenceErrors)
	assert.Equal(t, 1, res.EventsInserted)
	assert.Equal(t, 0, res.OrganizationsCreated)

	org, err := store.Repos().Organizations.GetOrganizationByName(ctx, "Ghost Org")
	require.NoError(t, err)
	assert.Nil(t, org)
}

func TestCrawlerAbortsWhenStoreGoesAway(t *testing.T) {
	store := &flakyStore{Store: newTestStore(t), failTx: func(int) bool { return true }, downOnTx: true}
	server := newCalendarServer(t, map[string]any{
		"/": listingPage(
			ldEvent{Title: "First", Date: "2030-05-02", Start: "10:00", End: "11:00"},
			ldEvent{Title: "Second", Date: "2030-05-02", Start: "12:00", End: "13:00"},
		),
		"/other": listingPage(ldEvent{Title: "Other", Date: "2030-05-02", Start: "10:00", End: "11:00"}),
	})
	src := jsonLDSource("uoregon", []string{server.URL + "/", server.URL + "/other"}, "")

	res, err := NewCrawler(store, testFetcher(), testValidator(), []*source.Config{src}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	require.NotNil(t, res)
	assert.True(t, res.Aborted())
	assert.NotEmpty(t, res.AbortReason)
	assert.Equal(t, 1, res.PersistenceErrors)
	assert.Equal(t, 0, server.Hits("/other"))
	assert.False(t, res.FinishedAt.IsZero())
}

func TestCrawlerAbortsWhenStoreUnreachableAtStart(t *testing.T) {
	store := &flakyStore{Store: newTestStore(t), down: true}
	server := newCalendarServer(t, map[string]any{"/": listingPage()})
	src := jsonLDSource("uoregon", []string{server.URL + "/"}, "")

	crawler := NewCrawler(store, testFetcher(), testValidator(), []*source.Config{src})
	res, err := crawler.Run(context.Background())

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, 0, server.Hits("/"))
	assert.Equal(t, PhaseDone, crawler.Phase())
}

func TestCrawlerStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	server := newCalendarServer(t, map[string]any{"/": listingPage()})
	src := jsonLDSource("uoregon", []string{server.URL + "/"}, "")

	res, err := NewCrawler(newTestStore(t), testFetcher(), testValidator(), []*source.Config{src}).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Aborted())
}

func TestRunResultRecord(t *testing.T) {
	res := &RunResult{
		ID:             "run-1",
		Sources:        []string{"uoregon"},
		Status:         StatusCompleted,
		EventsInserted: 4,
		Failures:       []Failure{{Stage: StageFetch, Source: "uoregon", URL: "https://calendar.uoregon.edu", Reasons: []string{"HTTP 503"}}},
	}

	rec := res.Record()

	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, 4, rec.EventsInserted)
	require.Len(t, rec.Failures, 1)
	assert.Equal(t, "HTTP 503", rec.Failures[0].Reasons[0])
}

func TestCrawlerSkipsCoordinatorCreatedEvent(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewConnection(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO events (title, title_key, date, start_time, end_time, category, created_by, is_scraped)
		VALUES ('Hack Night', 'hack night', '2030-05-02', '18:00:00', '21:00:00', 'Workshop', 1, 0)
	`)
	require.NoError(t, err)
	store := database.NewStore(db)

	server := newCalendarServer(t, map[string]any{
		"/": listingPage(ldEvent{Title: "hack   NIGHT", Date: "2030-05-02", Start: "18:00", End: "21:00"}),
	})
	src := jsonLDSource("uoregon", []string{server.URL + "/"}, "")

	res, err := NewCrawler(store, testFetcher(), testValidator(), []*source.Config{src}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EventsInserted)
	assert.Equal(t, 1, res.DuplicatesSkipped)

	count, err := store.Events().GetEventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCrawlerDropsAddressOnlyLocation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	page := `<html><body><script type="application/ld+json">
	{"@type": "Event", "name": "Street Fair",
	 "startDate": "2030-05-03T11:00:00-07:00", "endDate": "2030-05-03T15:00:00-07:00",
	 "location": {"@type": "Place", "address": {"@type": "PostalAddress", "streetAddress": "1585 E 13th Ave", "addressLocality": "Eugene"}}}
	</script></body></html>`
	server := newCalendarServer(t, map[string]any{"/": page})
	src := jsonLDSource("uoregon", []string{server.URL + "/"}, "")

	res, err := NewCrawler(store, testFetcher(), testValidator(), []*source.Config{src}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EventsInserted)
	assert.Equal(t, 0, res.LocationsCreated)
	assert.Equal(t, 1, res.Warnings)

	events, err := store.Events().ListEvents(ctx, database.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Street Fair", events[0].Title)
	assert.Nil(t, events[0].LocationID)
	assert.Empty(t, events[0].BuildingName)
}
