package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/ingest"
	"github.com/ducksgather/harvester/app/source"
	"github.com/ducksgather/harvester/app/tasks"
)

const testAPIKey = "secret"

type fakeScheduler struct {
	mu    sync.Mutex
	busy  bool
	full  bool
	tasks []tasks.TaskInterface
}

func (s *fakeScheduler) Start() {}
func (s *fakeScheduler) Stop()  {}

func (s *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return tasks.ErrQueueFull
	}
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *fakeScheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

type fixture struct {
	router    *gin.Engine
	store     *database.Store
	scheduler *fakeScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewConnection(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)
	store := database.NewStore(db)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uoregon.yml"), []byte(`
urls:
  - "https://calendar.uoregon.edu"
`), 0644))
	catalog := source.NewCatalog(dir)
	require.NoError(t, catalog.Run())

	scheduler := &fakeScheduler{}
	newRun := func(names []string) (tasks.TaskInterface, error) {
		configs, err := catalog.GetEnabledConfigs(names...)
		if err != nil {
			return nil, err
		}
		selected := make([]string, 0, len(configs))
		for _, c := range configs {
			selected = append(selected, c.Name)
		}
		return tasks.NewCrawlTask(selected, func(context.Context) (*ingest.RunResult, error) { return nil, nil }, store.Runs()), nil
	}

	handler := NewHandler(catalog, store.Events(), store.Runs(), scheduler, newRun)
	return &fixture{
		router:    NewServer(handler, testAPIKey),
		store:     store,
		scheduler: scheduler,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authorized {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) insertEvent(t *testing.T, title, date, category string) {
	t.Helper()
	_, err := f.store.Events().InsertEvent(context.Background(), database.NewEvent{
		Title:     title,
		TitleKey:  strings.ToLower(title),
		Date:      date,
		StartTime: "18:00:00",
		EndTime:   "20:00:00",
		Category:  category,
	})
	require.NoError(t, err)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.insertEvent(t, "Jazz Night", "2030-05-02", "Arts")

	w := f.do(t, http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["events"])
	assert.Equal(t, float64(1), body["loaded_configurations"])
	assert.Equal(t, false, body["busy"])
}

func TestListEventsFilters(t *testing.T) {
	f := newFixture(t)
	f.insertEvent(t, "Jazz Night", "2030-05-02", "Arts")
	f.insertEvent(t, "Career Fair", "2030-05-10", "Career")
	f.insertEvent(t, "Gallery Walk", "2030-06-01", "Arts")

	tests := []struct {
		query  string
		titles []string
	}{
		{"", []string{"Jazz Night", "Career Fair", "Gallery Walk"}},
		{"?category=arts", []string{"Jazz Night", "Gallery Walk"}},
		{"?from=2030-05-05", []string{"Career Fair", "Gallery Walk"}},
		{"?from=2030-05-01&to=2030-05-31", []string{"Jazz Night", "Career Fair"}},
		{"?category=Arts&to=2030-05-31", []string{"Jazz Night"}},
		{"?limit=1", []string{"Jazz Night"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/events"+tt.query, "", false)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var body struct {
				Events []eventView `json:"events"`
				Total  int         `json:"total"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

			var titles []string
			for _, ev := range body.Events {
				titles = append(titles, ev.Title)
			}
			assert.Equal(t, tt.titles, titles)
			assert.Equal(t, len(tt.titles), body.Total)
		})
	}
}

func TestListEventsRejectsBadQuery(t *testing.T) {
	f := newFixture(t)

	for _, query := range []string{
		"?category=Parties",
		"?from=05/02/2030",
		"?to=2030-13-01",
		"?from=2030-06-01&to=2030-05-01",
		"?limit=zero",
	} {
		w := f.do(t, http.MethodGet, "/events"+query, "", false)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
	}
}

func TestAPIRequiresKey(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/sources", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	f := newFixture(t)
	handler := NewHandler(source.NewCatalog(t.TempDir()), f.store.Events(), f.store.Runs(), f.scheduler, nil)
	router := NewServer(handler, "")

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIListSources(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/sources", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])
	sources := body["sources"].([]any)
	first := sources[0].(map[string]any)
	assert.Equal(t, "uoregon", first["name"])
	assert.Equal(t, source.FormatJSONLD, first["format"])
	assert.Equal(t, true, first["enabled"])
}

func TestAPITriggerRun(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/runs", "", true)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Len(t, f.scheduler.tasks, 1)
	assert.Equal(t, []string{"uoregon"}, f.scheduler.tasks[0].GetSources())

	w = f.do(t, http.MethodPost, "/api/runs", `{"sources": ["uoregon"]}`, true)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/runs", `{"sources": ["nowhere"]}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/runs", `{"sources": `, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPITriggerRunConflict(t *testing.T) {
	f := newFixture(t)

	f.scheduler.busy = true
	w := f.do(t, http.MethodPost, "/api/runs", "", true)
	assert.Equal(t, http.StatusConflict, w.Code)

	f.scheduler.busy = false
	f.scheduler.full = true
	w = f.do(t, http.MethodPost, "/api/runs", "", true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, f.scheduler.tasks)
}

func TestAPIRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := time.Date(2030, 5, 1, 16, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, f.store.Runs().SaveRun(ctx, database.RunRecord{
			ID:             fmt.Sprintf("run-%d", i),
			Sources:        []string{"uoregon"},
			Status:         "completed",
			StartedAt:      started.Add(time.Duration(i) * time.Hour),
			FinishedAt:     started.Add(time.Duration(i)*time.Hour + time.Minute),
			EventsInserted: i,
			Failures: []database.RunFailure{
				{Stage: "validate", Source: "uoregon", Title: "Untitled", Reasons: []string{"title: required"}},
			},
		}))
	}

	w := f.do(t, http.MethodGet, "/api/runs?limit=2", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Runs  []runView `json:"runs"`
		Total int       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "run-2", list.Runs[0].ID)
	assert.Empty(t, list.Runs[0].Failures)

	w = f.do(t, http.MethodGet, "/api/runs/run-1", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	var run runView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "1m0s", run.Duration)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "validate", run.Failures[0].Stage)

	w = f.do(t, http.MethodGet, "/api/runs/missing", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/stats", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	lastRun := stats["last_run"].(map[string]any)
	assert.Equal(t, "run-2", lastRun["id"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
