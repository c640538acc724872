package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducksgather/harvester/app/event"
	"github.com/ducksgather/harvester/app/extract"
	"github.com/ducksgather/harvester/app/fetch"
	"github.com/ducksgather/harvester/app/metrics"
	"github.com/ducksgather/harvester/app/source"
)

// ErrStoreUnavailable aborts a run when the store stops answering.
var ErrStoreUnavailable = errors.New("store unavailable")

type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseFetching             Phase = "fetching"
	PhaseExtracting           Phase = "extracting"
	PhaseProcessingCandidates Phase = "processing_candidates"
	PhaseDone                 Phase = "done"
)

// Crawler runs the pipeline over a set of sources: fetch each listing page,
// extract candidates, then normalize, validate, deduplicate and persist
// them one at a time.
type Crawler struct {
	store      Store
	fetcher    *fetch.Fetcher
	sources    []*source.Config
	normalizer *event.Normalizer
	validator  *event.Validator
	dedup      *Deduplicator
	persister  *Persister
	now        func() time.Time

	mu    sync.RWMutex
	phase Phase
}

func NewCrawler(store Store, fetcher *fetch.Fetcher, validator *event.Validator, sources []*source.Config) *Crawler {
	return &Crawler{
		store:      store,
		fetcher:    fetcher,
		sources:    sources,
		normalizer: event.NewNormalizer(),
		validator:  validator,
		dedup:      NewDeduplicator(store.Events()),
		persister:  NewPersister(store, NewResolver()),
		now:        validator.Now,
		phase:      PhaseIdle,
	}
}

func (c *Crawler) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *Crawler) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// Run processes every source once. The result is always returned; the
// error is non-nil only when the run was aborted.
func (c *Crawler) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{
		ID:        uuid.NewString(),
		Status:    StatusCompleted,
		StartedAt: c.now().UTC(),
		Failures:  []Failure{},
	}
	for _, src := range c.sources {
		res.Sources = append(res.Sources, src.Name)
	}

	defer func() {
		res.FinishedAt = c.now().UTC()
		c.setPhase(PhaseDone)
		metrics.TrackRun(res.Status, res.Duration(), res.FinishedAt)
	}()

	slog.Info("Run started", "run", res.ID, "sources", res.Sources)

	if err := ctx.Err(); err != nil {
		return c.abort(res, err)
	}
	if err := c.store.Ping(ctx); err != nil {
		return c.abort(res, fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}

	state := NewRunState()
	for _, src := range c.sources {
		if err := c.crawlSource(ctx, state, src, res); err != nil {
			return c.abort(res, err)
		}
	}

	slog.Info("Run completed",
		"run", res.ID,
		"pages", res.PagesFetched,
		"pages_failed", res.PagesFailed,
		"candidates", res.Candidates,
		"inserted", res.EventsInserted,
		"duplicates", res.DuplicatesSkipped,
		"invalid", res.ValidationFailures,
		"extraction_errors", res.ExtractionErrors,
		"persistence_errors", res.PersistenceErrors)

	return res, nil
}

func (c *Crawler) abort(res *RunResult, err error) (*RunResult, error) {
	res.Status = StatusAborted
	res.AbortReason = err.Error()
	slog.Error("Run aborted", "run", res.ID, "error", err)
	return res, err
}

func (c *Crawler) crawlSource(ctx context.Context, state *RunState, src *source.Config, res *RunResult) error {
	ext, err := extract.New(src, c.now)
	if err != nil {
		res.addFailure(Failure{Stage: StageSource, Source: src.Name, Reasons: []string{err.Error()}})
		slog.Error("Source skipped", "source", src.Name, "error", err)
		return nil
	}

	fetcher := c.fetcher
	if src.Settings.Timeout > 0 {
		fetcher = fetcher.WithTimeout(time.Duration(src.Settings.Timeout) * time.Second)
	}

	for i, pageURL := range src.PageURLs() {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.setPhase(PhaseFetching)
		page, err := fetcher.Fetch(ctx, src.Name, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			var fe *fetch.FetchError
			if src.Paginated() && i > 0 && errors.As(err, &fe) && fe.NotFound() {
				slog.Info("Pagination ended", "source", src.Name, "url", pageURL, "reason", "not found")
				break
			}
			res.PagesFailed++
			res.addFailure(Failure{Stage: StageFetch, Source: src.Name, URL: pageURL, Reasons: []string{err.Error()}})
			metrics.TrackPage(src.Name, false)
			slog.Warn("Page fetch failed", "source", src.Name, "url", pageURL, "error", err)
			continue
		}

		res.PagesFetched++
		metrics.TrackPage(src.Name, true)

		c.setPhase(PhaseExtracting)
		found, err := c.processPage(ctx, state, src, *page, ext, res)
		if err != nil {
			return err
		}

		slog.Debug("Page processed", "source", src.Name, "url", pageURL, "records", found)

		if found == 0 && src.Paginated() {
			slog.Info("Pagination ended", "source", src.Name, "url", pageURL, "reason", "no events")
			break
		}
	}

	return nil
}

func (c *Crawler) processPage(ctx context.Context, state *RunState, src *source.Config, page fetch.RawListingPage, ext extract.Extractor, res *RunResult) (int, error) {
	found := 0
	for candidate, err := range ext.Extract(page) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return found, ctxErr
		}
		found++

		if err != nil {
			res.ExtractionErrors++
			res.addFailure(Failure{Stage: StageExtract, Source: src.Name, URL: page.URL, Reasons: []string{err.Error()}})
			metrics.TrackCandidate(src.Name, metrics.OutcomeExtractionError)
			slog.Warn("Extraction error", "source", src.Name, "url", page.URL, "error", err)
			continue
		}

		res.Candidates++
		c.setPhase(PhaseProcessingCandidates)
		if err := c.processCandidate(ctx, state, candidate, res); err != nil {
			return found, err
		}
		c.setPhase(PhaseExtracting)
	}
	return found, nil
}

func (c *Crawler) processCandidate(ctx context.Context, state *RunState, candidate event.CandidateEvent, res *RunResult) error {
	normalized := c.normalizer.Normalize(candidate)

	result := c.validator.Validate(normalized)
	res.Warnings += len(result.Warnings)
	for _, w := range result.Warnings {
		slog.Debug("Validation warning", "source", candidate.SourceName, "title", normalized.Title, "warning", w)
	}

	if !result.Valid() {
		reasons := make([]string, len(result.Violations))
		for i, v := range result.Violations {
			reasons[i] = v.String()
		}
		res.ValidationFailures++
		res.addFailure(Failure{Stage: StageValidate, Source: candidate.SourceName, URL: candidate.PageURL, Title: normalized.Title, Reasons: reasons})
		metrics.TrackCandidate(candidate.SourceName, metrics.OutcomeInvalid)
		slog.Debug("Candidate rejected", "source", candidate.SourceName, "title", normalized.Title, "error", result.Err())
		return nil
	}

	ev := result.Event
	key := DedupKey(ev)

	duplicate, err := c.dedup.IsDuplicate(ctx, state, ev)
	if err != nil {
		return c.persistFailed(ctx, ev, err, res)
	}
	if duplicate {
		res.DuplicatesSkipped++
		metrics.TrackCandidate(ev.SourceName, metrics.OutcomeDuplicate)
		return nil
	}

	persisted, err := c.persister.Persist(ctx, ev)
	if errors.Is(err, ErrDuplicate) {
		state.Mark(key)
		res.DuplicatesSkipped++
		metrics.TrackCandidate(ev.SourceName, metrics.OutcomeDuplicate)
		return nil
	}
	if err != nil {
		return c.persistFailed(ctx, ev, err, res)
	}

	state.Mark(key)
	res.EventsInserted++
	metrics.TrackCandidate(ev.SourceName, metrics.OutcomeInserted)
	if persisted.OrganizationCreated {
		res.OrganizationsCreated++
		metrics.TrackEntityCreated("organization")
	}
	if persisted.LocationCreated {
		res.LocationsCreated++
		metrics.TrackEntityCreated("location")
	}

	slog.Debug("Event persisted", "source", ev.SourceName, "title", ev.Title, "date", ev.Date.String(), "id", persisted.EventID)
	return nil
}

// persistFailed records a store failure for one event. The run goes on
// unless the store has stopped answering.
func (c *Crawler) persistFailed(ctx context.Context, ev event.ValidatedEvent, err error, res *RunResult) error {
	res.PersistenceErrors++
	res.addFailure(Failure{Stage: StagePersist, Source: ev.SourceName, URL: ev.PageURL, Title: ev.Title, Reasons: []string{err.Error()}})
	metrics.TrackCandidate(ev.SourceName, metrics.OutcomePersistenceError)
	slog.Error("Database error", "operation", "persist_event", "title", ev.Title, "error", err)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if pingErr := c.store.Ping(ctx); pingErr != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, pingErr)
	}
	return nil
}
