package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/ingest"
)

// RunFunc performs one ingestion run.
type RunFunc func(ctx context.Context) (*ingest.RunResult, error)

// CrawlTask runs the pipeline once and records the outcome. Only runs the
// store aborted are retried; anything else is final.
type CrawlTask struct {
	Task
	run  RunFunc
	runs database.RunRepository
}

func NewCrawlTask(sources []string, run RunFunc, runs database.RunRepository) *CrawlTask {
	return &CrawlTask{
		Task: NewTask(TaskTypeCrawl, sources),
		run:  run,
		runs: runs,
	}
}

func (t *CrawlTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, runErr := t.run(ctx)
	if result != nil && t.runs != nil {
		// Saved with a fresh context so aborted runs are still recorded.
		if err := t.runs.SaveRun(context.WithoutCancel(ctx), result.Record()); err != nil {
			slog.Error("Database error", "operation", "save_run", "run", result.ID, "error", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, ingest.ErrStoreUnavailable) {
			return fmt.Errorf("crawl aborted: %w", runErr)
		}
		t.MaxRetries = t.RetryCount
		return fmt.Errorf("crawl failed: %w", runErr)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"run", result.ID,
		"duration", t.GetDuration(),
		"pages", result.PagesFetched,
		"candidates", result.Candidates,
		"inserted", result.EventsInserted,
		"duplicates", result.DuplicatesSkipped,
		"invalid", result.ValidationFailures)

	return nil
}
