package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ducksgather/harvester/app/api"
	"github.com/ducksgather/harvester/app/cfg"
	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/event"
	"github.com/ducksgather/harvester/app/fetch"
	"github.com/ducksgather/harvester/app/ingest"
	"github.com/ducksgather/harvester/app/source"
	"github.com/ducksgather/harvester/app/tasks"
)

const crawlTimeout = 30 * time.Minute

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Harvester starting", "version", appCfg.Version, "db_path", appCfg.DBPath, "sources_dir", appCfg.SourcesDir)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Debug("Database schema ready", "version", version, "dirty", dirty)

	catalog := source.NewCatalog(appCfg.SourcesDir)
	if err := catalog.Run(); err != nil {
		slog.Error("Failed to load source configurations", "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "count", catalog.GetConfigCount())

	store := database.NewStore(db)
	location := loadLocation(appCfg.Timezone)
	fetcher := fetch.NewFetcher(nil, appCfg.UserAgent, appCfg.FetchTimeout, fetch.RetryPolicy{
		MaxAttempts:    appCfg.MaxAttempts,
		InitialBackoff: appCfg.InitialBackoff,
		MaxBackoff:     appCfg.MaxBackoff,
		Multiplier:     2,
		Retryable:      fetch.IsTransient,
	})

	newCrawler := func(names []string) (*ingest.Crawler, error) {
		configs, err := catalog.GetEnabledConfigs(names...)
		if err != nil {
			return nil, err
		}
		return ingest.NewCrawler(store, fetcher, event.NewValidator(location), configs), nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if appCfg.Serve {
		if err := serve(ctx, appCfg, catalog, store, newCrawler); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
		return
	}

	crawler, err := newCrawler(appCfg.Sources)
	if err != nil {
		slog.Error("Invalid source selection", "sources", appCfg.Sources, "error", err)
		os.Exit(2)
	}

	os.Exit(runOnce(ctx, crawler, store.Runs()))
}

// runOnce performs a single crawl pass, prints the result as JSON and
// returns the process exit code.
func runOnce(ctx context.Context, crawler *ingest.Crawler, runs database.RunRepository) int {
	result, runErr := crawler.Run(ctx)

	if err := runs.SaveRun(context.WithoutCancel(ctx), result.Record()); err != nil {
		slog.Error("Database error", "operation", "save_run", "run", result.ID, "error", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		slog.Error("Failed to write run result", "error", err)
	}

	if runErr != nil || result.Aborted() {
		return 1
	}
	return 0
}

func serve(ctx context.Context, appCfg *cfg.Cfg, catalog *source.Catalog, store *database.Store,
	newCrawler func([]string) (*ingest.Crawler, error)) error {
	scheduler := tasks.NewScheduler(1, 1, crawlTimeout)
	scheduler.Start()
	defer scheduler.Stop()

	newRun := func(names []string) (tasks.TaskInterface, error) {
		crawler, err := newCrawler(names)
		if err != nil {
			return nil, err
		}
		return tasks.NewCrawlTask(names, crawler.Run, store.Runs()), nil
	}

	handler := api.NewHandler(catalog, store.Events(), store.Runs(), scheduler, newRun)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	slog.Info("Harvester shutdown complete")
	return nil
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", name, "error", err)
		return time.Local
	}
	return loc
}
