package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ducksgather/harvester/app/database"
	"github.com/ducksgather/harvester/app/event"
	"github.com/ducksgather/harvester/app/tasks"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	defaultRunLimit   = 20
)

func NewHandler(catalog SourceCatalog, eventRepo database.EventRepository,
	runRepo database.RunRepository, scheduler tasks.TaskSchedulerInterface,
	newRun RunFactory) *Handler {
	return &Handler{
		eventRepo: eventRepo,
		runRepo:   runRepo,
		catalog:   catalog,
		scheduler: scheduler,
		newRun:    newRun,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"busy":      h.scheduler.Busy(),
	}

	if eventCount, err := h.eventRepo.GetEventCount(c.Request.Context()); err == nil {
		health["events"] = eventCount
	}

	health["loaded_configurations"] = h.catalog.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"sources": h.catalog.GetConfigCount(),
		"busy":    h.scheduler.Busy(),
	}

	eventCount, err := h.eventRepo.GetEventCount(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_event_count", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	stats["events"] = eventCount

	runs, err := h.runRepo.ListRuns(c.Request.Context(), 1)
	if err != nil {
		slog.Error("Database error", "operation", "list_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if len(runs) > 0 {
		stats["last_run"] = newRunView(runs[0], false)
	}

	c.JSON(http.StatusOK, stats)
}

// ListEvents serves the read-only event listing.
func (h *Handler) ListEvents(c *gin.Context) {
	filter := database.EventFilter{Limit: defaultEventLimit}

	if category := c.Query("category"); category != "" {
		canonical, ok := event.CanonicalCategory(category)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category", "categories": event.Categories})
			return
		}
		filter.Category = canonical
	}

	for _, param := range []struct {
		name string
		dst  *string
	}{{"from", &filter.From}, {"to", &filter.To}} {
		value := c.Query(param.name)
		if value == "" {
			continue
		}
		d, err := event.ParseDate(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param.name + " date, expected YYYY-MM-DD"})
			return
		}
		*param.dst = d.String()
	}

	if filter.From != "" && filter.To != "" && filter.To < filter.From {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = min(n, maxEventLimit)
	}

	events, err := h.eventRepo.ListEvents(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Database error", "operation", "list_events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, newEventView(ev))
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"events": views,
		"total":  len(views),
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	configs := h.catalog.GetConfigs()

	sources := make([]map[string]interface{}, 0, len(configs))
	for _, sourceConfig := range configs {
		sources = append(sources, map[string]interface{}{
			"name":                    sourceConfig.Name,
			"format":                  sourceConfig.Format,
			"urls":                    sourceConfig.URLs,
			"paginated":               sourceConfig.Paginated(),
			"enabled":                 sourceConfig.Settings.Enabled,
			"timeout":                 (time.Duration(sourceConfig.Settings.Timeout) * time.Second).String(),
			"recurrence_horizon_days": sourceConfig.Settings.RecurrenceHorizonDays,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIListRuns(c *gin.Context) {
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.runRepo.ListRuns(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(run, false))
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  views,
		"total": len(views),
		"busy":  h.scheduler.Busy(),
	})
}

func (h *Handler) APIGetRun(c *gin.Context) {
	id := c.Param("id")

	run, err := h.runRepo.GetRun(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_run", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	c.JSON(http.StatusOK, newRunView(*run, true))
}

func (h *Handler) APITriggerRun(c *gin.Context) {
	var req triggerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	if h.scheduler.Busy() {
		c.JSON(http.StatusConflict, gin.H{"error": "A crawl is already queued or running"})
		return
	}

	task, err := h.newRun(req.Sources)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sources", "details": err.Error()})
		return
	}

	if err := h.scheduler.EnqueueTask(task); err != nil {
		if errors.Is(err, tasks.ErrQueueFull) {
			c.JSON(http.StatusConflict, gin.H{"error": "A crawl is already queued or running"})
			return
		}
		slog.Error("Error enqueueing crawl task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue crawl task", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Crawl task enqueued",
		"task": gin.H{
			"id":      task.GetID(),
			"type":    task.GetType(),
			"sources": task.GetSources(),
		},
	})
}
