// Package api exposes the HTTP surface: the product-update webhook, the
// command endpoint, backfill and job inspection, rule management, and the
// classification history feed.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/catalog-classifier/internal/commands"
	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/history"
	"github.com/jonesrussell/catalog-classifier/internal/jobs"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/processor"
	"github.com/jonesrussell/catalog-classifier/internal/rules"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ProductProcessor is the processing surface the webhook dispatches to.
type ProductProcessor interface {
	Process(ctx context.Context, product *domain.Product, opts processor.Options) (*processor.Outcome, error)
}

// CommandRunner executes a command batch.
type CommandRunner interface {
	Handle(ctx context.Context, req commands.Request) *commands.Response
}

// HistoryLister reads the classification audit log.
type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Handler handles HTTP requests for the classification API.
type Handler struct {
	processor     ProductProcessor
	interpreter   CommandRunner
	queue         *jobs.Queue
	store         *rules.Store
	history       HistoryLister
	webhookSecret string
	logger        logger.Logger
}

// NewHandler creates a new API handler. history may be nil when the audit
// log is disabled.
func NewHandler(
	proc ProductProcessor,
	interpreter CommandRunner,
	queue *jobs.Queue,
	store *rules.Store,
	hist HistoryLister,
	webhookSecret string,
	log logger.Logger,
) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		processor:     proc,
		interpreter:   interpreter,
		queue:         queue,
		store:         store,
		history:       hist,
		webhookSecret: webhookSecret,
		logger:        log,
	}
}

// RunCommands handles POST /api/v1/commands.
func (h *Handler) RunCommands(c *gin.Context) {
	var req commands.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Commands) == 0 && req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "commands or prompt is required"})
		return
	}

	resp := h.interpreter.Handle(c.Request.Context(), req)

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

// BackfillRequest bounds a backfill job.
type BackfillRequest struct {
	Since string `json:"since,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// StartBackfill handles POST /api/v1/backfill. The job runs detached; the
// response carries the ID to poll.
func (h *Handler) StartBackfill(c *gin.Context) {
	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := h.queue.EnqueueBackfill(domain.JobParams{Since: req.Since, Limit: req.Limit})

	h.logger.Info("Backfill enqueued",
		logger.String("job_id", jobID),
		logger.String("since", req.Since),
		logger.Int("limit", req.Limit),
	)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *Handler) GetJob(c *gin.Context) {
	job, ok := h.queue.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	c.JSON(http.StatusOK, gin.H{"jobs": h.queue.List(limit)})
}

// ListRules handles GET /api/v1/rules.
func (h *Handler) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.store.List()})
}

// CreateRule handles POST /api/v1/rules.
func (h *Handler) CreateRule(c *gin.Context) {
	var rule domain.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Add(rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Rule added", logger.String("rule", rule.Name))
	c.JSON(http.StatusCreated, gin.H{"rule": rule})
}

// DeleteRule handles DELETE /api/v1/rules/:name.
func (h *Handler) DeleteRule(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.Remove(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Rule removed", logger.String("rule", name))
	c.JSON(http.StatusOK, gin.H{"removed": name})
}

// ReloadRules handles POST /api/v1/rules/reload. A failed reload keeps the
// previous rule set active.
func (h *Handler) ReloadRules(c *gin.Context) {
	if err := h.store.Reload(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": len(h.store.List())})
}

// ListHistory handles GET /api/v1/history.
func (h *Handler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is not configured"})
		return
	}

	entries, err := h.history.ListRecent(c.Request.Context(), parseLimit(c.Query("limit")))
	if err != nil {
		h.logger.Error("History query failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
