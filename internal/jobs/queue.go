// Package jobs tracks detached long-running operations in memory. Enqueue
// returns before any work happens; the job record is the only observable
// handle to progress. Records do not survive a restart (accepted limitation).
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/processor"
	"github.com/jonesrussell/catalog-classifier/internal/telemetry"
)

const defaultMaxRecords = 200

// Pager materializes the backfill working set.
type Pager interface {
	ListAllProducts(ctx context.Context, since string, max int) ([]domain.Product, error)
}

// Proc processes one product.
type Proc interface {
	Process(ctx context.Context, product *domain.Product, opts processor.Options) (*processor.Outcome, error)
}

// Queue owns all job records.
type Queue struct {
	mu         sync.RWMutex
	jobs       map[string]*domain.Job
	order      []string
	maxRecords int

	pager     Pager
	proc      Proc
	telemetry *telemetry.Provider
	logger    logger.Logger
}

// NewQueue creates a job queue bounded to maxRecords retained job records.
func NewQueue(pager Pager, proc Proc, maxRecords int, log logger.Logger, tp *telemetry.Provider) *Queue {
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Queue{
		jobs:       make(map[string]*domain.Job),
		maxRecords: maxRecords,
		pager:      pager,
		proc:       proc,
		telemetry:  tp,
		logger:     log,
	}
}

// EnqueueBackfill registers a backfill job and starts it detached, returning
// the job ID immediately.
func (q *Queue) EnqueueBackfill(params domain.JobParams) string {
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      domain.JobKindBackfill,
		Params:    params,
		Status:    domain.JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	q.add(job)
	if q.telemetry != nil {
		q.telemetry.Metrics.JobsStarted.Inc()
	}
	q.logger.Info("backfill job enqueued",
		logger.String("job_id", job.ID),
		logger.String("since", params.Since),
		logger.Int("limit", params.Limit),
	)

	go q.runBackfill(job.ID, params)
	return job.ID
}

// Status returns a copy of the job record.
func (q *Queue) Status(jobID string) (*domain.Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// List returns up to limit job records, most recent first.
func (q *Queue) List(limit int) []domain.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if limit <= 0 || limit > len(q.order) {
		limit = len(q.order)
	}
	out := make([]domain.Job, 0, limit)
	for i := len(q.order) - 1; i >= 0 && len(out) < limit; i-- {
		if job, ok := q.jobs[q.order[i]]; ok {
			out = append(out, *job)
		}
	}
	return out
}

// runBackfill feeds every paged product through the processor sequentially.
// A pager failure fails the job; per-item failures are counted and the pass
// continues (batch semantics).
func (q *Queue) runBackfill(jobID string, params domain.JobParams) {
	ctx := context.Background()

	products, err := q.pager.ListAllProducts(ctx, params.Since, params.Limit)
	if err != nil {
		q.finish(jobID, nil, fmt.Errorf("list products: %w", err))
		return
	}

	result := domain.BackfillResult{}
	for i := range products {
		outcome, procErr := q.proc.Process(ctx, &products[i], processor.Options{Source: "backfill"})
		switch {
		case procErr != nil:
			result.Failed++
			q.logger.Warn("backfill item failed",
				logger.String("job_id", jobID),
				logger.Int64("product_id", products[i].ID),
				logger.Error(procErr),
			)
		case outcome.Status == processor.StatusSkipped:
			result.Skipped++
		default:
			result.Processed++
		}
	}
	q.finish(jobID, result, nil)
}

func (q *Queue) add(job *domain.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.evictLocked()
}

// evictLocked drops the oldest finished records past the cap. Running jobs
// are never evicted.
func (q *Queue) evictLocked() {
	if len(q.order) <= q.maxRecords {
		return
	}
	kept := q.order[:0]
	excess := len(q.order) - q.maxRecords
	for _, id := range q.order {
		job := q.jobs[id]
		if excess > 0 && job != nil && job.Status != domain.JobStatusRunning {
			delete(q.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
}

func (q *Queue) finish(jobID string, result any, jobErr error) {
	now := time.Now().UTC()

	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if ok {
		job.FinishedAt = &now
		if jobErr != nil {
			job.Status = domain.JobStatusFailed
			job.Error = jobErr.Error()
		} else {
			job.Status = domain.JobStatusCompleted
			job.Result = result
		}
	}
	q.mu.Unlock()

	if jobErr != nil {
		if q.telemetry != nil {
			q.telemetry.Metrics.JobsFailed.Inc()
		}
		q.logger.Error("job failed", logger.String("job_id", jobID), logger.Error(jobErr))
		return
	}
	if q.telemetry != nil {
		q.telemetry.Metrics.JobsCompleted.Inc()
	}
	q.logger.Info("job completed", logger.String("job_id", jobID))
}
