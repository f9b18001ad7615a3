package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/processor"
)

type fakePager struct {
	products []domain.Product
	err      error
	block    chan struct{}
}

func (f *fakePager) ListAllProducts(_ context.Context, _ string, _ int) ([]domain.Product, error) {
	if f.block != nil {
		<-f.block
	}
	return f.products, f.err
}

type fakeProc struct {
	mu      sync.Mutex
	calls   int
	skipIDs map[int64]bool
	failIDs map[int64]bool
}

func (f *fakeProc) Process(_ context.Context, product *domain.Product, _ processor.Options) (*processor.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failIDs[product.ID] {
		return nil, errors.New("write failed")
	}
	if f.skipIDs[product.ID] {
		return &processor.Outcome{Status: processor.StatusSkipped}, nil
	}
	return &processor.Outcome{Status: processor.StatusProcessed}, nil
}

func waitForStatus(t *testing.T, q *Queue, jobID string, want domain.JobStatus) domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		current, ok := q.Status(jobID)
		if !ok {
			return false
		}
		job = current
		return current.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return *job
}

func TestEnqueueBackfillReturnsImmediately(t *testing.T) {
	pager := &fakePager{block: make(chan struct{})}
	q := NewQueue(pager, &fakeProc{}, 10, nil, nil)

	start := time.Now()
	jobID := q.EnqueueBackfill(domain.JobParams{})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	job, ok := q.Status(jobID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusRunning, job.Status)

	close(pager.block)
	waitForStatus(t, q, jobID, domain.JobStatusCompleted)
}

func TestBackfillCountsOutcomes(t *testing.T) {
	pager := &fakePager{products: []domain.Product{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}}
	proc := &fakeProc{
		skipIDs: map[int64]bool{2: true},
		failIDs: map[int64]bool{3: true},
	}
	q := NewQueue(pager, proc, 10, nil, nil)

	jobID := q.EnqueueBackfill(domain.JobParams{})
	job := waitForStatus(t, q, jobID, domain.JobStatusCompleted)

	result, ok := job.Result.(domain.BackfillResult)
	require.True(t, ok)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	require.NotNil(t, job.FinishedAt)
}

func TestBackfillPagerFailureFailsJob(t *testing.T) {
	pager := &fakePager{err: errors.New("listing exploded")}
	q := NewQueue(pager, &fakeProc{}, 10, nil, nil)

	jobID := q.EnqueueBackfill(domain.JobParams{})
	job := waitForStatus(t, q, jobID, domain.JobStatusFailed)
	assert.Contains(t, job.Error, "listing exploded")
}

func TestStatusUnknownJob(t *testing.T) {
	q := NewQueue(&fakePager{}, &fakeProc{}, 10, nil, nil)
	_, ok := q.Status("no-such-job")
	assert.False(t, ok)
}

func TestListMostRecentFirst(t *testing.T) {
	pager := &fakePager{}
	q := NewQueue(pager, &fakeProc{}, 10, nil, nil)

	var ids []string
	for range 3 {
		ids = append(ids, q.EnqueueBackfill(domain.JobParams{}))
	}
	for _, id := range ids {
		waitForStatus(t, q, id, domain.JobStatusCompleted)
	}

	listed := q.List(0)
	require.Len(t, listed, 3)
	assert.Equal(t, ids[2], listed[0].ID)
	assert.Equal(t, ids[0], listed[2].ID)

	limited := q.List(2)
	assert.Len(t, limited, 2)
}

func TestEvictionKeepsRunningJobs(t *testing.T) {
	pager := &fakePager{block: make(chan struct{})}
	q := NewQueue(pager, &fakeProc{}, 2, nil, nil)

	running := q.EnqueueBackfill(domain.JobParams{Since: "running"})
	more := []string{
		q.EnqueueBackfill(domain.JobParams{}),
		q.EnqueueBackfill(domain.JobParams{}),
		q.EnqueueBackfill(domain.JobParams{}),
	}

	// All four jobs are running and over the cap of two; none may be evicted.
	for _, id := range append([]string{running}, more...) {
		_, ok := q.Status(id)
		assert.True(t, ok, "running job %s must not be evicted", id)
	}

	close(pager.block)
	for _, id := range more {
		waitForStatus(t, q, id, domain.JobStatusCompleted)
	}
	waitForStatus(t, q, running, domain.JobStatusCompleted)

	// Enqueueing past the cap now evicts the oldest finished records.
	final := q.EnqueueBackfill(domain.JobParams{})
	waitForStatus(t, q, final, domain.JobStatusCompleted)
	assert.LessOrEqual(t, len(q.List(0)), 3)
}

func TestConcurrentEnqueues(t *testing.T) {
	q := NewQueue(&fakePager{}, &fakeProc{}, 100, nil, nil)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ids[n] = q.EnqueueBackfill(domain.JobParams{Since: fmt.Sprintf("job-%d", n)})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "job IDs must be unique")
		seen[id] = true
	}
}
