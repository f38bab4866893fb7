package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/tabpipe/store"
)

// Pool runs jobs across a bounded set of workers.
type Pool struct {
	workers int
	logger  *slog.Logger
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{workers: workers, logger: logger}
}

// Run dispatches jobs to the workers and blocks until every job is
// accounted for. done is invoked exactly once per job, from worker
// goroutines, so it must be safe for concurrent use.
//
// Cancellation stops dispatch of new jobs; in-flight jobs run to
// completion. Jobs never dispatched still get a result via done, marked
// as errors, so the final report covers the whole enumeration.
//
// A panic inside handle is caught at the job boundary and folded into an
// error summary for that job alone.
func (p *Pool) Run(ctx context.Context, jobs []Job, handle func(context.Context, Job) store.DocSummary, done func(Job, store.DocSummary)) {
	jobCh := make(chan Job)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				done(j, p.safeHandle(ctx, j, handle))
			}
		}()
	}

	dispatched := 0
feed:
	for _, j := range jobs {
		select {
		case jobCh <- j:
			dispatched++
		case <-ctx.Done():
			p.logger.Warn("batch: run canceled, finishing in-flight jobs",
				"dispatched", dispatched, "remaining", len(jobs)-dispatched)
			break feed
		}
	}
	close(jobCh)
	wg.Wait()

	for _, j := range jobs[dispatched:] {
		done(j, store.DocSummary{
			Filename:  j.Name,
			Winner:    "none",
			Status:    "error",
			Error:     "batch canceled before this document was processed",
			Storage:   "ok",
			OutputDir: j.OutDir,
		})
	}
}

func (p *Pool) safeHandle(ctx context.Context, j Job, handle func(context.Context, Job) store.DocSummary) (sum store.DocSummary) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("batch: worker panic", "file", j.Name, "panic", r)
			sum = store.DocSummary{
				Filename:  j.Name,
				Winner:    "none",
				Status:    "error",
				Error:     fmt.Sprintf("worker panic: %v", r),
				Storage:   "ok",
				OutputDir: j.OutDir,
			}
		}
	}()
	return handle(ctx, j)
}
