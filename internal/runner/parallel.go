package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/strandlab/denovar/internal/logging"
	"github.com/strandlab/denovar/internal/regions"
)

// runParallel processes regions with a worker pool. Workers pick up
// regions as they come free; the collector commits results in input
// order so progress saves and the merge stay deterministic. Any region
// error cancels the pool and aborts the run (tool failures are fatal,
// never retried).
func (r *Runner) runParallel(ctx context.Context, runID string, regs []regions.Region) ([]RegionResult, error) {
	workers := r.cfg.Run.Workers
	if workers > len(regs) && len(regs) > 0 {
		workers = len(regs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan regionTask, workers)
	outcomes := make(chan regionOutcome, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := logging.WorkerLogger(workerID)
			for task := range tasks {
				select {
				case <-ctx.Done():
					return
				default:
				}
				log.Debug("processing region", "region", task.Region.Name())
				res, err := r.runRegion(ctx, runID, task.Region)
				select {
				case outcomes <- regionOutcome{Task: task, Result: res, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	// Dispatcher.
	go func() {
		defer close(tasks)
		for i, region := range regs {
			select {
			case tasks <- regionTask{Region: region, Index: i}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	return r.collectInOrder(ctx, runID, len(regs), outcomes)
}

// collectInOrder buffers out-of-order worker results and commits them in
// input order, saving progress after each in-order flush.
func (r *Runner) collectInOrder(ctx context.Context, runID string, total int, outcomes <-chan regionOutcome) ([]RegionResult, error) {
	results := make([]RegionResult, total)
	pending := make(map[int]RegionResult)
	var completed []string
	next := 0

	for next < total {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case out, ok := <-outcomes:
			if !ok {
				return nil, fmt.Errorf("workers stopped with %d of %d regions uncommitted", total-next, total)
			}
			if out.Err != nil {
				return nil, fmt.Errorf("region %s: %w", out.Task.Region.Name(), out.Err)
			}

			pending[out.Task.Index] = out.Result
			for {
				res, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				results[next] = res
				completed = append(completed, res.Region.Name())
				next++
			}
			r.saveProgress(ctx, runID, completed)
		}
	}
	return results, nil
}
