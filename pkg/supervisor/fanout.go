package supervisor

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/deepresearch/pkg/research"
)

// runBatch fans one turn's delegations out to workers, bounded by
// max_concurrent_units. Findings come back indexed by submission position so
// the transcript ordering is deterministic no matter which worker finishes
// first.
func (s *Supervisor) runBatch(ctx context.Context, brief *research.Brief, subQuestions []string) ([]*research.Findings, error) {
	tasks := make([]*research.WorkerTask, len(subQuestions))
	for i, subQuestion := range subQuestions {
		tasks[i] = research.NewWorkerTask(brief, subQuestion,
			s.cfg.MaxWorkerIterations, s.cfg.MaxWorkerToolCalls)
	}

	findings := make([]*research.Findings, len(tasks))
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrentUnits))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				findings[i] = research.FailedFindings(task.ID, research.ErrCancelled)
				return
			}
			defer sem.Release(1)

			findings[i] = s.runner.Run(ctx, task)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return findings, research.ErrCancelled
	}
	return findings, nil
}
