package alerting

import (
	"context"
	"fmt"

	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
	"github.com/mr1hm/disaster-sentinel/internal/worker"
)

// PendingLister finds disasters whose matching pass has not completed.
type PendingLister interface {
	ListDisasters(ctx context.Context, opts repository.DisasterFilter) ([]models.DisasterEvent, error)
}

// Runner executes matching passes on a worker pool so callers never wait
// on dispatch.
type Runner struct {
	engine *Engine
	pool   *worker.Pool[string]
}

func NewRunner(engine *Engine, workers, bufferSize int) *Runner {
	r := &Runner{engine: engine}
	r.pool = worker.NewPool("match", workers, bufferSize, r.run)
	return r
}

func (r *Runner) Start(ctx context.Context) {
	r.pool.Start(ctx)
}

func (r *Runner) Schedule(ctx context.Context, disasterID string) error {
	return r.pool.Submit(ctx, disasterID)
}

// Recover schedules every disaster still marked as unalerted, oldest first.
// Jobs left queued by a previous process are picked up this way. It returns
// the number of disasters scheduled.
func (r *Runner) Recover(ctx context.Context, pending PendingLister) (int, error) {
	unsent := false
	list, err := pending.ListDisasters(ctx, repository.DisasterFilter{AlertsSent: &unsent})
	if err != nil {
		return 0, fmt.Errorf("%w: list pending disasters: %v", models.ErrPersistence, err)
	}

	scheduled := 0
	for i := len(list) - 1; i >= 0; i-- {
		if err := r.Schedule(ctx, list[i].ID); err != nil {
			return scheduled, err
		}
		scheduled++
	}
	return scheduled, nil
}

// Process logs its own failures.
func (r *Runner) run(ctx context.Context, disasterID string) error {
	r.engine.Process(ctx, disasterID)
	return nil
}

// Stop waits for queued passes to finish. The context given to Start must
// still be live for the queue to drain.
func (r *Runner) Stop() {
	r.pool.Stop()
}
