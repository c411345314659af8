package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fathomlab/fathom/domain"
	"github.com/fathomlab/fathom/internal/adapter/search"
	"github.com/fathomlab/fathom/policy"
)

// TaskOutcome is one task's result, tagged with its submission index.
// Outcomes arrive in completion order; callers needing submission order
// re-sort by Index after the stream ends.
type TaskOutcome struct {
	Index   int
	Records []domain.Record
	Err     error
}

// Dispatcher runs a batch of independent gathering tasks concurrently and
// streams outcomes as they complete. A failing task never cancels or aborts
// its siblings.
type Dispatcher struct {
	provider search.Provider
	policy   *policy.Engine
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher over the given provider. The policy
// engine gates every task before its fetch; a blocked task surfaces as a
// normal task error.
func NewDispatcher(provider search.Provider, pol *policy.Engine, timeout time.Duration) *Dispatcher {
	return &Dispatcher{provider: provider, policy: pol, timeout: timeout}
}

// RunBatch launches every task and returns a channel of outcomes in
// completion order. The channel closes only after every task has finished;
// an empty batch closes immediately.
func (d *Dispatcher) RunBatch(ctx context.Context, tasks []domain.TaskSpec) <-chan TaskOutcome {
	out := make(chan TaskOutcome, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task domain.TaskSpec) {
			defer wg.Done()
			records, err := d.runTask(ctx, task)
			out <- TaskOutcome{Index: i, Records: records, Err: err}
		}(i, task)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (d *Dispatcher) runTask(ctx context.Context, task domain.TaskSpec) ([]domain.Record, error) {
	if d.policy != nil {
		decision, reason, err := d.policy.Evaluate(ctx, map[string]interface{}{
			"capability": task.Capability,
			"query":      task.Query,
		})
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed: %w", err)
		}
		if decision != "allow" {
			return nil, fmt.Errorf("capability %s blocked by policy: %s", task.Capability, reason)
		}
	}

	fetchCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	records, err := d.provider.Fetch(fetchCtx, task)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", task.Capability, err)
	}
	return records, nil
}
