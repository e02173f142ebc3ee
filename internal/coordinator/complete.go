package coordinator

import (
	"context"
	"errors"

	"github.com/kartikbazzad/dlsc/internal/store"
	"github.com/kartikbazzad/dlsc/internal/task"
)

// setDone implements section 4.7: transition an InProgress task to a
// terminal outcome, bump its batch's counters, and unconditionally
// schedule the task's delete. Task keys are globally unique per log
// file, so there is never a risk of deleting a successor incarnation's
// node out from under it.
func (c *Coordinator) setDone(ctx context.Context, t *task.Task, key string) {
	transitioned, batch := t.MarkTerminal(task.Success)
	if transitioned {
		c.metrics.TasksDone.Inc()
		if batch != nil {
			batch.MarkDone()
		}
	}
	c.scheduleDelete(ctx, t, key)
}

// scheduleDelete issues the async delete with an effectively-infinite
// retry budget described in section 4.7. A persistent non-NONODE
// failure is a logic error: retries never truly exhaust, so this path
// only fires if the backend itself is permanently broken.
func (c *Coordinator) scheduleDelete(ctx context.Context, t *task.Task, key string) {
	const infiniteRetries = 1 << 30
	c.asyncDeleteWithRetry(ctx, t, key, infiniteRetries)
}

func (c *Coordinator) asyncDeleteWithRetry(ctx context.Context, t *task.Task, key string, retries int) {
	c.store.AsyncDelete(ctx, key, retries, func(path string, err error) {
		c.onDeleteResult(ctx, t, path, retries, err)
	})
}

func (c *Coordinator) onDeleteResult(ctx context.Context, t *task.Task, key string, retries int, err error) {
	switch {
	case err == nil, errors.Is(err, store.ErrNoNode):
		// NONODE is idempotent success: something else (or a prior
		// delete attempt whose callback we never saw) already removed it.
		t.MarkDeleted()
		c.table.Remove(key, t)

	case errors.Is(err, store.ErrSessionExpired):
		// Abandon; the process is expected to exit externally.

	default:
		if retries > 0 {
			c.metrics.StoreRetries.WithLabelValues("delete").Inc()
			c.asyncDeleteWithRetry(ctx, t, key, retries-1)
			return
		}
		c.logFatal(key, "delete retries exhausted: "+err.Error())
	}
}
