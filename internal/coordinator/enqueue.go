package coordinator

import (
	"context"

	"github.com/kartikbazzad/dlsc/internal/codec"
	"github.com/kartikbazzad/dlsc/internal/task"
)

// enqueueTask installs key under batch, implementing the collision
// rules of the specification's createTaskIfAbsent (section 4.2).
// Returns false if the call should fail the whole batch (duplicate
// key owned by a live batch, or interrupted while waiting for a prior
// incarnation's delete).
func (c *Coordinator) enqueueTask(ctx context.Context, key string, batch *task.Batch) bool {
	fresh := task.New(key, batch)
	winner, inserted := c.table.InsertIfAbsent(key, fresh)
	if inserted {
		batch.Install()
		c.metrics.TasksInstalled.Inc()
		c.publishUnassigned(ctx, winner, key)
		return true
	}

	existingBatch := winner.Batch()
	if existingBatch != nil && !existingBatch.IsDead() {
		// Another live batch (or this same batch, for a duplicate-in-batch
		// enqueue) already owns this key.
		return false
	}

	switch winner.Status() {
	case task.InProgress:
		// Orphan recovered from the store at startup (or left behind by a
		// dead batch): adopt it.
		winner.SetBatch(batch)
		batch.Install()
		c.metrics.TasksInstalled.Inc()
		return true

	case task.Success:
		// Already done; there is no completion event left to fire, so we
		// "install" without counting it against the batch's termination
		// predicate.
		return true

	case task.Failure:
		if !winner.WaitDeleted(c.stopCh) {
			return false
		}
		return c.enqueueTask(ctx, key, batch)

	default: // Deleted: shouldn't be observable in the table, but retry is safe.
		return c.enqueueTask(ctx, key, batch)
	}
}

// publishUnassigned issues the asynchronous create that publishes a
// fresh Unassigned payload at key.
func (c *Coordinator) publishUnassigned(ctx context.Context, t *task.Task, key string) {
	payload := codec.Encode(codec.Unassigned(c.selfID))
	c.asyncCreateWithRetry(ctx, t, key, payload, c.cfg.ZKRetries)
}
