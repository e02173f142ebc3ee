package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/kartikbazzad/dlsc/internal/audit"
	"github.com/kartikbazzad/dlsc/internal/codec"
	"github.com/kartikbazzad/dlsc/internal/store"
	"github.com/kartikbazzad/dlsc/internal/task"
)

// asyncCreateWithRetry issues an AsyncCreate and drives the retry
// budget on failure, per the create-result handling of section 4.3.
func (c *Coordinator) asyncCreateWithRetry(ctx context.Context, t *task.Task, key string, payload []byte, retries int) {
	c.store.AsyncCreate(ctx, key, payload, false, false, retries, func(path string, err error) {
		c.onCreateResult(ctx, t, key, payload, retries, err)
	})
}

func (c *Coordinator) onCreateResult(ctx context.Context, t *task.Task, key string, payload []byte, retries int, err error) {
	if c.Stopped() {
		return
	}

	switch {
	case err == nil:
		c.noteNodeCreated(time.Now())
		c.armGetData(ctx, t, key)

	case errors.Is(err, store.ErrNodeExists):
		// Pre-existing task znode from a prior incarnation; proceed as
		// if the create had succeeded.
		c.armGetData(ctx, t, key)

	case errors.Is(err, store.ErrSessionExpired):
		// Abandon: the process is expected to exit externally.

	default:
		if retries > 0 {
			c.metrics.StoreRetries.WithLabelValues("create").Inc()
			c.asyncCreateWithRetry(ctx, t, key, payload, retries-1)
			return
		}
		if transitioned, batch := t.MarkTerminal(task.Failure); transitioned {
			c.onTaskFailure(t, key, batch)
		}
	}
}

// armGetData issues a getData call with a watch armed, used both after
// a successful create and after any event that should re-observe the
// task's current payload.
func (c *Coordinator) armGetData(ctx context.Context, t *task.Task, key string) {
	c.store.AsyncGetData(ctx, key, func(path string) {
		c.onWatchEvent(ctx, t, path)
	}, c.cfg.ZKRetries, func(path string, data []byte, version int64, err error) {
		c.onGetDataResult(ctx, t, path, data, version, c.cfg.ZKRetries, err)
	})
}

func (c *Coordinator) onWatchEvent(ctx context.Context, t *task.Task, key string) {
	if c.Stopped() {
		return
	}
	// A watch fires on any data change; heartbeat optimistically (even
	// without the new version in hand yet) and re-arm by re-issuing
	// getData, which both refreshes last_version and re-arms the watch.
	t.Touch()
	c.armGetData(ctx, t, key)
}

func (c *Coordinator) onGetDataResult(ctx context.Context, t *task.Task, key string, data []byte, version int64, retries int, err error) {
	if c.Stopped() {
		return
	}

	switch {
	case err == nil:
		c.dispatchPayload(ctx, t, key, data, version)

	case errors.Is(err, store.ErrNoNode):
		// The task vanished beneath us. The coordinator only deletes a
		// task key after the task reached a terminal state, so this is
		// treated as success.
		c.markSuccessAndDrop(t, key)

	case errors.Is(err, store.ErrSessionExpired):
		// Abandon.

	default:
		if retries > 0 {
			c.metrics.StoreRetries.WithLabelValues("getdata").Inc()
			c.store.AsyncGetData(ctx, key, func(path string) { c.onWatchEvent(ctx, t, path) }, retries-1,
				func(path string, data []byte, version int64, err error) {
					c.onGetDataResult(ctx, t, path, data, version, retries-1, err)
				})
			return
		}
		if transitioned, batch := t.MarkTerminal(task.Failure); transitioned {
			c.onTaskFailure(t, key, batch)
		}
	}
}

// dispatchPayload decodes data and dispatches on its TaskState variant
// (section 4.3's getData-success table).
func (c *Coordinator) dispatchPayload(ctx context.Context, t *task.Task, key string, data []byte, version int64) {
	if data == nil {
		// Null data at a non-sentinel version is a logic error.
		c.logFatal(key, "nil payload with non-sentinel version")
		if transitioned, batch := t.MarkTerminal(task.Failure); transitioned {
			c.onTaskFailure(t, key, batch)
		}
		return
	}

	state, err := codec.Decode(data)
	if err != nil {
		// Deserialization failure: log and drop, do not mutate state.
		c.logFatal(key, "malformed task state payload: "+err.Error())
		return
	}

	switch state.Variant {
	case codec.VariantUnassigned:
		c.onUnassigned(ctx, t, key)

	case codec.VariantOwned:
		t.Heartbeat(version, state.Owner)

	case codec.VariantResigned:
		if !c.resubmit(ctx, t, key, DirectiveForce) {
			if transitioned, batch := t.MarkTerminal(task.Failure); transitioned {
				c.onTaskFailure(t, key, batch)
			}
		}

	case codec.VariantDone:
		c.onDone(ctx, t, key)

	case codec.VariantErr:
		if !c.resubmit(ctx, t, key, DirectiveCheck) {
			if transitioned, batch := t.MarkTerminal(task.Failure); transitioned {
				c.onTaskFailure(t, key, batch)
			}
		}

	default:
		c.logFatal(key, "unrecognized state tag")
		if transitioned, batch := t.MarkTerminal(task.Failure); transitioned {
			c.onTaskFailure(t, key, batch)
		}
	}
}

// onUnassigned covers the orphan-startup race of section 4.3: a prior
// manager that died between marking a task Unassigned and emitting its
// rescan. Only incarnation-0 orphans are force-resubmitted here — see
// DESIGN.md for the Open Question this preserves from the source.
func (c *Coordinator) onUnassigned(ctx context.Context, t *task.Task, key string) {
	if t.Batch() != nil || t.Incarnation() != 0 {
		return
	}
	c.resubmit(ctx, t, key, DirectiveForce)
}

// onDone runs the configured finisher (if any) and transitions the
// task to Success/delete, or resubmits on finisher failure. A rescan
// marker (never attached to a real log file) always skips the
// finisher and goes straight to setDone, which is what bounds its
// residency to the coordinator's own observation of its Done payload.
func (c *Coordinator) onDone(ctx context.Context, t *task.Task, key string) {
	if !store.IsRescanMarker(key) && c.finisher != nil {
		logPath, err := store.DecodeTaskKey(key)
		if err != nil {
			c.logFatal(key, "undecodable task key: "+err.Error())
			return
		}
		switch c.finisher.Finish(ctx, logPath) {
		case FinishDone:
			// fall through to the success path below
		case FinishErr:
			if !c.resubmit(ctx, t, key, DirectiveCheck) {
				if transitioned, batch := t.MarkTerminal(task.Failure); transitioned {
					c.onTaskFailure(t, key, batch)
				}
			}
			return
		}
	}

	c.setDone(ctx, t, key)
}

func (c *Coordinator) onTaskFailure(t *task.Task, key string, batch *task.Batch) {
	c.metrics.TasksErrored.Inc()
	c.audit.Log(audit.EventTaskFailure, key, nil)
	if batch != nil {
		batch.MarkError()
	}
	c.scheduleDelete(context.Background(), t, key)
}

// markSuccessAndDrop handles the "vanished task key" paths (a NONODE
// from getData or from resubmit's setData): both treat the observation
// as a completed task that should be dropped from the table.
func (c *Coordinator) markSuccessAndDrop(t *task.Task, key string) {
	transitioned, batch := t.MarkTerminal(task.Success)
	if transitioned {
		c.metrics.TasksDone.Inc()
		if batch != nil {
			batch.MarkDone()
		}
	}
	t.MarkDeleted()
	c.table.Remove(key, t)
}
