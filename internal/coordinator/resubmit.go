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

// Directive selects how resubmit gates and targets its store write.
type Directive int

const (
	// DirectiveCheck is the normal timeout path: gated by idle duration
	// and the per-task resubmit budget.
	DirectiveCheck Directive = iota
	// DirectiveForce is unconditional: dead-worker takeover, a worker
	// resignation, or an incarnation-0 orphan at startup.
	DirectiveForce
)

func (d Directive) String() string {
	if d == DirectiveForce {
		return "force"
	}
	return "check"
}

// resubmit implements section 4.4: republish key as Unassigned under
// self, gated per directive, and on success emit a rescan marker to
// wake idle workers. Returns false when the resubmit was refused or
// the store write failed outright (the caller decides whether that
// means the task should be marked Failure).
func (c *Coordinator) resubmit(ctx context.Context, t *task.Task, key string, directive Directive) bool {
	if directive == DirectiveCheck {
		allowed, _ := t.ResubmitGate(time.Now(), c.cfg.ManagerTimeout, c.cfg.MaxResubmit)
		if !allowed {
			if t.Snapshot().ThresholdReached {
				c.audit.Log(audit.EventBudgetExhausted, key, nil)
			}
			return false
		}
	}

	incarnation, version := t.BeginResubmit(directive == DirectiveForce)

	payload := codec.Encode(codec.Unassigned(c.selfID))
	err := c.store.SetData(ctx, key, payload, version)

	switch {
	case err == nil:
		t.CompleteResubmit(time.Now(), directive == DirectiveCheck)
		c.metrics.Resubmits.WithLabelValues(directive.String()).Inc()
		if directive == DirectiveForce {
			c.audit.Log(audit.EventForceResubmit, key, map[string]interface{}{"incarnation": incarnation})
		} else {
			c.audit.Log(audit.EventCheckResubmit, key, map[string]interface{}{"incarnation": incarnation})
		}
		c.publishRescanMarker(ctx)
		return true

	case errors.Is(err, store.ErrBadVersion):
		// Someone else observed/mutated the task between our read and
		// our write; defer our next CHECK rather than fighting over it.
		t.Touch()
		return false

	case errors.Is(err, store.ErrNoNode):
		c.markSuccessAndDrop(t, key)
		return true

	default:
		c.metrics.StoreRetries.WithLabelValues("setdata").Inc()
		return false
	}
}

// publishRescanMarker creates the ephemeral sequential child described
// in section 4.5. Workers only need the watch event its creation
// triggers on the namespace, but the coordinator also tracks it as an
// orphan task of its own: arming a getData on it is what lets the
// ordinary Done dispatch path (onDone -> setDone) observe and delete
// it, bounding its residency instead of leaving it for session-end
// ephemeral cleanup.
func (c *Coordinator) publishRescanMarker(ctx context.Context) {
	c.createRescanMarker(ctx, c.cfg.ZKRetries)
}

func (c *Coordinator) createRescanMarker(ctx context.Context, retries int) {
	payload := codec.Encode(codec.Done(c.selfID))
	c.store.AsyncCreate(ctx, store.RescanPrefix, payload, true, true, retries, func(finalPath string, err error) {
		c.onRescanCreateResult(ctx, finalPath, retries, err)
	})
}

func (c *Coordinator) onRescanCreateResult(ctx context.Context, key string, retries int, err error) {
	if c.Stopped() {
		return
	}

	switch {
	case err == nil, errors.Is(err, store.ErrNodeExists):
		c.noteNodeCreated(time.Now())
		c.metrics.RescanMarkers.Inc()
		t := task.New(key, nil)
		if winner, inserted := c.table.InsertIfAbsent(key, t); inserted {
			c.armGetData(ctx, winner, key)
		}

	case errors.Is(err, store.ErrSessionExpired):
		// Abandon.

	default:
		if retries > 0 {
			c.metrics.StoreRetries.WithLabelValues("create").Inc()
			c.createRescanMarker(ctx, retries-1)
			return
		}
		c.logFatal(key, "rescan marker create failed: "+err.Error())
	}
}
