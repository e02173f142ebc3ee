package coordinator

import (
	"context"
	"time"

	"github.com/kartikbazzad/dlsc/internal/task"
)

// runTimeoutMonitor is the periodic chore of section 4.6. It runs
// until Stop is called, ticking every ManagerTimeoutMonitorPeriod.
func (c *Coordinator) runTimeoutMonitor(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ManagerTimeoutMonitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.timeoutMonitorTick(ctx)
		}
	}
}

func (c *Coordinator) timeoutMonitorTick(ctx context.Context) {
	dead := c.takeDeadWorkers()

	var total, unassigned int
	c.table.Each(func(key string, t *task.Task) {
		snap := t.Snapshot()
		if snap.Status != task.InProgress {
			return
		}
		total++
		if snap.CurWorker == "" {
			unassigned++
		}

		if snap.CurWorker != "" {
			if _, isDead := dead[snap.CurWorker]; isDead {
				if c.resubmit(ctx, t, key, DirectiveForce) {
					c.metrics.DeadWorkerTakeovers.Inc()
				} else {
					c.reenqueueDeadWorker(snap.CurWorker)
				}
				return
			}
		}

		// Every task not just taken over by a dead-worker FORCE still
		// gets a CHECK attempt; the timeout/budget gate inside resubmit
		// decides whether it is actually due.
		c.resubmit(ctx, t, key, DirectiveCheck)
	})

	if total > 0 && unassigned == total &&
		time.Since(c.lastNodeCreateTime()) > c.cfg.ManagerUnassignedTimeout {
		c.globalRescanSweep(ctx)
	}
}

// globalRescanSweep implements step 5 of section 4.6: when every
// tracked task has sat unassigned past the unassigned-timeout window,
// confirm each znode is still live and nudge workers with one fresh
// rescan marker. This is a belt-and-suspenders recovery for the
// pathological case where no worker has ever shown up to race a
// resubmit, so ordinary CHECK resubmission alone would busy-loop
// without ever waking anyone.
func (c *Coordinator) globalRescanSweep(ctx context.Context) {
	c.table.Each(func(key string, t *task.Task) {
		snap := t.Snapshot()
		if snap.Status != task.InProgress || snap.CurWorker != "" {
			return
		}
		c.store.AsyncGetData(ctx, key, nil, 0, func(path string, data []byte, version int64, err error) {})
	})
	c.publishRescanMarker(ctx)
}
