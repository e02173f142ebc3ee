package coordinator

import (
	"context"
	"fmt"

	"github.com/kartikbazzad/dlsc/internal/store"
	"github.com/kartikbazzad/dlsc/internal/task"
)

// discoverOrphans implements section 4.8: pull every pre-existing
// child of the namespace into the task table as an orphan (nil batch)
// and arm a getData/watch on it. Whatever its TaskState turns out to
// be is handled by the ordinary dispatch path in onGetDataResult --
// in particular, an Unassigned orphan still at incarnation 0 is
// force-resubmitted there, closing the crash-between-setData-and-rescan
// window.
func (c *Coordinator) discoverOrphans(ctx context.Context) error {
	names, err := c.store.ListChildrenNoWatch(ctx, store.Namespace)
	if err != nil {
		return fmt.Errorf("coordinator: list orphans: %w", err)
	}

	for _, name := range names {
		key := store.Namespace + "/" + name
		t := task.New(key, nil)
		winner, inserted := c.table.InsertIfAbsent(key, t)
		if !inserted {
			continue
		}
		c.armGetData(ctx, winner, key)
	}
	return nil
}
