package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/kartikbazzad/dlsc/internal/store"
	"github.com/kartikbazzad/dlsc/internal/task"
)

// IOError is returned by SplitBatch on duplicate-in-batch enqueues,
// stopper-triggered abort, or an unrecoverable store failure, per
// section 4.1.
type IOError struct {
	Op  string
	Dir string
	Err error
}

func (e *IOError) Error() string {
	if e.Dir != "" {
		return fmt.Sprintf("dlsc: %s %s: %v", e.Op, e.Dir, e.Err)
	}
	return fmt.Sprintf("dlsc: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// SplitBatch implements the caller façade of section 4.1: list every
// log file under logDirs, install one task per file under a single
// batch, block until the batch terminates, and best-effort clean up
// the source directories. It returns the total raw byte size of every
// file it enqueued.
func (c *Coordinator) SplitBatch(ctx context.Context, logDirs []string) (int64, error) {
	type fileEntry struct {
		path string
		size int64
	}
	var files []fileEntry
	var total int64

	for _, dir := range logDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, &IOError{Op: "list", Dir: dir, Err: err}
		}
		for _, ent := range entries {
			if ent.IsDir() {
				continue
			}
			info, err := ent.Info()
			if err != nil {
				return 0, &IOError{Op: "stat", Dir: dir, Err: err}
			}
			full := filepath.Join(dir, ent.Name())
			files = append(files, fileEntry{path: full, size: info.Size()})
			total += info.Size()
		}
	}

	batch := task.NewBatch()
	for _, f := range files {
		key := store.EncodeTaskKey(f.path)
		if !c.enqueueTask(ctx, key, batch) {
			batch.MarkDead()
			return 0, &IOError{Op: "enqueue", Dir: f.path, Err: fmt.Errorf("duplicate or unrecoverable enqueue")}
		}
	}

	if !batch.Wait(c.stopCh) {
		batch.MarkDead()
		return 0, &IOError{Op: "wait", Err: fmt.Errorf("coordinator stopped while waiting for batch")}
	}

	installed, done, errored := batch.Counts()
	if done+errored < installed {
		batch.MarkDead()
		return 0, &IOError{Op: "wait", Err: fmt.Errorf("batch woke early: %d/%d terminal", done+errored, installed)}
	}

	var cleanupErr *multierror.Error
	for _, dir := range logDirs {
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			cleanupErr = multierror.Append(cleanupErr, fmt.Errorf("%s: %w", dir, err))
		}
	}
	if cleanupErr.ErrorOrNil() != nil {
		c.logFatal("", "source directories not empty after split: "+cleanupErr.Error())
	}

	return total, nil
}
