// Package store defines the coordination-store contract DLSC consumes
// (asynchronous create/getData-with-watch/delete, blocking
// version-guarded setData, child listing) and ships two concrete
// backends that satisfy it. The actual production coordination store
// (a ZooKeeper/etcd-class ensemble) is out of scope per the
// specification; DLSC is written against this interface alone.
package store

import (
	"context"
	"errors"
)

// Well-known result classes a backend must distinguish. Any other
// error is a transient store error subject to the caller's retry
// budget.
var (
	// ErrNodeExists is returned by Create when the key already has a
	// value; the coordinator treats this as non-fatal.
	ErrNodeExists = errors.New("store: node exists")
	// ErrNoNode is returned by GetData/Delete/SetData when the key
	// does not exist; the coordinator treats this as the task having
	// already been deleted by a prior success.
	ErrNoNode = errors.New("store: no node")
	// ErrSessionExpired is returned by any call once the client's
	// session with the store has been invalidated. It is terminal:
	// the coordinator abandons retries and expects the process to be
	// restarted externally.
	ErrSessionExpired = errors.New("store: session expired")
	// ErrBadVersion is returned by SetData when expectedVersion does
	// not match the key's current version.
	ErrBadVersion = errors.New("store: version mismatch")
)

// CreateResultFunc receives the outcome of an asynchronous Create call.
type CreateResultFunc func(path string, err error)

// GetDataResultFunc receives the outcome of an asynchronous GetData
// call: the payload, its store-side version, and any error
// (ErrNoNode, ErrSessionExpired, or a transient error).
type GetDataResultFunc func(path string, data []byte, version int64, err error)

// DeleteResultFunc receives the outcome of an asynchronous Delete call.
type DeleteResultFunc func(path string, err error)

// WatchHandler is invoked at most once per armed watch, when the
// watched key's data changes. Re-arming requires issuing a fresh
// GetData call.
type WatchHandler func(path string)

// Client is the coordination-store contract required by DLSC. All
// async methods accept a caller-owned retry budget: backends must not
// retry internally — retry-on-failure is the coordinator's
// responsibility (spec section 7).
type Client interface {
	// AsyncCreate creates path with the given data. A pre-existing
	// node is reported via ErrNodeExists, not treated as a hard
	// failure by the backend — the coordinator decides how to handle
	// it. If sequential is true the backend appends a monotonic
	// sequence suffix and the resulting path is passed to cb.
	// Ephemeral nodes are removed by the backend when the client's
	// session ends.
	AsyncCreate(ctx context.Context, path string, data []byte, ephemeral, sequential bool, retries int, cb CreateResultFunc)

	// AsyncGetData reads path's current value and arms a one-shot
	// watch that invokes watcher exactly once on the next data change.
	// A nil watcher arms no watch.
	AsyncGetData(ctx context.Context, path string, watcher WatchHandler, retries int, cb GetDataResultFunc)

	// SetData is a blocking, version-guarded conditional write.
	// expectedVersion == -1 disables the version check. Returns
	// ErrBadVersion on mismatch, ErrNoNode if the key vanished.
	SetData(ctx context.Context, path string, data []byte, expectedVersion int64) error

	// AsyncDelete deletes path.
	AsyncDelete(ctx context.Context, path string, retries int, cb DeleteResultFunc)

	// ListChildrenNoWatch lists the immediate children of path without
	// arming any watch.
	ListChildrenNoWatch(ctx context.Context, path string) ([]string, error)

	// Close releases backend resources (goroutine pools, file handles).
	Close() error
}
