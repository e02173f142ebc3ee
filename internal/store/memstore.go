package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// node is one key's server-side state.
type node struct {
	data      []byte
	version   int64
	ephemeral bool
	watchers  []WatchHandler
}

// MemStore is an in-memory reference implementation of Client. It is
// used by the coordinator's test suite and by single-process demos; it
// makes no attempt at persistence or multi-process coordination.
// Async callbacks are dispatched through a bounded ants.Pool rather
// than one goroutine per call, bounding concurrency the way docdb's
// request scheduler bounds its own worker fan-out.
type MemStore struct {
	mu       sync.Mutex
	nodes    map[string]*node
	seq      map[string]int64 // next sequence suffix per parent path
	pool     *ants.Pool
	sessExp  bool
	stopOnce sync.Once
}

// NewMemStore creates an in-memory store backend with an async
// dispatch pool sized for the given concurrency.
func NewMemStore(poolSize int) (*MemStore, error) {
	if poolSize <= 0 {
		poolSize = 64
	}
	p, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("store: creating dispatch pool: %w", err)
	}
	return &MemStore{
		nodes: make(map[string]*node),
		seq:   make(map[string]int64),
		pool:  p,
	}, nil
}

// ExpireSession simulates the backend's session being invalidated;
// every subsequent call returns ErrSessionExpired, matching real
// ensemble behavior after a client's session times out.
func (m *MemStore) ExpireSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessExp = true
}

func (m *MemStore) dispatch(fn func()) {
	if err := m.pool.Submit(fn); err != nil {
		// Pool is closed; run inline so callers still get a callback
		// rather than hanging forever.
		fn()
	}
}

func (m *MemStore) AsyncCreate(_ context.Context, path string, data []byte, ephemeral, sequential bool, _ int, cb CreateResultFunc) {
	m.dispatch(func() {
		m.mu.Lock()
		if m.sessExp {
			m.mu.Unlock()
			if cb != nil {
				cb(path, ErrSessionExpired)
			}
			return
		}

		finalPath := path
		if sequential {
			n := m.seq[path]
			finalPath = fmt.Sprintf("%s%010d", path, n)
			m.seq[path] = n + 1
		}

		if _, exists := m.nodes[finalPath]; exists {
			m.mu.Unlock()
			if cb != nil {
				cb(finalPath, ErrNodeExists)
			}
			return
		}

		m.nodes[finalPath] = &node{data: append([]byte(nil), data...), version: 0, ephemeral: ephemeral}
		m.mu.Unlock()
		if cb != nil {
			cb(finalPath, nil)
		}
	})
}

func (m *MemStore) AsyncGetData(_ context.Context, path string, watcher WatchHandler, _ int, cb GetDataResultFunc) {
	m.dispatch(func() {
		m.mu.Lock()
		if m.sessExp {
			m.mu.Unlock()
			if cb != nil {
				cb(path, nil, 0, ErrSessionExpired)
			}
			return
		}
		n, ok := m.nodes[path]
		if !ok {
			m.mu.Unlock()
			if cb != nil {
				cb(path, nil, 0, ErrNoNode)
			}
			return
		}
		if watcher != nil {
			n.watchers = append(n.watchers, watcher)
		}
		data, version := n.data, n.version
		m.mu.Unlock()
		if cb != nil {
			cb(path, data, version, nil)
		}
	})
}

func (m *MemStore) SetData(_ context.Context, path string, data []byte, expectedVersion int64) error {
	m.mu.Lock()
	if m.sessExp {
		m.mu.Unlock()
		return ErrSessionExpired
	}
	n, ok := m.nodes[path]
	if !ok {
		m.mu.Unlock()
		return ErrNoNode
	}
	if expectedVersion != -1 && expectedVersion != n.version {
		m.mu.Unlock()
		return ErrBadVersion
	}
	n.data = append([]byte(nil), data...)
	n.version++
	watchers := n.watchers
	n.watchers = nil
	m.mu.Unlock()

	for _, w := range watchers {
		w(path)
	}
	return nil
}

func (m *MemStore) AsyncDelete(_ context.Context, path string, _ int, cb DeleteResultFunc) {
	m.dispatch(func() {
		m.mu.Lock()
		if m.sessExp {
			m.mu.Unlock()
			if cb != nil {
				cb(path, ErrSessionExpired)
			}
			return
		}
		if _, ok := m.nodes[path]; !ok {
			m.mu.Unlock()
			if cb != nil {
				cb(path, ErrNoNode)
			}
			return
		}
		delete(m.nodes, path)
		m.mu.Unlock()
		if cb != nil {
			cb(path, nil)
		}
	})
}

func (m *MemStore) ListChildrenNoWatch(_ context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessExp {
		return nil, ErrSessionExpired
	}
	prefix := path + "/"
	var children []string
	for p := range m.nodes {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			rest := p[len(prefix):]
			// Only immediate children: no further "/" in rest.
			direct := true
			for _, c := range rest {
				if c == '/' {
					direct = false
					break
				}
			}
			if direct {
				children = append(children, rest)
			}
		}
	}
	return children, nil
}

func (m *MemStore) Close() error {
	m.stopOnce.Do(func() {
		m.pool.Release()
	})
	return nil
}
