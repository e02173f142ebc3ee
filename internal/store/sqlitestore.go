package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a standalone coordination-store backend for running
// DLSC without a real ensemble: useful for development and for small
// single-node deployments that need task state to survive a
// coordinator restart. It does not support multi-writer coordination
// across processes — that guarantee belongs to the out-of-scope real
// store implementation. The ephemeral flag is not recorded: ephemeral
// nodes persist like any other node until they are deleted.
type SQLiteStore struct {
	db   *sql.DB
	pool *ants.Pool
	mu   sync.Mutex

	watchMu  sync.Mutex
	watchers map[string][]WatchHandler

	sessExp bool
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed store at
// dbPath.
func OpenSQLiteStore(dbPath string, poolSize int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			path TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			ephemeral INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS sequences (
			parent TEXT PRIMARY KEY,
			next INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	if poolSize <= 0 {
		poolSize = 64
	}
	p, err := ants.NewPool(poolSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating dispatch pool: %w", err)
	}

	return &SQLiteStore{db: db, pool: p, watchers: make(map[string][]WatchHandler)}, nil
}

func (s *SQLiteStore) dispatch(fn func()) {
	if err := s.pool.Submit(fn); err != nil {
		fn()
	}
}

func (s *SQLiteStore) sessionExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessExp
}

// ExpireSession simulates loss of the backend session.
func (s *SQLiteStore) ExpireSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessExp = true
}

func (s *SQLiteStore) AsyncCreate(ctx context.Context, path string, data []byte, _, sequential bool, _ int, cb CreateResultFunc) {
	s.dispatch(func() {
		if s.sessionExpired() {
			if cb != nil {
				cb(path, ErrSessionExpired)
			}
			return
		}

		finalPath := path
		if sequential {
			tx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				if cb != nil {
					cb(path, err)
				}
				return
			}
			var next int64
			row := tx.QueryRow(`SELECT next FROM sequences WHERE parent = ?`, path)
			if err := row.Scan(&next); err != nil {
				next = 0
			}
			if _, err := tx.Exec(`INSERT INTO sequences(parent, next) VALUES (?, ?)
				ON CONFLICT(parent) DO UPDATE SET next = excluded.next`, path, next+1); err != nil {
				tx.Rollback()
				if cb != nil {
					cb(path, err)
				}
				return
			}
			tx.Commit()
			finalPath = fmt.Sprintf("%s%010d", path, next)
		}

		_, err := s.db.ExecContext(ctx, `INSERT INTO nodes(path, data, version) VALUES (?, ?, 0)`, finalPath, data)
		if err != nil {
			if cb != nil {
				cb(finalPath, ErrNodeExists)
			}
			return
		}
		if cb != nil {
			cb(finalPath, nil)
		}
	})
}

func (s *SQLiteStore) AsyncGetData(ctx context.Context, path string, watcher WatchHandler, _ int, cb GetDataResultFunc) {
	s.dispatch(func() {
		if s.sessionExpired() {
			if cb != nil {
				cb(path, nil, 0, ErrSessionExpired)
			}
			return
		}
		var data []byte
		var version int64
		row := s.db.QueryRowContext(ctx, `SELECT data, version FROM nodes WHERE path = ?`, path)
		if err := row.Scan(&data, &version); err != nil {
			if cb != nil {
				cb(path, nil, 0, ErrNoNode)
			}
			return
		}
		if watcher != nil {
			s.watchMu.Lock()
			s.watchers[path] = append(s.watchers[path], watcher)
			s.watchMu.Unlock()
		}
		if cb != nil {
			cb(path, data, version, nil)
		}
	})
}

func (s *SQLiteStore) SetData(ctx context.Context, path string, data []byte, expectedVersion int64) error {
	if s.sessionExpired() {
		return ErrSessionExpired
	}

	var current int64
	row := s.db.QueryRowContext(ctx, `SELECT version FROM nodes WHERE path = ?`, path)
	if err := row.Scan(&current); err != nil {
		return ErrNoNode
	}
	if expectedVersion != -1 && expectedVersion != current {
		return ErrBadVersion
	}

	res, err := s.db.ExecContext(ctx, `UPDATE nodes SET data = ?, version = version + 1 WHERE path = ? AND version = ?`, data, path, current)
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBadVersion
	}

	s.watchMu.Lock()
	watchers := s.watchers[path]
	delete(s.watchers, path)
	s.watchMu.Unlock()
	for _, w := range watchers {
		w(path)
	}
	return nil
}

func (s *SQLiteStore) AsyncDelete(ctx context.Context, path string, _ int, cb DeleteResultFunc) {
	s.dispatch(func() {
		if s.sessionExpired() {
			if cb != nil {
				cb(path, ErrSessionExpired)
			}
			return
		}
		res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, path)
		if err != nil {
			if cb != nil {
				cb(path, err)
			}
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if cb != nil {
				cb(path, ErrNoNode)
			}
			return
		}
		if cb != nil {
			cb(path, nil)
		}
	})
}

func (s *SQLiteStore) ListChildrenNoWatch(ctx context.Context, path string) ([]string, error) {
	if s.sessionExpired() {
		return nil, ErrSessionExpired
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM nodes WHERE path LIKE ? || '/%'`, path)
	if err != nil {
		return nil, fmt.Errorf("store: list children: %w", err)
	}
	defer rows.Close()

	prefix := path + "/"
	var children []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		rest := p[len(prefix):]
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
	return children, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.pool.Release()
	return s.db.Close()
}
