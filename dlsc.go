// Package dlsc is the distributed log-split coordinator: it recovers
// a failed storage node's write-ahead logs by farming per-file split
// work out to a worker fleet through a ZooKeeper/etcd-class
// coordination store, tracking each file's progress as a task in a
// hierarchical namespace of watchable, version-guarded nodes.
package dlsc

import (
	"github.com/kartikbazzad/dlsc/internal/audit"
	"github.com/kartikbazzad/dlsc/internal/config"
	"github.com/kartikbazzad/dlsc/internal/coordinator"
	"github.com/kartikbazzad/dlsc/internal/metrics"
	"github.com/kartikbazzad/dlsc/internal/store"
)

// Re-exported so callers never need to import the internal packages
// directly to wire a Coordinator.
type (
	FinishOutcome = coordinator.FinishOutcome
	TaskFinisher  = coordinator.TaskFinisher
	IOError       = coordinator.IOError
	Config        = config.Config
	StoreClient   = store.Client
)

const (
	FinishDone = coordinator.FinishDone
	FinishErr  = coordinator.FinishErr
)

// Option configures a Coordinator at construction time.
type Option = coordinator.Option

// WithFinisher installs the TaskFinisher invoked on Done events.
func WithFinisher(f TaskFinisher) Option { return coordinator.WithFinisher(f) }

// WithAudit installs an audit logger (nil is valid and disables auditing).
func WithAudit(a *audit.Logger) Option { return coordinator.WithAudit(a) }

// WithMetrics installs a metrics set; if omitted a private unregistered
// set is created.
func WithMetrics(m *metrics.Metrics) Option { return coordinator.WithMetrics(m) }

// Coordinator is the master-side recovery coordinator: one instance
// per failed-node recovery process.
type Coordinator struct {
	*coordinator.Coordinator
}

// New builds a Coordinator over the given coordination-store backend
// and configuration. Call Start before submitting any batch.
func New(backend StoreClient, cfg *Config, opts ...Option) *Coordinator {
	return &Coordinator{coordinator.New(backend, cfg, opts...)}
}

// LoadConfig reads configuration from envFile (optional) and the
// process environment, applying defaults for anything unset.
func LoadConfig(envFile string) (*Config, error) {
	return config.Load(envFile)
}

// DefaultConfig returns the specification's documented defaults.
func DefaultConfig() *Config { return config.Default() }

// NewAuditLogger opens (or, for an empty path, disables) the audit trail.
func NewAuditLogger(path string) (*audit.Logger, error) { return audit.New(path) }

// NewMemStore builds the in-memory coordination-store backend, useful
// for tests and single-process deployments.
func NewMemStore(poolSize int) (StoreClient, error) { return store.NewMemStore(poolSize) }

// NewSQLiteStore builds the durable single-file coordination-store
// backend backed by modernc.org/sqlite.
func NewSQLiteStore(path string, poolSize int) (StoreClient, error) {
	return store.OpenSQLiteStore(path, poolSize)
}
