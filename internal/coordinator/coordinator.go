// Package coordinator implements the DLSC state machine: task
// installation, the event handler driven by store callbacks and
// watches, timeout-based resubmission, dead-worker takeover, and the
// synchronous caller façade.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kartikbazzad/dlsc/internal/audit"
	"github.com/kartikbazzad/dlsc/internal/config"
	"github.com/kartikbazzad/dlsc/internal/metrics"
	"github.com/kartikbazzad/dlsc/internal/store"
	"github.com/kartikbazzad/dlsc/internal/task"
)

// FinishOutcome is what a TaskFinisher reports after running.
type FinishOutcome int

const (
	FinishDone FinishOutcome = iota
	FinishErr
)

// TaskFinisher runs the (out-of-scope) post-processing step after a
// worker reports Done for a task. It is invoked synchronously from the
// event-handler goroutine that observed the Done payload.
type TaskFinisher interface {
	Finish(ctx context.Context, logPath string) FinishOutcome
}

// Coordinator is the master-side recovery coordinator: one instance
// per failed-node recovery process.
type Coordinator struct {
	store    store.Client
	table    *task.Table
	cfg      *config.Config
	metrics  *metrics.Metrics
	audit    *audit.Logger
	finisher TaskFinisher
	selfID   string

	deadMu      sync.Mutex
	deadWorkers map[string]struct{}

	// lastNodeCreateTime is the single shared sample of §5: the most
	// recent moment any task znode was successfully (re)created. It
	// gates the pathological "no workers ever" global rescan.
	lastNodeMu        sync.Mutex
	lastNodeCreate    time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithFinisher installs the TaskFinisher invoked on Done events.
func WithFinisher(f TaskFinisher) Option {
	return func(c *Coordinator) { c.finisher = f }
}

// WithAudit installs an audit logger (nil is valid and disables auditing).
func WithAudit(a *audit.Logger) Option {
	return func(c *Coordinator) { c.audit = a }
}

// WithMetrics installs a metrics set; if omitted, a private unregistered
// set is created so callers never need a nil check.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a Coordinator over the given store backend and
// configuration. Call Start to begin the timeout monitor.
func New(s store.Client, cfg *config.Config, opts ...Option) *Coordinator {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Coordinator{
		store:       s,
		table:       task.NewTable(),
		cfg:         cfg,
		selfID:      uuid.NewString(),
		deadWorkers: make(map[string]struct{}),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(cfg.MetricsNamespace+"_"+c.selfID[:8], c.table.Len)
	}
	return c
}

// Table exposes the task table for introspection (admin HTTP API,
// tests). Callers must not mutate Tasks directly.
func (c *Coordinator) Table() *task.Table { return c.table }

// SelfID returns this coordinator's identity, stamped into Unassigned
// payloads it publishes.
func (c *Coordinator) SelfID() string { return c.selfID }

// Start launches the timeout monitor and, unless skipOrphanDiscovery
// is set, adopts pre-existing tasks from the store namespace.
func (c *Coordinator) Start(ctx context.Context, skipOrphanDiscovery bool) error {
	if !skipOrphanDiscovery {
		if err := c.discoverOrphans(ctx); err != nil {
			return err
		}
	}
	c.wg.Add(1)
	go c.runTimeoutMonitor(ctx)
	return nil
}

// Stop halts the timeout monitor and unblocks every waiting caller and
// table wait. It is idempotent.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// Stopped reports whether Stop has been called.
func (c *Coordinator) Stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// HandleDeadWorker registers a single dead worker name.
func (c *Coordinator) HandleDeadWorker(name string) {
	c.HandleDeadWorkers([]string{name})
}

// HandleDeadWorkers registers a batch of dead worker names. The call
// is non-blocking: the timeout monitor drains this set on its next
// tick and FORCE-resubmits any task they currently own.
func (c *Coordinator) HandleDeadWorkers(names []string) {
	c.deadMu.Lock()
	defer c.deadMu.Unlock()
	for _, n := range names {
		c.deadWorkers[n] = struct{}{}
	}
}

// takeDeadWorkers atomically drains and resets the dead-worker set.
func (c *Coordinator) takeDeadWorkers() map[string]struct{} {
	c.deadMu.Lock()
	defer c.deadMu.Unlock()
	taken := c.deadWorkers
	c.deadWorkers = make(map[string]struct{})
	return taken
}

// reenqueueDeadWorker puts a worker name back into the dead set after a
// failed FORCE-resubmit attempt, so the monitor retries it next tick.
func (c *Coordinator) reenqueueDeadWorker(name string) {
	c.deadMu.Lock()
	defer c.deadMu.Unlock()
	c.deadWorkers[name] = struct{}{}
}

func (c *Coordinator) noteNodeCreated(at time.Time) {
	c.lastNodeMu.Lock()
	defer c.lastNodeMu.Unlock()
	if at.After(c.lastNodeCreate) {
		c.lastNodeCreate = at
	}
}

func (c *Coordinator) lastNodeCreateTime() time.Time {
	c.lastNodeMu.Lock()
	defer c.lastNodeMu.Unlock()
	return c.lastNodeCreate
}

// logFatal records a logic-error-class condition: audited and logged,
// never a crash, per the specification's error-handling policy.
func (c *Coordinator) logFatal(taskKey, msg string) {
	log.Printf("dlsc: logic error on %s: %s", taskKey, msg)
	c.audit.Log(audit.EventLogicError, taskKey, map[string]interface{}{"message": msg})
}
