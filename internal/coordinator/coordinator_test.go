package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kartikbazzad/dlsc/internal/codec"
	"github.com/kartikbazzad/dlsc/internal/config"
	"github.com/kartikbazzad/dlsc/internal/store"
	"github.com/kartikbazzad/dlsc/internal/task"
)

// getDataSync adapts the store's async GetData into a blocking call for
// test harness use only; the coordinator itself never does this.
func getDataSync(t *testing.T, s store.Client, key string) ([]byte, int64, error) {
	t.Helper()
	type result struct {
		data    []byte
		version int64
		err     error
	}
	ch := make(chan result, 1)
	s.AsyncGetData(context.Background(), key, nil, 0, func(path string, data []byte, version int64, err error) {
		ch <- result{data, version, err}
	})
	select {
	case r := <-ch:
		return r.data, r.version, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("getDataSync: timed out")
		return nil, 0, nil
	}
}

// fakeWorkerFleet simulates the out-of-scope worker pool: it polls the
// namespace for Unassigned real tasks (skipping rescan markers) and
// drives them to Owned then Done, so batches submitted against it can
// actually terminate in tests.
type fakeWorkerFleet struct {
	s       store.Client
	name    string
	stop    chan struct{}
	claimed map[string]bool
}

func startFakeWorkerFleet(s store.Client, name string) *fakeWorkerFleet {
	f := &fakeWorkerFleet{s: s, name: name, stop: make(chan struct{}), claimed: make(map[string]bool)}
	go f.run()
	return f
}

func (f *fakeWorkerFleet) run() {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.sweep()
		}
	}
}

func (f *fakeWorkerFleet) sweep() {
	children, err := f.s.ListChildrenNoWatch(context.Background(), store.Namespace)
	if err != nil {
		return
	}
	for _, name := range children {
		key := store.Namespace + "/" + name
		if store.IsRescanMarker(key) || f.claimed[key] {
			continue
		}
		data, version, err := f.peek(key)
		if err != nil || data == nil {
			continue
		}
		state, err := codec.Decode(data)
		if err != nil || state.Variant != codec.VariantUnassigned {
			continue
		}
		if err := f.s.SetData(context.Background(), key, codec.Encode(codec.Owned(f.name)), version); err != nil {
			continue
		}
		f.claimed[key] = true
		go func(key string) {
			time.Sleep(5 * time.Millisecond)
			_, version, err := f.peek(key)
			if err != nil {
				return
			}
			f.s.SetData(context.Background(), key, codec.Encode(codec.Done(f.name)), version)
		}(key)
	}
}

func (f *fakeWorkerFleet) peek(key string) ([]byte, int64, error) {
	type result struct {
		data    []byte
		version int64
		err     error
	}
	ch := make(chan result, 1)
	f.s.AsyncGetData(context.Background(), key, nil, 0, func(path string, data []byte, version int64, err error) {
		ch <- result{data, version, err}
	})
	r := <-ch
	return r.data, r.version, r.err
}

func (f *fakeWorkerFleet) Stop() { close(f.stop) }

func fastTestConfig() *config.Config {
	cfg := config.Default()
	cfg.ManagerTimeout = 30 * time.Millisecond
	cfg.ManagerUnassignedTimeout = 200 * time.Millisecond
	cfg.ManagerTimeoutMonitorPeriod = 10 * time.Millisecond
	cfg.ZKRetries = 3
	cfg.MaxResubmit = 3
	cfg.MetricsNamespace = fmt.Sprintf("dlsc_test_%d", time.Now().UnixNano())
	return cfg
}

func writeTestLogFiles(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("wal-%d.log", i))
		if err := os.WriteFile(path, []byte("some log bytes"), 0o600); err != nil {
			t.Fatalf("write test log file: %v", err)
		}
	}
	return dir
}

func TestSplitBatchHappyPath(t *testing.T) {
	mem, err := store.NewMemStore(8)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	defer mem.Close()

	dir := writeTestLogFiles(t, 3)

	c := New(mem, fastTestConfig())
	ctx := context.Background()
	if err := c.Start(ctx, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	fleet := startFakeWorkerFleet(mem, "worker-1")
	defer fleet.Stop()

	total, err := c.SplitBatch(ctx, []string{dir})
	if err != nil {
		t.Fatalf("SplitBatch: %v", err)
	}
	wantTotal := int64(len("some log bytes") * 3)
	if total != wantTotal {
		t.Fatalf("total = %d, want %d", total, wantTotal)
	}
	if c.Table().Len() != 0 {
		t.Fatalf("table not drained: %d tasks remain", c.Table().Len())
	}
}

func TestTimeoutDrivenResubmit(t *testing.T) {
	mem, err := store.NewMemStore(8)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	defer mem.Close()

	cfg := fastTestConfig()
	c := New(mem, cfg)
	ctx := context.Background()
	if err := c.Start(ctx, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	key := store.EncodeTaskKey("/wal/stale.log")
	batch := task.NewBatch()

	if !c.enqueueTask(ctx, key, batch) {
		t.Fatal("enqueueTask failed")
	}

	// Let the create/getData round trip settle, then claim it with a
	// worker that goes silent forever (no further heartbeats).
	waitForVariant(t, mem, key, codec.VariantUnassigned)
	_, version, err := getDataSync(t, mem, key)
	if err != nil {
		t.Fatalf("getDataSync: %v", err)
	}
	if err := mem.SetData(ctx, key, codec.Encode(codec.Owned("stuck-worker")), version); err != nil {
		t.Fatalf("SetData Owned: %v", err)
	}

	tsk, ok := c.Table().Get(key)
	if !ok {
		t.Fatal("task missing from table")
	}
	waitForCondition(t, func() bool { return tsk.CurWorker() == "stuck-worker" })

	// Now let a fresh worker pick it up once the timeout monitor resubmits.
	fleet := startFakeWorkerFleet(mem, "worker-2")
	defer fleet.Stop()

	waitForCondition(t, func() bool { return tsk.Status() != task.InProgress || batch.Terminated() })
	if !batch.Wait(make(chan struct{})) {
		t.Fatal("batch did not terminate")
	}
	snap := tsk.Snapshot()
	if snap.Incarnation != 1 {
		t.Fatalf("incarnation = %d, want 1", snap.Incarnation)
	}
	if snap.UnforcedResubmits != 1 {
		t.Fatalf("unforced_resubmits = %d, want 1", snap.UnforcedResubmits)
	}
}

func TestDeadWorkerTakeover(t *testing.T) {
	mem, err := store.NewMemStore(8)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	defer mem.Close()

	cfg := fastTestConfig()
	cfg.ManagerTimeout = time.Hour // CHECK must never fire in this test
	c := New(mem, cfg)
	ctx := context.Background()
	if err := c.Start(ctx, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	key := store.EncodeTaskKey("/wal/dead.log")
	batch := task.NewBatch()
	if !c.enqueueTask(ctx, key, batch) {
		t.Fatal("enqueueTask failed")
	}

	waitForVariant(t, mem, key, codec.VariantUnassigned)
	_, version, err := getDataSync(t, mem, key)
	if err != nil {
		t.Fatalf("getDataSync: %v", err)
	}
	if err := mem.SetData(ctx, key, codec.Encode(codec.Owned("worker-A")), version); err != nil {
		t.Fatalf("SetData Owned: %v", err)
	}
	tsk, _ := c.Table().Get(key)
	waitForCondition(t, func() bool { return tsk.CurWorker() == "worker-A" })

	c.HandleDeadWorker("worker-A")

	fleet := startFakeWorkerFleet(mem, "worker-B")
	defer fleet.Stop()

	if !batch.Wait(make(chan struct{})) {
		t.Fatal("batch did not terminate")
	}
	snap := tsk.Snapshot()
	if snap.UnforcedResubmits != 0 {
		t.Fatalf("unforced_resubmits = %d, want 0 (FORCE must not charge the budget)", snap.UnforcedResubmits)
	}
	if snap.Incarnation != 1 {
		t.Fatalf("incarnation = %d, want 1", snap.Incarnation)
	}
}

func TestResubmitBudgetExhausted(t *testing.T) {
	mem, err := store.NewMemStore(8)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	defer mem.Close()

	cfg := fastTestConfig()
	cfg.MaxResubmit = 2
	c := New(mem, cfg)
	ctx := context.Background()
	if err := c.Start(ctx, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	key := store.EncodeTaskKey("/wal/budget.log")
	batch := task.NewBatch()
	if !c.enqueueTask(ctx, key, batch) {
		t.Fatal("enqueueTask failed")
	}
	waitForVariant(t, mem, key, codec.VariantUnassigned)

	tsk, _ := c.Table().Get(key)
	waitForCondition(t, func() bool { return tsk.Snapshot().ThresholdReached })

	if tsk.Snapshot().UnforcedResubmits != cfg.MaxResubmit {
		t.Fatalf("unforced_resubmits = %d, want %d", tsk.Snapshot().UnforcedResubmits, cfg.MaxResubmit)
	}

	// Now an Err report arrives; CHECK-resubmit must be refused, so the
	// task should be marked Failure.
	_, version, err := getDataSync(t, mem, key)
	if err != nil {
		t.Fatalf("getDataSync: %v", err)
	}
	if err := mem.SetData(ctx, key, codec.Encode(codec.Err("worker-x")), version); err != nil {
		t.Fatalf("SetData Err: %v", err)
	}

	waitForCondition(t, func() bool { return tsk.Status() == task.Failure })
}

func TestOrphanAdoptionOnStartup(t *testing.T) {
	mem, err := store.NewMemStore(8)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	defer mem.Close()

	ownedKey := store.EncodeTaskKey("/wal/owned.log")
	unassignedKey := store.EncodeTaskKey("/wal/unassigned.log")

	mustCreate(t, mem, ownedKey, codec.Encode(codec.Owned("prior-worker")))
	mustCreate(t, mem, unassignedKey, codec.Encode(codec.Unassigned("prior-coordinator")))

	cfg := fastTestConfig()
	c := New(mem, cfg)
	ctx := context.Background()
	if err := c.Start(ctx, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	waitForCondition(t, func() bool {
		_, ok := c.Table().Get(ownedKey)
		return ok
	})
	waitForCondition(t, func() bool {
		_, ok := c.Table().Get(unassignedKey)
		return ok
	})

	// The Unassigned orphan at incarnation 0 should be force-resubmitted.
	unassignedTask, _ := c.Table().Get(unassignedKey)
	waitForCondition(t, func() bool { return unassignedTask.Snapshot().Incarnation >= 1 })

	// Adopting the Owned orphan into a fresh batch should succeed and
	// eventually complete once a worker finishes it.
	batch := task.NewBatch()
	if !c.enqueueTask(ctx, ownedKey, batch) {
		t.Fatal("adopting owned orphan should succeed")
	}

	fleet := startFakeWorkerFleet(mem, "worker-recover")
	defer fleet.Stop()
	// The fleet only claims Unassigned tasks; drive the owned orphan to
	// Done directly to simulate its in-flight worker finishing normally.
	ownedTask, _ := c.Table().Get(ownedKey)
	waitForCondition(t, func() bool { return ownedTask != nil })
	_, version, err := getDataSync(t, mem, ownedKey)
	if err != nil {
		t.Fatalf("getDataSync: %v", err)
	}
	if err := mem.SetData(ctx, ownedKey, codec.Encode(codec.Done("prior-worker")), version); err != nil {
		t.Fatalf("SetData Done: %v", err)
	}

	if !batch.Wait(make(chan struct{})) {
		t.Fatal("batch did not terminate")
	}
}

func TestDuplicateInBatchFails(t *testing.T) {
	mem, err := store.NewMemStore(8)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	defer mem.Close()

	cfg := fastTestConfig()
	c := New(mem, cfg)
	ctx := context.Background()
	if err := c.Start(ctx, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	key := store.EncodeTaskKey("/wal/dup.log")
	batch := task.NewBatch()
	if !c.enqueueTask(ctx, key, batch) {
		t.Fatal("first enqueue should succeed")
	}
	if c.enqueueTask(ctx, key, batch) {
		t.Fatal("duplicate enqueue within the same live batch should fail")
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func waitForVariant(t *testing.T, s store.Client, key string, want codec.Variant) {
	t.Helper()
	waitForCondition(t, func() bool {
		data, _, err := getDataSync(t, s, key)
		if err != nil || data == nil {
			return false
		}
		state, err := codec.Decode(data)
		return err == nil && state.Variant == want
	})
}

func mustCreate(t *testing.T, s store.Client, key string, payload []byte) {
	t.Helper()
	done := make(chan error, 1)
	s.AsyncCreate(context.Background(), key, payload, false, false, 0, func(path string, err error) {
		done <- err
	})
	if err := <-done; err != nil {
		t.Fatalf("AsyncCreate(%s): %v", key, err)
	}
}
