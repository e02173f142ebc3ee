package task

import (
	"testing"
	"time"
)

func TestMarkTerminalOnlyOnce(t *testing.T) {
	tk := New("k1", NewBatch())

	ok, batch := tk.MarkTerminal(Success)
	if !ok || batch == nil {
		t.Fatalf("first MarkTerminal: ok=%v batch=%v", ok, batch)
	}
	if tk.Status() != Success {
		t.Fatalf("status = %v, want Success", tk.Status())
	}

	ok, _ = tk.MarkTerminal(Failure)
	if ok {
		t.Fatal("second MarkTerminal should be a no-op")
	}
	if tk.Status() != Success {
		t.Fatalf("status changed after no-op MarkTerminal: %v", tk.Status())
	}
}

func TestWaitDeletedUnblocksOnMarkDeleted(t *testing.T) {
	tk := New("k1", nil)
	tk.MarkTerminal(Failure)

	done := make(chan bool, 1)
	go func() { done <- tk.WaitDeleted(make(chan struct{})) }()

	select {
	case <-done:
		t.Fatal("WaitDeleted returned before MarkDeleted was called")
	case <-time.After(20 * time.Millisecond):
	}

	tk.MarkDeleted()
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("WaitDeleted returned false without a stop signal")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitDeleted did not unblock after MarkDeleted")
	}
}

func TestWaitDeletedUnblocksOnStop(t *testing.T) {
	tk := New("k1", nil)
	tk.MarkTerminal(Failure)

	stop := make(chan struct{})
	done := make(chan bool, 1)
	go func() { done <- tk.WaitDeleted(stop) }()

	close(stop)
	select {
	case ok := <-done:
		if ok {
			t.Fatal("WaitDeleted should report false on stop")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitDeleted did not unblock on stop")
	}
}

func TestHeartbeatIgnoresStaleVersion(t *testing.T) {
	tk := New("k1", nil)

	if !tk.Heartbeat(1, "worker-a") {
		t.Fatal("first heartbeat should advance state")
	}
	if tk.Heartbeat(1, "worker-a") {
		t.Fatal("duplicate heartbeat at same version/worker should be ignored")
	}
	if !tk.Heartbeat(1, "worker-b") {
		t.Fatal("same version but different worker should still advance")
	}
	if !tk.Heartbeat(2, "worker-b") {
		t.Fatal("version advance should always be accepted")
	}
	if tk.CurWorker() != "worker-b" {
		t.Fatalf("cur_worker = %q, want worker-b", tk.CurWorker())
	}
}

func TestResubmitGateTimeoutAndBudget(t *testing.T) {
	tk := New("k1", nil)
	tk.Heartbeat(1, "worker-a")

	now := time.Now()
	if allowed, _ := tk.ResubmitGate(now, time.Minute, 3); allowed {
		t.Fatal("CHECK should be refused before timeout elapses")
	}

	later := now.Add(2 * time.Minute)
	for i := 0; i < 3; i++ {
		allowed, _ := tk.ResubmitGate(later, time.Minute, 3)
		if !allowed {
			t.Fatalf("CHECK #%d should be allowed under budget", i+1)
		}
		tk.BeginResubmit(false)
		tk.CompleteResubmit(later, true)
	}

	allowed, _ := tk.ResubmitGate(later, time.Minute, 3)
	if allowed {
		t.Fatal("CHECK should be refused once unforced_resubmits reaches max_resubmit")
	}
	snap := tk.Snapshot()
	if !snap.ThresholdReached {
		t.Fatal("threshold_reached should latch on first budget refusal")
	}
	if snap.UnforcedResubmits != 3 {
		t.Fatalf("unforced_resubmits = %d, want 3", snap.UnforcedResubmits)
	}
}

func TestBeginResubmitVersionsByDirective(t *testing.T) {
	tk := New("k1", nil)
	tk.Heartbeat(5, "worker-a")

	incarnation, version := tk.BeginResubmit(false)
	if incarnation != 1 || version != 5 {
		t.Fatalf("CHECK BeginResubmit = (%d, %d), want (1, 5)", incarnation, version)
	}

	incarnation, version = tk.BeginResubmit(true)
	if incarnation != 2 || version != -1 {
		t.Fatalf("FORCE BeginResubmit = (%d, %d), want (2, -1)", incarnation, version)
	}
}

func TestCompleteResubmitChargesBudgetOnlyWhenAsked(t *testing.T) {
	tk := New("k1", nil)
	tk.Heartbeat(1, "worker-a")

	tk.CompleteResubmit(time.Now(), false)
	if tk.Snapshot().UnforcedResubmits != 0 {
		t.Fatal("FORCE-style completion must not charge the resubmit budget")
	}
	tk.CompleteResubmit(time.Now(), true)
	if tk.Snapshot().UnforcedResubmits != 1 {
		t.Fatal("CHECK-style completion must charge the resubmit budget")
	}
	if tk.CurWorker() != "" {
		t.Fatal("CompleteResubmit should clear cur_worker")
	}
}
