package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func mustMemStore(t *testing.T) *MemStore {
	t.Helper()
	m, err := NewMemStore(4)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMemStoreCreateGetSetDelete(t *testing.T) {
	m := mustMemStore(t)
	ctx := context.Background()

	var createErr error
	var createPath string
	done := make(chan struct{})
	m.AsyncCreate(ctx, "/splitlog/a", []byte("hello"), false, false, 0, func(path string, err error) {
		createPath, createErr = path, err
		close(done)
	})
	<-done
	if createErr != nil || createPath != "/splitlog/a" {
		t.Fatalf("create: path=%q err=%v", createPath, createErr)
	}

	var gotData []byte
	var gotVersion int64
	var getErr error
	done = make(chan struct{})
	m.AsyncGetData(ctx, "/splitlog/a", nil, 0, func(path string, data []byte, version int64, err error) {
		gotData, gotVersion, getErr = data, version, err
		close(done)
	})
	<-done
	if getErr != nil || string(gotData) != "hello" || gotVersion != 0 {
		t.Fatalf("getData: data=%q version=%d err=%v", gotData, gotVersion, getErr)
	}

	if err := m.SetData(ctx, "/splitlog/a", []byte("world"), 0); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := m.SetData(ctx, "/splitlog/a", []byte("stale"), 0); err != ErrBadVersion {
		t.Fatalf("SetData stale version: got %v, want ErrBadVersion", err)
	}

	done = make(chan struct{})
	var delErr error
	m.AsyncDelete(ctx, "/splitlog/a", 0, func(path string, err error) {
		delErr = err
		close(done)
	})
	<-done
	if delErr != nil {
		t.Fatalf("delete: %v", delErr)
	}

	done = make(chan struct{})
	m.AsyncGetData(ctx, "/splitlog/a", nil, 0, func(path string, data []byte, version int64, err error) {
		getErr = err
		close(done)
	})
	<-done
	if getErr != ErrNoNode {
		t.Fatalf("getData after delete: got %v, want ErrNoNode", getErr)
	}
}

func TestMemStoreCreateExistingAndNoNode(t *testing.T) {
	m := mustMemStore(t)
	ctx := context.Background()

	await := func(fn func(cb func())) {
		done := make(chan struct{})
		fn(func() { close(done) })
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for async callback")
		}
	}

	await(func(cb func()) {
		m.AsyncCreate(ctx, "/splitlog/b", []byte("x"), false, false, 0, func(string, error) { cb() })
	})

	var secondErr error
	await(func(cb func()) {
		m.AsyncCreate(ctx, "/splitlog/b", []byte("y"), false, false, 0, func(path string, err error) {
			secondErr = err
			cb()
		})
	})
	if secondErr != ErrNodeExists {
		t.Fatalf("second create: got %v, want ErrNodeExists", secondErr)
	}

	if err := m.SetData(ctx, "/splitlog/missing", []byte("z"), -1); err != ErrNoNode {
		t.Fatalf("SetData on missing: got %v, want ErrNoNode", err)
	}
}

func TestMemStoreSequentialCreate(t *testing.T) {
	m := mustMemStore(t)
	ctx := context.Background()

	var paths []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		m.AsyncCreate(ctx, RescanPrefix, []byte("done"), true, true, 0, func(path string, err error) {
			defer wg.Done()
			if err != nil {
				t.Errorf("sequential create: %v", err)
				return
			}
			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
		})
	}
	wg.Wait()

	if len(paths) != 3 {
		t.Fatalf("want 3 distinct sequential paths, got %d: %v", len(paths), paths)
	}
	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("duplicate sequential path %q", p)
		}
		seen[p] = true
		if !IsRescanMarker(p) {
			t.Errorf("path %q not recognized as rescan marker", p)
		}
	}
}

func TestMemStoreWatchFiresOnSetData(t *testing.T) {
	m := mustMemStore(t)
	ctx := context.Background()

	done := make(chan struct{})
	m.AsyncCreate(ctx, "/splitlog/c", []byte("v0"), false, false, 0, func(string, error) { close(done) })
	<-done

	fired := make(chan string, 1)
	watchDone := make(chan struct{})
	m.AsyncGetData(ctx, "/splitlog/c", func(path string) { fired <- path }, 0, func(string, []byte, int64, error) { close(watchDone) })
	<-watchDone

	if err := m.SetData(ctx, "/splitlog/c", []byte("v1"), 0); err != nil {
		t.Fatalf("SetData: %v", err)
	}

	select {
	case p := <-fired:
		if p != "/splitlog/c" {
			t.Errorf("watch fired with path %q", p)
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not fire")
	}
}

func TestMemStoreSessionExpired(t *testing.T) {
	m := mustMemStore(t)
	ctx := context.Background()
	m.ExpireSession()

	if err := m.SetData(ctx, "/splitlog/d", []byte("x"), -1); err != ErrSessionExpired {
		t.Fatalf("SetData after expiry: got %v, want ErrSessionExpired", err)
	}

	done := make(chan struct{})
	var createErr error
	m.AsyncCreate(ctx, "/splitlog/d", []byte("x"), false, false, 0, func(path string, err error) {
		createErr = err
		close(done)
	})
	<-done
	if createErr != ErrSessionExpired {
		t.Fatalf("create after expiry: got %v, want ErrSessionExpired", createErr)
	}
}

func TestMemStoreListChildrenNoWatch(t *testing.T) {
	m := mustMemStore(t)
	ctx := context.Background()

	for _, p := range []string{"/splitlog/a", "/splitlog/b", "/splitlog/nested/c"} {
		done := make(chan struct{})
		m.AsyncCreate(ctx, p, []byte("x"), false, false, 0, func(string, error) { close(done) })
		<-done
	}

	children, err := m.ListChildrenNoWatch(ctx, "/splitlog")
	if err != nil {
		t.Fatalf("ListChildrenNoWatch: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("want 2 immediate children, got %d: %v", len(children), children)
	}
}
