package state

import (
	"sync/atomic"
	"testing"
)

func TestManagerGoFunc(t *testing.T) {
	var m Manager

	if m.GetState() != Starting {
		t.Fatalf("bad: %v", m.GetState())
	}
	m.SetState(Running)

	var ran int32
	release := make(chan struct{})
	for i := 0; i < 30; i++ {
		if !m.GoFunc(func() {
			<-release
			atomic.AddInt32(&ran, 1)
		}) {
			t.Fatal("GoFunc refused while running")
		}
	}

	if m.Routines() != 30 {
		t.Fatalf("routines should be 30, not %d", m.Routines())
	}

	if m.Stop() {
		t.Fatal("first Stop should report false")
	}
	if !m.Stop() {
		t.Fatal("second Stop should report true")
	}
	if m.GoFunc(func() {}) {
		t.Fatal("GoFunc should refuse after Stop")
	}

	close(release)
	m.WaitRoutines()

	if atomic.LoadInt32(&ran) != 30 {
		t.Fatalf("ran should be 30, not %d", ran)
	}
	if m.Routines() != 0 {
		t.Fatalf("routines should be 0, not %d", m.Routines())
	}
	if m.GetState().String() != "Shutdown" {
		t.Fatalf("bad: %v", m.GetState())
	}
}

func TestCompareAndSwapState(t *testing.T) {
	var m Manager
	m.SetState(Running)

	if !m.CompareAndSwapState(Running, Syncing) {
		t.Fatal("Running -> Syncing should succeed")
	}
	if m.CompareAndSwapState(Running, Syncing) {
		t.Fatal("state is no longer Running")
	}

	m.Stop()

	if m.CompareAndSwapState(Syncing, Running) {
		t.Fatal("Shutdown must not be overwritten")
	}
	if m.GetState() != Shutdown {
		t.Fatalf("bad: %v", m.GetState())
	}
}
