// Package state defines the lifecycle states of a chainlet node and a small
// manager tracking the node's goroutines.
package state

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a chainlet node: Starting, Running, Syncing or
// Shutdown.
type State uint32

const (
	// Starting is the state of a node that has been created but whose
	// background routines have not been launched yet.
	Starting State = iota

	// Running is the state in which a node answers requests, relays gossip
	// and, if enabled, mines.
	Running

	// Syncing is the state in which a node is pulling the chain from its
	// peers. It keeps answering requests meanwhile.
	Syncing

	// Shutdown is the state in which a node stops responding to external events
	// and closes its transport.
	Shutdown
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Syncing:
		return "Syncing"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Manager wraps a State with get and set methods. It is also used to count
// the goroutines launched by the node, and to wait for all of them to
// complete.
type Manager struct {
	state   State
	wg      sync.WaitGroup
	wgLock  sync.Mutex
	wgCount int32
}

// GetState returns the current state.
func (b *Manager) GetState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

// SetState sets the state.
func (b *Manager) SetState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// CompareAndSwapState sets the state to `to` only if it is `from`, and reports
// whether it did.
func (b *Manager) CompareAndSwapState(from, to State) bool {
	stateAddr := (*uint32)(&b.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(from), uint32(to))
}

// GoFunc launches a goroutine for a given function and adds it to the
// waitgroup. It returns false, without launching anything, once the state is
// Shutdown.
func (b *Manager) GoFunc(f func()) bool {
	b.wgLock.Lock()
	defer b.wgLock.Unlock()

	if b.GetState() == Shutdown {
		return false
	}

	b.wg.Add(1)
	atomic.AddInt32(&b.wgCount, 1)
	go func() {
		defer b.wg.Done()
		defer atomic.AddInt32(&b.wgCount, -1)
		f()
	}()
	return true
}

// Routines returns the number of goroutines currently running through GoFunc.
func (b *Manager) Routines() int {
	return int(atomic.LoadInt32(&b.wgCount))
}

// Stop sets the state to Shutdown, so that no new goroutine can be launched,
// and reports whether it was already set.
func (b *Manager) Stop() bool {
	b.wgLock.Lock()
	defer b.wgLock.Unlock()

	if b.GetState() == Shutdown {
		return true
	}
	b.SetState(Shutdown)
	return false
}

// WaitRoutines waits for all the goroutines in the waitgroup.
func (b *Manager) WaitRoutines() {
	b.wg.Wait()
}
