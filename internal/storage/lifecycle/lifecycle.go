// Package lifecycle tracks the shared engine state machine:
// Unconnected -> Connected -> Initialized -> Closed. Both backends embed
// a Tracker so data operations gate on readiness identically.
package lifecycle

import (
	"fmt"
	"sync/atomic"

	"github.com/logward-dev/logward/pkg/models"
)

// State is the lifecycle position of an engine instance.
type State int32

const (
	Unconnected State = iota
	Connected
	Initialized
	Closed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Initialized:
		return "initialized"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Tracker is a concurrency-safe state holder.
type Tracker struct {
	v atomic.Int32
}

// State returns the current state.
func (t *Tracker) State() State {
	return State(t.v.Load())
}

// Set moves the tracker to s.
func (t *Tracker) Set(s State) {
	t.v.Store(int32(s))
}

// RequireInitialized fails fast when the engine is not ready. Calling a
// data operation early is a programming error, not a transient failure,
// so each pre-ready state maps to its own sentinel.
func (t *Tracker) RequireInitialized() error {
	switch t.State() {
	case Initialized:
		return nil
	case Closed:
		return models.ErrClosed
	case Connected:
		return models.ErrNotInitialized
	default:
		return models.ErrNotConnected
	}
}
