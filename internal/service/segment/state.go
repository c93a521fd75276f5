// Package segment provides recording session numbering and the per-segment
// finalization state machine used by the transcript merger.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a merged segment.
type State int

const (
	// StateOpen - Segment has only received partial revisions.
	StateOpen State = iota
	// StateFinal - A final revision has been merged.
	StateFinal
	// StateClosed - Segment was cleared from merged state.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFinal:
		return "FINAL"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// Errors for transitions that the merger tolerates but reports.
var (
	ErrSegmentClosed       = errors.New("segment is closed")
	ErrFinalAlreadyEmitted = errors.New("final already merged for this segment")
	ErrRevisedAfterFinal   = errors.New("partial revision after final")
)

// Lifecycle tracks finalization of one (resultId, source) segment.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	OPEN ──EmitFinal()──→ FINAL ──Close()──→ CLOSED
//	  ↑                     │
//	  └──EmitPartial()──────┘  (revision reopens, reported as ErrRevisedAfterFinal)
//
// Rules:
//   - OPEN: partials are accepted, the first final transitions to FINAL
//   - FINAL: repeated finals are reported with ErrFinalAlreadyEmitted; a partial
//     reopens the segment so its next final is reported again
//   - CLOSED: all transitions return ErrSegmentClosed
type Lifecycle struct {
	mu    sync.RWMutex
	key   string
	state State
	// finals counts how many times the segment transitioned into FINAL.
	finals int
}

// NewLifecycle creates a new segment lifecycle in OPEN state.
func NewLifecycle(key string) *Lifecycle {
	return &Lifecycle{
		key:   key,
		state: StateOpen,
	}
}

// Key returns the segment key.
func (l *Lifecycle) Key() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.key
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Finals returns how many times the segment was finalized.
func (l *Lifecycle) Finals() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.finals
}

// IsFinal returns true if the latest merged revision is final.
func (l *Lifecycle) IsFinal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateFinal
}

// EmitPartial records a partial revision. A partial after a final reopens the
// segment and returns ErrRevisedAfterFinal.
func (l *Lifecycle) EmitPartial() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateOpen:
		return nil
	case StateFinal:
		l.state = StateOpen
		return ErrRevisedAfterFinal
	case StateClosed:
		return ErrSegmentClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// EmitFinal records a final revision. Returns nil only on the OPEN → FINAL
// transition.
func (l *Lifecycle) EmitFinal() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateOpen:
		l.state = StateFinal
		l.finals++
		return nil
	case StateFinal:
		return ErrFinalAlreadyEmitted
	case StateClosed:
		return ErrSegmentClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Close transitions the segment to CLOSED state. Idempotent.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
}
