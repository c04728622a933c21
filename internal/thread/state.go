package thread

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mrodrigues/memegram/internal/bus"
)

// State represents the synchronizer lifecycle for the active peer pair.
type State string

const (
	// Idle: no peer selected, no feed attached.
	Idle State = "IDLE"
	// Loading: initial fetch in flight for the selected pair.
	Loading State = "LOADING"
	// Live: fetch complete, change feed attached.
	Live State = "LIVE"
)

// validTransitions defines allowed state transitions. Loading → Loading
// covers switching peers while a fetch is still in flight.
var validTransitions = map[State][]State{
	Idle:    {Loading, Idle},
	Loading: {Live, Loading, Idle},
	Live:    {Loading, Idle},
}

// Machine tracks and enforces thread lifecycle transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil && from != to {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindThreadState,
			Timestamp: time.Now(),
			Payload:   StateChange{From: from, To: to},
		})
	}
	return nil
}

// StateChange is the payload for thread state change events.
type StateChange struct {
	From State
	To   State
}
