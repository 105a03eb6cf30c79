// Package alert decides when a run of fall-positive replies becomes an
// operator-facing alert. Two positives in a row raise it, three negatives in
// a row reset it, and a cooldown bounds how often it can re-raise.
package alert

import (
	"sync"
	"time"
)

// State is the externally visible phase of the alert machine.
type State int

const (
	StateQuiet State = iota
	StateSuspect
	StateAlerting
	StateAcknowledged
)

func (s State) String() string {
	switch s {
	case StateQuiet:
		return "quiet"
	case StateSuspect:
		return "suspect"
	case StateAlerting:
		return "alerting"
	case StateAcknowledged:
		return "acknowledged"
	}
	return "unknown"
}

const (
	raiseRequired = 2 // consecutive positives before raising
	clearRequired = 3 // consecutive negatives before resetting
)

// Machine holds the hysteresis counters and display cooldown for one camera.
// All state lives here; replies themselves are stateless.
type Machine struct {
	mu           sync.Mutex
	trueCount    int
	falseCount   int
	showing      bool
	acknowledged bool
	lastShown    time.Time
	cooldown     time.Duration
	now          func() time.Time
}

// NewMachine creates a machine with the given re-raise cooldown.
func NewMachine(cooldown time.Duration) *Machine {
	return &Machine{
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Observe consumes one reply's fall flag and reports whether the alert was
// raised by this observation.
func (m *Machine) Observe(fallDetected bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fallDetected {
		m.trueCount++
		m.falseCount = 0
	} else {
		m.falseCount++
		if m.falseCount >= clearRequired {
			// A sustained negative run ends the incident; a stale
			// acknowledgment must not silence the next distinct fall.
			m.trueCount = 0
			m.acknowledged = false
		}
	}

	if m.trueCount < raiseRequired || m.showing || m.acknowledged {
		return false
	}
	if !m.lastShown.IsZero() && m.now().Sub(m.lastShown) < m.cooldown {
		return false
	}

	m.showing = true
	m.lastShown = m.now()
	return true
}

// Acknowledge records the operator clearing the visible alert. The cooldown
// restarts so continuing positives cannot immediately re-raise.
func (m *Machine) Acknowledge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.showing = false
	m.acknowledged = true
	m.lastShown = m.now()
}

// Showing reports whether the blocking alert is currently visible.
func (m *Machine) Showing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showing
}

// State derives the current phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.showing:
		return StateAlerting
	case m.acknowledged:
		return StateAcknowledged
	case m.trueCount > 0:
		return StateSuspect
	default:
		return StateQuiet
	}
}
