// Package statemachine drives the lifecycle of a query from the per-tick "matched"
// signal produced by the pipeline.
//
//	Unknown ──▶ Querying ──matched──▶ Acquiring ──confirmed──▶ Tracking
//	               ▲                     │                        │
//	               └──────unmatched──────┘                     unmatched
//	               ▲                                              ▼
//	           Resuming ◀────────reacquire on loss────────── Unavailable
//
// A timeout that expires outside Tracking halts the machine in Unavailable until it is
// explicitly resumed.
package statemachine

import (
	"time"

	"github.com/proxima-xr/scenematch/pkg/query"
)

// Event is what a transition asks the dispatcher to fire.
type Event uint8

const (
	None Event = iota
	Acquire
	Update
	Loss
	Timeout
)

var eventNames = [...]string{
	None:    "none",
	Acquire: "acquire",
	Update:  "update",
	Loss:    "loss",
	Timeout: "timeout",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "invalid"
}

// Config holds the per-query knobs of a Machine.
type Config struct {
	// ConfirmTicks is how many consecutive matched ticks Acquiring needs before Tracking.
	// Values below 1 are treated as 1.
	ConfirmTicks int

	// Timeout is how long the machine may search without tracking. Zero disables it.
	Timeout time.Duration

	ReacquireOnLoss bool
}

// Machine is the lifecycle state of one query or set. The zero value is a machine in
// Unknown with no deadline.
type Machine struct {
	State  query.State
	Halted bool

	confirmed int
	deadline  time.Time
}

// Start arms the timeout. It is called on registration.
func (m *Machine) Start(now time.Time, cfg Config) {
	m.State = query.Unknown
	m.Halted = false
	m.confirmed = 0
	m.arm(now, cfg)
}

// Resume puts a lost or halted machine back to searching and re-arms the timeout.
func (m *Machine) Resume(now time.Time, cfg Config) {
	m.State = query.Resuming
	m.Halted = false
	m.confirmed = 0
	m.arm(now, cfg)
}

func (m *Machine) arm(now time.Time, cfg Config) {
	if cfg.Timeout > 0 {
		m.deadline = now.Add(cfg.Timeout)
	} else {
		m.deadline = time.Time{}
	}
}

// Deadline returns when the timeout expires, or the zero time when it is disarmed.
func (m *Machine) Deadline() time.Time {
	return m.deadline
}

// Active reports whether the pipeline should evaluate this machine at all.
func (m *Machine) Active() bool {
	return !m.Halted && m.State != query.Unavailable
}

// Step advances the machine by one tick and returns the event to fire, if any. A
// transition fires at most one event.
func (m *Machine) Step(matched bool, now time.Time, cfg Config) Event {
	if m.Halted {
		return None
	}

	confirm := max(cfg.ConfirmTicks, 1)

	event := None
	switch m.State {
	case query.Unknown, query.Querying, query.Resuming:
		if matched {
			m.State = query.Acquiring
			m.confirmed = 0
		} else {
			m.State = query.Querying
		}

	case query.Acquiring:
		if !matched {
			m.State = query.Querying
			m.confirmed = 0
			break
		}
		m.confirmed++
		if m.confirmed >= confirm {
			m.State = query.Tracking
			event = Acquire
		}

	case query.Tracking:
		if matched {
			m.arm(now, cfg)
			return Update
		}
		m.State = query.Unavailable
		if cfg.ReacquireOnLoss {
			m.Resume(now, cfg)
		}
		return Loss

	case query.Unavailable:
		return None
	}

	if event == Acquire {
		m.arm(now, cfg)
		return event
	}

	if m.expired(now) {
		return m.halt()
	}

	return event
}

// Expire times out a searching machine whose deadline passed, without counting a tick
// against it. The pipeline calls it for searches that are not due this tick.
func (m *Machine) Expire(now time.Time) Event {
	if m.Halted || !m.State.Searching() || !m.expired(now) {
		return None
	}
	return m.halt()
}

func (m *Machine) expired(now time.Time) bool {
	return !m.deadline.IsZero() && !now.Before(m.deadline)
}

func (m *Machine) halt() Event {
	m.State = query.Unavailable
	m.Halted = true
	m.confirmed = 0
	return Timeout
}
