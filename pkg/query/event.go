package query

import (
	"github.com/oklog/ulid/v2"
)

// EventKind names a lifecycle transition that fires a handler.
type EventKind uint8

const (
	EventAcquire EventKind = iota + 1
	EventUpdate
	EventLoss
	EventTimeout
)

var eventKindNames = [...]string{
	EventAcquire: "acquire",
	EventUpdate:  "update",
	EventLoss:    "loss",
	EventTimeout: "timeout",
}

func (k EventKind) String() string {
	if k > 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "invalid"
}

// Event is one lifecycle transition, as seen by observers. Exactly one of Result and
// SetResult is set for acquire, update and loss events; timeouts carry neither.
type Event struct {
	ID   ulid.ULID
	Kind EventKind
	Tick uint64

	// QueryMatchID is the id of the standalone query or of the set.
	QueryMatchID QueryMatchID
	// State is the lifecycle state after the transition.
	State State

	Result    *Result
	SetResult *SetResult
}
