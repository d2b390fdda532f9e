package filedock

import (
	"fmt"
	"time"
)

// Event is something that happens to a file record.
type Event string

const (
	EventCreated                Event = "Created"
	EventObjectConfirmedWritten Event = "ObjectConfirmedWritten"
	EventDeleteRequested        Event = "DeleteRequested"
	EventObjectConfirmedRemoved Event = "ObjectConfirmedRemoved"
	EventUploadAbandoned        Event = "UploadAbandoned"
)

// Effect is a column written alongside a status change.
type Effect uint8

const (
	// EffectCompleted sets completed_at and the authoritative size.
	EffectCompleted Effect = 1 << iota
	// EffectDeleted sets deleted_at.
	EffectDeleted

	EffectNone Effect = 0
)

// Transition is one edge of the lifecycle graph.
type Transition struct {
	From    Status
	Event   Event
	To      Status
	Effects Effect
}

// transitions is the lifecycle graph keyed by source status then event.
// Records are created directly in PENDING, so EventCreated has no source row.
var transitions = map[Status]map[Event]Transition{
	StatusPending: {
		EventObjectConfirmedWritten: {StatusPending, EventObjectConfirmedWritten, StatusAvailable, EffectCompleted},
		EventDeleteRequested:        {StatusPending, EventDeleteRequested, StatusDeleting, EffectNone},
		EventUploadAbandoned:        {StatusPending, EventUploadAbandoned, StatusFailed, EffectNone},
	},
	StatusAvailable: {
		EventDeleteRequested: {StatusAvailable, EventDeleteRequested, StatusDeleting, EffectNone},
	},
	StatusDeleting: {
		EventObjectConfirmedRemoved: {StatusDeleting, EventObjectConfirmedRemoved, StatusDeleted, EffectDeleted},
	},
	StatusDeleted: {},
	StatusFailed:  {},
}

// statusOrder keeps Sources deterministic.
var statusOrder = []Status{StatusPending, StatusAvailable, StatusDeleting, StatusDeleted, StatusFailed}

// InitialStatus is the status a record receives on EventCreated.
func InitialStatus() Status {
	return StatusPending
}

// Next returns the transition taken when ev happens to a record in from.
// Pairs without an edge return a *TransitionError that matches
// ErrReconciliationSkipped.
func Next(from Status, ev Event) (Transition, error) {
	edges, ok := transitions[from]
	if !ok {
		return Transition{}, &TransitionError{From: from, Event: ev, Reason: "unknown status"}
	}

	t, ok := edges[ev]
	if !ok {
		return Transition{}, &TransitionError{From: from, Event: ev, Reason: "no transition"}
	}

	return t, nil
}

// Sources returns every status that accepts ev. It is the status guard used
// by conditional updates so that stale events affect zero rows.
func Sources(ev Event) []Status {
	var out []Status
	for _, s := range statusOrder {
		if _, ok := transitions[s][ev]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Patch builds the row update for the transition. size is only used when
// the transition records the authoritative object size.
func (t Transition) Patch(now time.Time, size int64) Patch {
	p := Patch{Status: t.To, UpdatedAt: now}
	if t.Effects&EffectCompleted != 0 {
		p.CompletedAt = &now
		p.Size = &size
	}
	if t.Effects&EffectDeleted != 0 {
		p.DeletedAt = &now
	}
	return p
}

// PatchFor builds the patch for ev without knowing the current status.
// It is paired with Sources(ev) as the guard of a conditional update.
func PatchFor(ev Event, now time.Time, size int64) (Patch, error) {
	for _, s := range statusOrder {
		if t, ok := transitions[s][ev]; ok {
			return t.Patch(now, size), nil
		}
	}
	return Patch{}, &TransitionError{Event: ev, Reason: "event has no transition"}
}

// TransitionError reports an event that does not apply to a status.
type TransitionError struct {
	From   Status
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("%s: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("%s on %s: %s", e.Event, e.From, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrReconciliationSkipped
}
