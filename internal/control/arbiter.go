// Package control arbitrates exclusive input control between the
// autonomous agent and the human supervisor. Exactly one actor holds
// control at a time once a session is connected; every transition is
// audited.
package control

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskbridge/deskbridge/internal/audit"
	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/protocol"
)

var (
	// ErrNotOwner is returned when an actor releases control it does
	// not hold.
	ErrNotOwner = errors.New("actor does not hold control")
	// ErrInvalidActor is returned for requesters other than agent or
	// supervisor.
	ErrInvalidActor = errors.New("invalid control actor")
)

// RequestStatus is the lifecycle state of a control request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

// Request records one takeover attempt. Requests live only for the
// current session; they are never persisted.
type Request struct {
	ID        string
	Requester protocol.Actor
	Reason    string
	Timestamp time.Time
	Status    RequestStatus
}

// Arbiter tracks which actor holds exclusive input control.
type Arbiter struct {
	mu         sync.Mutex
	owner      protocol.Actor
	localActor protocol.Actor
	sink       audit.Sink
	onChange   func(protocol.Actor)
}

// NewArbiter creates an arbiter for a session whose local actor is
// localActor. Control starts at none; Begin assigns the first owner
// when the session connects.
func NewArbiter(localActor protocol.Actor, sink audit.Sink) *Arbiter {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Arbiter{
		owner:      protocol.ActorNone,
		localActor: localActor,
		sink:       sink,
	}
}

// OnChange registers a callback invoked after every ownership change.
func (a *Arbiter) OnChange(cb func(protocol.Actor)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = cb
}

// Begin assigns the initial controller at connect time. The agent
// drives unsupervised by default.
func (a *Arbiter) Begin(owner protocol.Actor) {
	a.mu.Lock()
	a.owner = owner
	cb := a.onChange
	a.mu.Unlock()

	a.sink.Append(audit.Record{
		Actor:     string(owner),
		Action:    "control/begin",
		Outcome:   audit.OutcomeGranted,
		Timestamp: time.Now(),
	})
	if cb != nil {
		cb(owner)
	}
}

// RequestControl processes a takeover attempt. A supervisor request is
// always granted synchronously: the human is the trust root and
// override of the agent can never race or block. An agent request is
// denied while the supervisor holds control.
func (a *Arbiter) RequestControl(requester protocol.Actor, reason string) (*Request, error) {
	if requester != protocol.ActorAgent && requester != protocol.ActorSupervisor {
		return nil, ErrInvalidActor
	}

	req := &Request{
		ID:        uuid.NewString(),
		Requester: requester,
		Reason:    reason,
		Timestamp: time.Now(),
		Status:    StatusPending,
	}

	a.mu.Lock()
	previous := a.owner
	switch requester {
	case protocol.ActorSupervisor:
		req.Status = StatusApproved
		a.owner = protocol.ActorSupervisor
	case protocol.ActorAgent:
		if a.owner == protocol.ActorSupervisor {
			// Control stays with the supervisor until deliberately
			// released; the agent cannot resume mid-intervention.
			req.Status = StatusDenied
		} else {
			req.Status = StatusApproved
			a.owner = protocol.ActorAgent
		}
	}
	owner := a.owner
	cb := a.onChange
	a.mu.Unlock()

	outcome := audit.OutcomeGranted
	if req.Status == StatusDenied {
		outcome = audit.OutcomeDenied
	}
	a.sink.Append(audit.Record{
		Actor:     string(requester),
		Action:    "control/request",
		Outcome:   outcome,
		Detail:    reason,
		Timestamp: req.Timestamp,
	})
	logger.Infof("Control request from %s: %s (owner now %s)", requester, req.Status, owner)

	if cb != nil && owner != previous {
		cb(owner)
	}
	return req, nil
}

// ReleaseControl hands control back. Only the current owner may
// release; a supervisor release returns control to the agent.
func (a *Arbiter) ReleaseControl(actor protocol.Actor) error {
	a.mu.Lock()
	if a.owner != actor {
		a.mu.Unlock()
		return ErrNotOwner
	}
	a.owner = protocol.ActorAgent
	owner := a.owner
	cb := a.onChange
	a.mu.Unlock()

	a.sink.Append(audit.Record{
		Actor:     string(actor),
		Action:    "control/release",
		Outcome:   audit.OutcomeReleased,
		Timestamp: time.Now(),
	})
	logger.Infof("Control released by %s (owner now %s)", actor, owner)

	if cb != nil && actor != owner {
		cb(owner)
	}
	return nil
}

// Owner returns the current controller.
func (a *Arbiter) Owner() protocol.Actor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}

// HasLocalControl reports whether the local actor currently holds
// control. Input captured while this is false is discarded, never
// queued: forwarding stale input after a handoff would be incorrect.
func (a *Arbiter) HasLocalControl() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner == a.localActor
}

// LocalActor returns the actor this session captures input for.
func (a *Arbiter) LocalActor() protocol.Actor {
	return a.localActor
}
