// Package model holds the dispatcher's domain objects: transport requests,
// transporters, and their shift bookkeeping. All lifecycle transitions are
// total functions returning a bool; terminal states never regress.
package model

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"dispatch/event"
)

// Status is a request's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// TransportType enumerates what is being moved.
type TransportType string

const (
	Stretcher  TransportType = "stretcher"
	Wheelchair TransportType = "wheelchair"
	Bed        TransportType = "bed"
)

// ValidTransportType reports whether s names a known transport type.
func ValidTransportType(s string) bool {
	switch TransportType(s) {
	case Stretcher, Wheelchair, Bed:
		return true
	}
	return false
}

// Request is one transport job: move a patient or item from Origin to
// Destination. Identity fields are immutable after creation; status,
// assignee and the pickup pin are guarded by the mutex.
type Request struct {
	ID          string
	Origin      string
	Destination string
	Type        TransportType
	Urgent      bool

	mu       sync.Mutex
	status   Status
	assignee string
	pinned   bool
}

// NewRequest creates a pending request with a fresh id.
func NewRequest(origin, destination string, t TransportType, urgent bool) *Request {
	return &Request{
		ID:          uuid.NewString(),
		Origin:      origin,
		Destination: destination,
		Type:        t,
		Urgent:      urgent,
		status:      StatusPending,
	}
}

// Status returns the current lifecycle state.
func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Request) terminal() bool {
	return r.status == StatusCompleted || r.status == StatusCancelled
}

// MarkOngoing moves a pending request to ongoing. Returns false if the
// request already progressed past pending.
func (r *Request) MarkOngoing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPending {
		return false
	}
	r.status = StatusOngoing
	return true
}

// MarkCompleted moves a non-terminal request to completed.
func (r *Request) MarkCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal() {
		return false
	}
	r.status = StatusCompleted
	return true
}

// MarkCancelled moves a non-terminal request to cancelled. Cancelled is
// absorbing.
func (r *Request) MarkCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal() {
		return false
	}
	r.status = StatusCancelled
	return true
}

// Assign records which transporter currently holds the request.
func (r *Request) Assign(worker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignee = worker
}

// Assignee returns the holding transporter's name, if any.
func (r *Request) Assignee() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignee
}

// Pin marks the pickup leg as started: the worker has left its node toward
// the origin, so re-plans must leave the request where it is.
func (r *Request) Pin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pinned = true
}

// Reassignable reports whether a re-plan may move this request to another
// worker or queue slot: pending always, ongoing only until the pickup leg
// has begun.
func (r *Request) Reassignable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case StatusPending:
		return true
	case StatusOngoing:
		return !r.pinned
	}
	return false
}

// Ref returns the wire representation used in event payloads.
func (r *Request) Ref() event.RequestRef {
	return event.RequestRef{
		ID:          r.ID,
		Origin:      r.Origin,
		Destination: r.Destination,
		Type:        string(r.Type),
		Urgent:      r.Urgent,
	}
}

// String implements fmt.Stringer for log lines.
func (r *Request) String() string {
	return fmt.Sprintf("%s -> %s (%s)", r.Origin, r.Destination, r.Type)
}
