// Package publish serializes coordinator state into observer events. Every
// emission is a full-state push; observers replace their local view wholesale,
// so a dropped emission is corrected by the next one.
package publish

import (
	"github.com/carnegiemellonracing/PiDAQ/internal/presence"
	"github.com/carnegiemellonracing/PiDAQ/internal/session"
)

// Observer event names.
const (
	EventPresence      = "presence"       // ordered online device ids
	EventSessionStatus = "session_status" // current session id or ""
	EventSessionData   = "session_data"   // retained session list, newest first
	EventError         = "error"          // request failure, single observer only
)

// Broadcaster is the observer-facing transport. Implementations must be
// best-effort and non-blocking; delivery is at-most-once.
type Broadcaster interface {
	Broadcast(event string, data any)
	SendTo(observerID string, event string, data any)
}

type Publisher struct {
	registry *presence.Registry
	store    *session.Store
	out      Broadcaster
}

func NewPublisher(registry *presence.Registry, store *session.Store, out Broadcaster) *Publisher {
	return &Publisher{registry: registry, store: store, out: out}
}

// PublishAll pushes the full state to every connected observer.
func (p *Publisher) PublishAll() {
	p.out.Broadcast(EventPresence, p.registry.Snapshot())
	p.out.Broadcast(EventSessionStatus, p.store.CurrentID())
	p.out.Broadcast(EventSessionData, p.store.All())
}

// PublishPresence pushes only the presence set; used when a status change
// cannot have altered session data.
func (p *Publisher) PublishPresence() {
	p.out.Broadcast(EventPresence, p.registry.Snapshot())
}

// PublishTo pushes the full state to a single observer, for status queries and
// newly connected observers.
func (p *Publisher) PublishTo(observerID string) {
	p.out.SendTo(observerID, EventPresence, p.registry.Snapshot())
	p.out.SendTo(observerID, EventSessionStatus, p.store.CurrentID())
	p.out.SendTo(observerID, EventSessionData, p.store.All())
}

// PublishError reports a rejected request back to its requester only.
func (p *Publisher) PublishError(observerID string, message string) {
	p.out.SendTo(observerID, EventError, message)
}
