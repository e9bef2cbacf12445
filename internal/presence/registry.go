// Package presence tracks which devices are currently online. A device's
// identity is never forgotten once seen; that is what distinguishes a
// first-ever join from a reconnect.
package presence

import "sort"

// Event classifies the outcome of marking a device online.
type Event int

const (
	// NoOp means the device was already online.
	NoOp Event = iota
	// FirstJoin means the device has never been seen before.
	FirstJoin
	// Reconnect means the device was seen before and was offline.
	Reconnect
)

func (e Event) String() string {
	switch e {
	case FirstJoin:
		return "first_join"
	case Reconnect:
		return "reconnect"
	default:
		return "no_op"
	}
}

// Registry is not safe for concurrent use; the coordinator's event loop is
// its single caller.
type Registry struct {
	online map[string]struct{}
	seen   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		online: make(map[string]struct{}),
		seen:   make(map[string]struct{}),
	}
}

// MarkOnline idempotently adds the device to the online set and reports
// whether this was a first join, a reconnect, or a no-op.
func (r *Registry) MarkOnline(deviceID string) Event {
	if _, isOnline := r.online[deviceID]; isOnline {
		return NoOp
	}
	_, wasSeen := r.seen[deviceID]
	r.online[deviceID] = struct{}{}
	r.seen[deviceID] = struct{}{}
	if wasSeen {
		return Reconnect
	}
	return FirstJoin
}

// MarkOffline idempotently removes the device from the online set.
func (r *Registry) MarkOffline(deviceID string) {
	delete(r.online, deviceID)
}

// Snapshot returns the online device ids, sorted for stable output.
func (r *Registry) Snapshot() []string {
	out := make([]string, 0, len(r.online))
	for id := range r.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
