// Package session owns the measurement-session state: the single active-session
// slot, the retained map of every session ever started, and the bounded
// per-device per-channel sample buffers. All other packages read and mutate
// session state exclusively through the Store's methods.
package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyRunning rejects a start while another session is active.
	ErrAlreadyRunning = errors.New("a session is already running")
	// ErrNotRunning rejects a stop while no session is active.
	ErrNotRunning = errors.New("no session is running")
	// ErrSessionMismatch rejects a stop whose id is not the active session's.
	ErrSessionMismatch = errors.New("session id does not match the active session")
)

// MaxNameLength bounds human-supplied session names, counted in runes;
// longer names are truncated, not rejected.
const MaxNameLength = 30

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Session is one bounded measurement run. Data maps device id → channel name
// → buffer; Roster lists devices that contributed at least one point, in
// first-contribution order.
type Session struct {
	ID        string                        `json:"id"`
	Name      string                        `json:"name"`
	StartedAt time.Time                     `json:"startedAt"`
	Status    string                        `json:"status"`
	Roster    []string                      `json:"roster"`
	Data      map[string]map[string]*Buffer `json:"data"`
}

// Touch records a contribution from deviceID on channel, adding the device to
// the roster on first contact and creating the channel buffer on demand.
func (s *Session) Touch(deviceID, channel string) *Buffer {
	byChannel, ok := s.Data[deviceID]
	if !ok {
		byChannel = make(map[string]*Buffer)
		s.Data[deviceID] = byChannel
		s.Roster = append(s.Roster, deviceID)
	}
	buf, ok := byChannel[channel]
	if !ok {
		buf = NewBuffer()
		byChannel[channel] = buf
	}
	return buf
}

// Store is the session state machine: Idle when active is empty, Active
// otherwise. Ended sessions stay in the retained map indefinitely.
//
// Store is not safe for concurrent use; the coordinator's event loop is its
// single caller.
type Store struct {
	active   string
	sessions map[string]*Session
	order    []string // creation order, oldest first

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Start allocates a new active session and returns it. The session id is the
// (truncated) name joined with the creation timestamp, so repeated runs under
// the same name stay distinguishable.
func (s *Store) Start(name string) (*Session, error) {
	if s.active != "" {
		return nil, ErrAlreadyRunning
	}
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength])
	}
	startedAt := s.now().UTC()
	sess := &Session{
		ID:        fmt.Sprintf("%s---%d", name, startedAt.UnixMilli()),
		Name:      name,
		StartedAt: startedAt,
		Status:    StatusActive,
		Roster:    []string{},
		Data:      make(map[string]map[string]*Buffer),
	}
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	s.active = sess.ID
	return sess, nil
}

// Stop ends the active session. The id must name the active session exactly;
// a mismatch is reported, never silently accepted.
func (s *Store) Stop(id string) (*Session, error) {
	if s.active == "" {
		return nil, ErrNotRunning
	}
	if id != s.active {
		return nil, ErrSessionMismatch
	}
	sess := s.sessions[s.active]
	sess.Status = StatusEnded
	s.active = ""
	return sess, nil
}

// CurrentID returns the active session id, or "" when idle.
func (s *Store) CurrentID() string { return s.active }

// Lookup finds any retained session, active or ended.
func (s *Store) Lookup(id string) (*Session, bool) {
	sess, ok := s.sessions[id]
	return sess, ok
}

// All returns every retained session, newest first.
func (s *Store) All() []*Session {
	out := make([]*Session, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.sessions[s.order[i]])
	}
	return out
}
