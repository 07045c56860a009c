// Package session owns the per-user conversation record: which flow holds the
// conversation, that flow's draft, and any parked cross-flow request.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ktwhotel/concierge/internal/intent"
)

var (
	// ErrNotFound is returned by backends for absent keys.
	ErrNotFound = errors.New("session: not found")
	// ErrCorrupt marks persisted bytes that do not decode into a Session.
	ErrCorrupt = errors.New("session: corrupt record")
)

// Flow names a conversational task. The zero value means no flow.
type Flow string

const (
	FlowNone         Flow = ""
	FlowBooking      Flow = "booking"
	FlowOrderQuery   Flow = "order_query"
	FlowCancellation Flow = "cancellation"
)

// State is a dotted, flow-qualified label such as "booking.collect_count".
type State string

// StateIdle is the universal rest state.
const StateIdle State = "idle"

// Qualify builds the state label for a flow-local name.
func Qualify(f Flow, name string) State {
	return State(string(f) + "." + name)
}

// Flow returns the owning flow, FlowNone for idle or unqualified labels.
func (s State) Flow() Flow {
	prefix, _, ok := strings.Cut(string(s), ".")
	if !ok {
		return FlowNone
	}
	switch Flow(prefix) {
	case FlowBooking, FlowOrderQuery, FlowCancellation:
		return Flow(prefix)
	}
	return FlowNone
}

// Name is the flow-local part of the label.
func (s State) Name() string {
	_, name, ok := strings.Cut(string(s), ".")
	if !ok {
		return string(s)
	}
	return name
}

// IsIdle reports whether no flow owns the state.
func (s State) IsIdle() bool {
	return s == "" || s == StateIdle
}

// Key identifies a session.
type Key struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
}

func (k Key) String() string {
	return k.TenantID + ":" + k.UserID
}

// Session is the durable per-user conversation record.
type Session struct {
	TenantID    string         `json:"tenant_id"`
	UserID      string         `json:"user_id"`
	DisplayName string         `json:"display_name,omitempty"`
	State       State          `json:"state"`
	Draft       Draft          `json:"draft"`
	Pending     *PendingIntent `json:"pending_intent,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// Corrupt is set on listing placeholders for records that no longer decode.
	Corrupt bool `json:"-"`
}

// PendingIntent is a cross-flow request parked until the current flow ends.
type PendingIntent struct {
	Intent  intent.Intent `json:"intent"`
	Message string        `json:"message,omitempty"`
	SetAt   time.Time     `json:"set_at"`
}

// New returns the default idle session for a key.
func New(key Key, now time.Time) *Session {
	return &Session{
		TenantID:  key.TenantID,
		UserID:    key.UserID,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Unreadable stands in for a stored record that fails to decode so listings
// still report the user. Its zero UpdatedAt puts it past any idle cutoff.
func Unreadable(key Key) *Session {
	return &Session{
		TenantID: key.TenantID,
		UserID:   key.UserID,
		State:    StateIdle,
		Corrupt:  true,
	}
}

// Key returns the session's identity.
func (s *Session) Key() Key {
	return Key{TenantID: s.TenantID, UserID: s.UserID}
}

// Flow is the flow that currently owns the session.
func (s *Session) Flow() Flow {
	return s.State.Flow()
}

// Clone deep-copies the session so machines can build a new value without
// touching the loaded one.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("session: clone marshal: %v", err))
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("session: clone unmarshal: %v", err))
	}
	return &out
}

// Validate checks the single-owner invariant: an idle session carries no
// draft, and a busy one carries only its own flow's draft.
func (s *Session) Validate() error {
	owner := s.State.Flow()
	if !s.State.IsIdle() && owner == FlowNone {
		return fmt.Errorf("session: unknown state %q", s.State)
	}
	if kind := s.Draft.Flow(); kind != FlowNone && kind != owner {
		return fmt.Errorf("session: %s draft held by state %q", kind, s.State)
	}
	if s.Draft.count() > 1 {
		return errors.New("session: more than one draft set")
	}
	return nil
}

// Reset puts the session back to idle and drops the draft. The pending
// intent and display name survive.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Draft = Draft{}
}

// Encode serializes the session for a backend.
func Encode(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	return data, nil
}

// Decode parses persisted bytes. Malformed or invariant-breaking records
// yield ErrCorrupt.
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.State == "" {
		s.State = StateIdle
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &s, nil
}
