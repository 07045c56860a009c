// Package flow holds the conversation state machines. Machines are pure: they
// read a session and an event and return the next session plus a reply.
// When a machine needs data from the property-management backend it returns
// an Effect instead; the dispatcher performs it and re-runs the machine with
// the Observation attached.
package flow

import (
	"slices"
	"strings"
	"time"

	"github.com/ktwhotel/concierge/internal/intent"
	"github.com/ktwhotel/concierge/internal/inventory"
	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/session"
)

// Event is one inbound utterance plus anything the dispatcher already
// fetched for it.
type Event struct {
	Text        string
	Now         time.Time
	Class       intent.Result
	Observation *Observation
}

// NewEvent classifies text with the default rule table.
func NewEvent(text string, now time.Time) Event {
	return Event{Text: text, Now: now, Class: intent.Classify(text)}
}

// EffectKind names a collaborator call.
type EffectKind string

const (
	EffectAvailability  EffectKind = "availability"
	EffectCreateBooking EffectKind = "create_booking"
	EffectArchiveDraft  EffectKind = "archive_draft"
	EffectListBookings  EffectKind = "list_bookings"
	EffectCancelBooking EffectKind = "cancel_booking"
	EffectSearchOrders  EffectKind = "search_orders"
	EffectConfirmOrder  EffectKind = "confirm_order"
)

// Effect asks the dispatcher to call the booking collaborator.
type Effect struct {
	Kind         EffectKind
	Requests     []pms.BookingRequest
	OrderID      string
	UserID       string
	Statuses     []pms.BookingStatus
	SearchTerm   string
	Confirmation *pms.OrderConfirmation
	// BestEffort effects never block the flow: a failure is reported in
	// Observation.Err and the machine carries on.
	BestEffort bool
}

// Observation is the collaborator's answer to an Effect.
type Observation struct {
	Kind         EffectKind
	Availability inventory.Availability
	Created      []pms.Booking
	// FailedLines counts booking requests the backend refused when at least
	// one other line went through.
	FailedLines int
	Bookings    []pms.Booking
	Orders      []pms.Order
	Err         error
}

func (ev Event) observed(kind EffectKind) (*Observation, bool) {
	if ev.Observation != nil && ev.Observation.Kind == kind {
		return ev.Observation, true
	}
	return nil, false
}

// Notice is a staff-facing summary of something that happened.
type Notice struct {
	Subject string
	Body    string
}

// Result is what a machine returns for one event.
type Result struct {
	Session *session.Session
	Reply   string
	Effect  *Effect
	Notice  *Notice
	// Handled is false when an idle session met an utterance no flow claims.
	Handled bool
	// Parked is set when the utterance was queued as a pending intent.
	Parked bool
}

// NeedsEffect reports whether the dispatcher must call a collaborator
// before a reply exists.
func (r Result) NeedsEffect() bool {
	return r.Effect != nil
}

// Terminal states shared by every flow.
const (
	Completed = "completed"
	Cancelled = "cancelled"
	NotFound  = "not_found"
)

// IsTerminal reports whether the state ends its flow.
func IsTerminal(s session.State) bool {
	if s.Flow() == session.FlowNone {
		return false
	}
	switch s.Name() {
	case Completed, Cancelled, NotFound:
		return true
	}
	return false
}

// Machine is one conversational flow.
type Machine interface {
	Flow() session.Flow
	// Start enters the flow from idle.
	Start(sess *session.Session, ev Event) Result
	// Handle consumes an event while the flow owns the session.
	Handle(sess *session.Session, ev Event) Result
	// Resume re-enters the flow after a parked request fires.
	Resume(sess *session.Session, ev Event) Result
	// Prompt repeats the question the current state is waiting on.
	Prompt(sess *session.Session, ev Event) string
}

func reply(sess *session.Session, text string) Result {
	return Result{Session: sess, Reply: text, Handled: true}
}

// need asks for a collaborator call. The dispatcher re-runs the machine on
// the session it passed in, so no session travels with the request.
func need(eff Effect) Result {
	return Result{Effect: &eff, Handled: true}
}

type answer int

const (
	answerNone answer = iota
	answerYes
	answerNo
)

// readAnswer interprets a reply to a numbered 1/2 question. Negative
// phrasing is checked before affirmative so "不對" never reads as "對".
func readAnswer(text string, yesWords, noWords []string) answer {
	t := strings.TrimSpace(intent.NormalizeDigits(text))
	switch {
	case t == "1" || slices.Contains(yesWords, t):
		return answerYes
	case t == "2" || slices.Contains(noWords, t):
		return answerNo
	case intent.IsRejection(t) || strings.HasPrefix(t, "不"):
		return answerNo
	case intent.IsConfirmation(t):
		return answerYes
	}
	return answerNone
}

// to moves the session to a flow-local state.
func to(sess *session.Session, f session.Flow, name string) *session.Session {
	sess.State = session.Qualify(f, name)
	return sess
}
