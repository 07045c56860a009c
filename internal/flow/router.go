package flow

import (
	"errors"
	"time"

	"github.com/ktwhotel/concierge/internal/intent"
	"github.com/ktwhotel/concierge/internal/session"
)

// ErrUnknownEffect is returned by dispatchers that meet an EffectKind they
// cannot perform.
var ErrUnknownEffect = errors.New("flow: unknown effect")

// ParkConfidence is the minimum classifier confidence for queuing a
// cross-flow request. Weaker signals stay with the active flow.
const ParkConfidence = 0.8

// FlowFor maps an intent to the flow that serves it.
func FlowFor(in intent.Intent) session.Flow {
	switch in {
	case intent.Booking, intent.SameDayBooking:
		return session.FlowBooking
	case intent.OrderQuery:
		return session.FlowOrderQuery
	case intent.Cancel:
		return session.FlowCancellation
	}
	return session.FlowNone
}

// ShouldPark reports whether res asks for a different flow than the one
// holding sess. Cancel and interrupt never park; they disengage.
func ShouldPark(sess *session.Session, res intent.Result) bool {
	if sess.State.IsIdle() || res.Intent.Disengages() {
		return false
	}
	if res.Confidence < ParkConfidence {
		return false
	}
	target := FlowFor(res.Intent)
	return target != session.FlowNone && target != sess.Flow()
}

// SetPending queues a request. An earlier pending intent is replaced.
func SetPending(sess *session.Session, in intent.Intent, text string, now time.Time) {
	sess.Pending = &session.PendingIntent{Intent: in, Message: text, SetAt: now}
}

// GetPending returns the queued request, nil when none.
func GetPending(sess *session.Session) *session.PendingIntent {
	return sess.Pending
}

// ClearPending drops the queued request.
func ClearPending(sess *session.Session) {
	sess.Pending = nil
}

// ExecutePending consumes the queued request and puts the session at the
// resume state of the requested flow. It returns the consumed request, or
// nil when nothing was queued, in which case the session is untouched.
// Booking resumes at ask_date; order queries resume at idle because they
// need fresh identifying data from the guest.
func ExecutePending(sess *session.Session) (*session.PendingIntent, session.State) {
	p := sess.Pending
	if p == nil {
		return nil, sess.State
	}
	sess.Pending = nil
	sess.Reset()
	switch FlowFor(p.Intent) {
	case session.FlowBooking:
		sess.State = session.Qualify(session.FlowBooking, stateAskDate)
		sess.Draft.Booking = &session.BookingDraft{}
	default:
		sess.State = session.StateIdle
	}
	return p, sess.State
}
