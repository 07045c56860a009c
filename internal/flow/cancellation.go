package flow

import (
	"fmt"

	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/session"
)

const stateCancelConfirm = "confirm"

// CancellationMachine cancels the guest's own same-day booking after an
// explicit yes. Anything short of a clear answer re-asks.
type CancellationMachine struct{}

func NewCancellationMachine() *CancellationMachine { return &CancellationMachine{} }

func (m *CancellationMachine) Flow() session.Flow { return session.FlowCancellation }

func (m *CancellationMachine) Start(sess *session.Session, ev Event) Result {
	obs, ok := ev.observed(EffectListBookings)
	if !ok {
		return need(Effect{
			Kind:     EffectListBookings,
			UserID:   sess.UserID,
			Statuses: []pms.BookingStatus{pms.StatusPending, pms.StatusInterrupted},
		})
	}
	next := sess.Clone()
	if len(obs.Bookings) == 0 {
		next.Draft = session.Draft{}
		return reply(to(next, session.FlowCancellation, NotFound), msgCancelNone)
	}
	bk := latest(obs.Bookings)
	next.Draft = session.Draft{Cancellation: &session.CancellationDraft{Booking: bk}}
	return reply(to(next, session.FlowCancellation, stateCancelConfirm), askCancel(bk))
}

// Resume restarts the lookup; cancellation is never parked by the router
// but a resumed request behaves like a fresh one.
func (m *CancellationMachine) Resume(sess *session.Session, ev Event) Result {
	return m.Start(sess, ev)
}

func (m *CancellationMachine) Handle(sess *session.Session, ev Event) Result {
	next := sess.Clone()
	d := next.Draft.Cancellation
	if d == nil || next.State.Name() != stateCancelConfirm {
		next.Draft = session.Draft{}
		return reply(to(next, session.FlowCancellation, Cancelled), msgCancelKept)
	}

	switch readAnswer(ev.Text, []string{"確認取消", "確定取消"}, []string{"保留訂單", "保留"}) {
	case answerYes:
		if _, ok := ev.observed(EffectCancelBooking); !ok {
			return need(Effect{Kind: EffectCancelBooking, OrderID: d.Booking.OrderID})
		}
		res := reply(to(next, session.FlowCancellation, Completed), cancelDone(d.Booking))
		res.Notice = &Notice{
			Subject: fmt.Sprintf("[取消訂房] %s %s", orDash(d.Booking.GuestName), d.Booking.OrderID),
			Body: fmt.Sprintf("訂單編號：%s\n房型：%s x %d\n姓名：%s\n電話：%s",
				d.Booking.OrderID, d.Booking.RoomName(), max(d.Booking.RoomCount, 1), orDash(d.Booking.GuestName), orDash(d.Booking.Phone)),
		}
		return res
	case answerNo:
		return reply(to(next, session.FlowCancellation, Cancelled), msgCancelKept)
	}
	// backing out of a cancellation keeps the booking
	if ev.Class.Intent.Disengages() {
		return reply(to(next, session.FlowCancellation, Cancelled), msgCancelKept)
	}
	return reply(next, msgCancelOptions)
}

func (m *CancellationMachine) Prompt(sess *session.Session, _ Event) string {
	if d := sess.Draft.Cancellation; d != nil {
		return askCancel(d.Booking)
	}
	return msgCancelOptions
}

// latest picks the most recently created booking.
func latest(bookings []pms.Booking) pms.Booking {
	best := bookings[0]
	for _, b := range bookings[1:] {
		if b.CreatedAt.After(best.CreatedAt) {
			best = b
		}
	}
	return best
}
