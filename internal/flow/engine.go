package flow

import (
	"github.com/ktwhotel/concierge/internal/intent"
	"github.com/ktwhotel/concierge/internal/session"
)

// Engine routes events to the machine owning the session and handles
// cross-flow requests. Like the machines, it performs no I/O.
type Engine struct {
	machines map[session.Flow]Machine
	// states whose answers are free text; same-day phrasing there is an
	// answer ("今天晚上7點入住"), not a new booking request
	freeText map[session.State]bool
}

// NewEngine wires the three production flows.
func NewEngine(p Policy) *Engine {
	return NewEngineWith(NewBookingMachine(p), NewOrderQueryMachine(), NewCancellationMachine())
}

// NewEngineWith wires the given machines; later machines replace earlier ones
// for the same flow.
func NewEngineWith(machines ...Machine) *Engine {
	e := &Engine{
		machines: make(map[session.Flow]Machine, len(machines)),
		freeText: map[session.State]bool{
			session.Qualify(session.FlowBooking, stateCollectInfo):          true,
			session.Qualify(session.FlowOrderQuery, stateSearching):         true,
			session.Qualify(session.FlowOrderQuery, stateCollectingPhone):   true,
			session.Qualify(session.FlowOrderQuery, stateCollectingArrival): true,
		},
	}
	for _, m := range machines {
		if m == nil {
			panic("flow: nil machine")
		}
		e.machines[m.Flow()] = m
	}
	return e
}

// Machine returns the machine for a flow.
func (e *Engine) Machine(f session.Flow) (Machine, bool) {
	m, ok := e.machines[f]
	return m, ok
}

// Step handles one event. Sessions left in a terminal state are treated as
// idle.
func (e *Engine) Step(sess *session.Session, ev Event) Result {
	if sess.State.IsIdle() || IsTerminal(sess.State) {
		return e.fromIdle(sess, ev)
	}
	m, ok := e.machines[sess.Flow()]
	if !ok {
		return e.fromIdle(sess, ev)
	}
	if e.shouldPark(sess, ev) {
		next := sess.Clone()
		SetPending(next, ev.Class.Intent, ev.Text, ev.Now)
		return Result{
			Session: next,
			Reply:   parkedAck(FlowFor(ev.Class.Intent)) + "\n\n" + m.Prompt(sess, ev),
			Handled: true,
			Parked:  true,
		}
	}
	return m.Handle(sess, ev)
}

// StartFlow enters f from idle regardless of the classified intent. The
// dispatcher uses it when an advisory classification picks the flow.
func (e *Engine) StartFlow(sess *session.Session, f session.Flow, ev Event) Result {
	m, ok := e.machines[f]
	if !ok {
		return Result{Session: sess}
	}
	return m.Start(idleCopy(sess), ev)
}

// Resume fires the pending intent of a session that just reached a
// terminal state. ok is false when nothing was queued.
func (e *Engine) Resume(sess *session.Session, ev Event) (Result, bool) {
	next := sess.Clone()
	p, _ := ExecutePending(next)
	if p == nil {
		return Result{}, false
	}
	m, ok := e.machines[FlowFor(p.Intent)]
	if !ok {
		next.Reset()
		return reply(next, ""), true
	}
	return m.Resume(next, ev), true
}

func (e *Engine) fromIdle(sess *session.Session, ev Event) Result {
	base := idleCopy(sess)
	if ev.Class.Intent == intent.Interrupt {
		return reply(base, msgDisengaged)
	}
	m, ok := e.machines[FlowFor(ev.Class.Intent)]
	if !ok {
		return Result{Session: base}
	}
	return m.Start(base, ev)
}

func (e *Engine) shouldPark(sess *session.Session, ev Event) bool {
	if !ShouldPark(sess, ev.Class) {
		return false
	}
	return !(e.freeText[sess.State] && ev.Class.Intent == intent.SameDayBooking)
}

// idleCopy returns sess at rest, keeping identity, display name and any
// pending intent.
func idleCopy(sess *session.Session) *session.Session {
	if sess.State.IsIdle() && sess.Draft.Flow() == session.FlowNone {
		return sess
	}
	next := sess.Clone()
	next.Reset()
	return next
}
