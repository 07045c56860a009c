// Package dispatch is the entry point for inbound guest messages. It loads the
// session under the user's lock, runs the pure flow engine, performs the
// collaborator calls the engine asks for, and writes the session back.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ktwhotel/concierge/internal/flow"
	"github.com/ktwhotel/concierge/internal/intent"
	"github.com/ktwhotel/concierge/internal/observability/metrics"
	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/session"
	"github.com/ktwhotel/concierge/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxEffects  = 4
	defaultCallTimeout = 10 * time.Second
)

var errUnsettled = errors.New("dispatch: effect loop did not settle")

// Advisor is the optional AI fallback consulted for unclaimed idle messages.
type Advisor interface {
	ClassifyFreeform(ctx context.Context, text string) intent.Intent
	Answer(ctx context.Context, text string) string
}

// Notifier delivers staff notices. Implementations must not block for long
// and must swallow their own failures.
type Notifier interface {
	NotifyStaff(ctx context.Context, userID, subject, body string)
}

// Inbound is one guest message as handed over by a transport.
type Inbound struct {
	UserID      string
	DisplayName string
	Text        string
}

// Outcome is what the transport should send back.
type Outcome struct {
	Reply   string
	State   session.State
	Handled bool
	Parked  bool
	Resumed bool
}

// Dispatcher serializes each user's get/handle/set cycle and talks to the
// booking backend on the engine's behalf.
type Dispatcher struct {
	store       *session.Store
	engine      *flow.Engine
	pms         pms.Service
	advisor     Advisor
	notifier    Notifier
	metrics     *metrics.DispatchMetrics
	tracer      trace.Tracer
	logger      *logging.Logger
	now         func() time.Time
	loc         *time.Location
	maxEffects  int
	callTimeout time.Duration
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

func WithAdvisor(a Advisor) Option {
	return func(d *Dispatcher) { d.advisor = a }
}

func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithClock overrides the wall clock; the location sets the hotel's
// local time for business-hour rules.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithCallTimeout bounds each collaborator call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.callTimeout = timeout
		}
	}
}

// New wires a dispatcher.
func New(store *session.Store, engine *flow.Engine, svc pms.Service, logger *logging.Logger, opts ...Option) *Dispatcher {
	if store == nil {
		panic("dispatch: session store cannot be nil")
	}
	if engine == nil {
		panic("dispatch: flow engine cannot be nil")
	}
	if svc == nil {
		panic("dispatch: pms service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		store:       store,
		engine:      engine,
		pms:         svc,
		tracer:      otel.Tracer("concierge.internal.dispatch"),
		logger:      logger,
		now:         time.Now,
		loc:         time.Local,
		maxEffects:  defaultMaxEffects,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one inbound message. Collaborator failures come back as
// a retry reply with a nil error and no session write; the error return is
// reserved for session-store failures.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) (Outcome, error) {
	text := strings.TrimSpace(in.Text)
	if in.UserID == "" {
		return Outcome{}, errors.New("dispatch: user id required")
	}
	if text == "" {
		return Outcome{}, nil
	}

	ctx, span := d.tracer.Start(ctx, "concierge.dispatch", trace.WithAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("tenant_id", d.store.TenantID()),
	))
	defer span.End()

	logger := d.logger.WithUser(d.store.TenantID(), in.UserID)
	var (
		out     Outcome
		notices []*flow.Notice
	)
	err := d.store.WithLock(ctx, in.UserID, func(ctx context.Context) error {
		var err error
		out, notices, err = d.dispatchLocked(ctx, in, text, logger)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.ObserveDispatch("", "store_error")
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("state", string(out.State)))

	// notices go out after the lock so slow email never delays the
	// user's next message
	if d.notifier != nil {
		for _, n := range notices {
			d.notifier.NotifyStaff(ctx, in.UserID, n.Subject, n.Body)
		}
	}
	return out, nil
}

func (d *Dispatcher) dispatchLocked(ctx context.Context, in Inbound, text string, logger *logging.Logger) (Outcome, []*flow.Notice, error) {
	sess, err := d.store.Get(ctx, in.UserID)
	if err != nil {
		return Outcome{}, nil, err
	}
	if in.DisplayName != "" && sess.DisplayName != in.DisplayName {
		sess.DisplayName = in.DisplayName
	}
	before := sess.State
	owner := string(sess.Flow())

	ev := flow.NewEvent(text, d.now().In(d.loc))
	res, err := d.settle(ctx, ev, func(ev flow.Event) flow.Result { return d.engine.Step(sess, ev) })
	if err != nil {
		return d.retry(before, owner, err, logger), nil, nil
	}

	if !res.Handled && res.Session.State.IsIdle() {
		res, err = d.unclaimed(ctx, res, ev, logger)
		if err != nil {
			return d.retry(before, owner, err, logger), nil, nil
		}
	}

	var notices []*flow.Notice
	if res.Notice != nil {
		notices = append(notices, res.Notice)
	}
	out := Outcome{Reply: res.Reply, State: res.Session.State, Handled: res.Handled, Parked: res.Parked}
	if res.Parked {
		d.metrics.ObservePending("parked")
		logger.Info("pending intent parked", "intent", string(res.Session.Pending.Intent), "state", string(before))
	}

	final := res.Session
	d.logTransition(logger, before, final.State)
	if flow.IsTerminal(final.State) {
		resumed, ok, err := d.resume(ctx, final, ev)
		if err != nil {
			return d.retry(before, owner, err, logger), nil, nil
		}
		if ok {
			d.metrics.ObservePending("resumed")
			d.logTransition(logger, final.State, resumed.Session.State)
			out.Resumed = true
			out.Reply = joinReplies(out.Reply, resumed.Reply)
			if resumed.Notice != nil {
				notices = append(notices, resumed.Notice)
			}
			final = resumed.Session
		}
	}

	out.State = final.State
	if flow.IsTerminal(final.State) {
		if err := d.store.Delete(ctx, in.UserID); err != nil {
			return Outcome{}, nil, err
		}
	} else if err := d.store.Set(ctx, final); err != nil {
		return Outcome{}, nil, err
	}

	outcome := "ok"
	if !out.Handled && !out.Resumed {
		outcome = "unhandled"
	}
	d.metrics.ObserveDispatch(owner, outcome)
	return out, notices, nil
}

// settle runs step until the engine stops asking for collaborator data.
func (d *Dispatcher) settle(ctx context.Context, ev flow.Event, step func(flow.Event) flow.Result) (flow.Result, error) {
	ev.Observation = nil
	res := step(ev)
	for i := 0; res.NeedsEffect(); i++ {
		if i >= d.maxEffects {
			return flow.Result{}, errUnsettled
		}
		obs, err := d.perform(ctx, *res.Effect)
		if err != nil {
			return flow.Result{}, err
		}
		ev.Observation = obs
		res = step(ev)
	}
	if res.Session == nil {
		return flow.Result{}, fmt.Errorf("dispatch: engine returned no session")
	}
	return res, nil
}

func (d *Dispatcher) resume(ctx context.Context, sess *session.Session, ev flow.Event) (flow.Result, bool, error) {
	resumed := false
	res, err := d.settle(ctx, ev, func(ev flow.Event) flow.Result {
		r, ok := d.engine.Resume(sess, ev)
		resumed = ok
		if !ok {
			return flow.Result{Session: sess}
		}
		return r
	})
	if err != nil {
		return flow.Result{}, false, err
	}
	return res, resumed, nil
}

// unclaimed handles idle messages no rule placed: an advisory label may
// start a flow, anything else gets an answer or the help text.
func (d *Dispatcher) unclaimed(ctx context.Context, res flow.Result, ev flow.Event, logger *logging.Logger) (flow.Result, error) {
	if d.advisor == nil {
		res.Reply = msgHelp
		return res, nil
	}
	label := d.advisor.ClassifyFreeform(ctx, ev.Text)
	switch label {
	case intent.Booking, intent.SameDayBooking, intent.OrderQuery:
		logger.Info("advisory intent starts flow", "intent", string(label))
		ev.Class.Intent = label
		started, err := d.settle(ctx, ev, func(ev flow.Event) flow.Result {
			return d.engine.StartFlow(res.Session, flow.FlowFor(label), ev)
		})
		if err != nil {
			return flow.Result{}, err
		}
		started.Handled = true
		return started, nil
	}
	if answer := d.advisor.Answer(ctx, ev.Text); answer != "" {
		res.Reply = answer
		return res, nil
	}
	res.Reply = msgHelp
	return res, nil
}

func (d *Dispatcher) retry(state session.State, owner string, err error, logger *logging.Logger) Outcome {
	logger.Error("collaborator call failed, session left unchanged", "error", err, "state", string(state))
	d.metrics.ObserveDispatch(owner, "collaborator_error")
	return Outcome{Reply: msgRetry, State: state, Handled: true}
}

func (d *Dispatcher) logTransition(logger *logging.Logger, from, to session.State) {
	if from == to {
		return
	}
	d.metrics.ObserveTransition(string(from), string(to))
	logger.Info("state transition", "from", string(from), "to", string(to), "flow", string(to.Flow()))
}

func joinReplies(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
