package flow

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ktwhotel/concierge/internal/intent"
	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/session"
)

const (
	stateSearching         = "searching"
	stateConfirming        = "confirming"
	stateCollectingPhone   = "collecting_phone"
	stateCollectingArrival = "collecting_arrival"
)

const (
	minPhoneDigits = 8
	maxSearchRunes = 30
)

// OrderQueryMachine looks up an existing reservation and collects the
// guest's contact phone and arrival time for it.
type OrderQueryMachine struct{}

func NewOrderQueryMachine() *OrderQueryMachine { return &OrderQueryMachine{} }

func (m *OrderQueryMachine) Flow() session.Flow { return session.FlowOrderQuery }

func (m *OrderQueryMachine) Start(sess *session.Session, ev Event) Result {
	next := sess.Clone()
	next.Draft = session.Draft{OrderQuery: &session.OrderQueryDraft{}}
	to(next, session.FlowOrderQuery, stateSearching)

	if term := ev.Class.Entities.OrderNumber; term != "" {
		return m.search(next, ev, term)
	}
	return reply(next, msgOrderAsk)
}

// Resume leaves the session idle: the guest has to say which order they
// mean, and that message starts the flow afresh.
func (m *OrderQueryMachine) Resume(sess *session.Session, ev Event) Result {
	next := sess.Clone()
	next.Reset()
	return reply(next, msgOrderResume)
}

func (m *OrderQueryMachine) Handle(sess *session.Session, ev Event) Result {
	next := sess.Clone()
	if next.Draft.OrderQuery == nil {
		next.Draft = session.Draft{OrderQuery: &session.OrderQueryDraft{}}
	}
	if ev.Class.Intent.Disengages() {
		return reply(to(next, session.FlowOrderQuery, Cancelled), msgOrderEnded)
	}

	switch next.State.Name() {
	case stateSearching:
		return m.searching(next, ev)
	case stateConfirming:
		return m.confirming(next, ev)
	case stateCollectingPhone:
		return m.collectPhone(next, ev)
	case stateCollectingArrival:
		return m.collectArrival(next, ev)
	}
	next.Draft = session.Draft{OrderQuery: &session.OrderQueryDraft{}}
	return reply(to(next, session.FlowOrderQuery, stateSearching), msgOrderAsk)
}

func (m *OrderQueryMachine) Prompt(sess *session.Session, _ Event) string {
	d := sess.Draft.OrderQuery
	if d == nil {
		return msgOrderAsk
	}
	switch sess.State.Name() {
	case stateSearching:
		if len(d.Candidates) > 1 {
			return orderChoices(d.Candidates)
		}
	case stateConfirming:
		if d.Order != nil {
			return orderSummary(*d.Order)
		}
	case stateCollectingPhone:
		return msgOrderAskPhone
	case stateCollectingArrival:
		return msgOrderAskArrival
	}
	return msgOrderAsk
}

func (m *OrderQueryMachine) searching(next *session.Session, ev Event) Result {
	d := next.Draft.OrderQuery
	text := strings.TrimSpace(intent.NormalizeDigits(ev.Text))

	if n, err := strconv.Atoi(text); err == nil && len(d.Candidates) > 1 {
		if n >= 1 && n <= len(d.Candidates) {
			order := d.Candidates[n-1]
			d.Order = &order
			d.Candidates = nil
			return reply(to(next, session.FlowOrderQuery, stateConfirming), orderSummary(order))
		}
		return reply(next, orderChoices(d.Candidates))
	}

	term := ev.Class.Entities.OrderNumber
	if term == "" {
		if ev.Class.Intent == intent.OrderQuery {
			return reply(next, msgOrderAsk)
		}
		if runes := utf8.RuneCountInString(text); runes < 2 || runes > maxSearchRunes {
			return reply(next, msgOrderAsk)
		}
		term = text
	}
	return m.search(next, ev, term)
}

func (m *OrderQueryMachine) search(next *session.Session, ev Event, term string) Result {
	obs, ok := ev.observed(EffectSearchOrders)
	if !ok {
		return need(Effect{Kind: EffectSearchOrders, SearchTerm: term})
	}
	d := next.Draft.OrderQuery
	d.SearchTerm = term
	switch len(obs.Orders) {
	case 0:
		return reply(to(next, session.FlowOrderQuery, NotFound), msgOrderNotFound)
	case 1:
		order := obs.Orders[0]
		d.Order = &order
		d.Candidates = nil
		return reply(to(next, session.FlowOrderQuery, stateConfirming), orderSummary(order))
	}
	d.Order = nil
	d.Candidates = obs.Orders
	return reply(to(next, session.FlowOrderQuery, stateSearching), orderChoices(obs.Orders))
}

func (m *OrderQueryMachine) confirming(next *session.Session, ev Event) Result {
	d := next.Draft.OrderQuery
	switch readAnswer(ev.Text, nil, nil) {
	case answerYes:
		return reply(to(next, session.FlowOrderQuery, stateCollectingPhone), msgOrderAskPhone)
	case answerNo:
		next.Draft = session.Draft{OrderQuery: &session.OrderQueryDraft{}}
		return reply(to(next, session.FlowOrderQuery, stateSearching), msgOrderRequery)
	}
	if d.Order == nil {
		return reply(to(next, session.FlowOrderQuery, stateSearching), msgOrderAsk)
	}
	return reply(next, orderSummary(*d.Order))
}

func (m *OrderQueryMachine) collectPhone(next *session.Session, ev Event) Result {
	phone := intent.ExtractPhone(ev.Text)
	if phone == "" {
		digits := strings.Join(intent.Digits(strings.ReplaceAll(ev.Text, "-", "")), "")
		if len(digits) >= minPhoneDigits {
			phone = digits
		}
	}
	if phone == "" {
		return reply(next, msgOrderBadPhone)
	}
	next.Draft.OrderQuery.Phone = phone
	return reply(to(next, session.FlowOrderQuery, stateCollectingArrival), msgOrderAskArrival)
}

func (m *OrderQueryMachine) collectArrival(next *session.Session, ev Event) Result {
	d := next.Draft.OrderQuery
	if d.Order == nil {
		return reply(to(next, session.FlowOrderQuery, stateSearching), msgOrderAsk)
	}
	arrival := strings.TrimSpace(ev.Text)
	if arrival == "" {
		return reply(next, msgOrderAskArrival)
	}
	if _, ok := ev.observed(EffectConfirmOrder); !ok {
		return need(Effect{Kind: EffectConfirmOrder, Confirmation: &pms.OrderConfirmation{
			OrderID:         d.Order.OrderID,
			Phone:           d.Phone,
			ArrivalTime:     arrival,
			LineUserID:      next.UserID,
			LineDisplayName: next.DisplayName,
		}})
	}
	d.ArrivalTime = arrival
	res := reply(to(next, session.FlowOrderQuery, Completed), orderConfirmed(*d.Order, d.Phone, arrival))
	res.Notice = &Notice{
		Subject: fmt.Sprintf("[訂單確認] %s %s", d.Order.GuestName, d.Order.OrderID),
		Body: fmt.Sprintf("訂單編號：%s\n姓名：%s\n入住：%s\n電話：%s\n抵達：%s",
			d.Order.OrderID, d.Order.GuestName, d.Order.CheckIn, d.Phone, arrival),
	}
	return res
}
