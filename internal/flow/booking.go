package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ktwhotel/concierge/internal/intent"
	"github.com/ktwhotel/concierge/internal/inventory"
	"github.com/ktwhotel/concierge/internal/pms"
	"github.com/ktwhotel/concierge/internal/session"
)

const (
	stateAskDate      = "ask_date"
	stateShowRooms    = "show_rooms"
	stateCollectRoom  = "collect_room_selection"
	stateCollectCount = "collect_count"
	stateCollectBed   = "collect_bed"
	stateCollectInfo  = "collect_guest_info"
	stateConfirm      = "confirm"
)

// Policy holds the business limits of the same-day booking flow.
type Policy struct {
	// CutoffHour closes the flow for new bookings and bounds arrival times.
	CutoffHour int
	// MaxRooms is the smallest room count redirected to the website.
	MaxRooms   int
	BookingURL string
}

// DefaultPolicy is the front desk's standing policy.
func DefaultPolicy() Policy {
	return Policy{CutoffHour: 22, MaxRooms: 5, BookingURL: "https://ktwhotel.com/2cTrT"}
}

// BookingMachine runs the same-day booking conversation.
type BookingMachine struct {
	policy Policy
	texts  Texts
}

// NewBookingMachine builds a booking flow; zero policy fields take defaults.
func NewBookingMachine(p Policy) *BookingMachine {
	def := DefaultPolicy()
	if p.CutoffHour <= 0 || p.CutoffHour > 24 {
		p.CutoffHour = def.CutoffHour
	}
	if p.MaxRooms <= 1 {
		p.MaxRooms = def.MaxRooms
	}
	if p.BookingURL == "" {
		p.BookingURL = def.BookingURL
	}
	return &BookingMachine{policy: p, texts: Texts{BookingURL: p.BookingURL, CutoffHour: p.CutoffHour}}
}

func (m *BookingMachine) Flow() session.Flow { return session.FlowBooking }

// Policy returns the limits the machine enforces.
func (m *BookingMachine) Policy() Policy { return m.policy }

func (m *BookingMachine) Start(sess *session.Session, ev Event) Result {
	next := sess.Clone()
	next.Draft = session.Draft{Booking: &session.BookingDraft{}}

	if ev.Class.Intent == intent.SameDayBooking {
		return m.openRooms(next, ev)
	}
	if hint := ev.Class.Entities.Date; hint != nil {
		return m.routeDate(next, ev, hint)
	}
	return reply(to(next, session.FlowBooking, stateAskDate), msgAskDate)
}

func (m *BookingMachine) Resume(sess *session.Session, ev Event) Result {
	next := sess.Clone()
	if next.Draft.Booking == nil {
		next.Draft = session.Draft{Booking: &session.BookingDraft{}}
	}
	return reply(to(next, session.FlowBooking, stateAskDate), msgAskDate)
}

func (m *BookingMachine) Handle(sess *session.Session, ev Event) Result {
	next := sess.Clone()
	if next.Draft.Booking == nil {
		next.Draft = session.Draft{Booking: &session.BookingDraft{}}
	}

	if next.State.Name() == stateConfirm {
		return m.confirm(next, ev)
	}
	if ev.Class.Intent.Disengages() {
		return m.disengage(next, ev)
	}

	switch next.State.Name() {
	case stateAskDate:
		hint := intent.ParseDate(ev.Text)
		if hint == nil {
			return reply(next, msgDateUnclear)
		}
		return m.routeDate(next, ev, hint)
	case stateShowRooms, stateCollectRoom:
		return m.selectRooms(next, ev)
	case stateCollectCount:
		return m.collectCount(next, ev)
	case stateCollectBed:
		return m.collectBed(next, ev)
	case stateCollectInfo:
		return m.collectInfo(next, ev)
	}
	// an unknown booking state restarts at the date question
	next.Draft = session.Draft{Booking: &session.BookingDraft{}}
	return reply(to(next, session.FlowBooking, stateAskDate), msgAskDate)
}

func (m *BookingMachine) Prompt(sess *session.Session, ev Event) string {
	d := sess.Draft.Booking
	if d == nil {
		d = &session.BookingDraft{}
	}
	switch sess.State.Name() {
	case stateShowRooms, stateCollectRoom:
		return roomList(d)
	case stateCollectCount:
		if d.Room != nil {
			return askCount(*d.Room, m.policy.MaxRooms)
		}
	case stateCollectBed:
		if d.Room != nil {
			return askBed(d.Room.Beds)
		}
	case stateCollectInfo:
		if msg := missingInfo(d); msg != "" && (d.GuestName != "" || d.Phone != "" || d.ArrivalTime != "") {
			return msg
		}
		return msgInfoRequest
	case stateConfirm:
		return confirmBooking(d, sess.DisplayName, ev.Now)
	}
	return msgAskDate
}

func (m *BookingMachine) routeDate(next *session.Session, ev Event, hint *intent.DateHint) Result {
	if hint.IsToday(ev.Now) {
		return m.openRooms(next, ev)
	}
	date := hint.Resolve(ev.Now)
	return m.end(next, m.texts.futureDate(date, hint.Kind == intent.DateExplicit))
}

// openRooms applies the booking-hours gate and shows today's classes.
// Prices fall back to the catalog when availability cannot be read.
func (m *BookingMachine) openRooms(next *session.Session, ev Event) Result {
	if ev.Now.Hour() >= m.policy.CutoffHour {
		return m.end(next, m.texts.bookingClosed())
	}
	obs, ok := ev.observed(EffectAvailability)
	if !ok {
		return need(Effect{Kind: EffectAvailability, BestEffort: true})
	}
	d := next.Draft.Booking
	d.Prices = make(map[string]int)
	for _, rc := range inventory.Bookable() {
		d.Prices[rc.Code] = obs.Availability.PriceFor(rc)
	}
	return reply(to(next, session.FlowBooking, stateShowRooms), roomList(d))
}

func (m *BookingMachine) selectRooms(next *session.Session, ev Event) Result {
	d := next.Draft.Booking
	text := strings.TrimSpace(intent.NormalizeDigits(ev.Text))

	if lines := inventory.ParseMultiRoom(text); len(lines) > 0 {
		if inventory.TotalRooms(lines) >= m.policy.MaxRooms {
			return m.end(next, m.texts.tooManyRooms(m.policy.MaxRooms))
		}
		obs, ok := ev.observed(EffectAvailability)
		if !ok {
			return need(Effect{Kind: EffectAvailability})
		}
		accessibleOnly := false
		total := 0
		for _, l := range lines {
			res := inventory.Check(l.Room.Capacity, l.Count, obs.Availability)
			if !res.Sufficient {
				return m.end(next, m.texts.soldOut(l.Room.Name))
			}
			accessibleOnly = accessibleOnly || res.AccessibleOnly
			total += d.PriceOf(l.Room) * l.Count
		}
		d.Room, d.Count, d.Bed = nil, 0, ""
		d.Multi = true
		d.Lines = lines
		d.AccessibleOnly = accessibleOnly
		d.TotalPrice = total
		return reply(to(next, session.FlowBooking, stateCollectInfo), roomsConfirmed(d))
	}

	if rc, ok := inventory.ParseSingleSelection(text); ok {
		d.Multi, d.Lines = false, nil
		d.Room = &rc
		return reply(to(next, session.FlowBooking, stateCollectCount), askCount(rc, m.policy.MaxRooms))
	}
	return reply(to(next, session.FlowBooking, stateCollectRoom), selectionRetry())
}

func (m *BookingMachine) collectCount(next *session.Session, ev Event) Result {
	d := next.Draft.Booking
	if d.Room == nil {
		return reply(to(next, session.FlowBooking, stateCollectRoom), selectionRetry())
	}
	runs := intent.Digits(ev.Text)
	if len(runs) == 0 {
		return reply(next, msgCountNotNumber)
	}
	n, err := strconv.Atoi(runs[0])
	if err != nil || n <= 0 {
		return reply(next, msgCountNotPositive)
	}
	if n >= m.policy.MaxRooms {
		return m.end(next, m.texts.tooManyRooms(m.policy.MaxRooms))
	}
	d.Count = n

	switch beds := d.Room.Beds; len(beds) {
	case 0:
	case 1:
		d.Bed = beds[0]
	default:
		return reply(to(next, session.FlowBooking, stateCollectBed), askBed(beds))
	}
	return m.checkSingle(next, ev)
}

func (m *BookingMachine) collectBed(next *session.Session, ev Event) Result {
	d := next.Draft.Booking
	if d.Room == nil {
		return reply(to(next, session.FlowBooking, stateCollectRoom), selectionRetry())
	}
	beds := d.Room.Beds
	idx, err := strconv.Atoi(strings.TrimSpace(intent.NormalizeDigits(ev.Text)))
	if err != nil || idx < 1 || idx > len(beds) {
		return reply(next, bedRetry(beds))
	}
	d.Bed = beds[idx-1]
	return m.checkSingle(next, ev)
}

// checkSingle runs the upgrade-pool check for a single-class selection.
func (m *BookingMachine) checkSingle(next *session.Session, ev Event) Result {
	obs, ok := ev.observed(EffectAvailability)
	if !ok {
		return need(Effect{Kind: EffectAvailability})
	}
	d := next.Draft.Booking
	res := inventory.Check(d.Room.Capacity, d.Count, obs.Availability)
	if !res.Sufficient {
		return m.end(next, m.texts.soldOut(d.Room.Name))
	}
	d.AccessibleOnly = res.AccessibleOnly
	d.TotalPrice = d.PriceOf(*d.Room) * d.Count
	return reply(to(next, session.FlowBooking, stateCollectInfo), roomsConfirmed(d))
}

func (m *BookingMachine) collectInfo(next *session.Session, ev Event) Result {
	d := next.Draft.Booking
	info := ParseGuestInfo(ev.Text)
	if info.Phone != "" {
		d.Phone = info.Phone
	}
	if info.ArrivalTime != "" {
		d.ArrivalTime = info.ArrivalTime
	}
	if info.Name != "" && d.GuestName == "" {
		d.GuestName = info.Name
	}
	if msg := missingInfo(d); msg != "" {
		return reply(next, msg)
	}
	if InvalidArrival(d.ArrivalTime, m.policy.CutoffHour) {
		return m.end(next, m.texts.lateArrival())
	}
	return reply(to(next, session.FlowBooking, stateConfirm), confirmBooking(d, next.DisplayName, ev.Now))
}

func (m *BookingMachine) confirm(next *session.Session, ev Event) Result {
	d := next.Draft.Booking
	if ev.Class.Intent == intent.Interrupt {
		return m.disengage(next, ev)
	}
	switch readAnswer(ev.Text, []string{"確認預訂"}, []string{"取消預訂"}) {
	case answerNo:
		return m.end(next, msgBookingDeclined)
	case answerYes:
		obs, ok := ev.observed(EffectCreateBooking)
		if !ok {
			return need(Effect{Kind: EffectCreateBooking, Requests: m.requests(next, ev.Now, pms.StatusPending)})
		}
		res := reply(to(next, session.FlowBooking, Completed),
			m.texts.bookingSucceeded(d, next.DisplayName, ev.Now, obs.Created, obs.FailedLines))
		res.Notice = bookingNotice(d, next, ev.Now, obs.Created)
		return res
	}
	return reply(next, msgConfirmOptions)
}

// disengage ends the flow at the guest's request. A draft that already
// holds a room choice is archived as interrupted so the front desk can
// follow up; archiving never blocks the exit.
func (m *BookingMachine) disengage(next *session.Session, ev Event) Result {
	if next.Draft.Booking.HasSelection() {
		if _, ok := ev.observed(EffectArchiveDraft); !ok {
			return need(Effect{
				Kind:       EffectArchiveDraft,
				Requests:   m.requests(next, ev.Now, pms.StatusInterrupted),
				BestEffort: true,
			})
		}
	}
	return m.end(next, msgDisengaged)
}

func (m *BookingMachine) end(next *session.Session, text string) Result {
	return reply(to(next, session.FlowBooking, Cancelled), text)
}

// requests turns the draft into one booking request per room line.
func (m *BookingMachine) requests(sess *session.Session, now time.Time, status pms.BookingStatus) []pms.BookingRequest {
	d := sess.Draft.Booking
	base := pms.BookingRequest{
		Nights:          1,
		CheckIn:         now.Format("2006-01-02"),
		CheckOut:        now.AddDate(0, 0, 1).Format("2006-01-02"),
		GuestName:       d.GuestName,
		Phone:           d.Phone,
		ArrivalTime:     d.ArrivalTime,
		LineUserID:      sess.UserID,
		LineDisplayName: sess.DisplayName,
		Status:          status,
	}
	if d.Multi {
		out := make([]pms.BookingRequest, 0, len(d.Lines))
		for _, l := range d.Lines {
			r := base
			r.RoomTypeCode = l.Room.Code
			r.RoomTypeName = l.Room.Name
			r.RoomCount = l.Count
			out = append(out, r)
		}
		return out
	}
	if d.Room == nil {
		return nil
	}
	r := base
	r.RoomTypeCode = d.Room.Code
	r.RoomTypeName = d.Room.Name
	r.RoomCount = max(d.Count, 1)
	r.BedType = d.Bed
	return []pms.BookingRequest{r}
}

func bookingNotice(d *session.BookingDraft, sess *session.Session, now time.Time, created []pms.Booking) *Notice {
	ids := make([]string, 0, len(created))
	for _, c := range created {
		ids = append(ids, c.OrderID)
	}
	return &Notice{
		Subject: fmt.Sprintf("[當日訂房] %s %s", d.GuestName, now.Format("01/02")),
		Body:    fmt.Sprintf("訂單編號：%s\n%s", strings.Join(ids, "、"), bookingDetails(d, sess.DisplayName, now)),
	}
}
