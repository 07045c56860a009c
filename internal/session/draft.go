package session

import (
	"github.com/ktwhotel/concierge/internal/inventory"
	"github.com/ktwhotel/concierge/internal/pms"
)

// Draft is a tagged union: at most one member is set, and it must belong to
// the flow named by the session's state prefix.
type Draft struct {
	Booking      *BookingDraft      `json:"booking,omitempty"`
	OrderQuery   *OrderQueryDraft   `json:"order_query,omitempty"`
	Cancellation *CancellationDraft `json:"cancellation,omitempty"`
}

// Flow reports which member is set.
func (d Draft) Flow() Flow {
	switch {
	case d.Booking != nil:
		return FlowBooking
	case d.OrderQuery != nil:
		return FlowOrderQuery
	case d.Cancellation != nil:
		return FlowCancellation
	}
	return FlowNone
}

func (d Draft) count() int {
	n := 0
	if d.Booking != nil {
		n++
	}
	if d.OrderQuery != nil {
		n++
	}
	if d.Cancellation != nil {
		n++
	}
	return n
}

// BookingDraft accumulates a same-day booking.
type BookingDraft struct {
	// Prices holds today's quoted price per bookable code, captured when
	// the room list was shown.
	Prices map[string]int `json:"prices,omitempty"`

	Room  *inventory.RoomClass `json:"room,omitempty"`
	Count int                  `json:"count,omitempty"`
	Bed   string               `json:"bed,omitempty"`

	Multi bool             `json:"multi,omitempty"`
	Lines []inventory.Line `json:"lines,omitempty"`

	AccessibleOnly bool `json:"accessible_only,omitempty"`
	TotalPrice     int  `json:"total_price,omitempty"`

	GuestName   string `json:"guest_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	ArrivalTime string `json:"arrival_time,omitempty"`
}

// HasSelection reports whether a room choice has been made.
func (b *BookingDraft) HasSelection() bool {
	return b != nil && (b.Room != nil || len(b.Lines) > 0)
}

// PriceOf returns the quoted price for a class.
func (b *BookingDraft) PriceOf(rc inventory.RoomClass) int {
	if b != nil {
		if p, ok := b.Prices[rc.Code]; ok && p > 0 {
			return p
		}
	}
	return rc.Price
}

// OrderQueryDraft tracks one order lookup.
type OrderQueryDraft struct {
	SearchTerm  string      `json:"search_term,omitempty"`
	Candidates  []pms.Order `json:"candidates,omitempty"`
	Order       *pms.Order  `json:"order,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	ArrivalTime string      `json:"arrival_time,omitempty"`
}

// CancellationDraft holds the booking the guest is asked to cancel.
type CancellationDraft struct {
	Booking pms.Booking `json:"booking"`
}
