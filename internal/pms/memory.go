package pms

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ktwhotel/concierge/internal/inventory"
)

// MemoryService is an in-process PMS used by tests and local development.
type MemoryService struct {
	mu       sync.Mutex
	avail    inventory.Availability
	bookings []Booking
	orders   []Order
	confirms []OrderConfirmation
	seq      int
	now      func() time.Time
}

// NewMemoryService seeds the fake with today's stock and existing orders.
func NewMemoryService(avail inventory.Availability, orders []Order) *MemoryService {
	copied := make(inventory.Availability, len(avail))
	for k, v := range avail {
		copied[k] = v
	}
	return &MemoryService{
		avail:  copied,
		orders: append([]Order(nil), orders...),
		now:    time.Now,
	}
}

// DemoAvailability is a plausible afternoon's stock for local runs.
func DemoAvailability() inventory.Availability {
	return inventory.Availability{
		"SD": {Price: 2800, Available: 3},
		"CD": {Price: 3200, Available: 2},
		"ST": {Price: 3600, Available: 1},
		"SQ": {Price: 4200, Available: 2},
		"AQ": {Price: 4200, Available: 1},
	}
}

func (m *MemoryService) TodayAvailability(ctx context.Context) (inventory.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(inventory.Availability, len(m.avail))
	for k, v := range m.avail {
		out[k] = v
	}
	return out, nil
}

// CreateBooking stores the booking. Pending bookings take rooms from the
// requested class's upgrade pool; interrupted drafts hold no stock.
func (m *MemoryService) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rc, ok := inventory.ByCode(req.RoomTypeCode)
	if !ok {
		return Booking{}, &RejectedError{Code: "INVALID_ROOM_TYPE", Message: "unknown room type " + req.RoomTypeCode}
	}
	if req.Status == StatusPending {
		if !inventory.Check(rc.Capacity, req.RoomCount, m.avail).Sufficient {
			return Booking{}, &RejectedError{Code: "NO_AVAILABILITY", Message: "not enough rooms"}
		}
		m.take(rc.Capacity, req.RoomCount)
	}

	m.seq++
	b := Booking{
		OrderID:         fmt.Sprintf("SD%s%03d", m.now().Format("0102"), m.seq),
		RoomTypeCode:    req.RoomTypeCode,
		RoomTypeName:    req.RoomTypeName,
		RoomCount:       req.RoomCount,
		BedType:         req.BedType,
		CheckIn:         req.CheckIn,
		GuestName:       req.GuestName,
		Phone:           req.Phone,
		ArrivalTime:     req.ArrivalTime,
		LineUserID:      req.LineUserID,
		LineDisplayName: req.LineDisplayName,
		Status:          req.Status,
		CreatedAt:       m.now().UTC(),
	}
	m.bookings = append(m.bookings, b)
	return b, nil
}

// take decrements stock across the pool in catalog order.
func (m *MemoryService) take(capacity, count int) {
	for _, code := range inventory.UpgradePool(capacity) {
		if count == 0 {
			return
		}
		s := m.avail[code]
		n := min(s.Available, count)
		s.Available -= n
		count -= n
		m.avail[code] = s
	}
}

func (m *MemoryService) CancelBooking(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.bookings {
		if m.bookings[i].OrderID == orderID {
			m.bookings[i].Status = StatusCancelled
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryService) ListBookingsForUser(ctx context.Context, userID string, statuses ...BookingStatus) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.LineUserID != userID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, b.Status) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// SearchOrders matches the exact order id or a substring of the guest name.
func (m *MemoryService) SearchOrders(ctx context.Context, term string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	term = strings.TrimSpace(term)
	var out []Order
	for _, o := range m.orders {
		if o.OrderID == term || (term != "" && strings.Contains(o.GuestName, term)) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MemoryService) ConfirmOrder(ctx context.Context, conf OrderConfirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderID == conf.OrderID {
			m.confirms = append(m.confirms, conf)
			return nil
		}
	}
	return ErrNotFound
}

// Confirmations returns what ConfirmOrder recorded.
func (m *MemoryService) Confirmations() []OrderConfirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrderConfirmation(nil), m.confirms...)
}

var (
	_ Service = (*MemoryService)(nil)
	_ Service = (*Client)(nil)
)
