// Package pms talks to the hotel's property-management backend: today's room
// availability, same-day booking records and existing reservations.
package pms

import (
	"context"
	"errors"
	"time"

	"github.com/ktwhotel/concierge/internal/inventory"
)

var (
	// ErrUnavailable wraps transport failures and 5xx answers.
	ErrUnavailable = errors.New("pms: service unavailable")
	// ErrNotFound is returned for unknown booking or order ids.
	ErrNotFound = errors.New("pms: not found")
)

// RejectedError is a business-level refusal reported by the backend.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return "pms: rejected: " + e.Message
	}
	return "pms: rejected (" + e.Code + "): " + e.Message
}

// BookingStatus is the lifecycle of a same-day booking record.
type BookingStatus string

const (
	StatusPending     BookingStatus = "pending"
	StatusInterrupted BookingStatus = "interrupted"
	StatusCancelled   BookingStatus = "cancelled"
	StatusCheckedIn   BookingStatus = "checked_in"
)

// BookingRequest describes one room line of a same-day booking. Multi-room
// bookings send one request per line.
type BookingRequest struct {
	RoomTypeCode    string        `json:"room_type_code"`
	RoomTypeName    string        `json:"room_type_name"`
	RoomCount       int           `json:"room_count"`
	BedType         string        `json:"bed_type,omitempty"`
	Nights          int           `json:"nights"`
	CheckIn         string        `json:"check_in"`
	CheckOut        string        `json:"check_out"`
	GuestName       string        `json:"guest_name,omitempty"`
	Phone           string        `json:"phone,omitempty"`
	ArrivalTime     string        `json:"arrival_time,omitempty"`
	LineUserID      string        `json:"line_user_id"`
	LineDisplayName string        `json:"line_display_name,omitempty"`
	Status          BookingStatus `json:"status"`
}

// Booking is a same-day booking record as stored by the backend.
type Booking struct {
	OrderID         string        `json:"temp_order_id"`
	RoomTypeCode    string        `json:"room_type_code"`
	RoomTypeName    string        `json:"room_type_name,omitempty"`
	RoomCount       int           `json:"room_count"`
	BedType         string        `json:"bed_type,omitempty"`
	CheckIn         string        `json:"check_in,omitempty"`
	GuestName       string        `json:"guest_name,omitempty"`
	Phone           string        `json:"phone,omitempty"`
	ArrivalTime     string        `json:"arrival_time,omitempty"`
	LineUserID      string        `json:"line_user_id"`
	LineDisplayName string        `json:"line_display_name,omitempty"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}

// RoomName prefers the stored display name over the code.
func (b Booking) RoomName() string {
	if b.RoomTypeName != "" {
		return b.RoomTypeName
	}
	return inventory.DisplayName(b.RoomTypeCode)
}

// Order is an existing reservation found by the order-query flow.
type Order struct {
	OrderID    string `json:"order_id"`
	GuestName  string `json:"guest_name"`
	CheckIn    string `json:"check_in_date"`
	CheckOut   string `json:"check_out_date"`
	RoomType   string `json:"room_type"`
	RoomCount  int    `json:"room_count"`
	Nights     int    `json:"nights"`
	TotalPrice int    `json:"total_price"`
}

// OrderConfirmation carries the contact details collected for an order.
type OrderConfirmation struct {
	OrderID         string `json:"order_id"`
	Phone           string `json:"phone"`
	ArrivalTime     string `json:"arrival_time"`
	LineUserID      string `json:"line_user_id"`
	LineDisplayName string `json:"line_display_name,omitempty"`
}

// Service is the booking collaborator used by the conversation engine.
type Service interface {
	TodayAvailability(ctx context.Context) (inventory.Availability, error)
	CreateBooking(ctx context.Context, req BookingRequest) (Booking, error)
	CancelBooking(ctx context.Context, orderID string) error
	ListBookingsForUser(ctx context.Context, userID string, statuses ...BookingStatus) ([]Booking, error)
	SearchOrders(ctx context.Context, term string) ([]Order, error)
	ConfirmOrder(ctx context.Context, conf OrderConfirmation) error
}
