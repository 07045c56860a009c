package pms

import (
	"context"
	"errors"
	"testing"

	"github.com/ktwhotel/concierge/internal/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryService_PendingBookingTakesPoolStock(t *testing.T) {
	svc := NewMemoryService(inventory.Availability{"SD": {Available: 1}, "CD": {Available: 1}}, nil)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, BookingRequest{RoomTypeCode: "SD", RoomCount: 2, LineUserID: "U1", Status: StatusPending})
	require.NoError(t, err)
	assert.NotEmpty(t, b.OrderID)

	avail, err := svc.TodayAvailability(ctx)
	require.NoError(t, err)
	assert.Zero(t, avail["SD"].Available)
	assert.Zero(t, avail["CD"].Available)

	_, err = svc.CreateBooking(ctx, BookingRequest{RoomTypeCode: "SD", RoomCount: 1, Status: StatusPending})
	var rej *RejectedError
	assert.True(t, errors.As(err, &rej))

	_, err = svc.CreateBooking(ctx, BookingRequest{RoomTypeCode: "SD", RoomCount: 1, LineUserID: "U1", Status: StatusInterrupted})
	assert.NoError(t, err, "interrupted drafts hold no stock")
}

func TestMemoryService_ListAndCancel(t *testing.T) {
	svc := NewMemoryService(DemoAvailability(), nil)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, BookingRequest{RoomTypeCode: "SD", RoomCount: 1, LineUserID: "U1", Status: StatusPending})
	require.NoError(t, err)
	_, err = svc.CreateBooking(ctx, BookingRequest{RoomTypeCode: "SQ", RoomCount: 1, LineUserID: "U2", Status: StatusPending})
	require.NoError(t, err)

	got, err := svc.ListBookingsForUser(ctx, "U1", StatusPending, StatusInterrupted)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.OrderID, got[0].OrderID)

	require.NoError(t, svc.CancelBooking(ctx, b.OrderID))
	got, err = svc.ListBookingsForUser(ctx, "U1", StatusPending, StatusInterrupted)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, svc.CancelBooking(ctx, "missing"), ErrNotFound)
}

func TestMemoryService_SearchAndConfirm(t *testing.T) {
	svc := NewMemoryService(nil, []Order{
		{OrderID: "10001", GuestName: "王大明"},
		{OrderID: "10002", GuestName: "王大明"},
		{OrderID: "20001", GuestName: "李小華"},
	})
	ctx := context.Background()

	got, err := svc.SearchOrders(ctx, "王大明")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.SearchOrders(ctx, "20001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "李小華", got[0].GuestName)

	require.NoError(t, svc.ConfirmOrder(ctx, OrderConfirmation{OrderID: "20001", Phone: "0912345678"}))
	assert.ErrorIs(t, svc.ConfirmOrder(ctx, OrderConfirmation{OrderID: "99999"}), ErrNotFound)
	assert.Len(t, svc.Confirmations(), 1)
}
