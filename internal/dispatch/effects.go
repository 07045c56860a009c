package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ktwhotel/concierge/internal/flow"
	"github.com/ktwhotel/concierge/internal/pms"
)

// perform runs one effect against the booking backend. Best-effort effects
// never fail: their error travels back in the observation.
func (d *Dispatcher) perform(ctx context.Context, eff flow.Effect) (*flow.Observation, error) {
	ctx, span := d.tracer.Start(ctx, "concierge.effect."+string(eff.Kind))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	start := time.Now()
	obs, err := d.call(ctx, eff)
	d.metrics.ObserveCollaborator(string(eff.Kind), time.Since(start).Seconds())
	if err == nil {
		return obs, nil
	}
	span.RecordError(err)
	if eff.BestEffort {
		d.logger.Warn("best-effort collaborator call failed", "effect", string(eff.Kind), "error", err)
		return &flow.Observation{Kind: eff.Kind, Err: err}, nil
	}
	return nil, err
}

func (d *Dispatcher) call(ctx context.Context, eff flow.Effect) (*flow.Observation, error) {
	obs := &flow.Observation{Kind: eff.Kind}
	switch eff.Kind {
	case flow.EffectAvailability:
		avail, err := d.pms.TodayAvailability(ctx)
		if err != nil {
			return nil, err
		}
		obs.Availability = avail
	case flow.EffectCreateBooking:
		created, failed, err := d.createAll(ctx, eff.Requests)
		if err != nil {
			return nil, err
		}
		obs.Created, obs.FailedLines = created, failed
	case flow.EffectArchiveDraft:
		created, _, err := d.createAll(ctx, eff.Requests)
		if err != nil {
			return nil, err
		}
		obs.Created = created
	case flow.EffectListBookings:
		bookings, err := d.pms.ListBookingsForUser(ctx, eff.UserID, eff.Statuses...)
		if err != nil {
			return nil, err
		}
		obs.Bookings = bookings
	case flow.EffectCancelBooking:
		if err := d.pms.CancelBooking(ctx, eff.OrderID); err != nil {
			return nil, err
		}
	case flow.EffectSearchOrders:
		orders, err := d.pms.SearchOrders(ctx, eff.SearchTerm)
		if err != nil {
			return nil, err
		}
		obs.Orders = orders
	case flow.EffectConfirmOrder:
		if eff.Confirmation == nil {
			return nil, fmt.Errorf("dispatch: confirm_order without confirmation")
		}
		if err := d.pms.ConfirmOrder(ctx, *eff.Confirmation); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", flow.ErrUnknownEffect, eff.Kind)
	}
	return obs, nil
}

// createAll submits one booking per line. Lines the backend refuses are
// counted; the call only fails when no line went through.
func (d *Dispatcher) createAll(ctx context.Context, reqs []pms.BookingRequest) ([]pms.Booking, int, error) {
	var (
		created []pms.Booking
		lastErr error
	)
	for _, req := range reqs {
		b, err := d.pms.CreateBooking(ctx, req)
		if err != nil {
			d.logger.Warn("booking line failed", "room_type", req.RoomTypeCode, "count", req.RoomCount, "status", string(req.Status), "error", err)
			lastErr = err
			continue
		}
		created = append(created, b)
	}
	if len(created) == 0 && lastErr != nil {
		return nil, 0, fmt.Errorf("dispatch: create booking: %w", lastErr)
	}
	return created, len(reqs) - len(created), nil
}
