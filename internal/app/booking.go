package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"hostaway_sync/internal/domain"
)

type bookingRepo interface {
	domain.PropertyRepository
	domain.CalendarRepository
	domain.ReservationRepository
	domain.SyncLogRepository
}

type BookingService struct {
	hostaway domain.HostawayClient
	repo     bookingRepo
	logs     logRecorder
}

// NewBookingService wires a booking service. logKeep bounds the sync log
// it appends to; 0 keeps the default.
func NewBookingService(c domain.HostawayClient, r bookingRepo, logKeep int) *BookingService {
	return &BookingService{hostaway: c, repo: r, logs: newLogRecorder(r, logKeep)}
}

// Quote aggregates availability and price for a stay. It returns
// ErrNoRate when the stay cannot be priced; an unpriceable stay is never
// bookable.
func (s *BookingService) Quote(ctx context.Context, propertyID int64, checkin, checkout time.Time, guests int) (domain.Quote, error) {
	if err := checkRange(checkin, checkout); err != nil {
		return domain.Quote{}, err
	}
	if guests < 1 {
		return domain.Quote{}, fmt.Errorf("%w: guests must be at least 1", domain.ErrInvalidRange)
	}
	p, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		return domain.Quote{}, err
	}
	if p.Status != domain.StatusActive {
		return domain.Quote{}, domain.ErrNotFound
	}

	rates, err := s.repo.GetRates(ctx, propertyID, checkin, checkout)
	if err != nil {
		return domain.Quote{}, err
	}
	price, ok := CalculatePrice(rates, checkin, checkout, guests)
	if !ok {
		return domain.Quote{}, domain.ErrNoRate
	}
	avail, err := s.repo.GetAvailability(ctx, propertyID, checkin, checkout)
	if err != nil {
		return domain.Quote{}, err
	}

	currency := price.Currency
	if currency == "" {
		currency = p.Currency
	}
	return domain.Quote{
		PropertyID: propertyID,
		Checkin:    domain.DateKey(checkin),
		Checkout:   domain.DateKey(checkout),
		Guests:     guests,
		Nights:     price.Nights,
		Available:  IsAvailable(avail, checkin, checkout),
		Total:      price.Total,
		Currency:   currency,
		Breakdown:  price.Breakdown,
	}, nil
}

// CreateReservation books upstream first and writes the local row only
// once Hostaway has confirmed. Retrying with the same order_ref returns
// the reservation already stored.
func (s *BookingService) CreateReservation(ctx context.Context, req domain.ReservationRequest) (domain.Reservation, error) {
	if existing, err := s.repo.GetReservationByOrderRef(ctx, req.OrderRef); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Reservation{}, err
	}

	checkin, err := domain.ParseDate(req.Checkin)
	if err != nil {
		return domain.Reservation{}, err
	}
	checkout, err := domain.ParseDate(req.Checkout)
	if err != nil {
		return domain.Reservation{}, err
	}

	q, err := s.Quote(ctx, req.PropertyID, checkin, checkout, req.Guests)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !q.Available {
		return domain.Reservation{}, domain.ErrUnavailable
	}
	p, err := s.repo.GetProperty(ctx, req.PropertyID)
	if err != nil {
		return domain.Reservation{}, err
	}

	resp, err := s.hostaway.CreateReservation(ctx, reservationBody(p, req, q.Total, q.Currency))
	if err != nil {
		s.record(ctx, domain.LogError, fmt.Sprintf("order %s: hostaway rejected booking: %v", req.OrderRef, err))
		return domain.Reservation{}, fmt.Errorf("create hostaway reservation: %w: %w", domain.ErrUpstream, err)
	}
	extID := firstInt64Flexible(resp, "id", "reservationId")
	if extID == nil || *extID <= 0 {
		s.record(ctx, domain.LogError, fmt.Sprintf("order %s: hostaway response without reservation id", req.OrderRef))
		return domain.Reservation{}, fmt.Errorf("%w: reservation response has no id", domain.ErrUpstream)
	}
	raw, _ := json.Marshal(resp)

	rv, err := s.repo.CreateReservation(ctx, domain.Reservation{
		OrderRef:   req.OrderRef,
		ExternalID: *extID,
		PropertyID: p.ID,
		Checkin:    checkin,
		Checkout:   checkout,
		Guests:     req.Guests,
		Amount:     q.Total,
		Currency:   q.Currency,
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
		Status:     domain.ReservationConfirmed,
		RawJSON:    raw,
	})
	if errors.Is(err, domain.ErrConflict) {
		// a concurrent retry of the same order won the insert
		return s.repo.GetReservationByOrderRef(ctx, req.OrderRef)
	}
	if err != nil {
		// Hostaway holds a reservation we failed to record; surface loudly.
		log.Error().Err(err).Str("order", req.OrderRef).Int64("hostaway_id", *extID).Msg("store confirmed reservation failed")
		s.record(ctx, domain.LogError, fmt.Sprintf("order %s: hostaway reservation %d not stored: %v", req.OrderRef, *extID, err))
		return domain.Reservation{}, fmt.Errorf("store reservation: %w", err)
	}

	s.record(ctx, domain.LogSuccess, fmt.Sprintf("order %s: hostaway reservation %d created", rv.OrderRef, rv.ExternalID))
	log.Info().Str("order", rv.OrderRef).Int64("reservation", rv.ID).Int64("hostaway_id", rv.ExternalID).Msg("reservation created")
	return rv, nil
}

// CancelReservation cancels upstream, then frees the local nights.
func (s *BookingService) CancelReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	rv, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if rv.Status == domain.ReservationCancelled {
		return rv, nil
	}
	if _, err := s.hostaway.CancelReservation(ctx, rv.ExternalID); err != nil {
		s.record(ctx, domain.LogError, fmt.Sprintf("order %s: hostaway cancel failed: %v", rv.OrderRef, err))
		return domain.Reservation{}, fmt.Errorf("cancel hostaway reservation: %w: %w", domain.ErrUpstream, err)
	}
	if err := s.repo.CancelReservation(ctx, id); err != nil {
		return domain.Reservation{}, err
	}
	rv.Status = domain.ReservationCancelled
	s.record(ctx, domain.LogSuccess, fmt.Sprintf("order %s: hostaway reservation %d cancelled", rv.OrderRef, rv.ExternalID))
	return rv, nil
}

func (s *BookingService) Reservation(ctx context.Context, id int64) (domain.Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

func (s *BookingService) record(ctx context.Context, status, msg string) {
	s.logs.record(ctx, "reservation", status, msg)
}
