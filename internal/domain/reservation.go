package domain

import "time"

const (
	ReservationConfirmed = "confirmed"
	ReservationCancelled = "cancelled"
)

type Reservation struct {
	ID         int64     `json:"id"`
	OrderRef   string    `json:"order_ref"`
	ExternalID int64     `json:"external_id"`
	PropertyID int64     `json:"property_id"`
	Checkin    time.Time `json:"checkin"`
	Checkout   time.Time `json:"checkout"`
	Guests     int       `json:"guests"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	GuestName  string    `json:"guest_name"`
	GuestEmail string    `json:"guest_email"`
	Status     string    `json:"status"`
	RawJSON    []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReservationRequest is what a caller submits to book a stay.
type ReservationRequest struct {
	OrderRef   string `json:"order_ref" validate:"required,max=64"`
	PropertyID int64  `json:"property_id" validate:"required,gt=0"`
	Checkin    string `json:"checkin" validate:"required,datetime=2006-01-02"`
	Checkout   string `json:"checkout" validate:"required,datetime=2006-01-02"`
	Guests     int    `json:"guests" validate:"required,min=1"`
	GuestName  string `json:"guest_name" validate:"required"`
	GuestEmail string `json:"guest_email" validate:"required,email"`
	Phone      string `json:"phone,omitempty"`
}

// Quote is the read-time aggregation for a stay.
type Quote struct {
	PropertyID int64        `json:"property_id"`
	Checkin    string       `json:"checkin"`
	Checkout   string       `json:"checkout"`
	Guests     int          `json:"guests"`
	Nights     int          `json:"nights"`
	Available  bool         `json:"available"`
	Total      float64      `json:"total"`
	Currency   string       `json:"currency"`
	Breakdown  []NightPrice `json:"breakdown,omitempty"`
}

type NightPrice struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}
