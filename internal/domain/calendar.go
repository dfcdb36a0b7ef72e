package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for calendar days.
const DateLayout = "2006-01-02"

type Rate struct {
	PropertyID int64     `json:"property_id"`
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	MinNights  int       `json:"min_nights"`
	MaxGuests  int       `json:"max_guests"` // 0 = unlimited
	Currency   string    `json:"currency"`
}

type Availability struct {
	PropertyID  int64     `json:"property_id"`
	Date        time.Time `json:"date"`
	IsBooked    bool      `json:"is_booked"`
	IsAvailable bool      `json:"is_available"`
}

// CalendarDay is one upstream calendar entry before it is split into a
// Rate and an Availability row.
type CalendarDay struct {
	Date        time.Time
	Price       float64
	MinNights   int
	MaxGuests   int
	IsAvailable bool
	IsBooked    bool
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidRange, s)
	}
	return t, nil
}

// Nights returns every night of a stay: checkin inclusive, checkout exclusive.
func Nights(checkin, checkout time.Time) []time.Time {
	start, end := Day(checkin), Day(checkout)
	var out []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func DateKey(t time.Time) string { return Day(t).Format(DateLayout) }
