package app

import (
	"math"
	"time"

	"hostaway_sync/internal/domain"
)

type PriceResult struct {
	Total     float64
	Nights    int
	Currency  string
	Breakdown []domain.NightPrice
}

// CalculatePrice sums nightly rates over [checkin, checkout). It reports
// false when the range is empty, any night has no rate, guests exceeds a
// night's max_guests (0 = unlimited) or the stay is shorter than the
// first night's min_nights.
func CalculatePrice(rates []domain.Rate, checkin, checkout time.Time, guests int) (PriceResult, bool) {
	nights := domain.Nights(checkin, checkout)
	if len(nights) == 0 {
		return PriceResult{}, false
	}

	byDay := make(map[string]domain.Rate, len(rates))
	for _, r := range rates {
		byDay[domain.DateKey(r.Date)] = r
	}

	out := PriceResult{Nights: len(nights), Breakdown: make([]domain.NightPrice, 0, len(nights))}
	for i, n := range nights {
		key := domain.DateKey(n)
		r, ok := byDay[key]
		if !ok {
			return PriceResult{}, false
		}
		if r.MaxGuests > 0 && guests > r.MaxGuests {
			return PriceResult{}, false
		}
		if i == 0 {
			if r.MinNights > len(nights) {
				return PriceResult{}, false
			}
			out.Currency = r.Currency
		}
		out.Total += r.Price
		out.Breakdown = append(out.Breakdown, domain.NightPrice{Date: key, Price: r.Price})
	}
	out.Total = math.Round(out.Total*100) / 100
	return out, true
}

// IsAvailable fails closed: every night of [checkin, checkout) must have a
// row that is available and not booked.
func IsAvailable(avail []domain.Availability, checkin, checkout time.Time) bool {
	nights := domain.Nights(checkin, checkout)
	if len(nights) == 0 {
		return false
	}
	byDay := make(map[string]domain.Availability, len(avail))
	for _, a := range avail {
		byDay[domain.DateKey(a.Date)] = a
	}
	for _, n := range nights {
		a, ok := byDay[domain.DateKey(n)]
		if !ok || a.IsBooked || !a.IsAvailable {
			return false
		}
	}
	return true
}
