package app

import (
	"testing"
	"time"

	"hostaway_sync/internal/domain"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		title string
		id    int64
		want  string
	}{
		{"Casa da Praia", 7, "casa-da-praia-7"},
		{"  Château Étoile!! ", 12, "chateau-etoile-12"},
		{"Loft --- 3B", 3, "loft-3b-3"},
		{"!!!", 9, "listing-9"},
		{"", 1, "listing-1"},
	}
	for _, c := range cases {
		if got := slugify(c.title, c.id); got != c.want {
			t.Errorf("slugify(%q, %d) = %q, want %q", c.title, c.id, got, c.want)
		}
	}
}

func TestMapProperty_AliasesAndFallbacks(t *testing.T) {
	p := mapProperty(map[string]any{
		"id":                  float64(55),
		"externalListingName": "Sunny Loft",
		"countryCode":         "PT",
		"city":                " Porto ",
		"lat":                 "41,15",
		"bedroomsNumber":      "2",
		"bathroomsNumber":     float64(1.5),
		"personCapacity":      float64(5),
		"price":               float64(99),
		"listingImages": []any{
			map[string]any{"url": "https://img/1.jpg"},
			map[string]any{"url": ""},
			map[string]any{"url": "https://img/2.jpg"},
		},
		"listingAmenities": []any{map[string]any{"amenityName": "Pool"}, map[string]any{"name": "Wifi"}},
	}, "USD")

	if p.ExternalID != 55 || p.Title != "Sunny Loft" || p.Slug != "sunny-loft-55" {
		t.Fatalf("unexpected identity: %+v", p)
	}
	if deref(p.City) != "Porto" || deref(p.Country) != "PT" {
		t.Fatalf("unexpected location: city=%q country=%q", deref(p.City), deref(p.Country))
	}
	if p.Lat == nil || *p.Lat != 41.15 {
		t.Fatalf("expected comma decimal lat parsed, got %v", p.Lat)
	}
	if p.Bedrooms != 2 || p.Bathrooms != 1.5 || p.MaxGuests != 5 || p.BasePrice != 99 {
		t.Fatalf("unexpected numbers: %+v", p)
	}
	if p.Currency != "USD" {
		t.Fatalf("expected default currency, got %q", p.Currency)
	}
	if len(p.Gallery) != 2 || p.ThumbnailURL == nil || *p.ThumbnailURL != "https://img/1.jpg" {
		t.Fatalf("unexpected gallery/thumbnail: %v %v", p.Gallery, p.ThumbnailURL)
	}
	if len(p.Amenities) != 2 || p.Amenities[0] != "Pool" || p.Amenities[1] != "Wifi" {
		t.Fatalf("unexpected amenities: %v", p.Amenities)
	}
	if p.Status != domain.StatusActive || len(p.RawJSON) == 0 {
		t.Fatalf("expected active with raw payload")
	}
}

func TestMapProperty_ArchivedIsInactive(t *testing.T) {
	p := mapProperty(map[string]any{"id": float64(1), "isArchived": float64(1)}, "EUR")
	if p.Status != domain.StatusInactive {
		t.Fatalf("want inactive, got %q", p.Status)
	}
	if p.Title != "Listing 1" {
		t.Fatalf("want fallback title, got %q", p.Title)
	}
}

func TestMapCalendar_SplitsRatesAndAvailability(t *testing.T) {
	prop := domain.Property{ID: 3, MaxGuests: 4, Currency: "EUR"}
	start, _ := domain.ParseDate("2026-05-01")
	end := start.AddDate(0, 0, 4)

	days := []map[string]any{
		{"date": "2026-04-30", "price": float64(10), "isAvailable": float64(1)}, // before window
		{"date": "2026-05-01", "price": float64(100), "isAvailable": float64(1), "status": "available", "minimumStay": float64(2)},
		{"date": "2026-05-01", "price": float64(999)}, // duplicate
		{"date": "2026-05-02", "price": float64(110), "isAvailable": float64(0), "status": "reserved"},
		{"date": "2026-05-03", "isAvailable": float64(1), "status": "available"}, // no price
		{"date": "2026-05-04", "price": float64(120), "status": "blocked"},
		{"date": "2026-05-05", "price": float64(130)}, // end is exclusive
		{"date": "garbage", "price": float64(1)},
	}
	rates, avail := mapCalendar(prop, days, start, end)

	if len(avail) != 4 {
		t.Fatalf("want 4 availability rows, got %d", len(avail))
	}
	if len(rates) != 3 {
		t.Fatalf("want 3 rate rows, got %d", len(rates))
	}
	if rates[0].Price != 100 || rates[0].MinNights != 2 || rates[0].MaxGuests != 4 || rates[0].Currency != "EUR" || rates[0].PropertyID != 3 {
		t.Fatalf("unexpected first rate: %+v", rates[0])
	}
	if rates[1].MinNights != 1 {
		t.Fatalf("min nights should default to 1, got %d", rates[1].MinNights)
	}

	byDay := map[string]domain.Availability{}
	for _, a := range avail {
		byDay[domain.DateKey(a.Date)] = a
	}
	if a := byDay["2026-05-01"]; !a.IsAvailable || a.IsBooked {
		t.Fatalf("05-01 should be open: %+v", a)
	}
	if a := byDay["2026-05-02"]; a.IsAvailable || !a.IsBooked {
		t.Fatalf("05-02 should be booked: %+v", a)
	}
	if a := byDay["2026-05-04"]; a.IsAvailable || a.IsBooked {
		t.Fatalf("05-04 should be closed but not booked: %+v", a)
	}
}

func TestMapCalendar_ReservationsMarkBooked(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, avail := mapCalendar(domain.Property{}, []map[string]any{
		{"date": "2026-06-01", "isAvailable": float64(1), "reservations": []any{map[string]any{"id": float64(1)}}},
	}, start, start.AddDate(0, 0, 1))
	if len(avail) != 1 || !avail[0].IsBooked || avail[0].IsAvailable {
		t.Fatalf("day with reservations must be booked: %+v", avail)
	}
}

func TestReservationBody(t *testing.T) {
	p := domain.Property{ID: 1, ExternalID: 77}
	req := domain.ReservationRequest{OrderRef: "WC-1", Checkin: "2026-07-01", Checkout: "2026-07-03", Guests: 2, GuestName: "Ana", GuestEmail: "a@x.io", Phone: "+351"}
	body := reservationBody(p, req, 250, "EUR")

	if body["channelId"] != directChannelID || body["listingMapId"] != int64(77) {
		t.Fatalf("unexpected routing fields: %+v", body)
	}
	if body["channelReservationId"] != "WC-1" || body["departureDate"] != "2026-07-03" {
		t.Fatalf("unexpected stay fields: %+v", body)
	}
}
