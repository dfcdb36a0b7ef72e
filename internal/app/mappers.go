package app

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/fiam/gounidecode/unidecode"
	"github.com/rs/zerolog/log"

	"hostaway_sync/internal/domain"
)

/********** alias registries (single source of truth) **********/

var listingAliases = map[string][]string{
	"title":     {"name", "externalListingName", "internalListingName"},
	"desc":      {"description", "houseRules"},
	"country":   {"countryCode", "country"},
	"city":      {"city"},
	"address":   {"address", "publicAddress", "street"},
	"thumbnail": {"thumbnailUrl", "picture"},
	"currency":  {"currencyCode", "currency"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// getFloatFlexible: number from several paths (float64/int/string like "8,0").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// firstInt64Flexible: int64 from several paths (float64/int/string).
func firstInt64Flexible(m map[string]any, paths ...string) *int64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			x := int64(v)
			return &x
		case int:
			x := int64(v)
			return &x
		case int64:
			x := v
			return &x
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return &n
			}
		}
	}
	return nil
}

func intOr(m map[string]any, def int, paths ...string) int {
	if v := firstInt64Flexible(m, paths...); v != nil {
		return int(*v)
	}
	return def
}

// boolFlexible accepts true/false, 0/1 and "0"/"1"/"true"/"false".
func boolFlexible(m map[string]any, path string) (bool, bool) {
	switch v := lookupAny(m, path).(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case int:
		return v != 0, true
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b, true
		}
	}
	return false, false
}

// firstSliceStrings: accept []any with either strings or objects carrying
// one of the given keys (url, amenityName, ...).
func firstSliceStrings(m map[string]any, keys []string, paths ...string) []string {
	for _, k := range paths {
		raw, ok := lookupAny(m, k).([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, it := range raw {
			switch t := it.(type) {
			case string:
				if t = strings.TrimSpace(t); t != "" {
					out = append(out, t)
				}
			case map[string]any:
				for _, key := range keys {
					if s := lookupStr(t, key); s != "" {
						out = append(out, s)
						break
					}
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// slugify transliterates to ASCII and joins alphanumeric runs with "-".
func slugify(title string, externalID int64) string {
	ascii := strings.ToLower(unidecode.Unidecode(title))
	var b strings.Builder
	dash := false
	for _, r := range ascii {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if len(s) > 200 {
		s = strings.TrimSuffix(s[:200], "-")
	}
	id := strconv.FormatInt(externalID, 10)
	if s == "" {
		return "listing-" + id
	}
	return s + "-" + id
}

/********** listing mapper **********/

// mergeListing overlays the detail payload on the list-page summary.
func mergeListing(summary, detail map[string]any) map[string]any {
	out := make(map[string]any, len(summary)+len(detail))
	for k, v := range summary {
		out[k] = v
	}
	for k, v := range detail {
		out[k] = v
	}
	return out
}

func mapProperty(p map[string]any, defaultCurrency string) domain.Property {
	id := int64(0)
	if v := firstInt64Flexible(p, "id", "listingMapId"); v != nil {
		id = *v
	}

	raw, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).
			Str("context", "mapProperty").
			Msg("failed to marshal listing to JSON")
	}

	title := deref(firstNonEmptyAlias(p, listingAliases, "title"))
	if title == "" {
		title = "Listing " + strconv.FormatInt(id, 10)
	}
	currency := strings.ToUpper(deref(firstNonEmptyAlias(p, listingAliases, "currency")))
	if currency == "" {
		currency = defaultCurrency
	}

	status := domain.StatusActive
	if archived, ok := boolFlexible(p, "isArchived"); ok && archived {
		status = domain.StatusInactive
	}

	prop := domain.Property{
		ExternalID:   id,
		Title:        title,
		Slug:         slugify(title, id),
		Description:  firstNonEmptyAlias(p, listingAliases, "desc"),
		Country:      firstNonEmptyAlias(p, listingAliases, "country"),
		City:         firstNonEmptyAlias(p, listingAliases, "city"),
		Address:      firstNonEmptyAlias(p, listingAliases, "address"),
		Lat:          getFloatFlexible(p, "lat", "latitude"),
		Lng:          getFloatFlexible(p, "lng", "longitude"),
		Bedrooms:     intOr(p, 0, "bedroomsNumber", "bedrooms"),
		MaxGuests:    intOr(p, 0, "personCapacity", "guestsIncluded", "maxGuests"),
		Currency:     currency,
		ThumbnailURL: firstNonEmptyAlias(p, listingAliases, "thumbnail"),
		Gallery:      firstSliceStrings(p, []string{"url", "thumbnailUrl"}, "listingImages", "images"),
		Amenities:    firstSliceStrings(p, []string{"amenityName", "name"}, "listingAmenities", "amenities"),
		Status:       status,
		RawJSON:      raw,
	}
	if f := getFloatFlexible(p, "bathroomsNumber", "bathrooms"); f != nil {
		prop.Bathrooms = *f
	}
	if f := getFloatFlexible(p, "price", "basePrice"); f != nil {
		prop.BasePrice = *f
	}
	if prop.ThumbnailURL == nil && len(prop.Gallery) > 0 {
		first := prop.Gallery[0]
		prop.ThumbnailURL = &first
	}
	return prop
}

/********** calendar mapper **********/

var bookedStatuses = map[string]struct{}{"reserved": {}, "booked": {}, "pending": {}}

// mapCalendar turns Hostaway calendar days into rate and availability rows.
// Days outside [start, end) or without a parseable date are dropped. A day
// without a price gets no rate row, so stays over it cannot be priced.
func mapCalendar(p domain.Property, days []map[string]any, start, end time.Time) ([]domain.Rate, []domain.Availability) {
	rates := make([]domain.Rate, 0, len(days))
	avail := make([]domain.Availability, 0, len(days))
	seen := make(map[string]struct{}, len(days))
	for _, d := range days {
		date, err := domain.ParseDate(lookupStr(d, "date"))
		if err != nil || date.Before(start) || !date.Before(end) {
			continue
		}
		key := domain.DateKey(date)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		status := strings.ToLower(lookupStr(d, "status"))
		_, booked := bookedStatuses[status]
		if res, ok := lookupAny(d, "reservations").([]any); ok && len(res) > 0 {
			booked = true
		}
		open, ok := boolFlexible(d, "isAvailable")
		if !ok {
			open = status == "" || status == "available"
		}
		if status == "blocked" {
			open = false
		}

		avail = append(avail, domain.Availability{
			PropertyID:  p.ID,
			Date:        date,
			IsBooked:    booked,
			IsAvailable: open && !booked,
		})

		if price := getFloatFlexible(d, "price"); price != nil {
			rates = append(rates, domain.Rate{
				PropertyID: p.ID,
				Date:       date,
				Price:      *price,
				MinNights:  intOr(d, 1, "minimumStay"),
				MaxGuests:  intOr(d, p.MaxGuests, "maximumGuests", "personCapacity"),
				Currency:   p.Currency,
			})
		}
	}
	return rates, avail
}

/********** reservation mapper **********/

// directChannelID is Hostaway's channel id for direct bookings.
const directChannelID = 2000

func reservationBody(p domain.Property, req domain.ReservationRequest, total float64, currency string) map[string]any {
	body := map[string]any{
		"channelId":            directChannelID,
		"listingMapId":         p.ExternalID,
		"channelReservationId": req.OrderRef,
		"arrivalDate":          req.Checkin,
		"departureDate":        req.Checkout,
		"guestName":            req.GuestName,
		"guestEmail":           req.GuestEmail,
		"numberOfGuests":       req.Guests,
		"totalPrice":           total,
		"currency":             currency,
		"isManuallyChecked":    0,
	}
	if req.Phone != "" {
		body["phone"] = req.Phone
	}
	return body
}
