package domain

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Property struct {
	ID           int64     `json:"id"`
	ExternalID   int64     `json:"external_id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Description  *string   `json:"description,omitempty"`
	Country      *string   `json:"country,omitempty"`
	City         *string   `json:"city,omitempty"`
	Address      *string   `json:"address,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lng          *float64  `json:"lng,omitempty"`
	Bedrooms     int       `json:"bedrooms"`
	Bathrooms    float64   `json:"bathrooms"`
	MaxGuests    int       `json:"max_guests"`
	BasePrice    float64   `json:"base_price"`
	Currency     string    `json:"currency"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	Gallery      []string  `json:"gallery"`
	Amenities    []string  `json:"amenities"`
	Status       string    `json:"status"`
	RawJSON      []byte    `json:"-"` // full Hostaway listing payload
	UpdatedAt    time.Time `json:"updated_at"`
}

// PropertyFilter drives /v1/search. Zero values mean "no constraint".
type PropertyFilter struct {
	Q        string
	Country  string
	City     string
	Guests   int
	Bedrooms int
	MinPrice float64
	MaxPrice float64
	Amenity  string
	Checkin  *time.Time
	Checkout *time.Time
	Limit    int
	Offset   int
}

type PropertyPage struct {
	Items  []Property `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
