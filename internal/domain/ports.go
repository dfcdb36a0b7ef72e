package domain

import (
	"context"
	"time"
)

type PropertyRepository interface {
	// Write paths
	UpsertProperty(ctx context.Context, p Property) (int64, error)
	// DeactivateMissing returns the local ids it marked inactive.
	DeactivateMissing(ctx context.Context, seenExternalIDs []int64) ([]int64, error)

	// Read paths
	GetProperty(ctx context.Context, id int64) (Property, error)
	GetPropertyBySlug(ctx context.Context, slug string) (Property, error)
	SearchProperties(ctx context.Context, f PropertyFilter) (PropertyPage, error)
	ListActiveProperties(ctx context.Context) ([]Property, error)
	ListAmenities(ctx context.Context) ([]string, error)
}

type CalendarRepository interface {
	// ReplaceCalendar deletes every rate and availability row of the
	// property in [start, end) and inserts the given rows, atomically.
	ReplaceCalendar(ctx context.Context, propertyID int64, start, end time.Time, rates []Rate, avail []Availability) error
	GetRates(ctx context.Context, propertyID int64, start, end time.Time) ([]Rate, error)
	GetAvailability(ctx context.Context, propertyID int64, start, end time.Time) ([]Availability, error)
}

type ReservationRepository interface {
	// CreateReservation inserts the row and flags the stay's nights booked.
	CreateReservation(ctx context.Context, r Reservation) (Reservation, error)
	GetReservation(ctx context.Context, id int64) (Reservation, error)
	GetReservationByOrderRef(ctx context.Context, ref string) (Reservation, error)
	// CancelReservation marks the row cancelled and frees the nights.
	CancelReservation(ctx context.Context, id int64) error
}

type SyncLogRepository interface {
	AppendLog(ctx context.Context, action, status, message string) error
	TrimLogs(ctx context.Context, keep int) error
	RecentLogs(ctx context.Context, limit int) ([]SyncLog, error)
}

// Repository is the full storage surface, implemented by storage/mysql.
type Repository interface {
	PropertyRepository
	CalendarRepository
	ReservationRepository
	SyncLogRepository
}

type HostawayClient interface {
	ListListings(ctx context.Context, limit, offset int) ([]map[string]any, error)
	GetListing(ctx context.Context, id int64) (map[string]any, error)
	GetCalendar(ctx context.Context, id int64, start, end time.Time) ([]map[string]any, error)
	CreateReservation(ctx context.Context, body map[string]any) (map[string]any, error)
	CancelReservation(ctx context.Context, id int64) (map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Locker hands out exclusive, expiring locks shared across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}
