package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hostaway_sync/internal/domain"
)

const (
	amenitiesKey    = "amenities"
	defaultPageSize = 20
	maxPageSize     = 100
	// longest range the rates/availability endpoints return
	maxRangeDays = 366
)

func propertyKey(id int64) string { return fmt.Sprintf("property:%d", id) }
func slugKey(slug string) string { return "property:slug:" + strings.ToLower(slug) }

type queryRepo interface {
	domain.PropertyRepository
	domain.CalendarRepository
	domain.SyncLogRepository
}

type QueryService struct {
	repo     queryRepo
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r queryRepo, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

// AvailabilityView is the per-day listing plus the fail-closed aggregate.
type AvailabilityView struct {
	PropertyID int64                 `json:"property_id"`
	Start      string                `json:"start"`
	End        string                `json:"end"`
	Available  bool                  `json:"available"`
	Days       []domain.Availability `json:"days"`
}

type RatesView struct {
	PropertyID int64         `json:"property_id"`
	Start      string        `json:"start"`
	End        string        `json:"end"`
	Rates      []domain.Rate `json:"rates"`
}

func (s *QueryService) Search(ctx context.Context, f domain.PropertyFilter) (domain.PropertyPage, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if (f.Checkin == nil) != (f.Checkout == nil) {
		return domain.PropertyPage{}, fmt.Errorf("%w: checkin and checkout go together", domain.ErrInvalidRange)
	}
	if f.Checkin != nil {
		if err := checkRange(*f.Checkin, *f.Checkout); err != nil {
			return domain.PropertyPage{}, err
		}
	}
	return s.repo.SearchProperties(ctx, f)
}

// GetProperty resolves a numeric id or a slug, read-through cached.
func (s *QueryService) GetProperty(ctx context.Context, idOrSlug string) (domain.Property, error) {
	if id, err := strconv.ParseInt(idOrSlug, 10, 64); err == nil {
		return s.getByID(ctx, id)
	}

	key := slugKey(idOrSlug)
	var id int64
	if ok, _ := s.get(ctx, key, &id); ok {
		p, err := s.getByID(ctx, id)
		if err == nil && strings.EqualFold(p.Slug, idOrSlug) {
			return p, nil
		}
		// renamed or gone since the slug was cached
		if s.cache != nil {
			_ = s.cache.Del(ctx, key)
		}
	}
	p, err := s.repo.GetPropertyBySlug(ctx, idOrSlug)
	if err != nil {
		return domain.Property{}, err
	}
	s.set(ctx, key, p.ID)
	s.set(ctx, propertyKey(p.ID), p)
	return p, nil
}

func (s *QueryService) getByID(ctx context.Context, id int64) (domain.Property, error) {
	key := propertyKey(id)
	var p domain.Property
	if ok, _ := s.get(ctx, key, &p); ok {
		return p, nil
	}
	p, err := s.repo.GetProperty(ctx, id)
	if err != nil {
		return domain.Property{}, err
	}
	s.set(ctx, key, p)
	return p, nil
}

func (s *QueryService) Amenities(ctx context.Context) ([]string, error) {
	var out []string
	if ok, _ := s.get(ctx, amenitiesKey, &out); ok {
		return out, nil
	}
	out, err := s.repo.ListAmenities(ctx)
	if err != nil {
		return nil, err
	}
	s.set(ctx, amenitiesKey, out)
	return out, nil
}

func (s *QueryService) Availability(ctx context.Context, propertyID int64, start, end time.Time) (AvailabilityView, error) {
	if err := checkRange(start, end); err != nil {
		return AvailabilityView{}, err
	}
	if _, err := s.getByID(ctx, propertyID); err != nil {
		return AvailabilityView{}, err
	}
	days, err := s.repo.GetAvailability(ctx, propertyID, start, end)
	if err != nil {
		return AvailabilityView{}, err
	}
	return AvailabilityView{
		PropertyID: propertyID,
		Start:      domain.DateKey(start),
		End:        domain.DateKey(end),
		Available:  IsAvailable(days, start, end),
		Days:       days,
	}, nil
}

func (s *QueryService) Rates(ctx context.Context, propertyID int64, start, end time.Time) (RatesView, error) {
	if err := checkRange(start, end); err != nil {
		return RatesView{}, err
	}
	if _, err := s.getByID(ctx, propertyID); err != nil {
		return RatesView{}, err
	}
	rates, err := s.repo.GetRates(ctx, propertyID, start, end)
	if err != nil {
		return RatesView{}, err
	}
	return RatesView{PropertyID: propertyID, Start: domain.DateKey(start), End: domain.DateKey(end), Rates: rates}, nil
}

func (s *QueryService) RecentLogs(ctx context.Context, limit int) ([]domain.SyncLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.RecentLogs(ctx, limit)
}

func (s *QueryService) get(ctx context.Context, key string, dst any) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	return s.cache.Get(ctx, key, dst)
}

func (s *QueryService) set(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))
}

func checkRange(start, end time.Time) error {
	if !domain.Day(end).After(domain.Day(start)) {
		return fmt.Errorf("%w: end must be after start", domain.ErrInvalidRange)
	}
	if domain.Day(end).Sub(domain.Day(start)) > maxRangeDays*24*time.Hour {
		return fmt.Errorf("%w: at most %d days", domain.ErrInvalidRange, maxRangeDays)
	}
	return nil
}
