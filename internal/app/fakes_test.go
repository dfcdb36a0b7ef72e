package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"hostaway_sync/internal/domain"
)

// ---- in-memory repository ----

type memRepo struct {
	mu     sync.Mutex
	nextID int64
	props  map[int64]domain.Property
	byExt  map[int64]int64
	rates  map[int64]map[string]domain.Rate
	avail  map[int64]map[string]domain.Availability
	resv   map[int64]domain.Reservation
	logs   []domain.SyncLog

	deactivateSeen []int64
	replaced       map[int64][2]time.Time // property -> window of last ReplaceCalendar
	propertyReads  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		props:    map[int64]domain.Property{},
		byExt:    map[int64]int64{},
		rates:    map[int64]map[string]domain.Rate{},
		avail:    map[int64]map[string]domain.Availability{},
		resv:     map[int64]domain.Reservation{},
		replaced: map[int64][2]time.Time{},
	}
}

func (m *memRepo) UpsertProperty(ctx context.Context, p domain.Property) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExt[p.ExternalID]
	if !ok {
		m.nextID++
		id = m.nextID
		m.byExt[p.ExternalID] = id
	}
	p.ID = id
	if p.Status == "" {
		p.Status = domain.StatusActive
	}
	m.props[id] = p
	return id, nil
}

func (m *memRepo) DeactivateMissing(ctx context.Context, seen []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivateSeen = append([]int64(nil), seen...)
	if len(seen) == 0 {
		return nil, nil
	}
	keep := map[int64]bool{}
	for _, id := range seen {
		keep[id] = true
	}
	var ids []int64
	for id, p := range m.props {
		if p.Status == domain.StatusActive && !keep[p.ExternalID] {
			p.Status = domain.StatusInactive
			m.props[id] = p
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memRepo) GetProperty(ctx context.Context, id int64) (domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.propertyReads++
	p, ok := m.props[id]
	if !ok {
		return domain.Property{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memRepo) GetPropertyBySlug(ctx context.Context, slug string) (domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.props {
		if p.Slug == slug {
			return p, nil
		}
	}
	return domain.Property{}, domain.ErrNotFound
}

func (m *memRepo) SearchProperties(ctx context.Context, f domain.PropertyFilter) (domain.PropertyPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := domain.PropertyPage{Limit: f.Limit, Offset: f.Offset}
	for _, p := range m.props {
		if p.Status != domain.StatusActive {
			continue
		}
		if f.City != "" && (p.City == nil || *p.City != f.City) {
			continue
		}
		if f.Guests > 0 && p.MaxGuests < f.Guests {
			continue
		}
		out.Items = append(out.Items, p)
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ID < out.Items[j].ID })
	out.Total = len(out.Items)
	return out, nil
}

func (m *memRepo) ListActiveProperties(ctx context.Context) ([]domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Property
	for _, p := range m.props {
		if p.Status == domain.StatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListAmenities(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]bool{}
	for _, p := range m.props {
		for _, a := range p.Amenities {
			set[a] = true
		}
	}
	var out []string
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRepo) ReplaceCalendar(ctx context.Context, propertyID int64, start, end time.Time, rates []domain.Rate, avail []domain.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, as := map[string]domain.Rate{}, map[string]domain.Availability{}
	for k, v := range m.rates[propertyID] {
		if v.Date.Before(start) || !v.Date.Before(end) {
			rs[k] = v
		}
	}
	for k, v := range m.avail[propertyID] {
		if v.Date.Before(start) || !v.Date.Before(end) {
			as[k] = v
		}
	}
	for _, r := range rates {
		r.PropertyID = propertyID
		rs[domain.DateKey(r.Date)] = r
	}
	for _, a := range avail {
		a.PropertyID = propertyID
		as[domain.DateKey(a.Date)] = a
	}
	m.rates[propertyID], m.avail[propertyID] = rs, as
	m.replaced[propertyID] = [2]time.Time{start, end}
	return nil
}

func (m *memRepo) GetRates(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.Rate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Rate{}
	for _, n := range domain.Nights(start, end) {
		if r, ok := m.rates[propertyID][domain.DateKey(n)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) GetAvailability(ctx context.Context, propertyID int64, start, end time.Time) ([]domain.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Availability{}
	for _, n := range domain.Nights(start, end) {
		if a, ok := m.avail[propertyID][domain.DateKey(n)]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) CreateReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.resv {
		if ex.OrderRef == r.OrderRef {
			return domain.Reservation{}, domain.ErrConflict
		}
	}
	r.ID = int64(len(m.resv) + 1)
	m.resv[r.ID] = r
	m.setBooked(r.PropertyID, r.Checkin, r.Checkout, true)
	return r, nil
}

func (m *memRepo) setBooked(propertyID int64, in, out time.Time, booked bool) {
	if m.avail[propertyID] == nil {
		m.avail[propertyID] = map[string]domain.Availability{}
	}
	for _, n := range domain.Nights(in, out) {
		m.avail[propertyID][domain.DateKey(n)] = domain.Availability{
			PropertyID: propertyID, Date: n, IsBooked: booked, IsAvailable: !booked,
		}
	}
}

func (m *memRepo) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resv[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) GetReservationByOrderRef(ctx context.Context, ref string) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resv {
		if r.OrderRef == ref {
			return r, nil
		}
	}
	return domain.Reservation{}, domain.ErrNotFound
}

func (m *memRepo) CancelReservation(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resv[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = domain.ReservationCancelled
	m.resv[id] = r
	m.setBooked(r.PropertyID, r.Checkin, r.Checkout, false)
	return nil
}

func (m *memRepo) AppendLog(ctx context.Context, action, status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, domain.SyncLog{ID: int64(len(m.logs) + 1), Action: action, Status: status, Message: message})
	return nil
}

func (m *memRepo) TrimLogs(ctx context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.logs) > keep {
		m.logs = m.logs[len(m.logs)-keep:]
	}
	return nil
}

func (m *memRepo) RecentLogs(ctx context.Context, limit int) ([]domain.SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SyncLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.logs[i])
	}
	return out, nil
}

func (m *memRepo) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func (m *memRepo) logsWith(action, status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.logs {
		if l.Action == action && l.Status == status {
			n++
		}
	}
	return n
}

// seedProperty stores an active property with open, priced nights from
// start for the given number of days.
func (m *memRepo) seedProperty(ext int64, start time.Time, days int, price float64) domain.Property {
	city := "Lisbon"
	id, _ := m.UpsertProperty(context.Background(), domain.Property{
		ExternalID: ext, Title: fmt.Sprintf("Flat %d", ext), Slug: fmt.Sprintf("flat-%d", ext),
		City: &city, MaxGuests: 4, Currency: "EUR", Amenities: []string{"Wifi"},
	})
	var rates []domain.Rate
	var avail []domain.Availability
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		rates = append(rates, domain.Rate{Date: day, Price: price, MinNights: 1, MaxGuests: 4, Currency: "EUR"})
		avail = append(avail, domain.Availability{Date: day, IsAvailable: true})
	}
	_ = m.ReplaceCalendar(context.Background(), id, start, start.AddDate(0, 0, days), rates, avail)
	p, _ := m.GetProperty(context.Background(), id)
	return p
}

// ---- fake Hostaway ----

type fakeHostaway struct {
	mu        sync.Mutex
	listings  []map[string]any
	listErr   error
	detailErr map[int64]error
	calErr    map[int64]error
	calendar  func(id int64, start, end time.Time) []map[string]any

	listOffsets []int
	calRequests map[int64][2]time.Time

	createErr  error
	createResp map[string]any
	created    []map[string]any
	cancelErr  error
	cancelled  []int64
}

func (f *fakeHostaway) ListListings(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOffsets = append(f.listOffsets, offset)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if offset >= len(f.listings) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.listings) {
		end = len(f.listings)
	}
	return f.listings[offset:end], nil
}

func (f *fakeHostaway) GetListing(ctx context.Context, id int64) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	return map[string]any{
		"id":               float64(id),
		"listingImages":    []any{map[string]any{"url": fmt.Sprintf("https://img/%d.jpg", id)}},
		"listingAmenities": []any{map[string]any{"amenityName": "Wifi"}},
	}, nil
}

func (f *fakeHostaway) GetCalendar(ctx context.Context, id int64, start, end time.Time) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calRequests == nil {
		f.calRequests = map[int64][2]time.Time{}
	}
	f.calRequests[id] = [2]time.Time{start, end}
	if err := f.calErr[id]; err != nil {
		return nil, err
	}
	if f.calendar == nil {
		return nil, nil
	}
	return f.calendar(id, start, end), nil
}

func (f *fakeHostaway) CreateReservation(ctx context.Context, body map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, body)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResp, nil
}

func (f *fakeHostaway) CancelReservation(ctx context.Context, id int64) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return map[string]any{"id": float64(id), "status": "cancelled"}, nil
}

// ---- cache ----

// jsonCache round-trips values through JSON like the Redis adapter.
type jsonCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *jsonCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *jsonCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *jsonCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *jsonCache) deleted(prefix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.dels {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// ---- locker ----

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	unlocked int
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "tok", true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.unlocked++
	return nil
}
