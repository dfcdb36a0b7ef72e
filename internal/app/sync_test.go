package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"hostaway_sync/internal/app"
	"hostaway_sync/internal/domain"
)

func listing(id int64, name string) map[string]any {
	return map[string]any{
		"id":             float64(id),
		"name":           name,
		"city":           "Porto",
		"countryCode":    "PT",
		"personCapacity": float64(4),
		"bedroomsNumber": float64(2),
		"price":          float64(90),
		"currencyCode":   "EUR",
	}
}

// openCalendar returns every day of [start, end] open at price.
func openCalendar(price float64) func(int64, time.Time, time.Time) []map[string]any {
	return func(_ int64, start, end time.Time) []map[string]any {
		var out []map[string]any
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			out = append(out, map[string]any{
				"date":        d.Format(domain.DateLayout),
				"isAvailable": float64(1),
				"status":      "available",
				"price":       price,
				"minimumStay": float64(1),
			})
		}
		return out
	}
}

func TestSyncProperties_PaginatesUntilShortPage(t *testing.T) {
	hw := &fakeHostaway{}
	for i := int64(1); i <= 5; i++ {
		hw.listings = append(hw.listings, listing(100+i, "Casa"))
	}
	repo := newMemRepo()
	svc := app.NewSyncService(hw, repo, nil, nil, app.SyncOptions{PageSize: 2})

	synced, failed, err := svc.SyncProperties(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if synced != 5 || failed != 0 {
		t.Fatalf("synced=%d failed=%d", synced, failed)
	}
	if got := hw.listOffsets; len(got) != 3 || got[0] != 0 || got[1] != 2 || got[2] != 4 {
		t.Fatalf("unexpected page offsets: %v", got)
	}
	if len(repo.deactivateSeen) != 5 {
		t.Fatalf("expected 5 seen ids passed to DeactivateMissing, got %v", repo.deactivateSeen)
	}

	p, err := repo.GetProperty(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if p.ExternalID != 101 || p.Slug != "casa-101" || p.MaxGuests != 4 || len(p.Gallery) != 1 || p.Amenities[0] != "Wifi" {
		t.Fatalf("unexpected mapped property: %+v", p)
	}
}

func TestSyncProperties_ExactMultipleStopsOnEmptyPage(t *testing.T) {
	hw := &fakeHostaway{listings: []map[string]any{listing(1, "A"), listing(2, "B")}}
	svc := app.NewSyncService(hw, newMemRepo(), nil, nil, app.SyncOptions{PageSize: 2})

	if _, _, err := svc.SyncProperties(context.Background()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(hw.listOffsets) != 2 {
		t.Fatalf("expected a second, empty page request, got %v", hw.listOffsets)
	}
}

func TestSyncProperties_ItemFailureDoesNotAbortBatch(t *testing.T) {
	hw := &fakeHostaway{
		listings:  []map[string]any{listing(1, "A"), listing(2, "B"), listing(3, "C")},
		detailErr: map[int64]error{2: errors.New("boom")},
	}
	repo := newMemRepo()
	cache := &jsonCache{}
	svc := app.NewSyncService(hw, repo, cache, nil, app.SyncOptions{PageSize: 10})

	synced, failed, err := svc.SyncProperties(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if synced != 2 || failed != 1 {
		t.Fatalf("synced=%d failed=%d", synced, failed)
	}
	if n := repo.logsWith("sync_property", domain.LogError); n != 1 {
		t.Fatalf("expected 1 error log row, got %d", n)
	}
	if !cache.deleted("property:") || !cache.deleted("amenities") {
		t.Fatalf("expected property and amenity cache invalidation, got %v", cache.dels)
	}
}

func TestSyncAll_RewritesWindowPerProperty(t *testing.T) {
	hw := &fakeHostaway{
		listings: []map[string]any{listing(1, "A"), listing(2, "B")},
		calendar: openCalendar(75),
		calErr:   map[int64]error{2: errors.New("calendar down")},
	}
	repo := newMemRepo()
	locker := &fakeLocker{}
	svc := app.NewSyncService(hw, repo, nil, locker, app.SyncOptions{PageSize: 10, Workers: 2, WindowDays: 30})

	rep, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.RunID == "" || rep.PropertiesSynced != 2 || rep.CalendarsSynced != 1 || rep.CalendarsFailed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	today := domain.Day(time.Now())
	win, ok := repo.replaced[1]
	if !ok || !win[0].Equal(today) || !win[1].Equal(today.AddDate(0, 0, 30)) {
		t.Fatalf("unexpected window for property 1: %v", win)
	}
	// upstream endDate is inclusive: the last requested day is end-1
	if req := hw.calRequests[1]; !req[1].Equal(today.AddDate(0, 0, 29)) {
		t.Fatalf("unexpected upstream end date: %v", req[1])
	}
	rates, _ := repo.GetRates(context.Background(), 1, today, today.AddDate(0, 0, 30))
	if len(rates) != 30 || rates[0].Price != 75 || rates[0].Currency != "EUR" {
		t.Fatalf("unexpected rates: %d rows", len(rates))
	}
	if locker.held || locker.unlocked != 1 {
		t.Fatalf("lock must be released after the run")
	}
	if repo.logsWith("sync_all", domain.LogError) != 1 {
		t.Fatalf("partial run must log an error summary")
	}
}

func TestSyncAll_SkipsWhenLockHeld(t *testing.T) {
	hw := &fakeHostaway{listings: []map[string]any{listing(1, "A")}}
	repo := newMemRepo()
	locker := &fakeLocker{held: true}
	svc := app.NewSyncService(hw, repo, nil, locker, app.SyncOptions{})

	_, err := svc.SyncAll(context.Background())
	if !errors.Is(err, domain.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
	if len(hw.listOffsets) != 0 {
		t.Fatalf("no upstream calls expected while another run holds the lock")
	}
	if repo.logsWith("sync_all", domain.LogInfo) != 1 {
		t.Fatalf("expected an info log for the skipped run")
	}
}

func TestSyncAll_DeactivatesVanishedListings(t *testing.T) {
	hw := &fakeHostaway{listings: []map[string]any{listing(1, "A"), listing(2, "B")}}
	repo := newMemRepo()
	svc := app.NewSyncService(hw, repo, nil, nil, app.SyncOptions{PageSize: 10})
	if _, err := svc.SyncAll(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	hw.listings = hw.listings[:1]
	if _, err := svc.SyncAll(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	p, _ := repo.GetProperty(context.Background(), 2)
	if p.Status != domain.StatusInactive {
		t.Fatalf("expected listing 2 to be inactive, got %q", p.Status)
	}
}

func TestSyncAll_FailedRunsKeepLogBounded(t *testing.T) {
	hw := &fakeHostaway{listErr: errors.New("hostaway: remote 503")}
	repo := newMemRepo()
	svc := app.NewSyncService(hw, repo, nil, nil, app.SyncOptions{LogKeep: 2})

	for i := 0; i < 6; i++ {
		if _, err := svc.SyncAll(context.Background()); err == nil {
			t.Fatalf("run %d: expected error", i)
		}
	}
	if n := repo.logCount(); n != 2 {
		t.Fatalf("failed runs: want 2 log rows, got %d", n)
	}

	locked := app.NewSyncService(hw, repo, nil, &fakeLocker{held: true}, app.SyncOptions{LogKeep: 2})
	for i := 0; i < 6; i++ {
		if _, err := locked.SyncAll(context.Background()); !errors.Is(err, domain.ErrSyncInProgress) {
			t.Fatalf("run %d: want ErrSyncInProgress, got %v", i, err)
		}
	}
	if n := repo.logCount(); n != 2 {
		t.Fatalf("skipped runs: want 2 log rows, got %d", n)
	}
}

func TestSyncAll_DeactivationDropsCachedProperty(t *testing.T) {
	hw := &fakeHostaway{listings: []map[string]any{listing(1, "A"), listing(2, "B")}}
	repo := newMemRepo()
	cache := &jsonCache{}
	svc := app.NewSyncService(hw, repo, cache, nil, app.SyncOptions{PageSize: 10})
	q := app.NewQueryService(repo, cache, time.Minute)
	ctx := context.Background()

	if _, err := svc.SyncAll(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	for _, key := range []string{"2", "b-2"} {
		if p, err := q.GetProperty(ctx, key); err != nil || p.Status != domain.StatusActive {
			t.Fatalf("GetProperty(%q) before: %+v err=%v", key, p, err)
		}
	}

	hw.listings = hw.listings[:1]
	if _, err := svc.SyncAll(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, key := range []string{"2", "b-2"} {
		p, err := q.GetProperty(ctx, key)
		if err != nil || p.Status != domain.StatusInactive {
			t.Fatalf("GetProperty(%q) after: status=%q err=%v", key, p.Status, err)
		}
	}
}

func TestSyncAll_RenameDropsOldSlug(t *testing.T) {
	hw := &fakeHostaway{listings: []map[string]any{listing(1, "Casa")}}
	repo := newMemRepo()
	cache := &jsonCache{}
	svc := app.NewSyncService(hw, repo, cache, nil, app.SyncOptions{PageSize: 10})
	q := app.NewQueryService(repo, cache, time.Minute)
	ctx := context.Background()

	if _, err := svc.SyncAll(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := q.GetProperty(ctx, "casa-1"); err != nil {
		t.Fatalf("old slug before rename: %v", err)
	}

	hw.listings = []map[string]any{listing(1, "Vila")}
	if _, err := svc.SyncAll(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if _, err := q.GetProperty(ctx, "casa-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("old slug after rename: want ErrNotFound, got %v", err)
	}
	if p, err := q.GetProperty(ctx, "vila-1"); err != nil || p.Title != "Vila" {
		t.Fatalf("new slug: %+v err=%v", p, err)
	}
}
