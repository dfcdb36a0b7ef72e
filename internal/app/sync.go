package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"hostaway_sync/internal/adapters/observability"
	"hostaway_sync/internal/domain"
)

const syncLockKey = "sync"

type syncRepo interface {
	domain.PropertyRepository
	domain.CalendarRepository
	domain.SyncLogRepository
}

type SyncOptions struct {
	PageSize        int
	Workers         int
	WindowDays      int
	LockTTL         time.Duration
	LogKeep         int
	DefaultCurrency string
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.WindowDays <= 0 {
		o.WindowDays = 365
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Minute
	}
	if o.LogKeep <= 0 {
		o.LogKeep = defaultLogKeep
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = "USD"
	}
	return o
}

type SyncService struct {
	hostaway domain.HostawayClient
	repo     syncRepo
	cache    domain.Cache
	locker   domain.Locker
	opts     SyncOptions
	logs     logRecorder
	now      func() time.Time
}

// NewSyncService wires a sync service. cache and locker may be nil.
func NewSyncService(c domain.HostawayClient, r syncRepo, cache domain.Cache, locker domain.Locker, opts SyncOptions) *SyncService {
	opts = opts.withDefaults()
	return &SyncService{
		hostaway: c, repo: r, cache: cache, locker: locker, opts: opts,
		logs: newLogRecorder(r, opts.LogKeep), now: time.Now,
	}
}

// SyncAll runs one full cycle: listings first, then the calendar window of
// every active property. Per-item failures are logged and counted; only a
// failed listings page or a held lock aborts the cycle.
func (s *SyncService) SyncAll(ctx context.Context) (domain.SyncReport, error) {
	rep := domain.SyncReport{RunID: uuid.NewString()}
	l := log.With().Str("run_id", rep.RunID).Logger()
	start := s.now()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, syncLockKey, s.opts.LockTTL)
		if err != nil {
			return rep, fmt.Errorf("acquire sync lock: %w", err)
		}
		if !ok {
			s.record(ctx, "sync_all", domain.LogInfo, "skipped: another sync holds the lock")
			observability.ObserveSyncRun("skipped", 0)
			return rep, domain.ErrSyncInProgress
		}
		defer func() {
			// the run ctx may be cancelled by now; release must still go out
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.locker.Unlock(uctx, syncLockKey, token); err != nil {
				l.Warn().Err(err).Msg("release sync lock failed")
			}
		}()
	}

	l.Info().Msg("sync started")

	synced, failed, err := s.SyncProperties(ctx)
	rep.PropertiesSynced, rep.PropertiesFailed = synced, failed
	if err != nil {
		rep.Duration = s.now().Sub(start)
		s.record(ctx, "sync_all", domain.LogError, err.Error())
		observability.ObserveSyncRun("error", rep.Duration)
		return rep, err
	}

	rep.CalendarsSynced, rep.CalendarsFailed, err = s.SyncCalendars(ctx)
	rep.Duration = s.now().Sub(start)
	if err != nil {
		s.record(ctx, "sync_all", domain.LogError, err.Error())
		observability.ObserveSyncRun("error", rep.Duration)
		return rep, err
	}

	status, outcome := domain.LogSuccess, "ok"
	if rep.PropertiesFailed > 0 || rep.CalendarsFailed > 0 {
		status, outcome = domain.LogError, "partial"
	}
	s.record(ctx, "sync_all", status, fmt.Sprintf(
		"run %s: properties %d ok / %d failed, calendars %d ok / %d failed in %s",
		rep.RunID, rep.PropertiesSynced, rep.PropertiesFailed,
		rep.CalendarsSynced, rep.CalendarsFailed, rep.Duration.Round(time.Millisecond)))
	observability.ObserveSyncRun(outcome, rep.Duration)

	l.Info().
		Int("properties", rep.PropertiesSynced).
		Int("properties_failed", rep.PropertiesFailed).
		Int("calendars", rep.CalendarsSynced).
		Int("calendars_failed", rep.CalendarsFailed).
		Dur("duration", rep.Duration).
		Msg("sync finished")
	return rep, nil
}

// SyncProperties pages through every listing until a short page comes
// back, upserting each one. Listings missing from a complete pass are
// marked inactive.
func (s *SyncService) SyncProperties(ctx context.Context) (synced, failed int, err error) {
	var seen []int64
	for offset := 0; ; offset += s.opts.PageSize {
		page, err := s.hostaway.ListListings(ctx, s.opts.PageSize, offset)
		if err != nil {
			return synced, failed, fmt.Errorf("list listings at offset %d: %w", offset, err)
		}
		for _, item := range page {
			if ctx.Err() != nil {
				return synced, failed, ctx.Err()
			}
			extID, err := s.syncListing(ctx, item)
			if extID != 0 {
				seen = append(seen, extID)
			}
			observability.ObserveSyncItem("property", err)
			if err != nil {
				failed++
				log.Warn().Int64("listing", extID).Err(err).Msg("listing sync failed")
				s.record(ctx, "sync_property", domain.LogError, fmt.Sprintf("listing %d: %v", extID, err))
				continue
			}
			synced++
		}
		if len(page) < s.opts.PageSize {
			break
		}
	}

	ids, err := s.repo.DeactivateMissing(ctx, seen)
	if err != nil {
		log.Warn().Err(err).Msg("deactivate missing listings failed")
	} else if len(ids) > 0 {
		for _, id := range ids {
			s.invalidateProperty(ctx, id, "")
		}
		s.record(ctx, "sync_property", domain.LogInfo, fmt.Sprintf("%d listings no longer upstream, marked inactive", len(ids)))
	}
	return synced, failed, nil
}

func (s *SyncService) syncListing(ctx context.Context, summary map[string]any) (int64, error) {
	idp := firstInt64Flexible(summary, "id")
	if idp == nil || *idp <= 0 {
		return 0, errors.New("listing without id")
	}
	extID := *idp

	// detail carries images and amenities
	detail, err := s.hostaway.GetListing(ctx, extID)
	if err != nil {
		return extID, fmt.Errorf("fetch detail: %w", err)
	}
	p := mapProperty(mergeListing(summary, detail), s.opts.DefaultCurrency)
	p.ExternalID = extID

	id, err := s.repo.UpsertProperty(ctx, p)
	if err != nil {
		return extID, err
	}
	s.invalidateProperty(ctx, id, p.Slug)
	return extID, nil
}

// SyncCalendars rewrites the calendar window of every active property,
// at most opts.Workers at a time.
func (s *SyncService) SyncCalendars(ctx context.Context) (synced, failed int, err error) {
	props, err := s.repo.ListActiveProperties(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list active properties: %w", err)
	}

	var ok, bad atomic.Int64
	sem := semaphore.NewWeighted(int64(s.opts.Workers))
	g, gctx := errgroup.WithContext(ctx)

	for _, p := range props {
		p := p
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			err := s.SyncCalendar(gctx, p)
			observability.ObserveSyncItem("calendar", err)
			if err != nil {
				bad.Add(1)
				log.Warn().Int64("property", p.ID).Int64("listing", p.ExternalID).Err(err).Msg("calendar sync failed")
				s.record(gctx, "sync_calendar", domain.LogError, fmt.Sprintf("property %d: %v", p.ID, err))
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return int(ok.Load()), int(bad.Load()), ctx.Err()
	}
	return int(ok.Load()), int(bad.Load()), nil
}

// SyncCalendar fetches [today, today+window) for one property and
// replaces its rate and availability rows for that window.
func (s *SyncService) SyncCalendar(ctx context.Context, p domain.Property) error {
	start := domain.Day(s.now())
	end := start.AddDate(0, 0, s.opts.WindowDays)

	// Hostaway's endDate is inclusive
	days, err := s.hostaway.GetCalendar(ctx, p.ExternalID, start, end.AddDate(0, 0, -1))
	if err != nil {
		return fmt.Errorf("fetch calendar: %w", err)
	}
	rates, avail := mapCalendar(p, days, start, end)
	if err := s.repo.ReplaceCalendar(ctx, p.ID, start, end, rates, avail); err != nil {
		return fmt.Errorf("replace calendar: %w", err)
	}
	return nil
}

func (s *SyncService) record(ctx context.Context, action, status, msg string) {
	s.logs.record(ctx, action, status, msg)
}

func (s *SyncService) invalidateProperty(ctx context.Context, id int64, slug string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, propertyKey(id))
	if slug != "" {
		_ = s.cache.Del(ctx, slugKey(slug))
	}
	_ = s.cache.Del(ctx, amenitiesKey)
}
