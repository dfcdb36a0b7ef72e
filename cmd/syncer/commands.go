package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"hostaway_sync/internal/adapters/hostaway"
	"hostaway_sync/internal/adapters/observability"
	redisad "hostaway_sync/internal/adapters/redis"
	"hostaway_sync/internal/app"
	"hostaway_sync/internal/domain"
	"hostaway_sync/internal/shared"
	mysqlrepo "hostaway_sync/internal/storage/mysql"
)

var flagSchedule string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "syncer",
		Short:         "Sync Hostaway listings, rates and availability",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduled(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&flagSchedule, "schedule", "", "cron spec, overrides SYNC_SCHEDULE")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run a sync cycle now and then on the schedule",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return runScheduled(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single sync cycle and exit",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return runOnce(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return runMigrate(cmd.Context()) },
		},
		newLogsCmd(),
	)
	return root
}

func newLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the most recent sync log rows as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := setup(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			logs, err := mysqlrepo.New(db).RecentLogs(ctx, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(logs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows")
	return cmd
}

// setup loads config, installs the global logger and opens a migrated DB.
func setup(ctx context.Context) (shared.Config, *sql.DB, error) {
	cfg := shared.Load()
	if flagSchedule != "" {
		cfg.SyncSchedule = flagSchedule
	}
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return cfg, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return cfg, nil, err
	}
	if err := mysqlrepo.Migrate(ctx, db); err != nil {
		db.Close()
		return cfg, nil, err
	}
	log.Info().Msg("db ping ok")
	return cfg, db, nil
}

func newSyncService(cfg shared.Config, db *sql.DB) (*app.SyncService, error) {
	client, err := hostaway.New(cfg.HostawayBase, cfg.HostawayAccountID, cfg.HostawaySecret, cfg.HostawayRPS)
	if err != nil {
		return nil, err
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	locker := redisad.NewLocker(cache.Client())
	return app.NewSyncService(client, mysqlrepo.New(db), cache, locker, app.SyncOptions{
		PageSize:        cfg.PageSize,
		Workers:         cfg.Workers,
		WindowDays:      cfg.WindowDays,
		LockTTL:         cfg.SyncLockTTL,
		LogKeep:         cfg.SyncLogKeep,
		DefaultCurrency: cfg.DefaultCurrency,
	}), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runMigrate(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()
	_, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("migrations applied")
	return nil
}

func runOnce(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()
	cfg, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	svc, err := newSyncService(cfg, db)
	if err != nil {
		return err
	}
	rep, err := svc.SyncAll(ctx)
	if err != nil {
		return err
	}
	if rep.PropertiesFailed > 0 || rep.CalendarsFailed > 0 {
		return errors.New("sync finished with failures, see sync logs")
	}
	return nil
}

func runScheduled(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()
	cfg, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	svc, err := newSyncService(cfg, db)
	if err != nil {
		return err
	}

	log.Info().
		Str("base", cfg.HostawayBase).
		Int("workers", cfg.Workers).
		Int("window_days", cfg.WindowDays).
		Str("schedule", cfg.SyncSchedule).
		Msg("syncer starting")

	run := func() {
		rep, err := svc.SyncAll(ctx)
		switch {
		case errors.Is(err, domain.ErrSyncInProgress):
			log.Info().Msg("sync skipped, another run holds the lock")
		case err != nil:
			log.Error().Err(err).Str("run_id", rep.RunID).Msg("sync failed")
		}
	}

	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.SyncSchedule, run); err != nil {
		return err
	}
	c.Start()
	log.Info().Msg("scheduler started")

	// first cycle right away, the schedule takes over after
	go run()

	<-ctx.Done()
	log.Info().Msg("stopping scheduler")
	select {
	case <-c.Stop().Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("sync still running at shutdown")
	}
	return nil
}
