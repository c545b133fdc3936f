package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prism-insight/execution-core/internal/broker/kr"
	"github.com/prism-insight/execution-core/internal/broker/us"
	"github.com/prism-insight/execution-core/internal/config"
	"github.com/prism-insight/execution-core/internal/coordinator"
	"github.com/prism-insight/execution-core/internal/database"
	"github.com/prism-insight/execution-core/internal/dispatcher"
	"github.com/prism-insight/execution-core/internal/execution"
	"github.com/prism-insight/execution-core/internal/health"
	"github.com/prism-insight/execution-core/internal/jobs"
	"github.com/prism-insight/execution-core/internal/ledger"
	"github.com/prism-insight/execution-core/internal/marketcalendar"
	"github.com/prism-insight/execution-core/internal/notifier"
	"github.com/prism-insight/execution-core/internal/reliability"
	"github.com/prism-insight/execution-core/internal/scheduledorders"
	"github.com/prism-insight/execution-core/internal/scheduler"
	"github.com/prism-insight/execution-core/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	log.Info().Str("mode", string(cfg.DefaultMode)).Bool("auto_trading", cfg.AutoTrading).
		Msg("starting execution core")

	// Databases. The ledger carries the immutable audit trail and uses the
	// maximum-safety profile; positions and scheduled orders are rebuildable
	// from broker state and the bus, so they run on the standard profile.
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/ledger.db",
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	defer ledgerDB.Close()

	positionsDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/positions.db",
		Profile: database.ProfileStandard,
		Name:    "positions",
	})
	if err != nil {
		return fmt.Errorf("failed to open positions database: %w", err)
	}
	defer positionsDB.Close()

	schedulerDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/scheduler.db",
		Profile: database.ProfileStandard,
		Name:    "scheduler",
	})
	if err != nil {
		return fmt.Errorf("failed to open scheduler database: %w", err)
	}
	defer schedulerDB.Close()

	for _, db := range []*database.DB{ledgerDB, positionsDB, schedulerDB} {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	// Market calendar. KR holidays are supplied via configuration; the US
	// set is computed from NYSE rules.
	calendar := marketcalendar.NewCalendar(cfg.KRHolidays)

	// Brokerage clients, mode-scoped credentials fixed for process lifetime.
	krClient := kr.NewClient(cfg.KRBrokerBaseURL, log)
	krClient.SetCredentials(cfg.KRBrokerAPIKey, cfg.KRBrokerSecret)
	usClient := us.NewClient(cfg.USBrokerBaseURL, log)
	usClient.SetCredentials(cfg.USBrokerAPIKey, cfg.USBrokerSecret)

	coordCfg := coordinator.DefaultConfig()
	coordCfg.GlobalConcurrency = cfg.Coordinator.GlobalConcurrency
	coordCfg.Timeout = cfg.Coordinator.Timeout()
	coord := coordinator.New(
		coordCfg,
		coordinator.Clients{KR: krClient, US: usClient},
		coordinator.UnitAmounts{KRW: cfg.DefaultUnitAmountKRW, USD: cfg.DefaultUnitAmountUSD},
		calendar,
		log,
	)

	repo := ledger.NewRepository(ledgerDB.Conn(), positionsDB.Conn(), log)
	admission := ledger.AdmissionConfig{
		SlotLimit:              cfg.Ledger.SlotLimit,
		SectorMaxPositions:     cfg.Ledger.SectorMaxPositions,
		SectorConcentrationMax: cfg.Ledger.SectorConcentrationMax,
		BuyCooldownDays:        cfg.Ledger.BuyCooldownDays,
	}
	sectors := execution.BrokerSectorResolver{KR: krClient, US: usClient}
	exec := execution.New(coord, repo, admission, sectors, cfg.AutoTrading, log)

	store := scheduledorders.NewStore(schedulerDB.Conn(), log)
	notify := notifier.NewManager(cfg.Notifier.SlackWebhookURL, cfg.Notifier.DiscordWebhookURL, log)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Market-hours scheduler: replays deferred orders once their market
	// opens, immediately catching up rows whose execute_after elapsed
	// during downtime.
	sched := scheduler.New(store, exec, calendar, cfg.Scheduler.PollInterval(), log)
	sched.Start(rootCtx)

	// Nightly database backup.
	runner := jobs.New(log)
	var objectStore reliability.ObjectStore
	if cfg.Reliability.S3Bucket != "" {
		s3Client, err := reliability.NewS3Client(rootCtx, reliability.S3Config{
			Bucket:          cfg.Reliability.S3Bucket,
			Endpoint:        cfg.Reliability.S3Endpoint,
			Region:          cfg.Reliability.S3Region,
			AccessKeyID:     cfg.Reliability.S3AccessKeyID,
			SecretAccessKey: cfg.Reliability.S3SecretAccessKey,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("object store unavailable, backups stay local-only")
		} else {
			objectStore = s3Client
		}
	}
	backupSvc := reliability.NewBackupService(map[string]*database.DB{
		"ledger":    ledgerDB,
		"positions": positionsDB,
		"scheduler": schedulerDB,
	}, cfg.DataDir+"/backups", objectStore, log)
	backupSchedule := fmt.Sprintf("0 0 %d * * *", cfg.Reliability.BackupHour)
	if err := runner.AddJob(backupSchedule, reliability.NewNightlyBackupJob(backupSvc)); err != nil {
		return fmt.Errorf("failed to register backup job: %w", err)
	}
	runner.Start()

	// Operational HTTP surface.
	healthSrv := health.New(health.Databases{
		Ledger:    ledgerDB.Conn(),
		Positions: positionsDB.Conn(),
		Scheduler: schedulerDB.Conn(),
	}, repo, store, coord, sched, log)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           healthSrv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Int("port", cfg.Health.Port).Msg("health server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	// Bus subscription. The dispatcher runs until shutdown.
	sub, err := dispatcher.NewPubSubSubscriber(rootCtx, cfg.PubSub)
	if err != nil {
		return fmt.Errorf("failed to connect to pubsub: %w", err)
	}
	defer sub.Close()

	disp := dispatcher.New(sub, cfg.DefaultMode, exec, store, calendar, notify, log)

	dispatchErr := make(chan error, 1)
	go func() {
		dispatchErr <- disp.Run(rootCtx)
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-dispatchErr:
		if err != nil && rootCtx.Err() == nil {
			log.Error().Err(err).Msg("dispatcher stopped unexpectedly")
		}
	}

	// Orderly drain: stop accepting, finish in-flight work, report what
	// remains queued for the next process.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()
	runner.Stop()

	if err := coord.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("coordinator drain incomplete")
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("health server shutdown incomplete")
	}

	if pending, err := store.PendingCount(); err == nil && pending > 0 {
		log.Info().Int("pending", pending).Msg("scheduled orders remain for next process")
	}

	log.Info().Msg("execution core stopped")
	return nil
}
