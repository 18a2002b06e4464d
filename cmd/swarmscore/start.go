package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/swarmscore/swarmscore/internal/collector"
	"github.com/swarmscore/swarmscore/internal/config"
	"github.com/swarmscore/swarmscore/internal/db/telemetrydb"
	"github.com/swarmscore/swarmscore/internal/events"
	"github.com/swarmscore/swarmscore/internal/ledger"
	"github.com/swarmscore/swarmscore/internal/registry"
	"github.com/swarmscore/swarmscore/internal/scoring"
	"github.com/swarmscore/swarmscore/internal/server"
	"github.com/swarmscore/swarmscore/internal/telemetry"
	"github.com/swarmscore/swarmscore/internal/weights"
)

const eventLogCapacity = 256

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start swarmscore",
	Args:  cobra.NoArgs,
	RunE:  startService,
}

func init() {
	startCmd.Flags().Int(
		"port",
		8080,
		"Port to listen on",
	)
	cobra.CheckErr(viper.BindPFlag("port", startCmd.Flags().Lookup("port")))

	startCmd.Flags().String(
		"ledger-url",
		"",
		"Base URL of the consensus ledger gateway",
	)
	cobra.CheckErr(viper.BindPFlag("ledger_url", startCmd.Flags().Lookup("ledger-url")))

	cobra.CheckErr(viper.BindEnv("metrics_auth_token"))

	startCmd.Flags().String(
		"postgres-dsn",
		"",
		"Postgres DSN for persisted telemetry (in-memory store when empty)",
	)
	cobra.CheckErr(viper.BindPFlag("postgres_dsn", startCmd.Flags().Lookup("postgres-dsn")))
	cobra.CheckErr(viper.BindEnv("postgres_dsn", "POSTGRES_DSN"))

	startCmd.Flags().String(
		"telemetry-table",
		"telemetry",
		"Name of the flat-column telemetry table",
	)
	cobra.CheckErr(viper.BindPFlag("telemetry_table", startCmd.Flags().Lookup("telemetry-table")))

	startCmd.Flags().String(
		"document-table",
		"",
		"Name of the legacy document-column telemetry table",
	)
	cobra.CheckErr(viper.BindPFlag("document_table", startCmd.Flags().Lookup("document-table")))

	startCmd.Flags().Bool(
		"migrate-from-document",
		false,
		"Copy rows from the document-column table into the flat table at startup",
	)
	cobra.CheckErr(viper.BindPFlag("migrate_from_document", startCmd.Flags().Lookup("migrate-from-document")))

	startCmd.Flags().Int(
		"retention-hours",
		8,
		"Telemetry retention window in hours",
	)
	cobra.CheckErr(viper.BindPFlag("retention_hours", startCmd.Flags().Lookup("retention-hours")))

	startCmd.Flags().Int(
		"membership-grace",
		3600,
		"Seconds an identity may be absent from the membership snapshot before removal",
	)
	cobra.CheckErr(viper.BindPFlag("membership_grace", startCmd.Flags().Lookup("membership-grace")))

	startCmd.Flags().Int(
		"sync-interval",
		300,
		"Interval in seconds between membership syncs",
	)
	cobra.CheckErr(viper.BindPFlag("sync_interval", startCmd.Flags().Lookup("sync-interval")))

	startCmd.Flags().Int(
		"collect-interval",
		600,
		"Interval in seconds between telemetry collection cycles",
	)
	cobra.CheckErr(viper.BindPFlag("collect_interval", startCmd.Flags().Lookup("collect-interval")))

	startCmd.Flags().Int(
		"score-interval",
		1800,
		"Interval in seconds between scoring cycles",
	)
	cobra.CheckErr(viper.BindPFlag("score_interval", startCmd.Flags().Lookup("score-interval")))

	startCmd.Flags().Int(
		"collect-timeout",
		30,
		"Per-node telemetry call timeout in seconds",
	)
	cobra.CheckErr(viper.BindPFlag("collect_timeout", startCmd.Flags().Lookup("collect-timeout")))

	startCmd.Flags().Int(
		"collect-concurrency",
		16,
		"Maximum concurrent telemetry polls",
	)
	cobra.CheckErr(viper.BindPFlag("collect_concurrency", startCmd.Flags().Lookup("collect-concurrency")))

	startCmd.Flags().Int(
		"min-submit-interval",
		1200,
		"Minimum seconds between successful weight submissions",
	)
	cobra.CheckErr(viper.BindPFlag("min_submit_interval", startCmd.Flags().Lookup("min-submit-interval")))

	startCmd.Flags().Int(
		"submit-retry-delay",
		10,
		"Seconds between weight submission retries",
	)
	cobra.CheckErr(viper.BindPFlag("submit_retry_delay", startCmd.Flags().Lookup("submit-retry-delay")))

	shape := scoring.DefaultShapeConfig()
	viper.SetDefault("scoring.top_percentile", shape.TopPercentile)
	viper.SetDefault("scoring.reward_factor", shape.RewardFactor)
	viper.SetDefault("scoring.steepness", shape.Steepness)
	viper.SetDefault("scoring.center_sensitivity", shape.CenterSensitivity)
	viper.SetDefault("scoring.boost_factor", shape.BoostFactor)
}

func scoringConfig(cfg *config.Config) scoring.Config {
	out := scoring.DefaultConfig()

	if len(cfg.Scoring.Counters) > 0 {
		counters := make([]scoring.CounterWeight, 0, len(cfg.Scoring.Counters))
		for _, cw := range cfg.Scoring.Counters {
			counters = append(counters, scoring.CounterWeight{Name: cw.Name, Weight: cw.Weight})
		}
		out.Counters = counters
	}

	out.Shape = scoring.ShapeConfig{
		TopPercentile:     cfg.Scoring.TopPercentile,
		RewardFactor:      cfg.Scoring.RewardFactor,
		Steepness:         cfg.Scoring.Steepness,
		CenterSensitivity: cfg.Scoring.CenterSensitivity,
		BoostFactor:       cfg.Scoring.BoostFactor,
	}

	return out
}

func buildTelemetryDB(ctx context.Context, cfg *config.Config) (telemetrydb.Store, error) {
	if cfg.PostgresDSN == "" {
		log.Warnf("No Postgres DSN configured, telemetry is kept in memory only")
		return telemetrydb.NewMemoryStore(), nil
	}

	conn, err := telemetrydb.Open(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	flat := telemetrydb.NewPostgresStore(conn, cfg.TelemetryTable)
	if err := flat.Setup(ctx); err != nil {
		return nil, err
	}

	if cfg.MigrateFromDoc {
		if cfg.DocumentTable == "" {
			return nil, fmt.Errorf("migrate-from-document requires document-table")
		}

		doc := telemetrydb.NewDocumentStore(conn, cfg.DocumentTable)
		migrated, err := telemetrydb.Migrate(ctx, doc, flat)
		if err != nil {
			return nil, fmt.Errorf("migrating document telemetry rows: %w", err)
		}
		log.Infof("Migrated %d telemetry rows from %s", migrated, cfg.DocumentTable)
	}

	return flat, nil
}

func startService(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := buildTelemetryDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setting up telemetry storage: %w", err)
	}

	eventLog := events.NewLog(eventLogCapacity)

	store := telemetry.NewStore(db,
		time.Duration(cfg.RetentionHours)*time.Hour,
		telemetry.WithEventLog(eventLog))

	reg := registry.New(
		time.Duration(cfg.MembershipGraceSec)*time.Second,
		registry.WithEventLog(eventLog))

	ledgerClient := ledger.NewHTTPLedger(cfg.LedgerURL, 30*time.Second)

	syncer := registry.NewSyncer(reg, ledgerClient,
		time.Duration(cfg.SyncIntervalSec)*time.Second, store.Prune)

	// an unreachable membership source at startup is a configuration
	// error and fatal; later sync failures are not
	if err := syncer.Sync(ctx); err != nil {
		return fmt.Errorf("initial membership sync: %w", err)
	}

	engine, err := scoring.NewEngine(scoringConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating score engine: %w", err)
	}

	publisher := weights.NewPublisher(ledgerClient,
		time.Duration(cfg.MinSubmitIntervalSec)*time.Second,
		weights.RetryPolicy{
			MaxAttempts: 3,
			Delay:       time.Duration(cfg.SubmitRetryDelaySec) * time.Second,
		})

	manager := weights.NewManager(reg, store, engine, publisher,
		time.Duration(cfg.ScoreIntervalSec)*time.Second, eventLog)

	client := telemetry.NewClient(time.Duration(cfg.CollectTimeoutSec) * time.Second)
	coll := collector.New(reg, store, client,
		time.Duration(cfg.CollectIntervalSec)*time.Second,
		cfg.CollectConcurrency, eventLog)

	srv, err := server.New(reg, manager, eventLog, server.WithMetricsEndpoint(cfg.MetricsAuthToken))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if cfgFile != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			log.Infof("Config file changed: %s", e.Name)

			reloaded, err := config.Load()
			if err != nil {
				log.Errorf("Ignoring config reload: %v", err)
				return
			}
			if err := engine.SetConfig(scoringConfig(reloaded)); err != nil {
				log.Errorf("Ignoring scoring config reload: %v", err)
			}
		})
		viper.WatchConfig()
	}

	go syncer.Start(ctx)
	go coll.Start(ctx)
	go manager.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on port %d", cfg.Port)
		errCh <- srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-errCh:
		log.Errorf("Server error: %v", err)
		cancel()
		return err
	case sig := <-sigCh:
		log.Infof("Received signal %v, shutting down gracefully", sig)

		syncer.Stop()
		coll.Stop()
		manager.Stop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}
