// Package main is the entry point of the challenge engine worker.
//
// The worker owns everything that happens after a write commits: it relays
// outbox entries to the event bus, runs the completion side effect handlers
// (badge grants, feed posts), sweeps challenge lifecycles, re-warms
// leaderboard caches and cleans up dispatched outbox entries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/fitpulse/challenge-engine/config"
	"github.com/fitpulse/challenge-engine/internal/application/command"
	"github.com/fitpulse/challenge-engine/internal/application/eventhandler"
	"github.com/fitpulse/challenge-engine/internal/application/query"
	"github.com/fitpulse/challenge-engine/internal/domain/leaderboard"
	"github.com/fitpulse/challenge-engine/internal/domain/shared"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/external/achievements"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/external/feed"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/messaging"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/postgres"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/redis"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/scheduler"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/scheduler/jobs"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/service"
	"github.com/fitpulse/challenge-engine/pkg/logger"
	"github.com/fitpulse/challenge-engine/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Level:   logger.ParseLevel(cfg.Observability.LogLevel),
		Format:  logger.ParseFormat(cfg.Observability.LogFormat),
		Service: "worker",
	})
	slog.SetDefault(log)

	log.Info("starting challenge engine worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
	)

	clock := timeutil.SystemClock{}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var boardCache leaderboard.Cache

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("redis unavailable, board refresh job will hit the store", "error", err)
		} else {
			defer redisCache.Close()
			boardCache = redis.NewLeaderboardCache(redisCache)
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES & OUTBOX
	// ─────────────────────────────────────────────────────────────────────────
	challengeRepo := postgres.NewChallengeRepository(conn)
	participantRepo := postgres.NewParticipantRepository(conn)
	teamRepo := postgres.NewTeamRepository(conn)
	outboxRepo := postgres.NewOutboxRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EXTERNAL SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	achievementsCfg := achievements.DefaultClientConfig(cfg.Achievements.BaseURL)
	achievementsCfg.APIKey = cfg.Achievements.APIKey
	achievementsCfg.Timeout = cfg.Achievements.Timeout
	achievementsCfg.Logger = log
	badgeService := service.NewAchievementAdapter(achievements.NewClient(achievementsCfg))

	feedCfg := feed.DefaultClientConfig(cfg.Feed.BaseURL)
	feedCfg.APIKey = cfg.Feed.APIKey
	feedCfg.Timeout = cfg.Feed.Timeout
	feedCfg.Logger = log
	activityFeed := service.NewFeedAdapter(feed.NewClient(feedCfg))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS & SUBSCRIBERS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() { _ = bus.Close() }()

	completedCfg := eventhandler.DefaultChallengeCompletedConfig()
	completedCfg.GrantBadges = cfg.Features.IsEnabled(config.FeatureBadgeGrants, nil)
	completedCfg.PublishToFeed = cfg.Features.IsEnabled(config.FeatureFeedPosts, nil)

	onCompleted := eventhandler.NewOnChallengeCompletedHandler(badgeService, activityFeed, log, completedCfg)
	if err := bus.Subscribe(shared.EventChallengeCompleted, onCompleted.Handle); err != nil {
		return fmt.Errorf("failed to subscribe completion handler: %w", err)
	}

	onTeamCompleted := eventhandler.NewOnTeamCompletedHandler(activityFeed, log)
	if err := bus.Subscribe(shared.EventTeamCompleted, onTeamCompleted.Handle); err != nil {
		return fmt.Errorf("failed to subscribe team completion handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. OUTBOX RELAY
	// ─────────────────────────────────────────────────────────────────────────
	relayCfg := messaging.DefaultOutboxRelayConfig(outboxRepo, bus)
	relayCfg.PollInterval = cfg.Relay.PollInterval
	relayCfg.BatchSize = cfg.Relay.BatchSize
	relayCfg.MaxAttempts = cfg.Relay.MaxAttempts
	relayCfg.Clock = clock
	relayCfg.Logger = log
	relay := messaging.NewOutboxRelay(relayCfg)

	relayDone := make(chan error, 1)
	go func() {
		relayDone <- relay.Run(ctx)
	}()
	log.Info("outbox relay started", "poll_interval", cfg.Relay.PollInterval.String())

	// ─────────────────────────────────────────────────────────────────────────
	// 9. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.DefaultConfig()
		schedCfg.Logger = log
		schedCfg.Clock = clock
		sched = scheduler.NewScheduler(schedCfg)

		lifecycle := command.NewLifecycleHandler(challengeRepo, clock, log)
		boards := query.NewGetLeaderboardHandler(
			challengeRepo, participantRepo, teamRepo, boardCache, cfg.Redis.LeaderboardTTL, clock, log,
		)

		sweepJob := jobs.NewLifecycleSweepJob(lifecycle, log)
		if err := sched.Register(sweepJob, scheduler.NewIntervalSchedule(cfg.Scheduler.LifecycleSweepInterval)); err != nil {
			return fmt.Errorf("failed to register lifecycle sweep: %w", err)
		}

		refreshJob := jobs.NewLeaderboardRefreshJob(challengeRepo, boards, log)
		if err := sched.Register(refreshJob, scheduler.NewIntervalSchedule(cfg.Scheduler.LeaderboardRefreshInterval)); err != nil {
			return fmt.Errorf("failed to register leaderboard refresh: %w", err)
		}

		cleanupJob := jobs.NewOutboxCleanupJob(outboxRepo, clock, cfg.Scheduler.OutboxRetention, log)
		cleanupAt := scheduler.NewDailySchedule(cfg.Scheduler.CleanupHour, cfg.Scheduler.CleanupMinute)
		if err := sched.Register(cleanupJob, cleanupAt); err != nil {
			return fmt.Errorf("failed to register outbox cleanup: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("scheduler started", "jobs", len(sched.ListJobs()))
	}

	log.Info("challenge engine worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-relayDone:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("outbox relay failed: %w", err)
		}
	}

	if sched != nil {
		if err := sched.Stop(); err != nil && err != scheduler.ErrNotRunning {
			log.Warn("scheduler stop failed", "error", err)
		}
	}

	log.Info("shutdown completed")
	return nil
}
