// Package main is the entry point of the challenge engine API server.
//
// The server exposes the REST surface: challenge management, enrollment,
// progress writes, teams and leaderboards. Domain events produced by the
// write path land in the transactional outbox; the worker process relays
// them to their subscribers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/fitpulse/challenge-engine/config"
	"github.com/fitpulse/challenge-engine/internal/application/command"
	"github.com/fitpulse/challenge-engine/internal/application/query"
	"github.com/fitpulse/challenge-engine/internal/domain/leaderboard"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/external/ledger"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/postgres"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/projections"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/persistence/redis"
	"github.com/fitpulse/challenge-engine/internal/infrastructure/service"
	httpapi "github.com/fitpulse/challenge-engine/internal/interface/http"
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
		Service: "server",
	})
	slog.SetDefault(log)

	log.Info("starting challenge engine API server",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	clock := timeutil.SystemClock{}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
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
	// 4. LEADERBOARD CACHE (Redis when available, process-local otherwise)
	// ─────────────────────────────────────────────────────────────────────────
	var boardCache leaderboard.Cache
	var redisCache *redis.Cache

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

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("redis unavailable, falling back to in-process leaderboard view", "error", err)
		} else {
			defer redisCache.Close()
			boardCache = redis.NewLeaderboardCache(redisCache)
			log.Info("redis connection established")
		}
	}

	if boardCache == nil {
		// Single-instance fallback. Invalidation does not cross processes,
		// so multi-replica deployments need Redis.
		boardCache = projections.NewLeaderboardView(clock)
		log.Info("using in-process leaderboard view")
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
	ledgerCfg := ledger.DefaultClientConfig(cfg.Ledger.BaseURL)
	ledgerCfg.APIKey = cfg.Ledger.APIKey
	ledgerCfg.Timeout = cfg.Ledger.Timeout
	ledgerCfg.Logger = log
	ledgerCfg.Debug = cfg.App.Debug
	ledgerClient := ledger.NewClient(ledgerCfg)
	pointLedger := service.NewLedgerAdapter(ledgerClient, clock, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	recalculator := command.NewRecalculateTeamHandler(challengeRepo, participantRepo, teamRepo, clock, log)

	var invalidator command.LeaderboardInvalidator = boardCache

	deps := httpapi.Dependencies{
		CreateChallenge: command.NewCreateChallengeHandler(challengeRepo, participantRepo, clock, log),
		JoinChallenge:   command.NewJoinChallengeHandler(challengeRepo, participantRepo, clock, log),
		LeaveChallenge:  command.NewLeaveChallengeHandler(challengeRepo, participantRepo, recalculator, clock, log),
		ApplyProgress: command.NewApplyProgressHandler(
			challengeRepo, participantRepo, pointLedger, outboxRepo, invalidator, recalculator, clock, log,
		),
		CreateTeam:     command.NewCreateTeamHandler(challengeRepo, participantRepo, teamRepo, clock, log),
		TeamMembership: command.NewTeamMembershipHandler(challengeRepo, participantRepo, teamRepo, recalculator, clock, log),
		Lifecycle:      command.NewLifecycleHandler(challengeRepo, clock, log),

		ListChallenges: query.NewListChallengesHandler(challengeRepo, clock, log),
		GetChallenge:   query.NewGetChallengeHandler(challengeRepo, participantRepo, clock, log),
		GetLeaderboard: query.NewGetLeaderboardHandler(
			challengeRepo, participantRepo, teamRepo, boardCache, cfg.Redis.LeaderboardTTL, clock, log,
		),

		Logger:        log,
		HealthChecker: newHealthChecker(conn, redisCache, ledgerClient),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.EnableMetrics = cfg.HTTP.EnableMetrics
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeys = cfg.HTTP.APIKeys

	server := httpapi.NewServer(serverCfg, deps)
	serverErr := server.StartAsync()

	log.Info("challenge engine API server is running", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("shutdown completed")
	return nil
}

// healthChecker probes the backing services for /health and /ready.
type healthChecker struct {
	conn   *postgres.Connection
	cache  *redis.Cache
	ledger *ledger.Client
}

func newHealthChecker(conn *postgres.Connection, cache *redis.Cache, ledgerClient *ledger.Client) *healthChecker {
	return &healthChecker{conn: conn, cache: cache, ledger: ledgerClient}
}

// Check reports component statuses. The database gates readiness; the
// cache and ledger degrade the report without failing it.
func (h *healthChecker) Check(ctx context.Context) httpapi.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := httpapi.HealthStatus{
		Healthy:    true,
		Ready:      true,
		Components: make(map[string]string),
	}

	if err := h.conn.Ping(ctx); err != nil {
		status.Healthy = false
		status.Ready = false
		status.Message = "database unreachable"
		status.Components["database"] = "down"
	} else {
		status.Components["database"] = "up"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status.Components["redis"] = "down"
		} else {
			status.Components["redis"] = "up"
		}
	} else {
		status.Components["redis"] = "disabled"
	}

	if h.ledger.IsHealthy(ctx) {
		status.Components["ledger"] = "up"
	} else {
		status.Components["ledger"] = "down"
	}

	return status
}
