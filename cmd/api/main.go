package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/agentmetrics"
	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/sweep"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

type stores struct {
	tickets     repository.TicketRepository
	messages    repository.MessageRepository
	history     repository.TicketHistoryRepository
	agents      repository.AgentRepository
	performance repository.PerformanceRepository
	daily       repository.DailyMetricRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	repos := buildStores(pg, logger)

	policy, err := sla.NewPolicy(cfg.SLA)
	if err != nil {
		logger.Fatal("invalid sla policy", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(dispatcher, buildSink(cfg, redis, logger), metrics, logger)

	clk := clock.System{}
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:      repos.tickets,
		AgentRepo:       repos.agents,
		PerformanceRepo: repos.performance,
		Clock:           clk,
		Logger:          logger.Named("assignment"),
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   repos.tickets,
		MessageRepo:  repos.messages,
		HistoryRepo:  repos.history,
		Assignment:   assignmentService,
		Recorder:     agentmetrics.NewRecorder(repos.performance, logger.Named("agentmetrics"), 5),
		SLA:          policy,
		Dispatcher:   dispatcher,
		Clock:        clk,
		Metrics:      metrics,
		Logger:       logger.Named("tickets"),
		RatingWindow: cfg.Lifecycle.RatingWindow(),
	})
	reportService := service.NewReportService(repos.daily)

	sweepDeps := sweep.Dependencies{
		TicketRepo:      repos.tickets,
		DailyMetricRepo: repos.daily,
		Tickets:         ticketService,
		SLA:             policy,
		Dispatcher:      dispatcher,
		Clock:           clk,
		Metrics:         metrics,
		Logger:          logger.Named("sweep"),
		Config:          sweep.ConfigFrom(cfg.Sweep),
	}
	if cfg.Sweep.SLAWarningDedup && redis != nil {
		sweepDeps.Marker = persistence.NewRedisMarker(redis.Client, cfg.App.Name+":")
	}
	sweeper := sweep.NewSweeper(sweepDeps)

	schedulerOpts := []worker.Option{
		worker.WithLogger(logger.Named("scheduler")),
		worker.WithLocation(cfg.Sweep.Location()),
		worker.WithLockTTL(cfg.Sweep.LockTTL()),
		worker.WithMetrics(metrics),
	}
	if cfg.Sweep.RetryMaxTries > 0 {
		schedulerOpts = append(schedulerOpts, worker.WithMaxTries(uint(cfg.Sweep.RetryMaxTries)))
	}
	if redis != nil {
		schedulerOpts = append(schedulerOpts, worker.WithLocker(persistence.NewRedisLocker(redis.Client, cfg.App.Name+":lock:")))
	}
	scheduler := worker.NewScheduler(schedulerOpts...)
	if err := worker.RegisterSweeps(scheduler, sweeper, cfg.Sweep); err != nil {
		logger.Fatal("failed to register sweeps", zap.Error(err))
	}
	scheduler.Start()

	checks := map[string]handlers.Check{}
	if pg.Enabled() {
		checks["postgres"] = pg.Ping
	}
	if redis != nil {
		checks["redis"] = redis.Ping
	}

	validator := dto.NewValidator()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.NewErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks),
		Tickets:        handlers.NewTicketsHandler(ticketService, validator),
		Agents:         handlers.NewAgentsHandler(assignmentService, validator),
		Metrics:        handlers.NewMetricsHandler(reportService, scheduler, validator),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Registry:       metrics.Registry(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop", zap.Error(err))
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

// buildStores selects Postgres repositories when a pool is configured and the
// in-memory store otherwise.
func buildStores(pg *persistence.Postgres, logger *zap.Logger) stores {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		return stores{
			tickets:     repository.NewTicketRepository(pool),
			messages:    repository.NewMessageRepository(pool),
			history:     repository.NewTicketHistoryRepository(pool),
			agents:      repository.NewAgentRepository(pool),
			performance: repository.NewPerformanceRepository(pool),
			daily:       repository.NewDailyMetricRepository(pool),
		}
	}
	logger.Warn("no database configured; using in-memory store")
	mem := memory.NewStore()
	return stores{
		tickets:     mem.Tickets,
		messages:    mem.Messages,
		history:     mem.History,
		agents:      mem.Agents,
		performance: mem.Performance,
		daily:       mem.DailyMetrics,
	}
}

func buildSink(cfg *config.Config, redis *persistence.Redis, logger *zap.Logger) notify.Sink {
	sinks := notify.MultiSink{notify.NewLogSink(logger.Named("notify"), cfg.Notification.EmailFrom)}
	if cfg.Notification.WebhookURL != "" {
		timeout := time.Duration(cfg.Notification.WebhookTimeoutSec) * time.Second
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notification.WebhookURL, cfg.Notification.AlertChannel, timeout))
	}
	if cfg.Notification.RedisPublish && redis != nil {
		sinks = append(sinks, notify.NewRedisSink(redis.Client, cfg.Notification.RedisChannelPrefix))
	}
	return sinks
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
