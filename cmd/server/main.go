// Package main - точка входа HTTP API сервиса прогресса обучения.
//
// Сервис хранит прогресс просмотра курсов и маршрутов, начисляет опыт,
// считает серии дней и выдаёт достижения. Пользователь определяется по
// заголовку, который выставляет аутентифицирующий прокси.
//
// Слои:
// - Domain: правила прогресса без внешних зависимостей
// - Application: команды, запросы, сага достижений, проекции
// - Infrastructure: хранилища, кэш, шина событий, метрики
// - Interface: HTTP API
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eduplatform/progress-hub/config"

	// Application layer
	"github.com/eduplatform/progress-hub/internal/application/command"
	"github.com/eduplatform/progress-hub/internal/application/eventhandler"
	"github.com/eduplatform/progress-hub/internal/application/query"
	"github.com/eduplatform/progress-hub/internal/application/saga"

	// Domain
	"github.com/eduplatform/progress-hub/internal/domain/progress"

	// Infrastructure layer
	"github.com/eduplatform/progress-hub/internal/infrastructure/identity"
	"github.com/eduplatform/progress-hub/internal/infrastructure/messaging"
	"github.com/eduplatform/progress-hub/internal/infrastructure/metrics"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/backend"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/document"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/redis"
	"github.com/eduplatform/progress-hub/internal/infrastructure/service"

	// Interface layer
	httpserver "github.com/eduplatform/progress-hub/internal/interface/http"
	"github.com/eduplatform/progress-hub/internal/interface/http/handlers"

	// Packages
	"github.com/eduplatform/progress-hub/pkg/circuitbreaker"
	"github.com/eduplatform/progress-hub/pkg/keylock"
	"github.com/eduplatform/progress-hub/pkg/logger"
	"github.com/eduplatform/progress-hub/pkg/timeutil"

	"golang.org/x/sync/errgroup"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting progress API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
		"storage", cfg.Storage.Backend,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ХРАНИЛИЩЕ (memory / file / redis / postgres)
	// ─────────────────────────────────────────────────────────────────────────
	opts := backend.Options{Logger: log}
	if m != nil {
		opts.OnWriteFailure = m.ObserveStoreWriteFailure
	}
	store, err := backend.Open(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		log.Info("closing storage connections...")
		store.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. КЭШ СТАТИСТИКИ И ЯЩИК УВЕДОМЛЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	var statsCache *redis.StatsCache
	var inbox service.Inbox
	if store.Redis != nil {
		if cfg.Features.IsEnabled(config.FeatureCacheStats) {
			statsCache = redis.NewStatsCache(store.Redis, cfg.Redis.StatsTTL)
		}
		inbox = redis.NewNotificationInbox(store.Redis, log)
	} else {
		inbox = service.NewMemoryInbox(redis.InboxCapacity)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	if m != nil {
		busConfig.Observer = m
	}
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	var invalidator eventhandler.StatsInvalidator
	if statsCache != nil {
		invalidator = statsCache
	}
	var unlockObserver eventhandler.UnlockObserver
	if m != nil {
		unlockObserver = m
	}
	projector := eventhandler.NewProgressProjector(invalidator, unlockObserver, log)
	if err := projector.Register(eventBus); err != nil {
		return fmt.Errorf("failed to register projector: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock{}
	loc := cfg.App.Location
	ids := identity.ContextProvider{}

	notifiers := []progress.Notifier{service.NewLogNotifier(log)}
	if cfg.Features.IsEnabled(config.FeatureNotifyInbox) {
		notifiers = append(notifiers, service.NewInboxNotifier(inbox, clock))
	}
	notifier := service.NewFanoutNotifier(notifiers...)

	achievements := saga.NewAchievementFlowSaga(store.Store, notifier, eventBus, clock, saga.UUIDGenerator{}, log,
		saga.AchievementFlowConfig{Location: loc, EnableNotifications: true})

	deps := command.Deps{
		Store:        store.Store,
		Identity:     ids,
		Notifier:     notifier,
		Publisher:    eventBus,
		Achievements: achievements,
		Clock:        clock,
		Location:     loc,
		Locks:        keylock.New(),
		Logger:       log,
	}

	var queryCache query.StatsCache
	if statsCache != nil {
		queryCache = statsCache
		// Сброс до ответа команды; проектор на шине дублирует его асинхронно.
		deps.Stats = statsCache
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.SetTimeout(3 * time.Second)
	for name, p := range store.HealthChecks() {
		// Redis is required only when it holds the records.
		if name == "redis" && cfg.Storage.Backend != config.BackendRedis {
			health.AddOptionalCheck(name, handlers.NewPingCheck(p))
			continue
		}
		health.AddCheck(name, handlers.NewPingCheck(p))
	}
	if ds, ok := store.Store.(*document.Store); ok {
		health.AddCheck("store_circuit", func(context.Context) error {
			if state, retryIn := ds.WriteCircuit(); state == circuitbreaker.StateOpen {
				return fmt.Errorf("write circuit is %s, next attempt in %s", state, retryIn.Round(time.Second))
			}
			return nil
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	proxy, err := handlers.NewProxyIdentity(cfg.Auth.IdentityHeader, cfg.Auth.ProxyTokenHeader, cfg.Auth.ProxyTokenHash)
	if err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.Auth.ProxyTokenHash == "" {
		level := slog.LevelWarn
		if cfg.IsProduction() {
			level = slog.LevelError
		}
		log.Log(ctx, level, "no proxy token hash configured, identity header is trusted as is",
			"header", cfg.Auth.IdentityHeader)
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.CORSAllowedOrigins
	httpConfig.RateLimitRPS = cfg.HTTP.RateLimitRPS
	httpConfig.RateLimitBurst = cfg.HTTP.RateLimitBurst
	httpConfig.Version = cfg.App.Version

	logLevel := logger.ParseLevel(cfg.Observability.LogLevel)
	httpDeps := httpserver.Dependencies{
		EnsureRecord:         command.NewEnsureRecordHandler(deps),
		UpdateCourseProgress: command.NewUpdateCourseProgressHandler(deps),
		UpdateRouteProgress:  command.NewUpdateRouteProgressHandler(deps),
		SimulateWatching:     command.NewSimulateWatchingHandler(deps, cfg.Features),
		UpdatePreferences:    command.NewUpdatePreferencesHandler(deps),
		GetUserStats:         query.NewGetUserStatsHandler(store.Store, ids, queryCache, clock, loc, log),
		GetProgress:          query.NewGetProgressHandler(store.Store, ids),
		GetAchievements:      query.NewGetAchievementsHandler(store.Store, ids),
		Inbox:                inbox,
		Identity:             proxy,
		Logger:               logger.New(logger.Options{Output: os.Stdout, Level: logLevel}),
		HealthChecker:        health,
	}
	if m != nil {
		httpDeps.Metrics = m
		httpDeps.MetricsHandler = m.Handler()
	}

	server := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop HTTP server gracefully", "error", err)
			return err
		}
		return nil
	})

	log.Info("progress API is running", "http_address", server.Address())

	if err := g.Wait(); err != nil {
		log.Warn("shutdown completed with errors", "error", err)
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseSlogLevel(cfg.Observability.LogLevel)}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", cfg.App.Name)
	slog.SetDefault(log)
	return log
}

func parseSlogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
