// Package main - точка входа фонового процесса (Worker) сервиса прогресса.
//
// Worker выполняет периодические задачи:
//   - streak_reminder: вечером напоминает пользователям, чья серия дней
//     прервётся, если сегодня не будет просмотра
//
// Задачи только читают записи прогресса; уведомления попадают в журнал
// и в ящик уведомлений, который API отдаёт через /api/v1/me/notifications.
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

	// Domain
	"github.com/eduplatform/progress-hub/internal/domain/progress"

	// Infrastructure layer
	"github.com/eduplatform/progress-hub/internal/infrastructure/metrics"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/backend"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/redis"
	"github.com/eduplatform/progress-hub/internal/infrastructure/scheduler"
	"github.com/eduplatform/progress-hub/internal/infrastructure/scheduler/jobs"
	"github.com/eduplatform/progress-hub/internal/infrastructure/service"

	// Packages
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
	log.Info("starting progress worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"storage", cfg.Storage.Backend,
	)

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	store, err := backend.Open(ctx, cfg, backend.Options{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		log.Info("closing storage connections...")
		store.Close()
	}()

	if cfg.Storage.Backend == config.BackendMemory {
		log.Warn("memory backend is private to this process, the worker sees no API records")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. УВЕДОМЛЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock{}

	var inbox interface {
		service.Inbox
		service.ReminderMarker
	}
	if store.Redis != nil {
		inbox = redis.NewNotificationInbox(store.Redis, log)
	} else {
		inbox = service.NewMemoryInbox(redis.InboxCapacity)
	}

	notifiers := []progress.Notifier{service.NewLogNotifier(log)}
	switch {
	case !cfg.Features.IsEnabled(config.FeatureNotifyInbox):
	case store.Redis == nil:
		// Ящик в памяти процесса воркера API никогда не прочитает.
		log.Warn("inbox reminders need redis, reminders are only logged")
	default:
		notifiers = append(notifiers, service.NewInboxNotifier(inbox, clock))
	}
	notifier := service.NewFanoutNotifier(notifiers...)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	if cfg.Features.IsEnabled(config.FeatureNotifyStreakReminder) {
		var observer jobs.ReminderObserver
		if m != nil {
			observer = m
		}
		reminder := jobs.NewStreakReminderJob(store.Store, notifier, inbox, observer, clock, log,
			jobs.StreakReminderConfig{
				Location:    cfg.App.Location,
				EveningHour: cfg.Scheduler.ReminderHour,
				Timeout:     cfg.Scheduler.JobTimeout,
			})
		// Раньше вечернего часа задача всё равно ничего не отправит.
		schedule := scheduler.NewWindowSchedule(cfg.Scheduler.StreakReminderInterval, cfg.Scheduler.ReminderHour, 24)
		if err := sched.Register(reminder, schedule); err != nil {
			return fmt.Errorf("failed to register %s: %w", reminder.Name(), err)
		}
	} else {
		log.Info("streak reminders disabled by feature flag")
	}

	sched.OnJobComplete(func(result scheduler.JobResult) {
		if m != nil {
			m.ObserveJob(result.JobName, result.Duration, result.Error)
		}
	})

	for _, j := range sched.ListJobs() {
		log.Info("job registered", "job", j.Name, "schedule", j.Schedule)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	start := sched.Start
	if cfg.Scheduler.RunOnStart {
		start = sched.StartAndRun
	}
	if err := start(gctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	var opsServer *http.Server
	if m != nil && cfg.Scheduler.MetricsAddr != "" {
		opsServer = newOpsServer(cfg.Scheduler.MetricsAddr, m, store)
		g.Go(func() error {
			log.Info("serving worker metrics", "address", opsServer.Addr)
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Error("failed to stop scheduler", "error", err)
		}

		if opsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
			defer cancel()
			return opsServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	log.Info("progress worker is running")

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

// newOpsServer отдаёт /metrics и простую проверку хранилища.
func newOpsServer(addr string, m *metrics.Metrics, store *backend.Backend) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		for name, p := range store.HealthChecks() {
			if err := p.Ping(ctx); err != nil {
				http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseSlogLevel(cfg.Observability.LogLevel)}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", cfg.App.Name+"-worker")
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
