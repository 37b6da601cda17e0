// Package jobs contains the scheduled jobs of the progress worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REMINDER JOB
// ══════════════════════════════════════════════════════════════════════════════

// StreakReminderJobName is the scheduler name of the job.
const StreakReminderJobName = "streak_reminder"

// ReminderMarker records that a user was already reminded on a date.
type ReminderMarker interface {
	MarkOnce(ctx context.Context, userID, date string) (bool, error)
}

// Reloader is implemented by stores that keep documents in memory.
// document.Store implements it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReminderObserver counts sent reminders.
type ReminderObserver interface {
	ObserveReminder()
}

// StreakReminderJob scans all records and reminds users who were active
// yesterday but not yet today. It never modifies records.
type StreakReminderJob struct {
	repo     progress.Repository
	notifier progress.Notifier
	marker   ReminderMarker
	observer ReminderObserver
	clock    timeutil.Clock
	logger   *slog.Logger
	config   StreakReminderConfig

	lastRunStats atomic.Value // StreakReminderStats
}

// StreakReminderConfig contains configuration for the streak reminder job.
type StreakReminderConfig struct {
	// Location defines calendar days and the evening hour.
	Location *time.Location

	// EveningHour is the local hour from which reminders are sent (0-23).
	EveningHour int

	// Timeout is the maximum duration of one run.
	Timeout time.Duration
}

// DefaultStreakReminderConfig returns sensible defaults.
func DefaultStreakReminderConfig() StreakReminderConfig {
	return StreakReminderConfig{
		Location:    time.Local,
		EveningHour: 18,
		Timeout:     2 * time.Minute,
	}
}

// StreakReminderStats contains statistics from one run.
type StreakReminderStats struct {
	StartedAt     time.Time
	Duration      time.Duration
	Skipped       bool
	UsersScanned  int
	AtRisk        int
	AlreadyMarked int
	RemindersSent int
	Errors        int
}

// NewStreakReminderJob creates the job. observer may be nil.
func NewStreakReminderJob(
	repo progress.Repository,
	notifier progress.Notifier,
	marker ReminderMarker,
	observer ReminderObserver,
	clock timeutil.Clock,
	logger *slog.Logger,
	config StreakReminderConfig,
) *StreakReminderJob {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultStreakReminderConfig().Timeout
	}

	return &StreakReminderJob{
		repo:     repo,
		notifier: notifier,
		marker:   marker,
		observer: observer,
		clock:    clock,
		logger:   logger.With("job", StreakReminderJobName),
		config:   config,
	}
}

// Name implements scheduler.Job.
func (j *StreakReminderJob) Name() string { return StreakReminderJobName }

// Description implements scheduler.Job.
func (j *StreakReminderJob) Description() string {
	return fmt.Sprintf("reminds users with a streak at risk after %02d:00", j.config.EveningHour)
}

// Run implements scheduler.Job.
func (j *StreakReminderJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	loc := j.config.Location
	now := j.clock.Now().In(loc)
	stats := StreakReminderStats{StartedAt: now}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	if now.Hour() < j.config.EveningHour {
		stats.Skipped = true
		return nil
	}

	// The API writes through its own copy of the documents.
	if r, ok := j.repo.(Reloader); ok {
		if err := r.Reload(ctx); err != nil {
			return fmt.Errorf("streak reminder: reload records: %w", err)
		}
	}

	ids, err := j.repo.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("streak reminder: list users: %w", err)
	}

	date := timeutil.DateKey(now, loc)
	var errs []error
	for _, userID := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		stats.UsersScanned++

		sent, err := j.remind(ctx, userID, date, now, &stats)
		if err != nil {
			stats.Errors++
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			j.logger.Warn("reminder failed", "user_id", userID, "error", err)
			continue
		}
		if sent {
			stats.RemindersSent++
		}
	}

	j.logger.Info("streak reminder run finished",
		"users_scanned", stats.UsersScanned,
		"at_risk", stats.AtRisk,
		"reminders_sent", stats.RemindersSent,
		"errors", stats.Errors,
	)

	return errors.Join(errs...)
}

func (j *StreakReminderJob) remind(ctx context.Context, userID, date string, now time.Time, stats *StreakReminderStats) (bool, error) {
	rec, err := j.repo.FindRecord(ctx, userID)
	if shared.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !rec.StreakAtRisk(now, j.config.Location) {
		return false, nil
	}
	stats.AtRisk++

	fresh, err := j.marker.MarkOnce(ctx, userID, date)
	if err != nil {
		return false, err
	}
	if !fresh {
		stats.AlreadyMarked++
		return false, nil
	}

	notice := progress.StreakReminderNotice(rec.CurrentStreak)
	if err := j.notifier.Show(ctx, userID, notice.Message, notice.Kind); err != nil {
		return false, err
	}
	if j.observer != nil {
		j.observer.ObserveReminder()
	}
	return true, nil
}

// LastRunStats returns statistics of the latest run.
func (j *StreakReminderJob) LastRunStats() (StreakReminderStats, bool) {
	stats, ok := j.lastRunStats.Load().(StreakReminderStats)
	return stats, ok
}
