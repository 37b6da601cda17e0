// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на уже сохранённые изменения: сбрасывают кэши
// и обновляют счётчики. Ошибка обработчика не отменяет команду.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Подписан на все события прогресса. Для владельца события сбрасывает
// кэш статистики, для achievement.unlocked увеличивает счётчик.
// ═══════════════════════════════════════════════════════════════════════════

// StatsInvalidator сбрасывает кэш статистики пользователя.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// UnlockObserver считает полученные достижения.
type UnlockObserver interface {
	ObserveUnlock(achievementID string)
}

// ProgressProjector обрабатывает события прогресса.
type ProgressProjector struct {
	cache    StatsInvalidator
	observer UnlockObserver
	logger   *slog.Logger
	timeout  time.Duration
}

// NewProgressProjector создаёт обработчик. cache и observer могут быть nil.
func NewProgressProjector(cache StatsInvalidator, observer UnlockObserver, logger *slog.Logger) *ProgressProjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressProjector{
		cache:    cache,
		observer: observer,
		logger:   logger.With("handler", "on_progress_changed"),
		timeout:  2 * time.Second,
	}
}

// Register подписывает обработчик на все события шины.
func (p *ProgressProjector) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(p.Handle)
}

// Handle обрабатывает одно событие.
func (p *ProgressProjector) Handle(event shared.Event) error {
	userID := event.AggregateID()

	if unlocked, ok := event.(shared.AchievementUnlockedEvent); ok && p.observer != nil {
		p.observer.ObserveUnlock(unlocked.AchievementID)
	}

	if p.cache == nil || userID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.cache.Invalidate(ctx, userID); err != nil {
		p.logger.Warn("failed to invalidate stats cache",
			"user_id", userID,
			"event_type", event.EventType(),
			"error", err,
		)
		return err
	}

	p.logger.Debug("stats cache invalidated", "user_id", userID, "event_type", event.EventType())
	return nil
}
