// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/pkg/timeutil"

	"golang.org/x/sync/singleflight"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// Сводка прогресса пользователя: уровень, опыт, серии, выполнение целей.
// Чистое чтение. Нет записи или нет пользователя - результат без данных, не ошибка.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserStatsQuery содержит параметры запроса статистики.
type GetUserStatsQuery struct {
	// UserID - id пользователя. Пустой = текущий пользователь.
	UserID string

	// SkipCache - читать напрямую из хранилища.
	SkipCache bool
}

// GetUserStatsResult - результат запроса статистики.
type GetUserStatsResult struct {
	// Found - false, если пользователя или записи нет.
	Found bool

	// UserID - владелец записи.
	UserID string

	// Stats - сводка. Заполнена только при Found.
	Stats progress.Stats

	// FromCache - ответ взят из кэша.
	FromCache bool
}

// StatsCache - необязательный кэш готовой сводки.
// Реализация: redis.StatsCache.
type StatsCache interface {
	Get(ctx context.Context, userID string) (progress.Stats, bool, error)
	Set(ctx context.Context, userID string, stats progress.Stats) error
	Invalidate(ctx context.Context, userID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetUserStatsHandler обрабатывает запросы статистики.
type GetUserStatsHandler struct {
	store    progress.Store
	identity progress.IdentityProvider
	cache    StatsCache
	clock    timeutil.Clock
	loc      *time.Location
	logger   *slog.Logger

	group singleflight.Group
}

// NewGetUserStatsHandler создаёт новый обработчик. cache может быть nil.
func NewGetUserStatsHandler(
	store progress.Store,
	identity progress.IdentityProvider,
	cache StatsCache,
	clock timeutil.Clock,
	loc *time.Location,
	logger *slog.Logger,
) *GetUserStatsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetUserStatsHandler{
		store:    store,
		identity: identity,
		cache:    cache,
		clock:    clock,
		loc:      loc,
		logger:   logger.With("query", "get_user_stats"),
	}
}

// Handle выполняет запрос.
func (h *GetUserStatsHandler) Handle(ctx context.Context, q GetUserStatsQuery) (*GetUserStatsResult, error) {
	userID := resolveUser(ctx, q.UserID, h.identity)
	if userID == "" {
		return &GetUserStatsResult{}, nil
	}

	// Сначала кэш.
	if h.cache != nil && !q.SkipCache {
		stats, ok, err := h.cache.Get(ctx, userID)
		if err != nil {
			h.logger.Warn("stats cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return &GetUserStatsResult{Found: true, UserID: userID, Stats: stats, FromCache: true}, nil
		}
	}

	// Параллельные запросы одного пользователя считаются один раз.
	v, err, _ := h.group.Do(userID, func() (interface{}, error) {
		return h.compute(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*GetUserStatsResult), nil
}

func (h *GetUserStatsHandler) compute(ctx context.Context, userID string) (*GetUserStatsResult, error) {
	now := h.clock.Now()
	stats, found, err := h.build(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !found {
		return &GetUserStatsResult{UserID: userID}, nil
	}

	if h.cache != nil {
		h.fill(ctx, userID, stats, now)
	}

	return &GetUserStatsResult{Found: true, UserID: userID, Stats: stats}, nil
}

// build читает запись и достижения и собирает сводку на момент now.
func (h *GetUserStatsHandler) build(ctx context.Context, userID string, now time.Time) (progress.Stats, bool, error) {
	rec, err := h.store.FindRecord(ctx, userID)
	if errors.Is(err, shared.ErrRecordNotFound) {
		return progress.Stats{}, false, nil
	}
	if err != nil {
		return progress.Stats{}, false, err
	}

	unlocks, err := h.store.ListUnlocks(ctx, userID)
	if err != nil {
		return progress.Stats{}, false, err
	}
	return progress.BuildStats(rec, len(unlocks), now, h.loc), true, nil
}

// fill кладёт сводку в кэш и перечитывает запись. Если запись изменилась
// за время расчёта, запись в кэш снимается: команда могла сбросить кэш
// раньше, чем сюда дошёл Set.
func (h *GetUserStatsHandler) fill(ctx context.Context, userID string, stats progress.Stats, now time.Time) {
	if err := h.cache.Set(ctx, userID, stats); err != nil {
		h.logger.Warn("stats cache write failed", "user_id", userID, "error", err)
		return
	}

	fresh, found, err := h.build(ctx, userID, now)
	if err == nil && found && fresh.Equal(stats) {
		return
	}
	if err := h.cache.Invalidate(ctx, userID); err != nil {
		h.logger.Warn("failed to drop stale stats", "user_id", userID, "error", err)
	}
}

// resolveUser возвращает явный id или id текущего пользователя.
func resolveUser(ctx context.Context, explicit string, provider progress.IdentityProvider) string {
	if explicit != "" {
		return explicit
	}
	if provider == nil || !provider.IsLoggedIn(ctx) {
		return ""
	}
	id, ok := provider.CurrentUser(ctx)
	if !ok {
		return ""
	}
	return id.Email
}
