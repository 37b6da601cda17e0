package query

import (
	"context"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Каталог достижений с отметкой, какие из них получены пользователем.
// Без пользователя все достижения возвращаются закрытыми.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsQuery содержит параметры запроса.
type GetAchievementsQuery struct {
	// UserID - id пользователя. Пустой = текущий пользователь.
	UserID string
}

// AchievementDTO - достижение каталога для отображения.
type AchievementDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlockedAt,omitempty"`
}

// GetAchievementsResult - результат запроса.
type GetAchievementsResult struct {
	// UserID - пусто для анонимного запроса.
	UserID string

	// Items - весь каталог в фиксированном порядке.
	Items []AchievementDTO

	// Unlocks - полученные достижения в порядке получения.
	Unlocks []progress.Unlock

	// UnlockedCount - сколько достижений получено.
	UnlockedCount int
}

// GetAchievementsHandler обрабатывает запрос.
type GetAchievementsHandler struct {
	unlocks  progress.UnlockRepository
	identity progress.IdentityProvider
}

// NewGetAchievementsHandler создаёт новый обработчик.
func NewGetAchievementsHandler(unlocks progress.UnlockRepository, identity progress.IdentityProvider) *GetAchievementsHandler {
	return &GetAchievementsHandler{unlocks: unlocks, identity: identity}
}

// Handle выполняет запрос.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) (*GetAchievementsResult, error) {
	result := &GetAchievementsResult{UserID: resolveUser(ctx, q.UserID, h.identity)}

	byID := make(map[string]progress.Unlock)
	if result.UserID != "" {
		unlocks, err := h.unlocks.ListUnlocks(ctx, result.UserID)
		if err != nil {
			return nil, err
		}
		result.Unlocks = unlocks
		for _, u := range unlocks {
			byID[u.AchievementID] = u
		}
	}

	for _, def := range progress.Catalog() {
		dto := AchievementDTO{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Icon:        def.Icon,
		}
		if u, ok := byID[def.ID]; ok {
			at := u.UnlockedAt
			dto.Unlocked = true
			dto.UnlockedAt = &at
			result.UnlockedCount++
		}
		result.Items = append(result.Items, dto)
	}

	return result, nil
}
