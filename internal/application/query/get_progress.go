package query

import (
	"context"
	"errors"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Полная запись прогресса пользователя как есть (копия).
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery содержит параметры запроса.
type GetProgressQuery struct {
	// UserID - id пользователя. Пустой = текущий пользователь.
	UserID string
}

// GetProgressResult - результат запроса.
type GetProgressResult struct {
	Found  bool
	UserID string
	Record *progress.Record
}

// GetProgressHandler обрабатывает запрос записи.
type GetProgressHandler struct {
	repo     progress.Repository
	identity progress.IdentityProvider
}

// NewGetProgressHandler создаёт новый обработчик.
func NewGetProgressHandler(repo progress.Repository, identity progress.IdentityProvider) *GetProgressHandler {
	return &GetProgressHandler{repo: repo, identity: identity}
}

// Handle выполняет запрос.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*GetProgressResult, error) {
	userID := resolveUser(ctx, q.UserID, h.identity)
	if userID == "" {
		return &GetProgressResult{}, nil
	}

	rec, err := h.repo.FindRecord(ctx, userID)
	if errors.Is(err, shared.ErrRecordNotFound) {
		return &GetProgressResult{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &GetProgressResult{Found: true, UserID: userID, Record: rec}, nil
}
