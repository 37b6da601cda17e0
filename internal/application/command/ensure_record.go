package command

import (
	"context"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENSURE RECORD COMMAND
// Returns the current user's record, creating and persisting the default
// record on first use. Idempotent.
// ══════════════════════════════════════════════════════════════════════════════

// EnsureRecordCommand has no input: the user comes from the identity provider.
type EnsureRecordCommand struct {
	// CorrelationID for tracing.
	CorrelationID string
}

// EnsureRecordResult contains the user's record.
type EnsureRecordResult struct {
	// Skipped is true when nobody is logged in.
	Skipped bool

	// UserID is the record owner.
	UserID string

	// Record is a copy of the stored record.
	Record *progress.Record

	// Created is true when this call created the record.
	Created bool
}

// EnsureRecordHandler handles the EnsureRecordCommand.
type EnsureRecordHandler struct {
	engine *engine
}

// NewEnsureRecordHandler creates a new EnsureRecordHandler.
func NewEnsureRecordHandler(deps Deps) *EnsureRecordHandler {
	return &EnsureRecordHandler{engine: newEngine(deps, "ensure_record")}
}

// Handle executes the ensure record command.
func (h *EnsureRecordHandler) Handle(ctx context.Context, _ EnsureRecordCommand) (*EnsureRecordResult, error) {
	userID := h.engine.currentUser(ctx)
	if userID == "" {
		return &EnsureRecordResult{Skipped: true}, nil
	}

	m, err := h.engine.mutate(ctx, userID, false, nil)
	if err != nil {
		return nil, err
	}

	if m.Created {
		h.engine.logger.Info("progress record created", "user_id", userID)
	}

	return &EnsureRecordResult{
		UserID:  userID,
		Record:  m.Record.Clone(),
		Created: m.Created,
	}, nil
}
