package command

import (
	"context"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PREFERENCES COMMAND
// Updates the daily and weekly watch goals and the interface theme.
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePreferencesCommand contains the data to update preferences.
// nil values mean "don't change".
type UpdatePreferencesCommand struct {
	// DailyGoal in minutes.
	DailyGoal *int

	// WeeklyGoal in minutes.
	WeeklyGoal *int

	// Theme is "dark" or "light".
	Theme *string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UpdatePreferencesCommand) Validate() error {
	if c.DailyGoal != nil && *c.DailyGoal <= 0 {
		return shared.ErrInvalidGoal
	}
	if c.WeeklyGoal != nil && *c.WeeklyGoal <= 0 {
		return shared.ErrInvalidGoal
	}
	if c.Theme != nil && !progress.IsValidTheme(*c.Theme) {
		return shared.ErrInvalidTheme
	}
	return nil
}

// UpdatePreferencesResult contains the result of updating preferences.
type UpdatePreferencesResult struct {
	// Skipped is true when nobody is logged in.
	Skipped bool

	// UserID is the record owner.
	UserID string

	// DailyGoal, WeeklyGoal and Theme are the final values.
	DailyGoal  int
	WeeklyGoal int
	Theme      string

	// ChangedFields lists which fields were changed.
	ChangedFields []string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePreferencesHandler handles the UpdatePreferencesCommand.
type UpdatePreferencesHandler struct {
	engine *engine
}

// NewUpdatePreferencesHandler creates a new UpdatePreferencesHandler.
func NewUpdatePreferencesHandler(deps Deps) *UpdatePreferencesHandler {
	return &UpdatePreferencesHandler{engine: newEngine(deps, "update_preferences")}
}

// Handle executes the update preferences command.
func (h *UpdatePreferencesHandler) Handle(ctx context.Context, cmd UpdatePreferencesCommand) (*UpdatePreferencesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID := h.engine.currentUser(ctx)
	if userID == "" {
		return &UpdatePreferencesResult{Skipped: true}, nil
	}

	var changedFields []string
	m, err := h.engine.mutate(ctx, userID, false, func(rec *progress.Record, _ time.Time) ([]progress.Effect, bool) {
		changedFields = changedFields[:0]
		if cmd.DailyGoal != nil && *cmd.DailyGoal != rec.DailyGoal {
			rec.SetGoals(*cmd.DailyGoal, 0)
			changedFields = append(changedFields, "daily_goal")
		}
		if cmd.WeeklyGoal != nil && *cmd.WeeklyGoal != rec.WeeklyGoal {
			rec.SetGoals(0, *cmd.WeeklyGoal)
			changedFields = append(changedFields, "weekly_goal")
		}
		if cmd.Theme != nil && *cmd.Theme != rec.Theme {
			rec.SetTheme(*cmd.Theme)
			changedFields = append(changedFields, "theme")
		}
		return nil, len(changedFields) > 0
	})
	if err != nil {
		return nil, err
	}

	rec := m.Record
	if m.Persisted && len(changedFields) > 0 {
		h.engine.publishAll([]shared.Event{
			shared.NewPreferencesChangedEvent(userID, rec.DailyGoal, rec.WeeklyGoal, rec.Theme, h.engine.clock.Now()),
		})
	}

	return &UpdatePreferencesResult{
		UserID:        userID,
		DailyGoal:     rec.DailyGoal,
		WeeklyGoal:    rec.WeeklyGoal,
		Theme:         rec.Theme,
		ChangedFields: changedFields,
	}, nil
}
