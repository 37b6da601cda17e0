package command

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE COURSE PROGRESS COMMAND
// Records a watch session: progress percent plus minutes watched.
// Completion, streak, experience and achievements follow from it.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateCourseProgressCommand contains a course watch update.
type UpdateCourseProgressCommand struct {
	// CourseID is the course being watched.
	CourseID string

	// Progress is the completion percentage. Values outside 0..100 are clamped.
	Progress float64

	// WatchMinutes is the time watched in this session.
	WatchMinutes float64

	// CorrelationID for tracing.
	CorrelationID string
}

// ErrNonFiniteMinutes is returned for NaN or infinite watch minutes.
var ErrNonFiniteMinutes = shared.NewDomainError("progress", "Validate", shared.ErrInvalidInput, "watch minutes must be a finite number")

// Validate validates the command.
func (c UpdateCourseProgressCommand) Validate() error {
	if strings.TrimSpace(c.CourseID) == "" {
		return shared.ErrInvalidCourseID
	}
	if math.IsNaN(c.Progress) || math.IsInf(c.Progress, 0) {
		return shared.ErrInvalidPercent
	}
	return validateMinutes(c.WatchMinutes)
}

func validateMinutes(m float64) error {
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return ErrNonFiniteMinutes
	}
	if m < 0 {
		return shared.ErrNegativeMinutes
	}
	if m > progress.MaxSessionMinutes {
		return shared.ErrTooManyMinutes
	}
	return nil
}

// ProgressResult is the outcome of a course or route update.
type ProgressResult struct {
	// Skipped is true when nobody is logged in.
	Skipped bool

	// UserID is the record owner.
	UserID string

	// Record is a copy of the stored record after the update.
	Record *progress.Record

	// XPGained is the total experience granted by this update.
	XPGained int

	// LevelUp is true when the level grew; Level is the new level.
	LevelUp bool
	Level   int

	// Completed is true when this update completed the course or route.
	Completed bool

	// Notices were shown to the user, in order.
	Notices []progress.Notice

	// Unlocks were granted by this update.
	Unlocks []progress.Unlock
}

func newProgressResult(userID string, m *mutation) *ProgressResult {
	res := &ProgressResult{
		UserID:  userID,
		Record:  m.Record.Clone(),
		Level:   m.Record.Level,
		Notices: m.Notices,
		Unlocks: m.Unlocks,
	}
	for _, ef := range m.Effects {
		switch ef.Type {
		case progress.EffectXPGained:
			res.XPGained += ef.Amount
		case progress.EffectLevelUp:
			res.LevelUp = true
		case progress.EffectCourseCompleted, progress.EffectRouteCompleted:
			res.Completed = true
		}
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateCourseProgressHandler handles the UpdateCourseProgressCommand.
type UpdateCourseProgressHandler struct {
	engine *engine
}

// NewUpdateCourseProgressHandler creates a new UpdateCourseProgressHandler.
func NewUpdateCourseProgressHandler(deps Deps) *UpdateCourseProgressHandler {
	return &UpdateCourseProgressHandler{engine: newEngine(deps, "update_course_progress")}
}

// Handle executes the update course progress command.
func (h *UpdateCourseProgressHandler) Handle(ctx context.Context, cmd UpdateCourseProgressCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID := h.engine.currentUser(ctx)
	if userID == "" {
		return &ProgressResult{Skipped: true}, nil
	}

	courseID := strings.TrimSpace(cmd.CourseID)
	m, err := h.engine.mutate(ctx, userID, true, func(rec *progress.Record, now time.Time) ([]progress.Effect, bool) {
		return rec.UpdateCourseProgress(courseID, cmd.Progress, cmd.WatchMinutes, now, h.engine.loc), true
	})
	if err != nil {
		return nil, err
	}

	res := newProgressResult(userID, m)
	h.engine.logger.Debug("course progress updated",
		"user_id", userID,
		"course_id", courseID,
		"progress", cmd.Progress,
		"xp_gained", res.XPGained,
	)
	return res, nil
}
