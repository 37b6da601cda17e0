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
// SIMULATE WATCHING COMMAND (demo)
// Synthesizes progress as min(100, current + minutes*2) and applies it as a
// regular course update. Gated by the demo.simulate feature flag.
// ══════════════════════════════════════════════════════════════════════════════

// FlagSimulate is the feature flag gating the demo command.
const FlagSimulate = "demo.simulate"

// SimulatedPercentPerMinute is the synthetic progress per watched minute.
const SimulatedPercentPerMinute = 2

// ErrSimulationDisabled is returned when the demo flag is off for the user.
var ErrSimulationDisabled = shared.NewDomainError("progress", "SimulateWatching", shared.ErrUnauthorized, "watch simulation is disabled")

// FeatureGate reports whether a flag is enabled for a user.
// config.FeatureFlags implements it.
type FeatureGate interface {
	IsEnabledForUser(flag, userID string) bool
}

// SimulateWatchingCommand contains the simulated session.
type SimulateWatchingCommand struct {
	CourseID string
	Minutes  float64
}

// Validate validates the command.
func (c SimulateWatchingCommand) Validate() error {
	if strings.TrimSpace(c.CourseID) == "" {
		return shared.ErrInvalidCourseID
	}
	return validateMinutes(c.Minutes)
}

// SimulatedProgress returns the synthetic percent after watching minutes.
func SimulatedProgress(current, minutes float64) float64 {
	return math.Min(100, current+minutes*SimulatedPercentPerMinute)
}

// SimulateWatchingHandler handles the SimulateWatchingCommand.
type SimulateWatchingHandler struct {
	engine *engine
	gate   FeatureGate
}

// NewSimulateWatchingHandler creates a new SimulateWatchingHandler.
// A nil gate leaves the command enabled.
func NewSimulateWatchingHandler(deps Deps, gate FeatureGate) *SimulateWatchingHandler {
	return &SimulateWatchingHandler{engine: newEngine(deps, "simulate_watching"), gate: gate}
}

// Handle executes the simulate watching command.
func (h *SimulateWatchingHandler) Handle(ctx context.Context, cmd SimulateWatchingCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID := h.engine.currentUser(ctx)
	if userID == "" {
		return &ProgressResult{Skipped: true}, nil
	}
	if h.gate != nil && !h.gate.IsEnabledForUser(FlagSimulate, userID) {
		return nil, ErrSimulationDisabled
	}

	courseID := strings.TrimSpace(cmd.CourseID)
	m, err := h.engine.mutate(ctx, userID, true, func(rec *progress.Record, now time.Time) ([]progress.Effect, bool) {
		next := SimulatedProgress(rec.CourseProgressOf(courseID), cmd.Minutes)
		return rec.UpdateCourseProgress(courseID, next, cmd.Minutes, now, h.engine.loc), true
	})
	if err != nil {
		return nil, err
	}

	return newProgressResult(userID, m), nil
}
