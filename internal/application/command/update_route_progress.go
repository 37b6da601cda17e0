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
// UPDATE ROUTE PROGRESS COMMAND
// Records progress on a learning route. Reaching 100% completes the route.
// Updates to an already completed route are ignored.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateRouteProgressCommand contains a route progress update.
type UpdateRouteProgressCommand struct {
	// RouteID is the learning route.
	RouteID string

	// Progress is the completion percentage. Values outside 0..100 are clamped.
	Progress float64

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UpdateRouteProgressCommand) Validate() error {
	if strings.TrimSpace(c.RouteID) == "" {
		return shared.ErrInvalidRouteID
	}
	if math.IsNaN(c.Progress) || math.IsInf(c.Progress, 0) {
		return shared.ErrInvalidPercent
	}
	return nil
}

// UpdateRouteProgressHandler handles the UpdateRouteProgressCommand.
type UpdateRouteProgressHandler struct {
	engine *engine
}

// NewUpdateRouteProgressHandler creates a new UpdateRouteProgressHandler.
func NewUpdateRouteProgressHandler(deps Deps) *UpdateRouteProgressHandler {
	return &UpdateRouteProgressHandler{engine: newEngine(deps, "update_route_progress")}
}

// Handle executes the update route progress command.
func (h *UpdateRouteProgressHandler) Handle(ctx context.Context, cmd UpdateRouteProgressCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	userID := h.engine.currentUser(ctx)
	if userID == "" {
		return &ProgressResult{Skipped: true}, nil
	}

	routeID := strings.TrimSpace(cmd.RouteID)
	m, err := h.engine.mutate(ctx, userID, true, func(rec *progress.Record, now time.Time) ([]progress.Effect, bool) {
		if rec.IsRouteCompleted(routeID) {
			return nil, false
		}
		return rec.UpdateRouteProgress(routeID, cmd.Progress, now), true
	})
	if err != nil {
		return nil, err
	}

	return newProgressResult(userID, m), nil
}
