package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/eduplatform/progress-hub/internal/application/command"
	"github.com/eduplatform/progress-hub/internal/application/query"
	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/internal/infrastructure/identity"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/redis"
	"github.com/eduplatform/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "progress-hub",
		"version": s.config.Version,
		"uptime":  s.Uptime().Round(time.Second).String(),
		"endpoints": map[string]string{
			"health":        "/health",
			"achievements":  "/api/v1/achievements",
			"progress":      "/api/v1/me/progress",
			"stats":         "/api/v1/me/stats",
			"notifications": "/api/v1/me/notifications",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

type skippedResponse struct {
	Skipped bool `json:"skipped"`
}

var skipped = skippedResponse{Skipped: true}

type noticeDTO struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type progressResponse struct {
	Skipped   bool              `json:"skipped"`
	XPGained  int               `json:"xpGained"`
	LevelUp   bool              `json:"levelUp"`
	Level     int               `json:"level"`
	Completed bool              `json:"completed"`
	Notices   []noticeDTO       `json:"notices"`
	Unlocks   []progress.Unlock `json:"unlocks"`
	Record    *progress.Record  `json:"record"`
}

func toProgressResponse(res *command.ProgressResult) progressResponse {
	out := progressResponse{
		XPGained:  res.XPGained,
		LevelUp:   res.LevelUp,
		Level:     res.Level,
		Completed: res.Completed,
		Notices:   make([]noticeDTO, 0, len(res.Notices)),
		Unlocks:   res.Unlocks,
		Record:    res.Record,
	}
	if out.Unlocks == nil {
		out.Unlocks = []progress.Unlock{}
	}
	for _, n := range res.Notices {
		out.Notices = append(out.Notices, noticeDTO{Message: n.Message, Kind: string(n.Kind)})
	}
	return out
}

type ensureRecordResponse struct {
	Skipped bool             `json:"skipped"`
	Created bool             `json:"created"`
	Record  *progress.Record `json:"record"`
}

type preferencesResponse struct {
	Skipped       bool     `json:"skipped"`
	DailyGoal     int      `json:"dailyGoal"`
	WeeklyGoal    int      `json:"weeklyGoal"`
	Theme         string   `json:"theme"`
	ChangedFields []string `json:"changedFields"`
}

type myAchievementsResponse struct {
	Unlocks       []progress.Unlock      `json:"unlocks"`
	Items         []query.AchievementDTO `json:"items"`
	UnlockedCount int                    `json:"unlockedCount"`
	Total         int                    `json:"total"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type courseProgressRequest struct {
	Progress     *float64 `json:"progress"`
	WatchMinutes float64  `json:"watchMinutes"`
}

type routeProgressRequest struct {
	Progress *float64 `json:"progress"`
}

type simulateRequest struct {
	Minutes float64 `json:"minutes"`
}

type preferencesRequest struct {
	DailyGoal  *int    `json:"dailyGoal"`
	WeeklyGoal *int    `json:"weeklyGoal"`
	Theme      *string `json:"theme"`
}

var errMissingProgress = errors.New("field progress is required")

// decodeBody decodes a JSON body into dst. An empty body leaves dst unchanged.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetCatalog handles GET /api/v1/achievements.
// Unlock flags are filled when the caller is identified.
func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetAchievements == nil {
		writeNotConfigured(w, r)
		return
	}

	result, err := s.deps.GetAchievements.Handle(r.Context(), query.GetAchievementsQuery{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result.Items)
}

// ══════════════════════════════════════════════════════════════════════════════
// CURRENT USER COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleEnsureRecord handles POST /api/v1/me/record.
func (s *Server) handleEnsureRecord(w http.ResponseWriter, r *http.Request) {
	if s.deps.EnsureRecord == nil {
		writeNotConfigured(w, r)
		return
	}

	result, err := s.deps.EnsureRecord.Handle(r.Context(), command.EnsureRecordCommand{
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.Skipped {
		writeJSON(w, r, http.StatusOK, skipped)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, ensureRecordResponse{Created: result.Created, Record: result.Record})
}

// handleUpdateCourseProgress handles PUT /api/v1/me/courses/{courseID}/progress.
func (s *Server) handleUpdateCourseProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdateCourseProgress == nil {
		writeNotConfigured(w, r)
		return
	}

	var body courseProgressRequest
	if err := decodeBody(r, &body); err != nil {
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON", err.Error())
		return
	}
	if body.Progress == nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", errMissingProgress.Error())
		return
	}

	result, err := s.deps.UpdateCourseProgress.Handle(r.Context(), command.UpdateCourseProgressCommand{
		CourseID:      r.PathValue("courseID"),
		Progress:      *body.Progress,
		WatchMinutes:  body.WatchMinutes,
		CorrelationID: getRequestID(r.Context()),
	})
	s.writeProgressResult(w, r, result, err)
}

// handleSimulateWatching handles POST /api/v1/me/courses/{courseID}/simulate.
func (s *Server) handleSimulateWatching(w http.ResponseWriter, r *http.Request) {
	if s.deps.SimulateWatching == nil {
		writeNotConfigured(w, r)
		return
	}

	var body simulateRequest
	if err := decodeBody(r, &body); err != nil {
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON", err.Error())
		return
	}

	result, err := s.deps.SimulateWatching.Handle(r.Context(), command.SimulateWatchingCommand{
		CourseID: r.PathValue("courseID"),
		Minutes:  body.Minutes,
	})
	s.writeProgressResult(w, r, result, err)
}

// handleUpdateRouteProgress handles PUT /api/v1/me/routes/{routeID}/progress.
func (s *Server) handleUpdateRouteProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdateRouteProgress == nil {
		writeNotConfigured(w, r)
		return
	}

	var body routeProgressRequest
	if err := decodeBody(r, &body); err != nil {
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON", err.Error())
		return
	}
	if body.Progress == nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", errMissingProgress.Error())
		return
	}

	result, err := s.deps.UpdateRouteProgress.Handle(r.Context(), command.UpdateRouteProgressCommand{
		RouteID:       r.PathValue("routeID"),
		Progress:      *body.Progress,
		CorrelationID: getRequestID(r.Context()),
	})
	s.writeProgressResult(w, r, result, err)
}

func (s *Server) writeProgressResult(w http.ResponseWriter, r *http.Request, result *command.ProgressResult, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.Skipped {
		writeJSON(w, r, http.StatusOK, skipped)
		return
	}
	writeJSON(w, r, http.StatusOK, toProgressResponse(result))
}

// handleUpdatePreferences handles PATCH /api/v1/me/preferences.
func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdatePreferences == nil {
		writeNotConfigured(w, r)
		return
	}

	var body preferencesRequest
	if err := decodeBody(r, &body); err != nil {
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON", err.Error())
		return
	}

	result, err := s.deps.UpdatePreferences.Handle(r.Context(), command.UpdatePreferencesCommand{
		DailyGoal:     body.DailyGoal,
		WeeklyGoal:    body.WeeklyGoal,
		Theme:         body.Theme,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.Skipped {
		writeJSON(w, r, http.StatusOK, skipped)
		return
	}

	changed := result.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, r, http.StatusOK, preferencesResponse{
		DailyGoal:     result.DailyGoal,
		WeeklyGoal:    result.WeeklyGoal,
		Theme:         result.Theme,
		ChangedFields: changed,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CURRENT USER QUERY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgress handles GET /api/v1/me/progress.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetProgress == nil {
		writeNotConfigured(w, r)
		return
	}

	result, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !result.Found {
		writeJSON(w, r, http.StatusOK, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, result.Record)
}

// handleGetStats handles GET /api/v1/me/stats.
// ?fresh=true bypasses the stats cache.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetUserStats == nil {
		writeNotConfigured(w, r)
		return
	}

	result, err := s.deps.GetUserStats.Handle(r.Context(), query.GetUserStatsQuery{
		SkipCache: getQueryParamBool(r, "fresh"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !result.Found {
		writeJSON(w, r, http.StatusOK, nil)
		return
	}

	meta := newMeta(r)
	meta.FromCache = result.FromCache
	writeJSONWithMeta(w, http.StatusOK, result.Stats, meta)
}

// handleGetMyAchievements handles GET /api/v1/me/achievements.
func (s *Server) handleGetMyAchievements(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetAchievements == nil {
		writeNotConfigured(w, r)
		return
	}

	result, err := s.deps.GetAchievements.Handle(r.Context(), query.GetAchievementsQuery{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.UserID == "" {
		writeJSON(w, r, http.StatusOK, nil)
		return
	}

	unlocks := result.Unlocks
	if unlocks == nil {
		unlocks = []progress.Unlock{}
	}
	writeJSON(w, r, http.StatusOK, myAchievementsResponse{
		Unlocks:       unlocks,
		Items:         result.Items,
		UnlockedCount: result.UnlockedCount,
		Total:         len(result.Items),
	})
}

// handleDrainNotifications handles GET /api/v1/me/notifications.
// Returned notices are removed from the inbox.
func (s *Server) handleDrainNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusOK, nil)
		return
	}
	if s.deps.Inbox == nil {
		writeJSON(w, r, http.StatusOK, []redis.InboxItem{})
		return
	}

	items, err := s.deps.Inbox.Drain(r.Context(), user.Email)
	if err != nil {
		s.writeError(w, r, shared.WrapError("notification", "Drain", shared.ErrServiceUnavailable, "inbox is unavailable", err))
		return
	}
	if items == nil {
		items = []redis.InboxItem{}
	}
	writeJSON(w, r, http.StatusOK, items)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// errorStatus maps application errors to HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case shared.IsUnavailable(err):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.String("path", r.URL.Path), logger.Err(err))
	} else {
		log.Debug("request rejected", logger.String("path", r.URL.Path), logger.Err(err))
	}

	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) {
		message = de.Message
	}
	if status == http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONError(w, r, status, code, message)
}

func writeNotConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Handler not configured")
}
