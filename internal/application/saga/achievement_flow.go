// Package saga contains multi-step business processes that coordinate
// the store, the notifier and the event bus.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/domain/shared"
	"github.com/eduplatform/progress-hub/pkg/timeutil"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW SAGA
// Flow: Load Unlocks → Evaluate Catalog → Append Unlocks → Notify → Publish
//
// Evaluation runs against an immutable snapshot of the record, so it can never
// observe a half-applied mutation. Appending is idempotent per
// (user, achievement): a duplicate is skipped, not reported.
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator generates unique IDs for unlock records.
type IDGenerator interface {
	GenerateID() string
}

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

// GenerateID implements IDGenerator.
func (UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}

// AchievementFlowStep represents a step in the achievement flow.
type AchievementFlowStep string

const (
	StepLoadUnlocks   AchievementFlowStep = "load_unlocks"
	StepEvaluate      AchievementFlowStep = "evaluate"
	StepAppendUnlocks AchievementFlowStep = "append_unlocks"
	StepNotify        AchievementFlowStep = "notify"
	StepPublishEvents AchievementFlowStep = "publish_events"
)

const achievementFlowName = "achievement_flow"

// AchievementFlowResult contains the result of one run.
type AchievementFlowResult struct {
	// UserID - the user the catalog was evaluated for.
	UserID string

	// NewUnlocks - unlocks appended by this run, in catalog order.
	NewUnlocks []progress.Unlock

	// NotificationsSent - number of notices accepted by the notifier.
	NotificationsSent int

	// ProcessedAt - evaluation time.
	ProcessedAt time.Time
}

// HasNewAchievements returns true if any achievements were unlocked.
func (r *AchievementFlowResult) HasNewAchievements() bool {
	return len(r.NewUnlocks) > 0
}

// AchievementFlowConfig contains configuration for the achievement flow.
type AchievementFlowConfig struct {
	// Location is the timezone of the evaluation clock (night_owl).
	Location *time.Location

	// EnableNotifications controls whether unlock notices are shown.
	EnableNotifications bool
}

// DefaultAchievementFlowConfig returns default configuration.
func DefaultAchievementFlowConfig() AchievementFlowConfig {
	return AchievementFlowConfig{
		Location:            time.Local,
		EnableNotifications: true,
	}
}

// AchievementFlowSaga evaluates the catalog and grants new achievements.
type AchievementFlowSaga struct {
	unlocks   progress.UnlockRepository
	notifier  progress.Notifier
	publisher shared.EventPublisher
	clock     timeutil.Clock
	ids       IDGenerator
	logger    *slog.Logger

	loc                 *time.Location
	enableNotifications bool
}

// NewAchievementFlowSaga creates a new achievement flow saga.
// notifier and publisher may be nil.
func NewAchievementFlowSaga(
	unlocks progress.UnlockRepository,
	notifier progress.Notifier,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	ids IDGenerator,
	logger *slog.Logger,
	config AchievementFlowConfig,
) *AchievementFlowSaga {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	return &AchievementFlowSaga{
		unlocks:             unlocks,
		notifier:            notifier,
		publisher:           publisher,
		clock:               clock,
		ids:                 ids,
		logger:              logger.With("saga", achievementFlowName),
		loc:                 config.Location,
		enableNotifications: config.EnableNotifications,
	}
}

// Execute evaluates snapshot for userID and grants every newly satisfied
// achievement. When an append fails the unlocks granted before it are still
// announced and the error is returned together with the partial result.
func (s *AchievementFlowSaga) Execute(ctx context.Context, userID string, snapshot *progress.Record) (*AchievementFlowResult, error) {
	if userID == "" {
		return nil, s.wrapError(StepLoadUnlocks, userID, shared.ErrInvalidUserID)
	}
	if snapshot == nil {
		return nil, s.wrapError(StepEvaluate, userID, shared.ErrNothingToPersist)
	}

	now := s.clock.Now().In(s.loc)
	result := &AchievementFlowResult{UserID: userID, ProcessedAt: now}

	// Step 1: Load existing unlocks
	existing, err := s.unlocks.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, s.wrapError(StepLoadUnlocks, userID, err)
	}

	// Step 2: Evaluate the catalog
	candidates := progress.Evaluate(snapshot, progress.UnlockedSet(existing), now)
	if len(candidates) == 0 {
		return result, nil
	}

	// Step 3: Append unlocks
	var defs []progress.Definition
	var appendErr error
	for _, def := range candidates {
		unlock := progress.NewUnlock(s.ids.GenerateID(), userID, def, now)
		if err := s.unlocks.AppendUnlock(ctx, unlock); err != nil {
			if errors.Is(err, shared.ErrAlreadyUnlocked) {
				continue
			}
			appendErr = s.wrapError(StepAppendUnlocks, userID, err)
			break
		}
		result.NewUnlocks = append(result.NewUnlocks, unlock)
		defs = append(defs, def)
	}

	// Step 4: Notify
	result.NotificationsSent = s.notify(ctx, userID, defs)

	// Step 5: Publish events
	s.publish(result.NewUnlocks)

	if len(result.NewUnlocks) > 0 {
		s.logger.Info("achievements unlocked",
			"user_id", userID,
			"count", len(result.NewUnlocks),
		)
	}
	return result, appendErr
}

// notify shows one notice per granted achievement. Failures are logged.
func (s *AchievementFlowSaga) notify(ctx context.Context, userID string, defs []progress.Definition) int {
	if !s.enableNotifications || s.notifier == nil {
		return 0
	}

	sent := 0
	for _, def := range defs {
		notice := progress.UnlockNotice(def)
		if err := s.notifier.Show(ctx, userID, notice.Message, notice.Kind); err != nil {
			s.logger.Warn("failed to show achievement notice",
				"user_id", userID,
				"achievement_id", def.ID,
				"error", err,
			)
			continue
		}
		sent++
	}
	return sent
}

// publish emits AchievementUnlockedEvent for each unlock.
func (s *AchievementFlowSaga) publish(unlocks []progress.Unlock) {
	if s.publisher == nil {
		return
	}
	for _, u := range unlocks {
		event := shared.NewAchievementUnlockedEvent(u.UserID, u.AchievementID, u.Name, u.UnlockedAt)
		if err := s.publisher.Publish(event); err != nil {
			s.logger.Warn("failed to publish achievement event",
				"user_id", u.UserID,
				"achievement_id", u.AchievementID,
				"error", err,
			)
		}
	}
}

// wrapError wraps an error with saga context.
func (s *AchievementFlowSaga) wrapError(step AchievementFlowStep, userID string, err error) error {
	return &AchievementFlowError{
		Step:    step,
		UserID:  userID,
		Cause:   err,
		Message: fmt.Sprintf("achievement flow failed at step '%s': %v", step, err),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowError represents an error during the achievement flow.
type AchievementFlowError struct {
	Step    AchievementFlowStep
	UserID  string
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *AchievementFlowError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AchievementFlowError) Unwrap() error {
	return e.Cause
}
