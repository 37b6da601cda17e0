package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event is something significant that happened
// to a learner's progress record.
const (
	// Record events
	EventRecordCreated EventType = "record.created"

	// Progress events
	EventXPGained           EventType = "progress.xp_gained"
	EventLevelUp            EventType = "progress.level_up"
	EventCourseCompleted    EventType = "progress.course_completed"
	EventRouteCompleted     EventType = "progress.route_completed"
	EventDailyStreakUpdated EventType = "progress.streak_updated"
	EventDailyStreakBroken  EventType = "progress.streak_broken"
	EventPreferencesChanged EventType = "progress.preferences_changed"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the user id the event belongs to.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with at.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Record Events
// ═══════════════════════════════════════════════════════════════════════════

// RecordCreatedEvent is emitted when a default record is created for a user.
type RecordCreatedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

// Payload implements Event interface.
func (e RecordCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"user_id": e.UserID}
}

// NewRecordCreatedEvent creates a new RecordCreatedEvent.
func NewRecordCreatedEvent(userID string, at time.Time) RecordCreatedEvent {
	return RecordCreatedEvent{
		BaseEvent: NewBaseEvent(EventRecordCreated, userID, at),
		UserID:    userID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a user gains experience.
type XPGainedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
	Source   string `json:"source"` // e.g., "watch_time", "course_completion", "route_completion"
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"source":    e.Source,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID string, amount, newTotal int, source string, at time.Time) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, userID, at),
		UserID:    userID,
		Amount:    amount,
		NewTotal:  newTotal,
		Source:    source,
	}
}

// LevelUpEvent is emitted once per mutation that raises the level.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// CompletionEvent is emitted when a course or a route reaches 100%.
type CompletionEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	ItemID   string `json:"item_id"`
	XPEarned int    `json:"xp_earned"`
}

// Payload implements Event interface.
func (e CompletionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"item_id":   e.ItemID,
		"xp_earned": e.XPEarned,
	}
}

// NewCourseCompletedEvent creates a CompletionEvent for a course.
func NewCourseCompletedEvent(userID, courseID string, xp int, at time.Time) CompletionEvent {
	return CompletionEvent{
		BaseEvent: NewBaseEvent(EventCourseCompleted, userID, at),
		UserID:    userID,
		ItemID:    courseID,
		XPEarned:  xp,
	}
}

// NewRouteCompletedEvent creates a CompletionEvent for a learning route.
func NewRouteCompletedEvent(userID, routeID string, xp int, at time.Time) CompletionEvent {
	return CompletionEvent{
		BaseEvent: NewBaseEvent(EventRouteCompleted, userID, at),
		UserID:    userID,
		ItemID:    routeID,
		XPEarned:  xp,
	}
}

// StreakEvent is emitted when the daily streak grows, starts or resets.
type StreakEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	CurrentStreak  int    `json:"current_streak"`
	LongestStreak  int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"current_streak":  e.CurrentStreak,
		"longest_streak":  e.LongestStreak,
	}
}

// NewStreakEvent creates a StreakEvent. A reset of a streak longer than one
// day is reported as EventDailyStreakBroken.
func NewStreakEvent(userID string, previous, current, longest int, at time.Time) StreakEvent {
	eventType := EventDailyStreakUpdated
	if current == 1 && previous > 1 {
		eventType = EventDailyStreakBroken
	}
	return StreakEvent{
		BaseEvent:      NewBaseEvent(eventType, userID, at),
		UserID:         userID,
		PreviousStreak: previous,
		CurrentStreak:  current,
		LongestStreak:  longest,
	}
}

// PreferencesChangedEvent is emitted when goals or theme change.
type PreferencesChangedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	DailyGoal  int    `json:"daily_goal"`
	WeeklyGoal int    `json:"weekly_goal"`
	Theme      string `json:"theme"`
}

// Payload implements Event interface.
func (e PreferencesChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"daily_goal":  e.DailyGoal,
		"weekly_goal": e.WeeklyGoal,
		"theme":       e.Theme,
	}
}

// NewPreferencesChangedEvent creates a new PreferencesChangedEvent.
func NewPreferencesChangedEvent(userID string, daily, weekly int, theme string, at time.Time) PreferencesChangedEvent {
	return PreferencesChangedEvent{
		BaseEvent:  NewBaseEvent(EventPreferencesChanged, userID, at),
		UserID:     userID,
		DailyGoal:  daily,
		WeeklyGoal: weekly,
		Theme:      theme,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per (user, achievement).
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"name":           e.Name,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, name string, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID, at),
		UserID:        userID,
		AchievementID: achievementID,
		Name:          name,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
