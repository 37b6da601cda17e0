package progress

import (
	"math"
	"slices"
	"time"

	"github.com/eduplatform/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD (Прогресс пользователя)
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultDailyGoal - дневная цель по умолчанию, в минутах.
	DefaultDailyGoal = 30

	// DefaultWeeklyGoal - недельная цель по умолчанию, в минутах.
	DefaultWeeklyGoal = 210

	// WatchLogRetentionDays - сколько дней хранится дневной журнал просмотра.
	WatchLogRetentionDays = 14
)

// Темы интерфейса.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// CourseProgress - прогресс по курсу, который ещё не завершён.
type CourseProgress struct {
	// Progress - процент просмотра, 0..100.
	Progress float64 `json:"progress"`

	// LastWatched - время последнего обновления.
	LastWatched time.Time `json:"lastWatched"`

	// TotalWatchTime - минуты просмотра этого курса.
	TotalWatchTime float64 `json:"totalWatchTime"`
}

// RouteProgress - прогресс по учебному маршруту.
type RouteProgress struct {
	// Progress - процент прохождения, 0..100.
	Progress float64 `json:"progress"`

	// LastUpdated - время последнего обновления.
	LastUpdated time.Time `json:"lastUpdated"`
}

// Record - полный прогресс одного пользователя.
// JSON-представление хранится в документе userProgress как есть.
type Record struct {
	CoursesCompleted  []string                  `json:"coursesCompleted"`
	RoutesCompleted   []string                  `json:"routesCompleted"`
	CoursesInProgress map[string]CourseProgress `json:"coursesInProgress"`
	RoutesInProgress  map[string]RouteProgress  `json:"routesInProgress"`

	// TotalWatchTime - суммарные минуты просмотра, только растёт.
	TotalWatchTime float64 `json:"totalWatchTime"`

	// LastActivity - время последней активности по курсу; nil до первой.
	LastActivity *time.Time `json:"lastActivity"`

	Level      int `json:"level"`
	Experience int `json:"experience"`

	DailyGoal  int `json:"dailyGoal"`
	WeeklyGoal int `json:"weeklyGoal"`

	CurrentStreak int `json:"currentStreak"`
	LongestStreak int `json:"longestStreak"`

	// WatchLog - минуты просмотра по локальным дням (YYYY-MM-DD).
	WatchLog map[string]float64 `json:"watchLog,omitempty"`

	// Theme - выбранная тема интерфейса.
	Theme string `json:"theme,omitempty"`
}

// NewRecord создаёт запись по умолчанию для нового пользователя.
func NewRecord() *Record {
	return &Record{
		CoursesCompleted:  []string{},
		RoutesCompleted:   []string{},
		CoursesInProgress: map[string]CourseProgress{},
		RoutesInProgress:  map[string]RouteProgress{},
		Level:             1,
		DailyGoal:         DefaultDailyGoal,
		WeeklyGoal:        DefaultWeeklyGoal,
		WatchLog:          map[string]float64{},
		Theme:             ThemeDark,
	}
}

// Normalize восстанавливает инварианты после загрузки из хранилища:
// пустые коллекции вместо nil, цели и тема по умолчанию, уровень по опыту.
func (r *Record) Normalize() {
	if r.CoursesCompleted == nil {
		r.CoursesCompleted = []string{}
	}
	if r.RoutesCompleted == nil {
		r.RoutesCompleted = []string{}
	}
	if r.CoursesInProgress == nil {
		r.CoursesInProgress = map[string]CourseProgress{}
	}
	if r.RoutesInProgress == nil {
		r.RoutesInProgress = map[string]RouteProgress{}
	}
	if r.WatchLog == nil {
		r.WatchLog = map[string]float64{}
	}
	if r.DailyGoal <= 0 {
		r.DailyGoal = DefaultDailyGoal
	}
	if r.WeeklyGoal <= 0 {
		r.WeeklyGoal = DefaultWeeklyGoal
	}
	if r.Theme != ThemeDark && r.Theme != ThemeLight {
		r.Theme = ThemeDark
	}
	if r.Experience < 0 {
		r.Experience = 0
	}
	r.Level = LevelFromExperience(r.Experience)
	if r.LongestStreak < r.CurrentStreak {
		r.LongestStreak = r.CurrentStreak
	}
}

// Clone возвращает глубокую копию записи.
// Мутации всегда применяются к копии, снимок в хранилище не трогается.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.CoursesCompleted = slices.Clone(r.CoursesCompleted)
	c.RoutesCompleted = slices.Clone(r.RoutesCompleted)
	c.CoursesInProgress = make(map[string]CourseProgress, len(r.CoursesInProgress))
	for k, v := range r.CoursesInProgress {
		c.CoursesInProgress[k] = v
	}
	c.RoutesInProgress = make(map[string]RouteProgress, len(r.RoutesInProgress))
	for k, v := range r.RoutesInProgress {
		c.RoutesInProgress[k] = v
	}
	c.WatchLog = make(map[string]float64, len(r.WatchLog))
	for k, v := range r.WatchLog {
		c.WatchLog[k] = v
	}
	if r.LastActivity != nil {
		t := *r.LastActivity
		c.LastActivity = &t
	}
	return &c
}

// IsCourseCompleted проверяет, завершён ли курс.
func (r *Record) IsCourseCompleted(courseID string) bool {
	return slices.Contains(r.CoursesCompleted, courseID)
}

// IsRouteCompleted проверяет, завершён ли маршрут.
func (r *Record) IsRouteCompleted(routeID string) bool {
	return slices.Contains(r.RoutesCompleted, routeID)
}

// CourseProgressOf возвращает текущий процент курса (0, если записи нет).
func (r *Record) CourseProgressOf(courseID string) float64 {
	return r.CoursesInProgress[courseID].Progress
}

// ─────────────────────────────────────────────────────────────────────────────
// Мутации
// ─────────────────────────────────────────────────────────────────────────────

// UpdateCourseProgress применяет событие просмотра курса.
//
// Порядок: запись прогресса курса, общее время и журнал дня,
// lastActivity, завершение курса (при 100%), серия дней, опыт за минуты.
// Для уже завершённого курса минуты и серия учитываются,
// но курс не возвращается в список «в процессе».
func (r *Record) UpdateCourseProgress(courseID string, percent, minutes float64, now time.Time, loc *time.Location) []Effect {
	percent = ClampPercent(percent)
	minutes = sanitizeMinutes(minutes)

	var effects []Effect
	completed := r.IsCourseCompleted(courseID)

	if !completed {
		entry := r.CoursesInProgress[courseID]
		entry.Progress = percent
		entry.LastWatched = now
		entry.TotalWatchTime += minutes
		r.CoursesInProgress[courseID] = entry
	}

	r.TotalWatchTime += minutes
	r.recordWatch(minutes, now, loc)

	previous := r.LastActivity
	at := now
	r.LastActivity = &at

	if percent >= 100 && !completed {
		effects = append(effects, r.CompleteCourse(courseID)...)
	}

	effects = append(effects, r.UpdateDailyStreak(previous, now, loc)...)
	effects = append(effects, r.addExperience(WatchExperience(minutes), SourceWatchTime)...)

	return effects
}

// UpdateRouteProgress применяет событие прогресса маршрута.
// Серия дней и lastActivity не меняются.
func (r *Record) UpdateRouteProgress(routeID string, percent float64, now time.Time) []Effect {
	percent = ClampPercent(percent)
	if r.IsRouteCompleted(routeID) {
		return nil
	}

	r.RoutesInProgress[routeID] = RouteProgress{Progress: percent, LastUpdated: now}

	if percent >= 100 {
		return r.CompleteRoute(routeID)
	}
	return nil
}

// CompleteCourse переводит курс в завершённые и начисляет 100 XP.
// Проверка на повторное завершение лежит на вызывающем коде.
func (r *Record) CompleteCourse(courseID string) []Effect {
	r.CoursesCompleted = append(r.CoursesCompleted, courseID)
	effects := r.addExperience(CourseCompletionXP, SourceCourseCompletion)
	delete(r.CoursesInProgress, courseID)
	return append(effects, Effect{Type: EffectCourseCompleted, Subject: courseID, Amount: CourseCompletionXP})
}

// CompleteRoute переводит маршрут в завершённые и начисляет 500 XP.
func (r *Record) CompleteRoute(routeID string) []Effect {
	r.RoutesCompleted = append(r.RoutesCompleted, routeID)
	effects := r.addExperience(RouteCompletionXP, SourceRouteCompletion)
	delete(r.RoutesInProgress, routeID)
	return append(effects, Effect{Type: EffectRouteCompleted, Subject: routeID, Amount: RouteCompletionXP})
}

// AddExperience начисляет опыт и пересчитывает уровень.
// При росте уровня возвращается ровно один level_up для итогового уровня.
func (r *Record) AddExperience(xp int) []Effect {
	return r.addExperience(xp, "")
}

func (r *Record) addExperience(xp int, source string) []Effect {
	if xp <= 0 {
		return nil
	}
	oldLevel, before := r.Level, r.Experience
	r.Experience = capExperience(r.Experience, xp)
	if xp = r.Experience - before; xp <= 0 {
		return nil
	}
	r.Level = LevelFromExperience(r.Experience)

	effects := []Effect{{Type: EffectXPGained, Subject: source, Amount: xp, Total: r.Experience}}
	if r.Level > oldLevel {
		effects = append(effects, Effect{Type: EffectLevelUp, From: oldLevel, To: r.Level})
	}
	return effects
}

// SetGoals меняет дневную и недельную цели. Ноль оставляет цель без изменений.
func (r *Record) SetGoals(daily, weekly int) {
	if daily > 0 {
		r.DailyGoal = daily
	}
	if weekly > 0 {
		r.WeeklyGoal = weekly
	}
}

// SetTheme меняет тему интерфейса. Неизвестная тема игнорируется.
func (r *Record) SetTheme(theme string) bool {
	if !IsValidTheme(theme) {
		return false
	}
	r.Theme = theme
	return true
}

// IsValidTheme проверяет название темы.
func IsValidTheme(theme string) bool {
	return theme == ThemeDark || theme == ThemeLight
}

// ─────────────────────────────────────────────────────────────────────────────
// Журнал просмотра
// ─────────────────────────────────────────────────────────────────────────────

func (r *Record) recordWatch(minutes float64, now time.Time, loc *time.Location) {
	if r.WatchLog == nil {
		r.WatchLog = map[string]float64{}
	}
	if minutes > 0 {
		r.WatchLog[timeutil.DateKey(now, loc)] += minutes
	}

	cutoff := timeutil.DateKey(timeutil.StartOfDay(now, loc).AddDate(0, 0, -WatchLogRetentionDays), loc)
	for day := range r.WatchLog {
		// Ключи YYYY-MM-DD сравниваются лексикографически.
		if day < cutoff {
			delete(r.WatchLog, day)
		}
	}
}

// MinutesOn возвращает минуты просмотра за день t.
func (r *Record) MinutesOn(t time.Time, loc *time.Location) float64 {
	return r.WatchLog[timeutil.DateKey(t, loc)]
}

// MinutesThisWeek суммирует минуты с понедельника текущей недели по now.
func (r *Record) MinutesThisWeek(now time.Time, loc *time.Location) float64 {
	from := timeutil.DateKey(timeutil.StartOfWeek(now, loc), loc)
	to := timeutil.DateKey(now, loc)

	var total float64
	for day, minutes := range r.WatchLog {
		if day >= from && day <= to {
			total += minutes
		}
	}
	return total
}

// ─────────────────────────────────────────────────────────────────────────────
// Нормализация ввода
// ─────────────────────────────────────────────────────────────────────────────

// ClampPercent приводит процент к диапазону 0..100. NaN считается нулём.
func ClampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func sanitizeMinutes(m float64) float64 {
	if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		return 0
	}
	return math.Min(m, MaxSessionMinutes)
}
