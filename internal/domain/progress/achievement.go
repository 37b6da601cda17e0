package progress

import (
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS (Достижения)
// ══════════════════════════════════════════════════════════════════════════════

// Идентификаторы достижений.
const (
	AchievementFirstCourse  = "first_course"
	AchievementCourseMaster = "course_master"
	AchievementFirstRoute   = "first_route"
	AchievementStreakWeek   = "streak_week"
	AchievementLevel10      = "level_10"
	AchievementNightOwl     = "night_owl"
)

// NightOwlHour - с этого часа (локального) занятия считаются ночными.
const NightOwlHour = 22

// EvalContext - неизменяемый вход для условий достижений.
type EvalContext struct {
	// Record - снимок записи после мутации.
	Record *Record

	// Now - момент проверки в часовом поясе пользователя.
	Now time.Time
}

// Definition описывает достижение из каталога.
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`

	// Condition - чистый предикат над снимком.
	Condition func(EvalContext) bool `json:"-"`
}

var catalog = []Definition{
	{
		ID: AchievementFirstCourse, Name: "Primer Curso",
		Description: "Completa tu primer curso", Icon: "🎓",
		Condition: func(c EvalContext) bool { return len(c.Record.CoursesCompleted) >= 1 },
	},
	{
		ID: AchievementCourseMaster, Name: "Maestro de Cursos",
		Description: "Completa 10 cursos", Icon: "👨‍🎓",
		Condition: func(c EvalContext) bool { return len(c.Record.CoursesCompleted) >= 10 },
	},
	{
		ID: AchievementFirstRoute, Name: "Primera Ruta",
		Description: "Completa tu primera ruta de aprendizaje", Icon: "🛤️",
		Condition: func(c EvalContext) bool { return len(c.Record.RoutesCompleted) >= 1 },
	},
	{
		ID: AchievementStreakWeek, Name: "Semana Consistente",
		Description: "Mantén una racha de 7 días", Icon: "🔥",
		Condition: func(c EvalContext) bool { return c.Record.CurrentStreak >= 7 },
	},
	{
		ID: AchievementLevel10, Name: "Nivel 10",
		Description: "Alcanza el nivel 10", Icon: "⭐",
		Condition: func(c EvalContext) bool { return c.Record.Level >= 10 },
	},
	{
		ID: AchievementNightOwl, Name: "Búho Nocturno",
		Description: "Estudia después de las 10 PM", Icon: "🦉",
		Condition: func(c EvalContext) bool { return c.Now.Hour() >= NightOwlHour },
	},
}

// Catalog возвращает копию каталога в фиксированном порядке.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// FindDefinition ищет достижение по id.
func FindDefinition(id string) (Definition, bool) {
	for _, def := range catalog {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// Evaluate возвращает достижения, которые выполнены на снимке и ещё не получены.
// Проверяются все определения, порядок каталога сохраняется.
// now должен быть уже переведён в часовой пояс пользователя.
func Evaluate(snapshot *Record, unlocked map[string]bool, now time.Time) []Definition {
	if snapshot == nil {
		return nil
	}
	ctx := EvalContext{Record: snapshot, Now: now}

	var out []Definition
	for _, def := range catalog {
		if unlocked[def.ID] {
			continue
		}
		if def.Condition(ctx) {
			out = append(out, def)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Unlock
// ─────────────────────────────────────────────────────────────────────────────

// Unlock - запись о полученном достижении. Append-only,
// не больше одной на пару (userId, achievementId).
type Unlock struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	AchievementID string    `json:"achievementId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	UnlockedAt    time.Time `json:"unlockedAt"`
}

// NewUnlock создаёт запись о достижении def для userID.
func NewUnlock(id, userID string, def Definition, at time.Time) Unlock {
	return Unlock{
		ID:            id,
		UserID:        userID,
		AchievementID: def.ID,
		Name:          def.Name,
		Description:   def.Description,
		Icon:          def.Icon,
		UnlockedAt:    at,
	}
}

// Validate проверяет, что запись относится к пользователю и к достижению
// из каталога.
func (u Unlock) Validate() error {
	if u.UserID == "" {
		return shared.ErrInvalidUserID
	}
	if _, ok := FindDefinition(u.AchievementID); !ok {
		return shared.ErrUnknownAchievement
	}
	return nil
}

// UnlockedSet строит множество id полученных достижений.
func UnlockedSet(unlocks []Unlock) map[string]bool {
	set := make(map[string]bool, len(unlocks))
	for _, u := range unlocks {
		set[u.AchievementID] = true
	}
	return set
}
