package progress

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// EXPERIENCE & LEVELS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// CourseCompletionXP - опыт за завершение курса.
	CourseCompletionXP = 100

	// RouteCompletionXP - опыт за завершение учебного маршрута.
	RouteCompletionXP = 500

	// MinutesPerXP - сколько минут просмотра дают 1 очко опыта.
	MinutesPerXP = 5

	// MaxSessionMinutes - предел минут в одном обновлении (сутки).
	// Большие значения урезаются до него.
	MaxSessionMinutes = 24 * 60

	// MaxExperience - потолок опыта. Меньше 2^53, поэтому точно
	// передаётся числом JSON.
	MaxExperience = 1_000_000_000_000_000
)

// LevelFromExperience вычисляет уровень: floor(sqrt(exp/100)) + 1.
// Уровень 2 начинается со 100 XP, уровень 3 со 400, уровень 10 с 8100.
func LevelFromExperience(exp int) int {
	if exp <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(exp)/100))) + 1
}

// ExperienceForNextLevel возвращает level² · 100.
//
// Для уровня 1 это 100, ровно порог перехода на уровень 2.
func ExperienceForNextLevel(level int) int {
	return level * level * 100
}

// WatchExperience переводит минуты просмотра в опыт: floor(minutes / 5).
// Минуты сверх MaxSessionMinutes не учитываются.
func WatchExperience(minutes float64) int {
	minutes = sanitizeMinutes(minutes)
	return int(math.Floor(minutes / MinutesPerXP))
}

// capExperience складывает опыт с насыщением на MaxExperience.
func capExperience(total, xp int) int {
	total = max(total, 0)
	if total >= MaxExperience {
		return total
	}
	if xp > MaxExperience-total {
		return MaxExperience
	}
	return total + xp
}
