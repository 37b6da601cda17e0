package progress

import (
	"time"

	"github.com/eduplatform/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK (Серия активных дней)
// ══════════════════════════════════════════════════════════════════════════════

// UpdateDailyStreak обновляет серию по календарным дням в loc.
//
// previous - lastActivity до текущей мутации:
//   - тот же день: без изменений
//   - вчера: серия +1
//   - иначе (пропуск или первой активности не было): серия = 1
//
// После этого longestStreak = max(longestStreak, currentStreak).
func (r *Record) UpdateDailyStreak(previous *time.Time, now time.Time, loc *time.Location) []Effect {
	before := r.CurrentStreak

	switch {
	case previous != nil && timeutil.IsSameDay(*previous, now, loc):
		return nil
	case previous != nil && timeutil.IsYesterday(*previous, now, loc):
		r.CurrentStreak++
	default:
		r.CurrentStreak = 1
	}

	if r.CurrentStreak > r.LongestStreak {
		r.LongestStreak = r.CurrentStreak
	}

	if r.CurrentStreak == before {
		return nil
	}
	return []Effect{{Type: EffectStreakUpdated, From: before, To: r.CurrentStreak}}
}

// StreakAtRisk возвращает true, если вчера была активность, а сегодня ещё нет.
// Серия сбросится, если пользователь не позанимается до конца дня.
func (r *Record) StreakAtRisk(now time.Time, loc *time.Location) bool {
	if r.LastActivity == nil || r.CurrentStreak == 0 {
		return false
	}
	return timeutil.IsYesterday(*r.LastActivity, now, loc)
}
