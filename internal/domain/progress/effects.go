package progress

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// EFFECTS (Результаты мутаций)
// ══════════════════════════════════════════════════════════════════════════════

// EffectType - тип эффекта мутации записи.
type EffectType string

const (
	EffectXPGained        EffectType = "xp_gained"
	EffectLevelUp         EffectType = "level_up"
	EffectCourseCompleted EffectType = "course_completed"
	EffectRouteCompleted  EffectType = "route_completed"
	EffectStreakUpdated   EffectType = "streak_updated"
)

// XP sources.
const (
	SourceWatchTime        = "watch_time"
	SourceCourseCompletion = "course_completion"
	SourceRouteCompletion  = "route_completion"
)

// Effect описывает одно наблюдаемое изменение записи.
// Порядок эффектов в срезе совпадает с порядком, в котором
// пользователь должен увидеть уведомления.
type Effect struct {
	Type EffectType

	// Subject - id курса или маршрута, источник опыта для xp_gained.
	Subject string

	// From/To - старое и новое значение (уровень, серия).
	From int
	To   int

	// Amount - начисленный опыт.
	Amount int

	// Total - опыт после начисления.
	Total int
}

// Kind - вид уведомления для Notifier.
type Kind string

const (
	KindSuccess     Kind = "success"
	KindInfo        Kind = "info"
	KindWarning     Kind = "warning"
	KindAchievement Kind = "achievement"
)

// Notice - готовое к показу уведомление.
type Notice struct {
	Message string
	Kind    Kind
}

// Тексты уведомлений.
const (
	MsgCourseCompleted = "¡Felicidades! Has completado el curso"
	MsgRouteCompleted  = "¡Increíble! Has completado una ruta completa"
	MsgLevelUp         = "¡Nivel %d alcanzado!"
	MsgAchievement     = "¡Logro Desbloqueado! %s %s: %s"
	MsgStreakReminder  = "¡No pierdas tu racha de %d días! Mira un video hoy."
)

// Notice возвращает уведомление для эффекта, если оно положено.
// Начисление опыта и изменение серии проходят молча.
func (e Effect) Notice() (Notice, bool) {
	switch e.Type {
	case EffectCourseCompleted:
		return Notice{Message: MsgCourseCompleted, Kind: KindSuccess}, true
	case EffectRouteCompleted:
		return Notice{Message: MsgRouteCompleted, Kind: KindSuccess}, true
	case EffectLevelUp:
		return Notice{Message: fmt.Sprintf(MsgLevelUp, e.To), Kind: KindSuccess}, true
	default:
		return Notice{}, false
	}
}

// Notices собирает уведомления эффектов в исходном порядке.
func Notices(effects []Effect) []Notice {
	var out []Notice
	for _, e := range effects {
		if n, ok := e.Notice(); ok {
			out = append(out, n)
		}
	}
	return out
}

// UnlockNotice возвращает уведомление о полученном достижении.
func UnlockNotice(def Definition) Notice {
	return Notice{
		Message: fmt.Sprintf(MsgAchievement, def.Icon, def.Name, def.Description),
		Kind:    KindAchievement,
	}
}

// StreakReminderNotice напоминает не прерывать серию.
func StreakReminderNotice(streak int) Notice {
	return Notice{Message: fmt.Sprintf(MsgStreakReminder, streak), Kind: KindWarning}
}
