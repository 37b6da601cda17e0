package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/progress-hub/internal/domain/shared"
)

func ids(defs []Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.ID)
	}
	return out
}

func TestCatalog_FixedOrder(t *testing.T) {
	assert.Equal(t, []string{
		AchievementFirstCourse,
		AchievementCourseMaster,
		AchievementFirstRoute,
		AchievementStreakWeek,
		AchievementLevel10,
		AchievementNightOwl,
	}, ids(Catalog()))

	def, ok := FindDefinition(AchievementFirstCourse)
	require.True(t, ok)
	assert.Equal(t, "Primer Curso", def.Name)
	assert.Equal(t, "🎓", def.Icon)

	_, ok = FindDefinition("unknown")
	assert.False(t, ok)
}

func TestCatalog_ReturnsCopy(t *testing.T) {
	c := Catalog()
	c[0].Name = "changed"

	def, _ := FindDefinition(AchievementFirstCourse)
	assert.Equal(t, "Primer Curso", def.Name)
}

func TestEvaluate(t *testing.T) {
	noon := day(10, 12)

	t.Run("fresh record unlocks nothing", func(t *testing.T) {
		assert.Empty(t, Evaluate(NewRecord(), nil, noon))
	})

	t.Run("first course", func(t *testing.T) {
		rec := NewRecord()
		rec.UpdateCourseProgress("c1", 100, 5, noon, utc)

		assert.Equal(t, []string{AchievementFirstCourse}, ids(Evaluate(rec, nil, noon)))
	})

	t.Run("already unlocked is skipped", func(t *testing.T) {
		rec := NewRecord()
		rec.UpdateCourseProgress("c1", 100, 5, noon, utc)

		got := Evaluate(rec, map[string]bool{AchievementFirstCourse: true}, noon)
		assert.Empty(t, got)
	})

	t.Run("several at once keep catalog order", func(t *testing.T) {
		rec := NewRecord()
		for i := 0; i < 10; i++ {
			rec.CompleteCourse(string(rune('a' + i)))
		}
		rec.CompleteRoute("r1")
		rec.CurrentStreak = 7
		rec.AddExperience(8100)

		got := Evaluate(rec, nil, day(10, 22))
		assert.Equal(t, []string{
			AchievementFirstCourse,
			AchievementCourseMaster,
			AchievementFirstRoute,
			AchievementStreakWeek,
			AchievementLevel10,
			AchievementNightOwl,
		}, ids(got))
	})

	t.Run("night owl uses evaluation hour", func(t *testing.T) {
		rec := NewRecord()
		assert.Empty(t, Evaluate(rec, nil, day(10, 21)))
		assert.Equal(t, []string{AchievementNightOwl}, ids(Evaluate(rec, nil, day(10, 22))))

		late := time.Date(2024, 3, 10, 23, 59, 0, 0, utc)
		assert.Equal(t, []string{AchievementNightOwl}, ids(Evaluate(rec, nil, late)))
	})

	t.Run("nil snapshot", func(t *testing.T) {
		assert.Nil(t, Evaluate(nil, nil, noon))
	})
}

func TestUnlockNotice(t *testing.T) {
	def, _ := FindDefinition(AchievementNightOwl)
	n := UnlockNotice(def)

	assert.Equal(t, KindAchievement, n.Kind)
	assert.Equal(t, "¡Logro Desbloqueado! 🦉 Búho Nocturno: Estudia después de las 10 PM", n.Message)
}

func TestNewUnlock(t *testing.T) {
	def, _ := FindDefinition(AchievementFirstRoute)
	at := day(10, 12)

	u := NewUnlock("id-1", "ana@example.com", def, at)

	assert.Equal(t, "ana@example.com", u.UserID)
	assert.Equal(t, AchievementFirstRoute, u.AchievementID)
	assert.Equal(t, def.Icon, u.Icon)
	assert.Equal(t, at, u.UnlockedAt)
	assert.True(t, UnlockedSet([]Unlock{u})[AchievementFirstRoute])
}

func TestUnlock_Validate(t *testing.T) {
	def, _ := FindDefinition(AchievementFirstRoute)
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, NewUnlock("1", "ana@example.com", def, at).Validate())
	assert.ErrorIs(t, NewUnlock("1", "", def, at).Validate(), shared.ErrInvalidUserID)

	bogus := NewUnlock("1", "ana@example.com", Definition{ID: "speedrun"}, at)
	err := bogus.Validate()
	assert.ErrorIs(t, err, shared.ErrUnknownAchievement)
	assert.True(t, shared.IsNotFound(err))
}
