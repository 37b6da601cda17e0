package progress

import (
	"math"
	"time"
)

// GoalProgress - выполнение дневной или недельной цели.
type GoalProgress struct {
	Minutes    float64 `json:"minutes"`
	Goal       int     `json:"goal"`
	Percentage float64 `json:"percentage"`
}

// NewGoalProgress считает процент min(100, minutes/goal·100). Цель 0 даёт 0%.
func NewGoalProgress(minutes float64, goal int) GoalProgress {
	gp := GoalProgress{Minutes: minutes, Goal: goal}
	if goal > 0 {
		gp.Percentage = math.Min(100, minutes/float64(goal)*100)
	}
	return gp
}

// Stats - сводка прогресса для отображения.
type Stats struct {
	Level             int          `json:"level"`
	Experience        int          `json:"experience"`
	ExperienceForNext int          `json:"experienceForNext"`
	CoursesCompleted  int          `json:"coursesCompleted"`
	RoutesCompleted   int          `json:"routesCompleted"`
	CoursesInProgress int          `json:"coursesInProgress"`
	TotalWatchTime    float64      `json:"totalWatchTime"`
	CurrentStreak     int          `json:"currentStreak"`
	LongestStreak     int          `json:"longestStreak"`
	Achievements      int          `json:"achievements"`
	DailyProgress     GoalProgress `json:"dailyProgress"`
	WeeklyProgress    GoalProgress `json:"weeklyProgress"`
	LastActivity      *time.Time   `json:"lastActivity,omitempty"`
}

// BuildStats собирает сводку по записи и числу полученных достижений.
func BuildStats(r *Record, achievements int, now time.Time, loc *time.Location) Stats {
	return Stats{
		Level:             r.Level,
		Experience:        r.Experience,
		ExperienceForNext: ExperienceForNextLevel(r.Level),
		CoursesCompleted:  len(r.CoursesCompleted),
		RoutesCompleted:   len(r.RoutesCompleted),
		CoursesInProgress: len(r.CoursesInProgress),
		TotalWatchTime:    r.TotalWatchTime,
		CurrentStreak:     r.CurrentStreak,
		LongestStreak:     r.LongestStreak,
		Achievements:      achievements,
		DailyProgress:     NewGoalProgress(r.MinutesOn(now, loc), r.DailyGoal),
		WeeklyProgress:    NewGoalProgress(r.MinutesThisWeek(now, loc), r.WeeklyGoal),
		LastActivity:      r.LastActivity,
	}
}

// Equal сравнивает две сводки; LastActivity сравнивается по значению.
func (s Stats) Equal(o Stats) bool {
	a, b := s.LastActivity, o.LastActivity
	s.LastActivity, o.LastActivity = nil, nil
	if s != o {
		return false
	}
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
