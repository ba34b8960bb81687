package model

import "time"

// Achievement types.
const (
	AchievementPlanCompleted = "plan_completed"
	AchievementStreak        = "streak"
)

// Achievement is an entry in the append-only achievement log.
type Achievement struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PlanID      string    `json:"plan_id,omitempty"`
	Days        int       `json:"days,omitempty"`
	EarnedAt    time.Time `json:"earned_at"`
}

// StudyStats holds process-wide study statistics.
type StudyStats struct {
	// TotalStudyTime is the sum of actual hours across all tasks.
	TotalStudyTime float64 `json:"total_study_time"`
	CompletedPlans int     `json:"completed_plans"`
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	CurrentStreak  int     `json:"current_streak"`
	LongestStreak  int     `json:"longest_streak"`

	// LastStudyDate is a local calendar date in DateLayout, empty if never.
	LastStudyDate string `json:"last_study_date,omitempty"`

	Achievements []Achievement `json:"achievements"`
}

// Clone returns a copy whose achievement slice is not shared.
func (s StudyStats) Clone() StudyStats {
	c := s
	c.Achievements = append([]Achievement(nil), s.Achievements...)
	return c
}

// HasStreakAchievement reports whether a streak achievement for days exists.
func (s StudyStats) HasStreakAchievement(days int) bool {
	for _, a := range s.Achievements {
		if a.Type == AchievementStreak && a.Days == days {
			return true
		}
	}
	return false
}
