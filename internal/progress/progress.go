// Package progress holds the pure functions that derive a plan's progress,
// difficulty, milestones and the study streak from its tasks.
package progress

import (
	"fmt"
	"math"
	"time"

	"github.com/nhle/study-planner/internal/model"
)

// MilestonePercentages are the checkpoints every plan is measured against.
var MilestonePercentages = []int{25, 50, 75, 100}

// StreakThresholds are the streak lengths that earn an achievement.
var StreakThresholds = []int{7, 14, 30, 60, 100}

// ComputeProgress returns the rounded completion percentage of tasks.
func ComputeProgress(tasks []model.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Completed {
			done++
		}
	}
	return int(math.Floor(float64(done)*100/float64(len(tasks)) + 0.5))
}

func difficultyScore(d model.Difficulty) float64 {
	switch d {
	case model.DifficultyEasy:
		return 1
	case model.DifficultyHard:
		return 3
	default:
		return 2
	}
}

// ComputeDifficulty grades a set of tasks by their mean difficulty score.
func ComputeDifficulty(tasks []model.Task) model.Difficulty {
	if len(tasks) == 0 {
		return model.DifficultyMedium
	}
	var sum float64
	for _, t := range tasks {
		sum += difficultyScore(t.Difficulty)
	}
	avg := sum / float64(len(tasks))
	switch {
	case avg <= 1.5:
		return model.DifficultyEasy
	case avg <= 2.5:
		return model.DifficultyMedium
	default:
		return model.DifficultyHard
	}
}

// DeriveMilestones builds the milestone list for tasks. A percentage is
// skipped when it would round down to zero tasks.
func DeriveMilestones(tasks []model.Task) []model.Milestone {
	n := len(tasks)
	done := 0
	for _, t := range tasks {
		if t.Completed {
			done++
		}
	}

	milestones := make([]model.Milestone, 0, len(MilestonePercentages))
	for _, pct := range MilestonePercentages {
		if n*pct/100 < 1 {
			continue
		}
		required := (n*pct + 99) / 100
		milestones = append(milestones, model.Milestone{
			Percentage:  pct,
			Description: fmt.Sprintf("Complete %d tasks", required),
			Achieved:    done >= required,
		})
	}
	return milestones
}

// AssignTargetDates sets each milestone's target date to its percentage of
// the start..deadline span. Without a deadline target dates are cleared.
func AssignTargetDates(milestones []model.Milestone, start time.Time, deadline *time.Time) {
	for i := range milestones {
		if deadline == nil {
			milestones[i].TargetDate = nil
			continue
		}
		days := int(math.Round(deadline.Sub(start).Hours() / 24))
		offset := days * milestones[i].Percentage / 100
		target := start.AddDate(0, 0, offset)
		milestones[i].TargetDate = &target
	}
}

// UpdateStreak records a study day. Studying twice on the same day is a
// no-op, consecutive days extend the streak and any gap resets it to 1.
func UpdateStreak(stats model.StudyStats, today time.Time) model.StudyStats {
	todayKey := today.Format(model.DateLayout)
	if stats.LastStudyDate == todayKey {
		return stats
	}

	yesterday := today.AddDate(0, 0, -1).Format(model.DateLayout)
	if stats.LastStudyDate == yesterday {
		stats.CurrentStreak++
	} else {
		stats.CurrentStreak = 1
	}
	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	stats.LastStudyDate = todayKey
	return stats
}

// StreakAchievements returns the streak achievements newly earned by stats.
func StreakAchievements(stats model.StudyStats, now time.Time) []model.Achievement {
	var earned []model.Achievement
	for _, days := range StreakThresholds {
		if stats.CurrentStreak < days || stats.HasStreakAchievement(days) {
			continue
		}
		earned = append(earned, model.Achievement{
			ID:          fmt.Sprintf("streak_%d", days),
			Type:        model.AchievementStreak,
			Title:       fmt.Sprintf("%d Day Streak!", days),
			Description: fmt.Sprintf("Studied for %d consecutive days", days),
			Days:        days,
			EarnedAt:    now,
		})
	}
	return earned
}
