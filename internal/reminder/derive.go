package reminder

import (
	"fmt"
	"time"

	"github.com/nhle/study-planner/internal/model"
)

// DeriveOptions control how a plan's occurrences are generated.
type DeriveOptions struct {
	// Location is the wall clock reminders fire in.
	Location *time.Location

	// HorizonDays bounds daily and weekly reminders of plans without a deadline.
	HorizonDays int

	// Types gates whole reminder families.
	Types model.ReminderTypes
}

// deadlineOffsets maps days-before-deadline to urgency.
var deadlineOffsets = []struct {
	days    int
	urgency model.Urgency
}{
	{7, model.UrgencyUpcoming},
	{3, model.UrgencyUrgent},
	{1, model.UrgencyCritical},
}

// Derive returns every occurrence of plan that fires strictly after now,
// ordered by scheduled time. Completed plans and plans with reminders
// disabled get none.
func Derive(plan model.Plan, now time.Time, opts DeriveOptions) []model.Occurrence {
	if plan.IsCompleted() || !plan.Reminders.Enabled {
		return nil
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	hour := plan.Reminders.Hour
	if hour < 0 || hour > 23 {
		hour = model.DefaultReminderHour
	}

	start := model.DateOf(plan.StartDate, loc)
	if plan.StartDate.IsZero() {
		start = model.DateOf(plan.CreatedAt, loc)
	}

	var end time.Time
	if plan.Deadline != nil {
		end = model.DateOf(*plan.Deadline, loc)
	} else {
		horizon := opts.HorizonDays
		if horizon <= 0 {
			horizon = 30
		}
		end = model.DateOf(now, loc).AddDate(0, 0, horizon)
	}

	var out []model.Occurrence
	switch plan.Reminders.Frequency {
	case model.FrequencyDaily:
		if opts.Types.Daily {
			out = append(out, deriveDaily(plan, start, end, hour, loc)...)
		}
	case model.FrequencyWeekly:
		out = append(out, deriveWeekly(plan, start, end, hour, loc)...)
	}
	if opts.Types.Deadline && plan.Deadline != nil {
		out = append(out, deriveDeadline(plan, end, hour, loc)...)
	}
	if opts.Types.Milestone {
		out = append(out, deriveMilestones(plan, hour, loc)...)
	}

	kept := out[:0]
	for _, occ := range out {
		if occ.ScheduledTime.After(now) {
			kept = append(kept, occ)
		}
	}
	sortByTime(kept)
	return kept
}

func payloadOf(plan model.Plan) model.OccurrencePayload {
	return model.OccurrencePayload{PlanTitle: plan.Title, Progress: plan.Progress}
}

func deriveDaily(plan model.Plan, start, end time.Time, hour int, loc *time.Location) []model.Occurrence {
	var out []model.Occurrence
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, model.Occurrence{
			ID:            fmt.Sprintf("%s_daily_%s", plan.ID, day.Format(model.DateLayout)),
			PlanID:        plan.ID,
			Type:          model.ReminderDaily,
			Title:         "Study Reminder",
			Message:       fmt.Sprintf("Time to work on %q! Keep up the great progress.", plan.Title),
			ScheduledTime: model.AtHour(day, hour, loc),
			Urgency:       model.UrgencyNone,
			Payload:       payloadOf(plan),
		})
	}
	return out
}

// deriveWeekly fires on the Monday of each Sunday-based week, starting
// with the week that contains start.
func deriveWeekly(plan model.Plan, start, end time.Time, hour int, loc *time.Location) []model.Occurrence {
	var out []model.Occurrence
	week := start.AddDate(0, 0, -int(start.Weekday()))
	for ; !week.After(end); week = week.AddDate(0, 0, 7) {
		monday := week.AddDate(0, 0, 1)
		out = append(out, model.Occurrence{
			ID:            fmt.Sprintf("%s_weekly_%s", plan.ID, monday.Format(model.DateLayout)),
			PlanID:        plan.ID,
			Type:          model.ReminderWeekly,
			Title:         "Weekly Study Check-in",
			Message:       fmt.Sprintf("How's your progress on %q this week?", plan.Title),
			ScheduledTime: model.AtHour(monday, hour, loc),
			Urgency:       model.UrgencyNone,
			Payload:       payloadOf(plan),
		})
	}
	return out
}

func deriveDeadline(plan model.Plan, deadline time.Time, hour int, loc *time.Location) []model.Occurrence {
	out := make([]model.Occurrence, 0, len(deadlineOffsets))
	for _, off := range deadlineOffsets {
		day := deadline.AddDate(0, 0, -off.days)
		title := fmt.Sprintf("Deadline in %d days!", off.days)
		due := fmt.Sprintf("in %d days", off.days)
		if off.days == 1 {
			title = "Deadline Tomorrow!"
			due = "tomorrow"
		}

		payload := payloadOf(plan)
		payload.DaysRemaining = off.days
		out = append(out, model.Occurrence{
			ID:            fmt.Sprintf("%s_deadline_%s", plan.ID, day.Format(model.DateLayout)),
			PlanID:        plan.ID,
			Type:          model.ReminderDeadline,
			Title:         title,
			Message:       fmt.Sprintf("%q is due %s. Current progress: %d%%", plan.Title, due, plan.Progress),
			ScheduledTime: model.AtHour(day, hour, loc),
			Urgency:       off.urgency,
			Payload:       payload,
		})
	}
	return out
}

func deriveMilestones(plan model.Plan, hour int, loc *time.Location) []model.Occurrence {
	var out []model.Occurrence
	for _, m := range plan.Milestones {
		if m.Achieved || m.TargetDate == nil {
			continue
		}
		day := model.DateOf(*m.TargetDate, loc)
		payload := payloadOf(plan)
		payload.Milestone = m.Percentage
		out = append(out, model.Occurrence{
			ID:            fmt.Sprintf("%s_milestone_%d", plan.ID, m.Percentage),
			PlanID:        plan.ID,
			Type:          model.ReminderMilestone,
			Title:         "Milestone Check",
			Message:       fmt.Sprintf("Time to check your progress on %q. Target: %s", plan.Title, m.Description),
			ScheduledTime: model.AtHour(day, hour, loc),
			Urgency:       model.UrgencyNone,
			Payload:       payload,
		})
	}
	return out
}
