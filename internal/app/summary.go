package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/study-planner/internal/model"
	"github.com/nhle/study-planner/internal/plan"
	"github.com/nhle/study-planner/internal/theme"
)

// Summary renders the plan overview printed at startup.
func (a *App) Summary() string {
	plans := a.Plans.SortedPlans(plan.Criteria{Status: model.PlanStatusActive}, plan.SortDeadline)
	next := make(map[string]model.Occurrence, len(plans))
	for _, p := range plans {
		if pending := a.Scheduler.Pending(p.ID); len(pending) > 0 {
			next[p.ID] = pending[0]
		}
	}
	return RenderSummary(plans, a.Plans.Statistics(), next, a.Config.Location())
}

// RenderSummary draws one line per plan followed by the statistics line.
// next maps plan ids to their earliest pending reminder.
func RenderSummary(plans []model.Plan, stats model.StudyStats, next map[string]model.Occurrence, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(theme.HeaderStyle.Render(AppName))
	b.WriteString("\n")

	if len(plans) == 0 {
		b.WriteString(theme.HelpStyle.Render("No active plans."))
		b.WriteString("\n")
	}
	for _, p := range plans {
		b.WriteString(renderPlanLine(p, next, loc))
		b.WriteString("\n")
	}

	b.WriteString(theme.HelpStyle.Render(fmt.Sprintf(
		"%d/%d tasks done, %d plans completed, streak %d (best %d), %.1fh studied",
		stats.CompletedTasks, stats.TotalTasks, stats.CompletedPlans,
		stats.CurrentStreak, stats.LongestStreak, stats.TotalStudyTime,
	)))
	return b.String()
}

func renderPlanLine(p model.Plan, next map[string]model.Occurrence, loc *time.Location) string {
	mark := "-"
	if p.Priority != "" {
		mark = strings.ToUpper(string(p.Priority)[:1])
	}
	pri := theme.PriorityStyle(p.Priority).Render(mark)

	due := ""
	if p.Deadline != nil {
		due = theme.HelpStyle.Render(" due " + p.Deadline.In(loc).Format("Jan 02"))
	}

	reminder := ""
	if occ, ok := next[p.ID]; ok {
		label := occ.ScheduledTime.In(loc).Format("Mon 15:04")
		if occ.Urgency != "" && occ.Urgency != model.UrgencyNone {
			label += " " + string(occ.Urgency)
		}
		reminder = "  " + theme.UrgencyStyle(occ.Urgency).Render("⏰ "+label)
	}

	progress := lipgloss.NewStyle().Foreground(theme.ColorGreen).Render(fmt.Sprintf("%3d%%", p.Progress))
	return fmt.Sprintf("%s %s %s%s%s", pri, progress, p.Title, due, reminder)
}
