package plan

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/nhle/study-planner/internal/model"
)

// dueSoonDays is the window of the DueSoon filter.
const dueSoonDays = 7

// Criteria filters plans. Empty or "all" string fields match everything.
type Criteria struct {
	Status   string
	Priority string
	Subject  string

	// DueSoon keeps plans whose deadline falls between today and seven
	// days from today, inclusive.
	DueSoon bool

	// Search is matched case-insensitively against title, description and tags.
	Search string
}

// SortKey orders plans.
type SortKey string

const (
	SortDeadline     SortKey = "deadline"
	SortPriority     SortKey = "priority"
	SortProgress     SortKey = "progress"
	SortAlphabetical SortKey = "alphabetical"
	SortRecent       SortKey = "recent"
)

func matchAny(want, got string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(want, "all") || strings.EqualFold(want, got)
}

// FilterPlans returns the plans matching c. today is the current local date.
func FilterPlans(plans []model.Plan, c Criteria, today time.Time) []model.Plan {
	term := strings.ToLower(strings.TrimSpace(c.Search))
	horizon := today.AddDate(0, 0, dueSoonDays)

	out := make([]model.Plan, 0, len(plans))
	for _, p := range plans {
		if !matchAny(c.Status, p.Status) ||
			!matchAny(c.Priority, string(p.Priority)) ||
			!matchAny(c.Subject, p.Subject) {
			continue
		}
		if c.DueSoon {
			if p.Deadline == nil {
				continue
			}
			d := model.DateOf(*p.Deadline, today.Location())
			if d.Before(today) || d.After(horizon) {
				continue
			}
		}
		if term != "" && !matchesSearch(p, term) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesSearch(p model.Plan, term string) bool {
	if strings.Contains(strings.ToLower(p.Title), term) ||
		strings.Contains(strings.ToLower(p.Description), term) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// SortPlans orders plans in place by key; unknown keys sort by most
// recently updated.
func SortPlans(plans []model.Plan, key SortKey) {
	switch key {
	case SortDeadline:
		sort.SliceStable(plans, func(i, j int) bool {
			a, b := plans[i].Deadline, plans[j].Deadline
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return a.Before(*b)
			}
		})
	case SortPriority:
		sort.SliceStable(plans, func(i, j int) bool {
			return plans[i].Priority.Rank() > plans[j].Priority.Rank()
		})
	case SortProgress:
		sort.SliceStable(plans, func(i, j int) bool {
			return plans[i].Progress > plans[j].Progress
		})
	case SortAlphabetical:
		col := collate.New(language.English, collate.IgnoreCase)
		sort.SliceStable(plans, func(i, j int) bool {
			return col.CompareString(plans[i].Title, plans[j].Title) < 0
		})
	default:
		sort.SliceStable(plans, func(i, j int) bool {
			return plans[i].UpdatedAt.After(plans[j].UpdatedAt)
		})
	}
}

// FilterPlans filters the manager's plans.
func (m *Manager) FilterPlans(c Criteria) []model.Plan {
	return FilterPlans(m.ListPlans(), c, m.today())
}

// SortedPlans returns the manager's plans filtered by c and ordered by key.
func (m *Manager) SortedPlans(c Criteria, key SortKey) []model.Plan {
	plans := m.FilterPlans(c)
	SortPlans(plans, key)
	return plans
}
