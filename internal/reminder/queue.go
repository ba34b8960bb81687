package reminder

import (
	"container/heap"
	"sort"

	"github.com/nhle/study-planner/internal/model"
)

// entry is one pending occurrence in the fire queue.
type entry struct {
	occ   model.Occurrence
	index int
}

// fireQueue is a min-heap of entries ordered by scheduled time, then id.
type fireQueue []*entry

var _ heap.Interface = (*fireQueue)(nil)

func (q fireQueue) Len() int { return len(q) }

func (q fireQueue) Less(i, j int) bool {
	a, b := q[i].occ, q[j].occ
	if a.ScheduledTime.Equal(b.ScheduledTime) {
		return a.ID < b.ID
	}
	return a.ScheduledTime.Before(b.ScheduledTime)
}

func (q fireQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *fireQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *fireQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// peek returns the earliest entry without removing it.
func (q fireQueue) peek() *entry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func sortByTime(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		return occs[i].ScheduledTime.Before(occs[j].ScheduledTime)
	})
}
