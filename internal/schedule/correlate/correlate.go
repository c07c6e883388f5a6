// Package correlate joins a user's tasks against the active date range by
// due-date key, independent of event data.
package correlate

import (
	"strings"
	"time"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/schedule/daterange"
)

// ongoingSentinel marks tasks with no deadline; compared case-insensitively.
const ongoingSentinel = "ongoing"

// HasDateKey reports whether a task participates in date-based views: not
// archived, and carrying a well-formed YYYY-MM-DD due date. Empty due dates
// and the "ongoing" sentinel are excluded whatever the archived flag says.
func HasDateKey(task contracts.Task) bool {
	if task.Archived {
		return false
	}
	due := strings.TrimSpace(task.DueDate)
	if due == "" || strings.EqualFold(due, ongoingSentinel) {
		return false
	}
	_, err := time.Parse("2006-01-02", due)
	return err == nil
}

// Index is a date-key lookup over the eligible subset of a task collection.
// The exclusion rule runs exactly once, at build time; every view derived
// from the index sees the same subset.
type Index struct {
	byKey map[string][]contracts.Task
}

// NewIndex applies the eligibility rule and groups tasks by due-date key,
// preserving the collection's order inside each key.
func NewIndex(tasks []contracts.Task) *Index {
	idx := &Index{byKey: make(map[string][]contracts.Task)}
	for _, task := range tasks {
		if !HasDateKey(task) {
			continue
		}
		key := strings.TrimSpace(task.DueDate)
		idx.byKey[key] = append(idx.byKey[key], task)
	}
	return idx
}

// ForKey returns the tasks due on the given date key.
func (idx *Index) ForKey(key string) []contracts.Task {
	return idx.byKey[key]
}

// ForDay returns the tasks due on day's local date key.
func (idx *Index) ForDay(day time.Time) []contracts.Task {
	return idx.ForKey(daterange.Key(day))
}

// Deliverables returns the daily panel's subset: tasks due on the reference
// date itself.
func (idx *Index) Deliverables(ref time.Time) []contracts.Task {
	return idx.ForDay(ref)
}

// Len reports how many tasks survived the eligibility rule.
func (idx *Index) Len() int {
	n := 0
	for _, tasks := range idx.byKey {
		n += len(tasks)
	}
	return n
}
