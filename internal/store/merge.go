package store

import (
	"context"
	"sort"
	"time"

	"gridcal/internal/model"
)

// TaskSource is the read-only collaborator interface to the external task
// store. The calendar never mutates a task's scheduling fields; checkbox
// interaction goes through the task store's own Toggle.
type TaskSource interface {
	ScheduledBetween(ctx context.Context, from, to time.Time) ([]model.Task, error)
	Lookup(ctx context.Context, id string) (model.Task, error)
}

// taskEventPrefix namespaces synthetic event ids so they can never
// collide with real events.
const taskEventPrefix = "task:"

// defaultTaskBlockMinutes sizes a scheduled task with no estimate.
const defaultTaskBlockMinutes = 30

// MergedDay returns the day's events plus synthetic read-only blocks for
// tasks scheduled within it, sorted by start then id. The synthetic
// blocks carry the weak task reference in LinkedTaskID; they are a
// display projection and must not be written back into the store.
func (s *Store) MergedDay(ctx context.Context, dayStart time.Time, tasks TaskSource) ([]*model.Event, error) {
	merged := s.EventsForDay(dayStart)

	if tasks != nil {
		scheduled, err := tasks.ScheduledBetween(ctx, dayStart, dayStart.Add(24*time.Hour))
		if err != nil {
			return nil, err
		}
		for _, task := range scheduled {
			if task.ScheduledTime == nil {
				continue
			}
			merged = append(merged, taskBlock(task))
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Start.Equal(merged[j].Start) {
			return merged[i].Start.Before(merged[j].Start)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged, nil
}

func taskBlock(task model.Task) *model.Event {
	minutes := task.EstimatedMinutes
	if minutes <= 0 {
		minutes = defaultTaskBlockMinutes
	}
	est := task.EstimatedMinutes
	ev := &model.Event{
		ID:           taskEventPrefix + task.ID,
		Title:        task.Content,
		Start:        *task.ScheduledTime,
		End:          task.ScheduledTime.Add(time.Duration(minutes) * time.Minute),
		LinkedTaskID: task.ID,
		Completed:    task.Completed,
	}
	if est > 0 {
		ev.EstimatedMinutes = &est
	}
	return ev
}

// IsTaskBlock reports whether an event id names a synthetic task block.
func IsTaskBlock(id string) bool {
	return len(id) > len(taskEventPrefix) && id[:len(taskEventPrefix)] == taskEventPrefix
}
