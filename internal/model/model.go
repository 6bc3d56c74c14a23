package model

import "time"

// TimerState is the duration-tracking state of an event's timer sidecar.
type TimerState string

const (
	TimerIdle    TimerState = "idle"
	TimerRunning TimerState = "running"
	TimerPaused  TimerState = "paused"
)

// Timer is the optional duration ledger attached to an event.
//
// AccumulatedMs only grows: it is updated on Pause/Stop transitions and
// reset only by an explicit user action. StartedAt is set iff State is
// TimerRunning.
type Timer struct {
	State         TimerState
	StartedAt     *time.Time
	AccumulatedMs int64
}

// Palette color tags for events. Free-form values are tolerated by the
// codec; these are the ones the application emits.
const (
	ColorRed    = "red"
	ColorOrange = "orange"
	ColorYellow = "yellow"
	ColorGreen  = "green"
	ColorBlue   = "blue"
	ColorPurple = "purple"
	ColorGray   = "gray"
)

// Event is the canonical calendar event.
//
// Start/End are absolute instants; End >= Start always. A zero-duration
// event (End == Start) is tolerated for all-day entries but never produced
// by a drag.
type Event struct {
	ID    string
	Title string

	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	Color    string // palette tag; empty means unset
	Icon     string // emoji or named icon token; empty means unset
	IconSize int    // 0 means unset

	// CalendarID names the logical calendar (one document on disk) that
	// owns the event.
	CalendarID string

	Timer *Timer

	// LinkedTaskID is a weak reference to an external task. Deleting the
	// task never cascades to the event and vice versa.
	LinkedTaskID string

	Completed bool

	// OriginalStart/OriginalEnd remember the pre-move time range so a
	// moved event can be restored.
	OriginalStart *time.Time
	OriginalEnd   *time.Time

	// Grouping/ordering extension fields. Mirrored through the codec but
	// not consulted by grid geometry or drag logic.
	GroupID          string
	Order            *float64
	ParentID         string
	Collapsed        bool
	EstimatedMinutes *int
}

// Clone returns a deep copy of the event, including the timer sidecar and
// pointer-valued extension fields.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	if e.Timer != nil {
		t := *e.Timer
		if e.Timer.StartedAt != nil {
			st := *e.Timer.StartedAt
			t.StartedAt = &st
		}
		out.Timer = &t
	}
	if e.OriginalStart != nil {
		v := *e.OriginalStart
		out.OriginalStart = &v
	}
	if e.OriginalEnd != nil {
		v := *e.OriginalEnd
		out.OriginalEnd = &v
	}
	if e.Order != nil {
		v := *e.Order
		out.Order = &v
	}
	if e.EstimatedMinutes != nil {
		v := *e.EstimatedMinutes
		out.EstimatedMinutes = &v
	}
	return &out
}

// Duration returns End - Start.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IntersectsDay reports whether the event's time range touches the
// calendar day beginning at dayStart (midnight in the display location).
func (e *Event) IntersectsDay(dayStart time.Time) bool {
	dayEnd := dayStart.Add(24 * time.Hour)
	return e.Start.Before(dayEnd) && e.End.After(dayStart)
}

// Task is the read-side projection of an external task entity. The
// calendar consumes tasks for its merged day view and never mutates their
// scheduling fields directly.
type Task struct {
	ID               string
	Content          string
	Priority         int
	EstimatedMinutes int
	Completed        bool
	ScheduledTime    *time.Time
}
