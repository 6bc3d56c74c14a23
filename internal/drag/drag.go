// Package drag turns raw pointer input into calendar event mutations. It
// is an explicit state machine (Idle -> Dragging -> Idle) independent of
// any rendering layer; the UI feeds pointer coordinates in and subscribes
// to the controller's preview/commit outcomes.
package drag

import (
	"errors"
	"time"

	"github.com/google/uuid"

	appLog "gridcal/internal/log"
	"gridcal/internal/model"
	"gridcal/internal/timegrid"
)

// Kind tags a drag session at entry and never changes afterwards.
type Kind int

const (
	KindCreate Kind = iota
	KindMove
	KindResizeTop
	KindResizeBottom
)

// RejectReason explains a no-mutation commit outcome. Rejections are
// silent policy-wise (no error surfaced to the user) but reported so a UI
// can show a non-blocking indicator.
type RejectReason int

const (
	RejectNone RejectReason = iota
	// RejectZeroDuration: a Create drag that never left its anchor is a
	// click, not a create.
	RejectZeroDuration
	// RejectBackwardSpan: the range spans backward across the day-start
	// boundary and has no valid absolute representation.
	RejectBackwardSpan
)

// CommitResult reports the outcome of Commit.
type CommitResult struct {
	Committed bool
	Reason    RejectReason
	Event     *model.Event
}

// EventWriter is the mutation surface the controller commits against.
type EventWriter interface {
	Create(ev *model.Event) error
	Update(ev *model.Event) error
}

var (
	ErrNotDragging     = errors.New("drag: no active session")
	ErrAlreadyDragging = errors.New("drag: session already active")
	// ErrTargetIsEvent rejects a Create drag whose pointer-down landed on
	// an existing event; those hits belong to the event's own handlers.
	ErrTargetIsEvent = errors.New("drag: create over existing event")
)

// StartInput describes a pointer-down.
type StartInput struct {
	Kind Kind

	// PointerY is the pointer offset in grid pixels.
	PointerY float64

	// TargetEvent is the event under the pointer, if any. Required for
	// move/resize kinds; must be nil for Create.
	TargetEvent *model.Event
}

// Controller runs drag sessions against one day column.
//
// Config is re-read on every geometry call via the provider func, so zoom
// or day-start changes mid-drag take effect immediately.
type Controller struct {
	config func() timegrid.Config
	writer EventWriter

	// BaseDay is midnight (display location) of the grid's base day.
	baseDay time.Time

	// CalendarID is assigned to events created by this controller.
	calendarID string

	newID func() string

	session *session
}

type session struct {
	kind     Kind
	anchor   int // snapped minutes-of-day
	current  int
	original *model.Event // snapshot for move/resize rollback
	moved    bool
}

// NewController wires a controller to a config provider and a mutation
// writer.
func NewController(config func() timegrid.Config, writer EventWriter, baseDay time.Time, calendarID string) *Controller {
	return &Controller{
		config:     config,
		writer:     writer,
		baseDay:    baseDay,
		calendarID: calendarID,
		newID:      uuid.NewString,
	}
}

// Dragging reports whether a session is active.
func (c *Controller) Dragging() bool { return c.session != nil }

// Start opens a session from a pointer-down. A Create drag over an
// existing event is rejected; starting while another session is active is
// a caller bug surfaced as an error.
func (c *Controller) Start(in StartInput) error {
	if c.session != nil {
		return ErrAlreadyDragging
	}
	if in.Kind == KindCreate && in.TargetEvent != nil {
		return ErrTargetIsEvent
	}
	if in.Kind != KindCreate && in.TargetEvent == nil {
		return errors.New("drag: move/resize requires a target event")
	}

	cfg := c.config()
	anchor := timegrid.Snap(timegrid.PixelsToMinutes(in.PointerY, cfg), cfg.SnapMinutes)

	c.session = &session{
		kind:     in.Kind,
		anchor:   anchor,
		current:  anchor,
		original: in.TargetEvent.Clone(),
	}
	appLog.Debug("drag started", "kind", int(in.Kind), "anchor", anchor)
	return nil
}

// MoveTo updates the session with a new pointer position. Moves are
// processed in arrival order; the last one before Commit determines the
// committed range. Callers may throttle intermediate moves to frame
// granularity as long as the final position is delivered.
func (c *Controller) MoveTo(pointerY float64) error {
	if c.session == nil {
		return ErrNotDragging
	}
	cfg := c.config()
	c.session.current = timegrid.Snap(timegrid.PixelsToMinutes(pointerY, cfg), cfg.SnapMinutes)
	c.session.moved = true
	return nil
}

// PreviewRange returns the session's current visual minute range, ordered
// by display position. For move/resize it reflects the edited event edges.
func (c *Controller) PreviewRange() (startMin, endMin int, ok bool) {
	if c.session == nil {
		return 0, 0, false
	}
	start, end := c.visualRange(c.config())
	return start, end, true
}

// visualRange computes the session's (start, end) in visual minutes.
func (c *Controller) visualRange(cfg timegrid.Config) (int, int) {
	s := c.session
	switch s.kind {
	case KindCreate:
		a, b := s.anchor, s.current
		if timegrid.DisplayLess(b, a, cfg.DayStartMinutes) {
			a, b = b, a
		}
		return a, b

	case KindMove:
		startMin := c.minuteOfDay(s.original.Start)
		endMin := c.minuteOfDay(s.original.End)
		delta := timegrid.DisplayPosition(s.current, cfg.DayStartMinutes) -
			timegrid.DisplayPosition(s.anchor, cfg.DayStartMinutes)
		return wrapMinutes(startMin + delta), wrapMinutes(endMin + delta)

	case KindResizeTop:
		endMin := c.minuteOfDay(s.original.End)
		top := s.current
		// The dragged edge may not cross within one snap unit of the
		// fixed edge; a resize cannot invert the event.
		limit := wrapMinutes(endMin - cfg.SnapMinutes)
		if !timegrid.DisplayLess(top, limit, cfg.DayStartMinutes) {
			top = limit
		}
		return top, endMin

	case KindResizeBottom:
		startMin := c.minuteOfDay(s.original.Start)
		bottom := s.current
		limit := wrapMinutes(startMin + cfg.SnapMinutes)
		if timegrid.DisplayLess(bottom, limit, cfg.DayStartMinutes) {
			bottom = limit
		}
		return startMin, bottom
	}
	return s.anchor, s.current
}

// Commit finalizes the session on pointer-up. Invalid outcomes (zero-
// duration create, backward cross-midnight span) discard the session with
// no mutation and report the reason.
func (c *Controller) Commit() (CommitResult, error) {
	if c.session == nil {
		return CommitResult{}, ErrNotDragging
	}
	s := c.session
	cfg := c.config()
	defer func() { c.session = nil }()

	if s.kind == KindCreate && s.anchor == s.current {
		appLog.Debug("drag discarded", "reason", "zero duration")
		return CommitResult{Reason: RejectZeroDuration}, nil
	}

	startMin, endMin := c.visualRange(cfg)
	start, end, err := timegrid.ResolveAbsolute(c.baseDay, startMin, endMin, cfg)
	if err != nil {
		appLog.Debug("drag discarded", "reason", "backward span")
		return CommitResult{Reason: RejectBackwardSpan}, nil
	}

	switch s.kind {
	case KindCreate:
		ev := &model.Event{
			ID:         c.newID(),
			Title:      "",
			Start:      start,
			End:        end,
			CalendarID: c.calendarID,
		}
		if err := c.writer.Create(ev); err != nil {
			return CommitResult{}, err
		}
		return CommitResult{Committed: true, Event: ev}, nil

	default:
		ev := s.original.Clone()
		if ev.OriginalStart == nil {
			os, oe := s.original.Start, s.original.End
			ev.OriginalStart = &os
			ev.OriginalEnd = &oe
		}
		ev.Start = start
		ev.End = end
		if err := c.writer.Update(ev); err != nil {
			return CommitResult{}, err
		}
		return CommitResult{Committed: true, Event: ev}, nil
	}
}

// Cancel discards the session with no mutation. Used for Escape and for
// drag-target unmount.
func (c *Controller) Cancel() {
	if c.session != nil {
		appLog.Debug("drag cancelled")
		c.session = nil
	}
}

// minuteOfDay reads an instant's wall clock in the grid's display
// location. Stored instants may carry any location (decoded documents
// carry UTC), so the raw Hour/Minute of t is not grid geometry.
func (c *Controller) minuteOfDay(t time.Time) int {
	local := t.In(c.baseDay.Location())
	return local.Hour()*60 + local.Minute()
}

func wrapMinutes(m int) int {
	m %= timegrid.MinutesPerDay
	if m < 0 {
		m += timegrid.MinutesPerDay
	}
	return m
}
