// Package timer implements the duration-tracking sidecar for events: the
// state transitions over the accumulated-time ledger and a polling runtime
// that recomputes live elapsed values for display.
package timer

import (
	"errors"
	"time"

	"gridcal/internal/model"
	"gridcal/internal/timegrid"
)

var (
	ErrNoTimer        = errors.New("timer: event has no timer")
	ErrNotRunning     = errors.New("timer: not running")
	ErrAlreadyRunning = errors.New("timer: already running")
)

// Start begins or resumes timing. Allowed from Idle and Paused; sets
// StartedAt and leaves the accumulated ledger untouched.
func Start(ev *model.Event, now time.Time) error {
	if ev.Timer == nil {
		ev.Timer = &model.Timer{State: model.TimerIdle}
	}
	if ev.Timer.State == model.TimerRunning {
		return ErrAlreadyRunning
	}
	t := now
	ev.Timer.State = model.TimerRunning
	ev.Timer.StartedAt = &t
	return nil
}

// Pause freezes the live elapsed value into AccumulatedMs and clears
// StartedAt. The ledger only ever grows here.
func Pause(ev *model.Event, now time.Time) error {
	if ev.Timer == nil {
		return ErrNoTimer
	}
	if ev.Timer.State != model.TimerRunning {
		return ErrNotRunning
	}
	ev.Timer.AccumulatedMs = Elapsed(ev, now)
	ev.Timer.State = model.TimerPaused
	ev.Timer.StartedAt = nil
	return nil
}

// Stop freezes the ledger like Pause and returns the timer to Idle. The
// accumulated value survives; only Reset clears it.
func Stop(ev *model.Event, now time.Time) error {
	if ev.Timer == nil {
		return ErrNoTimer
	}
	if ev.Timer.State == model.TimerRunning {
		ev.Timer.AccumulatedMs = Elapsed(ev, now)
	}
	ev.Timer.State = model.TimerIdle
	ev.Timer.StartedAt = nil
	return nil
}

// Reset zeroes the ledger. This is the only path that decreases
// AccumulatedMs and it exists for an explicit user action.
func Reset(ev *model.Event) error {
	if ev.Timer == nil {
		return ErrNoTimer
	}
	ev.Timer.State = model.TimerIdle
	ev.Timer.StartedAt = nil
	ev.Timer.AccumulatedMs = 0
	return nil
}

// Elapsed returns the display elapsed time in milliseconds: the frozen
// ledger plus, while running, the live span since StartedAt. It never
// writes back to the event.
func Elapsed(ev *model.Event, now time.Time) int64 {
	if ev.Timer == nil {
		return 0
	}
	ms := ev.Timer.AccumulatedMs
	if ev.Timer.State == model.TimerRunning && ev.Timer.StartedAt != nil {
		live := now.Sub(*ev.Timer.StartedAt).Milliseconds()
		if live > 0 {
			ms += live
		}
	}
	return ms
}

// DisplayHeightPx returns the rendered block height for a timed event: at
// least the planned (scheduled) height, growing past it once the live
// elapsed time exceeds the scheduled duration.
func DisplayHeightPx(ev *model.Event, now time.Time, cfg timegrid.Config) float64 {
	planned := ev.Duration().Minutes() / 60.0 * cfg.HourHeightPx
	elapsed := float64(Elapsed(ev, now)) / float64(time.Hour.Milliseconds()) * cfg.HourHeightPx
	if elapsed > planned {
		return elapsed
	}
	return planned
}

// OvertimeDividerPx returns the offset of the originally-planned boundary
// within the rendered block, and whether the event is in overtime (the
// divider is only drawn then).
func OvertimeDividerPx(ev *model.Event, now time.Time, cfg timegrid.Config) (float64, bool) {
	planned := ev.Duration().Minutes() / 60.0 * cfg.HourHeightPx
	elapsed := float64(Elapsed(ev, now)) / float64(time.Hour.Milliseconds()) * cfg.HourHeightPx
	return planned, elapsed > planned
}
