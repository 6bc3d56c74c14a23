package timer

import (
	"context"
	"time"

	appLog "gridcal/internal/log"
	"gridcal/internal/model"
)

// defaultTickInterval is sub-second so a visible elapsed counter stays
// smooth without burning a hot loop.
const defaultTickInterval = 250 * time.Millisecond

// EventSource lists the events whose timers may be running. The runtime
// polls it every tick; implementations must return snapshots safe to read
// off the store's lock.
type EventSource interface {
	TimedEvents() []*model.Event
}

// Tick is one per-event recomputation delivered to the runtime's
// subscriber. Elapsed is display-only and is never written back to the
// event; the ledger moves only on Pause/Stop.
type Tick struct {
	EventID   string
	ElapsedMs int64
}

// Runtime polls running timers at a fixed interval. The loop parks itself
// as soon as no timer is running and wakes on Kick, so no background work
// leaks while everything is idle.
type Runtime struct {
	source   EventSource
	onTick   func([]Tick)
	interval time.Duration
	now      func() time.Time

	wake chan struct{}
}

// NewRuntime builds a runtime delivering batches of ticks to onTick.
// interval <= 0 selects the default sub-second cadence.
func NewRuntime(source EventSource, onTick func([]Tick), interval time.Duration) *Runtime {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Runtime{
		source:   source,
		onTick:   onTick,
		interval: interval,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
}

// SetClock swaps the time source; tests install a fake clock.
func (r *Runtime) SetClock(now func() time.Time) { r.now = now }

// Kick wakes a parked runtime so it notices a newly-started timer.
// Callers invoke it after any timer state transition.
func (r *Runtime) Kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. While at least one timer is running it
// ticks every interval; otherwise it blocks on Kick.
func (r *Runtime) Run(ctx context.Context) {
	appLog.Debug("timer runtime started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	active := r.tick()
	for {
		if !active {
			// Park: stop polling the instant nothing is running.
			select {
			case <-ctx.Done():
				return
			case <-r.wake:
				active = r.tick()
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			active = r.tick()
		case <-ticker.C:
			active = r.tick()
		}
	}
}

// tick recomputes elapsed values for running timers and reports whether
// any timer is still running.
func (r *Runtime) tick() bool {
	now := r.now()
	var batch []Tick
	anyRunning := false

	for _, ev := range r.source.TimedEvents() {
		if ev.Timer == nil || ev.Timer.State != model.TimerRunning {
			continue
		}
		anyRunning = true
		batch = append(batch, Tick{EventID: ev.ID, ElapsedMs: Elapsed(ev, now)})
	}

	if len(batch) > 0 && r.onTick != nil {
		r.onTick(batch)
	}
	return anyRunning
}
