package drag

import (
	"context"
	"sync"
	"time"
)

const (
	// EdgeThresholdPx is the distance from a viewport edge at which
	// auto-scroll engages.
	EdgeThresholdPx = 80.0

	// MaxScrollPerFramePx caps the per-frame scroll correction.
	MaxScrollPerFramePx = 24.0

	// defaultFrameInterval approximates one animation frame.
	defaultFrameInterval = 16 * time.Millisecond
)

// AutoScrollDelta returns the per-frame scroll correction for a pointer at
// pointerY within a viewport spanning [viewportTop, viewportTop+height].
// The speed ramps linearly from 0 at the threshold to the cap at the very
// edge; negative deltas scroll up. Outside the thresholds it returns 0.
func AutoScrollDelta(pointerY, viewportTop, viewportHeight float64) float64 {
	topDist := pointerY - viewportTop
	bottomDist := viewportTop + viewportHeight - pointerY

	switch {
	case topDist < bottomDist && topDist < EdgeThresholdPx:
		return -ramp(topDist)
	case bottomDist <= topDist && bottomDist < EdgeThresholdPx:
		return ramp(bottomDist)
	default:
		return 0
	}
}

func ramp(dist float64) float64 {
	if dist < 0 {
		dist = 0
	}
	return (EdgeThresholdPx - dist) / EdgeThresholdPx * MaxScrollPerFramePx
}

// Scroller drives auto-scroll for the lifetime of one drag session. Run it
// with a context cancelled on pointer-up; the loop stops immediately.
type Scroller struct {
	// ScrollBy applies a scroll correction to the viewport.
	ScrollBy func(deltaPx float64)

	// Interval overrides the frame cadence; zero means one frame (~16ms).
	Interval time.Duration

	mu         sync.Mutex
	pointerY   float64
	viewTop    float64
	viewHeight float64
	tracking   bool
}

// SetPointer records the latest pointer position and viewport geometry.
// Geometry is re-read every frame, so viewport movement between frames is
// picked up without re-priming.
func (s *Scroller) SetPointer(pointerY, viewportTop, viewportHeight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointerY = pointerY
	s.viewTop = viewportTop
	s.viewHeight = viewportHeight
	s.tracking = true
}

// Run ticks until ctx is cancelled, applying a correction each frame while
// the pointer sits inside an edge threshold.
func (s *Scroller) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step()
		}
	}
}

func (s *Scroller) step() {
	s.mu.Lock()
	tracking := s.tracking
	delta := AutoScrollDelta(s.pointerY, s.viewTop, s.viewHeight)
	s.mu.Unlock()

	if tracking && delta != 0 && s.ScrollBy != nil {
		s.ScrollBy(delta)
	}
}
