// Package timegrid holds the pure geometry of the day grid: the mapping
// between minutes-of-day, pixel offsets and snapped positions, and the
// resolution of visual minute ranges into absolute instants.
//
// All functions re-derive from the Config passed in; no pixel value is
// cached or treated as authoritative across calls. Inputs are assumed
// finite and range-normalized by callers.
package timegrid

import (
	"errors"
	"math"
	"time"
)

// MinutesPerDay is the size of the wall-clock minute cycle.
const MinutesPerDay = 1440

// ErrBackwardSpan is returned by ResolveAbsolute when a visual range
// straddles the day-start boundary: one endpoint maps to the base day and
// the other to the next calendar day. In raw minutes such a range always
// runs backward across the boundary, so the drag is rejected with no
// mutation.
var ErrBackwardSpan = errors.New("timegrid: range spans backward across day start")

// Config describes one rendered grid instance. It is owned by the
// rendering context and may change at any time (zoom, day-start change).
type Config struct {
	// HourHeightPx is the pixel height of one hour row.
	HourHeightPx float64

	// DayStartMinutes is the minute-of-day at which the rendered day
	// begins visually, 0..1439. A grid may run 05:00-05:00.
	DayStartMinutes int

	// SnapMinutes is the drag quantization granularity.
	SnapMinutes int
}

// MinutesToPixels maps a minute-of-day to a vertical pixel offset.
// Minutes before DayStartMinutes wrap to the bottom of the grid rather
// than mapping to negative pixels.
func MinutesToPixels(minutes int, cfg Config) float64 {
	rel := mod(minutes-cfg.DayStartMinutes, MinutesPerDay)
	return float64(rel) / 60.0 * cfg.HourHeightPx
}

// PixelsToMinutes is the inverse of MinutesToPixels, rounded to the
// nearest minute and wrapped into 0..1439.
func PixelsToMinutes(px float64, cfg Config) int {
	minutes := int(math.Round(px/cfg.HourHeightPx*60.0)) + cfg.DayStartMinutes
	return mod(minutes, MinutesPerDay)
}

// Snap rounds a minute value to the nearest multiple of snapMinutes and
// clamps it into 0..1439.
func Snap(minutes, snapMinutes int) int {
	if snapMinutes <= 0 {
		return clampMinutes(minutes)
	}
	snapped := int(math.Round(float64(minutes)/float64(snapMinutes))) * snapMinutes
	return clampMinutes(snapped)
}

// DisplayPosition ranks a minute-of-day by its visual position on a grid
// whose day begins at dayStartMinutes. Use this, not raw comparison, to
// order two minute values: on a grid starting at 05:00, 00:30 sorts after
// 23:00.
func DisplayPosition(minutes, dayStartMinutes int) int {
	return mod(minutes-dayStartMinutes, MinutesPerDay)
}

// DisplayLess reports whether a renders above b.
func DisplayLess(a, b, dayStartMinutes int) bool {
	return DisplayPosition(a, dayStartMinutes) < DisplayPosition(b, dayStartMinutes)
}

// ResolveAbsolute converts a visual (startMin, endMin) pair on the grid
// for baseDay into absolute instants. A minute before DayStartMinutes
// belongs to the calendar day after baseDay, so both endpoints must fall
// on the same side of the boundary: a mixed range has no valid absolute
// representation and is rejected with ErrBackwardSpan.
//
// baseDay must be midnight in the display location.
func ResolveAbsolute(baseDay time.Time, startMin, endMin int, cfg Config) (time.Time, time.Time, error) {
	startNext := startMin < cfg.DayStartMinutes
	endNext := endMin < cfg.DayStartMinutes

	if startNext != endNext {
		return time.Time{}, time.Time{}, ErrBackwardSpan
	}

	start := minuteOnDay(baseDay, startMin, startNext)
	end := minuteOnDay(baseDay, endMin, endNext)
	if end.Before(start) {
		// Inverted after resolution; callers order by display position
		// first, so treat this as an unrepresentable span too.
		return time.Time{}, time.Time{}, ErrBackwardSpan
	}
	return start, end, nil
}

func minuteOnDay(baseDay time.Time, minutes int, nextDay bool) time.Time {
	day := baseDay
	if nextDay {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

func clampMinutes(m int) int {
	if m < 0 {
		return 0
	}
	if m > MinutesPerDay-1 {
		return MinutesPerDay - 1
	}
	return m
}

// mod is the positive modulo.
func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
