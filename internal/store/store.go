// Package store owns the mutable event collection and its on-disk form:
// one iCalendar document per logical calendar inside a single directory.
//
// All access funnels through one mutex. The calendar core is event-loop
// shaped, but hosts embedding this store from multiple goroutines (the
// timer runtime, the directory watcher) get the single-writer guarantee
// from the lock instead of from the loop.
package store

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"gridcal/internal/ics"
	appLog "gridcal/internal/log"
	"gridcal/internal/model"
	"gridcal/internal/timegrid"
)

var (
	ErrNotFound          = errors.New("store: event not found")
	ErrInvalidCalendarID = errors.New("store: invalid calendar id")
	ErrMissingID         = errors.New("store: event id required")
)

// calendarIDPattern keeps calendar ids usable as file names.
var calendarIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

const docExtension = ".ics"

// ChangeKind tags a change notification.
type ChangeKind int

const (
	ChangeEvents ChangeKind = iota
	// ChangeReloaded means a calendar document was re-read from disk
	// (external edit); subscribers should refresh their whole view of it.
	ChangeReloaded
)

// Change is delivered to subscribers after a mutation or reload.
type Change struct {
	Kind       ChangeKind
	CalendarID string
}

// Store is the event collection plus its persistence.
type Store struct {
	mu     sync.Mutex
	events map[string]*model.Event
	dirty  map[string]bool

	// lastSaved lets the watcher tell our own writes from external ones.
	lastSaved map[string]time.Time

	codec *ics.Codec
	d     *diskv.Diskv
	dir   string

	subs []chan Change
}

// New opens (or creates) a store over the given calendar directory.
func New(dir string, codec *ics.Codec) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store: calendar directory required")
	}
	if codec == nil {
		codec = ics.New(nil)
	}
	d := diskv.New(diskv.Options{
		BasePath:          dir,
		AdvancedTransform: calendarTransform,
		InverseTransform:  calendarInverseTransform,
		CacheSizeMax:      1024 * 1024, // 1MB
	})
	return &Store{
		events:    make(map[string]*model.Event),
		dirty:     make(map[string]bool),
		lastSaved: make(map[string]time.Time),
		codec:     codec,
		d:         d,
		dir:       dir,
	}, nil
}

func calendarTransform(key string) *diskv.PathKey {
	return &diskv.PathKey{Path: []string{}, FileName: key + docExtension}
}

func calendarInverseTransform(pk *diskv.PathKey) string {
	return strings.TrimSuffix(pk.FileName, docExtension)
}

// Subscribe returns a channel of change notifications. Slow subscribers
// drop notifications rather than blocking the writer.
func (s *Store) Subscribe() <-chan Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Change, 16)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) notifyLocked(c Change) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// calendarIDFor validates the event's calendar id, defaulting an empty
// one to "default".
func calendarIDFor(ev *model.Event) (string, error) {
	calID := ev.CalendarID
	if calID == "" {
		calID = "default"
	}
	if !calendarIDPattern.MatchString(calID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCalendarID, calID)
	}
	return calID, nil
}

// Put inserts or replaces an event. The stored copy is a clone; callers
// keep ownership of their argument.
func (s *Store) Put(ev *model.Event) error {
	if ev == nil || ev.ID == "" {
		return ErrMissingID
	}
	calID, err := calendarIDFor(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(ev, calID)
	return nil
}

func (s *Store) putLocked(ev *model.Event, calID string) {
	stored := ev.Clone()
	stored.CalendarID = calID
	if old, ok := s.events[ev.ID]; ok && old.CalendarID != calID {
		// Moving calendars dirties both documents.
		s.dirty[old.CalendarID] = true
	}
	s.events[ev.ID] = stored
	s.dirty[calID] = true
	s.notifyLocked(Change{Kind: ChangeEvents, CalendarID: calID})
}

// Create is Put with a must-not-exist check; it satisfies the drag
// controller's writer interface. The check and the insert happen under
// one lock acquisition so concurrent writers cannot race past it.
func (s *Store) Create(ev *model.Event) error {
	if ev == nil || ev.ID == "" {
		return ErrMissingID
	}
	calID, err := calendarIDFor(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[ev.ID]; exists {
		return fmt.Errorf("store: event %q already exists", ev.ID)
	}
	s.putLocked(ev, calID)
	return nil
}

// Update is Put with a must-exist check, held under the same lock
// acquisition as the write.
func (s *Store) Update(ev *model.Event) error {
	if ev == nil || ev.ID == "" {
		return ErrMissingID
	}
	calID, err := calendarIDFor(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[ev.ID]; !exists {
		return ErrNotFound
	}
	s.putLocked(ev, calID)
	return nil
}

// Get returns a clone of the event.
func (s *Store) Get(id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ev.Clone(), nil
}

// Delete removes an event. Deleting an event never cascades into linked
// tasks.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	s.dirty[ev.CalendarID] = true
	s.notifyLocked(Change{Kind: ChangeEvents, CalendarID: ev.CalendarID})
	return nil
}

// List returns clones of all events, ordered by start then id.
func (s *Store) List() []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(func(*model.Event) bool { return true })
}

// ListCalendar returns clones of one calendar's events.
func (s *Store) ListCalendar(calendarID string) []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(func(ev *model.Event) bool { return ev.CalendarID == calendarID })
}

// EventsForDay returns clones of the non-all-day events intersecting the
// calendar day beginning at dayStart.
func (s *Store) EventsForDay(dayStart time.Time) []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(func(ev *model.Event) bool {
		return !ev.AllDay && ev.IntersectsDay(dayStart)
	})
}

// TimedEvents returns clones of events carrying a timer; it implements
// the timer runtime's event source.
func (s *Store) TimedEvents() []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(func(ev *model.Event) bool { return ev.Timer != nil })
}

func (s *Store) listLocked(keep func(*model.Event) bool) []*model.Event {
	out := make([]*model.Event, 0, len(s.events))
	for _, ev := range s.events {
		if keep(ev) {
			out = append(out, ev.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DayBlocks projects a day's events into layout blocks in display-minute
// space, ready for layout.Compute. Wall-clock minutes are read in
// dayStart's location; stored instants may carry any zone. Ranges
// spilling over from the previous day clamp to the visible top, ranges
// running past the day clamp to the bottom.
func (s *Store) DayBlocks(dayStart time.Time, cfg timegrid.Config) []DayBlock {
	events := s.EventsForDay(dayStart)
	dayEnd := dayStart.Add(24 * time.Hour)
	loc := dayStart.Location()

	blocks := make([]DayBlock, 0, len(events))
	for _, ev := range events {
		start := 0
		if !ev.Start.Before(dayStart) {
			t := ev.Start.In(loc)
			start = timegrid.DisplayPosition(t.Hour()*60+t.Minute(), cfg.DayStartMinutes)
		}
		end := timegrid.MinutesPerDay
		if ev.End.Before(dayEnd) {
			t := ev.End.In(loc)
			end = timegrid.DisplayPosition(t.Hour()*60+t.Minute(), cfg.DayStartMinutes)
		}
		if end <= start {
			// Runs to (or past) the end of the visual day.
			end = timegrid.MinutesPerDay
		}
		blocks = append(blocks, DayBlock{Event: ev, Start: start, End: end})
	}
	return blocks
}

// DayBlock pairs an event with its display-minute range for one day
// column.
type DayBlock struct {
	Event *model.Event
	Start int
	End   int
}

// Load reads one calendar document from disk, replacing that calendar's
// in-memory events. A missing document yields an empty calendar.
func (s *Store) Load(calendarID string) error {
	if !calendarIDPattern.MatchString(calendarID) {
		return fmt.Errorf("%w: %q", ErrInvalidCalendarID, calendarID)
	}

	data, err := s.d.Read(calendarID)
	if err != nil {
		// diskv surfaces missing keys as file-not-found.
		s.replaceCalendar(calendarID, nil)
		return nil
	}

	events, err := s.codec.Decode(calendarID, data)
	if err != nil {
		return fmt.Errorf("store: decode %s: %w", calendarID, err)
	}
	s.replaceCalendar(calendarID, events)
	appLog.Info("calendar loaded", "calendar", calendarID, "event_count", len(events))
	return nil
}

func (s *Store) replaceCalendar(calendarID string, events []*model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ev := range s.events {
		if ev.CalendarID == calendarID {
			delete(s.events, id)
		}
	}
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
	delete(s.dirty, calendarID)
	s.notifyLocked(Change{Kind: ChangeReloaded, CalendarID: calendarID})
}

// LoadAll loads every document in the calendar directory. Decode failures
// leave that calendar empty and continue; the failure is logged, not
// fatal, so one broken file cannot take the application down.
func (s *Store) LoadAll() error {
	for key := range s.d.Keys(nil) {
		if err := s.Load(key); err != nil {
			appLog.Error("calendar load failed", err, "calendar", key)
		}
	}
	return nil
}

// Save writes one calendar's document. Documents are written even when
// the calendar has no events, so deleting the last event empties the file
// instead of resurrecting it on next load.
func (s *Store) Save(calendarID string) error {
	if !calendarIDPattern.MatchString(calendarID) {
		return fmt.Errorf("%w: %q", ErrInvalidCalendarID, calendarID)
	}

	events := s.ListCalendar(calendarID)
	doc, err := s.codec.EncodeCalendar(calendarID, events)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", calendarID, err)
	}

	if err := s.d.Write(calendarID, doc); err != nil {
		return fmt.Errorf("store: write %s: %w", calendarID, err)
	}

	s.mu.Lock()
	delete(s.dirty, calendarID)
	s.lastSaved[calendarID] = time.Now()
	s.mu.Unlock()
	appLog.Debug("calendar saved", "calendar", calendarID, "event_count", len(events))
	return nil
}

// SaveDirty persists every calendar with unsaved changes.
func (s *Store) SaveDirty() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	var firstErr error
	for _, id := range ids {
		if err := s.Save(id); err != nil {
			appLog.Error("autosave failed", err, "calendar", id)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SaveAll persists every calendar that has in-memory events.
func (s *Store) SaveAll() error {
	s.mu.Lock()
	seen := make(map[string]bool)
	for _, ev := range s.events {
		seen[ev.CalendarID] = true
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var firstErr error
	for _, id := range ids {
		if err := s.Save(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dirty reports the calendars with unsaved changes.
func (s *Store) Dirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
