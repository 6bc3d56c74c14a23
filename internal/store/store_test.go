package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gridcal/internal/ics"
	"gridcal/internal/layout"
	"gridcal/internal/model"
	"gridcal/internal/timegrid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), ics.New(time.UTC))
	require.NoError(t, err)
	return s
}

func utc(y int, mo time.Month, d, h, mi int) time.Time {
	return time.Date(y, mo, d, h, mi, 0, 0, time.UTC)
}

func TestCRUD(t *testing.T) {
	s := newTestStore(t)

	ev := &model.Event{
		ID:         "ev-1",
		Title:      "Standup",
		Start:      utc(2025, 3, 10, 9, 0),
		End:        utc(2025, 3, 10, 9, 15),
		CalendarID: "work",
	}
	require.NoError(t, s.Create(ev))
	require.Error(t, s.Create(ev), "duplicate create must fail")

	got, err := s.Get("ev-1")
	require.NoError(t, err)
	require.Equal(t, "Standup", got.Title)

	// The stored copy is isolated from caller mutation.
	ev.Title = "changed externally"
	got, err = s.Get("ev-1")
	require.NoError(t, err)
	require.Equal(t, "Standup", got.Title)

	got.Title = "Renamed"
	require.NoError(t, s.Update(got))
	got, err = s.Get("ev-1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Title)

	require.NoError(t, s.Delete("ev-1"))
	_, err = s.Get("ev-1")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete("ev-1"), ErrNotFound)
	require.ErrorIs(t, s.Update(&model.Event{ID: "ghost"}), ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	codec := ics.New(time.UTC)

	s, err := New(dir, codec)
	require.NoError(t, err)

	require.NoError(t, s.Put(&model.Event{
		ID:         "ev-1",
		Title:      "Focus",
		Start:      utc(2025, 3, 10, 9, 0),
		End:        utc(2025, 3, 10, 11, 0),
		CalendarID: "work",
		Color:      model.ColorBlue,
	}))
	require.NoError(t, s.Put(&model.Event{
		ID:         "ev-2",
		Title:      "Gym",
		Start:      utc(2025, 3, 10, 18, 0),
		End:        utc(2025, 3, 10, 19, 0),
		CalendarID: "personal",
	}))

	require.Equal(t, []string{"personal", "work"}, s.Dirty())
	require.NoError(t, s.SaveDirty())
	require.Empty(t, s.Dirty())

	// One document per calendar on disk.
	for _, name := range []string{"work.ics", "personal.ics"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
	}

	// A fresh store sees the same events.
	s2, err := New(dir, codec)
	require.NoError(t, err)
	require.NoError(t, s2.LoadAll())

	all := s2.List()
	require.Len(t, all, 2)
	require.Equal(t, "ev-1", all[0].ID)
	require.Equal(t, model.ColorBlue, all[0].Color)
	require.Equal(t, "ev-2", all[1].ID)
	require.Equal(t, "personal", all[1].CalendarID)
}

func TestDeletingLastEventEmptiesDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, ics.New(time.UTC))
	require.NoError(t, err)

	require.NoError(t, s.Put(&model.Event{
		ID: "ev-1", Title: "Solo",
		Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0),
		CalendarID: "work",
	}))
	require.NoError(t, s.SaveDirty())
	require.NoError(t, s.Delete("ev-1"))
	require.NoError(t, s.SaveDirty())

	s2, err := New(dir, ics.New(time.UTC))
	require.NoError(t, err)
	require.NoError(t, s2.LoadAll())
	require.Empty(t, s2.List())
}

func TestEventsForDayFiltersAllDayAndOtherDays(t *testing.T) {
	s := newTestStore(t)
	day := utc(2025, 3, 10, 0, 0)

	require.NoError(t, s.Put(&model.Event{
		ID: "in", Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0), CalendarID: "work",
	}))
	require.NoError(t, s.Put(&model.Event{
		ID: "all-day", Start: day, End: day, AllDay: true, CalendarID: "work",
	}))
	require.NoError(t, s.Put(&model.Event{
		ID: "tomorrow", Start: utc(2025, 3, 11, 9, 0), End: utc(2025, 3, 11, 10, 0), CalendarID: "work",
	}))

	got := s.EventsForDay(day)
	require.Len(t, got, 1)
	require.Equal(t, "in", got[0].ID)
}

func TestDayBlocksFeedLayout(t *testing.T) {
	s := newTestStore(t)
	day := utc(2025, 3, 10, 0, 0)
	cfg := timegrid.Config{HourHeightPx: 60, DayStartMinutes: 0, SnapMinutes: 15}

	require.NoError(t, s.Put(&model.Event{ID: "a", Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0), CalendarID: "work"}))
	require.NoError(t, s.Put(&model.Event{ID: "b", Start: utc(2025, 3, 10, 9, 30), End: utc(2025, 3, 10, 10, 30), CalendarID: "work"}))

	blocks := s.DayBlocks(day, cfg)
	require.Len(t, blocks, 2)

	lb := make([]layout.Block, len(blocks))
	for i, b := range blocks {
		lb[i] = layout.Block{ID: b.Event.ID, Start: b.Start, End: b.End}
	}
	placed := layout.Compute(lb)
	require.Equal(t, 2, placed["a"].TotalColumns)
	require.NotEqual(t, placed["a"].Column, placed["b"].Column)
}

func TestDayBlocksUseDisplayLocation(t *testing.T) {
	// Events loaded from disk carry UTC instants; the grid's wall clock is
	// the queried day's zone, not the instant's own.
	zone := time.FixedZone("UTC+2", 2*60*60)
	s := newTestStore(t)

	require.NoError(t, s.Put(&model.Event{
		ID:         "a",
		Start:      utc(2025, 3, 10, 5, 0), // 07:00 local
		End:        utc(2025, 3, 10, 6, 0),
		CalendarID: "work",
	}))

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, zone)
	cfg := timegrid.Config{HourHeightPx: 60, DayStartMinutes: 0, SnapMinutes: 15}

	blocks := s.DayBlocks(day, cfg)
	require.Len(t, blocks, 1)
	require.Equal(t, 7*60, blocks[0].Start)
	require.Equal(t, 8*60, blocks[0].End)
}

func TestDayBlocksClampSpilloverToDayEdges(t *testing.T) {
	s := newTestStore(t)
	day := utc(2025, 3, 10, 0, 0)
	cfg := timegrid.Config{HourHeightPx: 60, DayStartMinutes: 0, SnapMinutes: 15}

	// Starts the previous evening, ends at 01:00 on the queried day.
	require.NoError(t, s.Put(&model.Event{
		ID: "from-yesterday", Start: utc(2025, 3, 9, 23, 0), End: utc(2025, 3, 10, 1, 0), CalendarID: "work",
	}))
	// Runs past the end of the queried day.
	require.NoError(t, s.Put(&model.Event{
		ID: "into-tomorrow", Start: utc(2025, 3, 10, 23, 0), End: utc(2025, 3, 11, 1, 0), CalendarID: "work",
	}))

	blocks := s.DayBlocks(day, cfg)
	require.Len(t, blocks, 2)

	byID := make(map[string]DayBlock, len(blocks))
	for _, b := range blocks {
		byID[b.Event.ID] = b
	}
	require.Equal(t, 0, byID["from-yesterday"].Start)
	require.Equal(t, 60, byID["from-yesterday"].End)
	require.Equal(t, 23*60, byID["into-tomorrow"].Start)
	require.Equal(t, timegrid.MinutesPerDay, byID["into-tomorrow"].End)
}

func TestConcurrentCreateAdmitsExactlyOne(t *testing.T) {
	s := newTestStore(t)

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Create(&model.Event{
				ID: "contested", Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0), CalendarID: "work",
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	require.Equal(t, 1, ok, "exactly one create may win")
	require.Len(t, s.List(), 1)
}

func TestSubscribeDeliversChanges(t *testing.T) {
	s := newTestStore(t)
	ch := s.Subscribe()

	require.NoError(t, s.Put(&model.Event{
		ID: "ev-1", Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0), CalendarID: "work",
	}))

	select {
	case c := <-ch:
		require.Equal(t, ChangeEvents, c.Kind)
		require.Equal(t, "work", c.CalendarID)
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestInvalidCalendarIDRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Put(&model.Event{
		ID: "ev-1", Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0),
		CalendarID: "../escape",
	})
	require.ErrorIs(t, err, ErrInvalidCalendarID)
}

type fakeTasks struct {
	tasks []model.Task
}

func (f *fakeTasks) ScheduledBetween(_ context.Context, from, to time.Time) ([]model.Task, error) {
	var out []model.Task
	for _, t := range f.tasks {
		if t.ScheduledTime != nil && !t.ScheduledTime.Before(from) && t.ScheduledTime.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) Lookup(_ context.Context, id string) (model.Task, error) {
	for _, t := range f.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return model.Task{}, ErrNotFound
}

func TestMergedDayInterleavesTaskBlocks(t *testing.T) {
	s := newTestStore(t)
	day := utc(2025, 3, 10, 0, 0)

	require.NoError(t, s.Put(&model.Event{
		ID: "ev-1", Title: "Meeting",
		Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0), CalendarID: "work",
	}))

	at := utc(2025, 3, 10, 8, 0)
	other := utc(2025, 3, 11, 8, 0)
	tasks := &fakeTasks{tasks: []model.Task{
		{ID: "t1", Content: "Write report", EstimatedMinutes: 90, ScheduledTime: &at},
		{ID: "t2", Content: "Off-day task", ScheduledTime: &other},
	}}

	merged, err := s.MergedDay(context.Background(), day, tasks)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	require.Equal(t, "task:t1", merged[0].ID)
	require.True(t, IsTaskBlock(merged[0].ID))
	require.Equal(t, "Write report", merged[0].Title)
	require.Equal(t, "t1", merged[0].LinkedTaskID)
	require.True(t, merged[0].End.Equal(at.Add(90*time.Minute)))

	require.Equal(t, "ev-1", merged[1].ID)
	require.False(t, IsTaskBlock(merged[1].ID))
}

func TestWatchStopsOnCancel(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchReloadsExternalEdit(t *testing.T) {
	dir := t.TempDir()
	codec := ics.New(time.UTC)
	s, err := New(dir, codec)
	require.NoError(t, err)

	ch := s.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Watch(ctx)
	time.Sleep(50 * time.Millisecond)

	// Simulate another process writing a calendar document.
	doc, err := codec.EncodeCalendar("shared", []*model.Event{{
		ID: "ext-1", Title: "External",
		Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0),
		CalendarID: "shared",
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared.ics"), doc, 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case c := <-ch:
			if c.Kind == ChangeReloaded && c.CalendarID == "shared" {
				got, gerr := s.Get("ext-1")
				require.NoError(t, gerr)
				require.Equal(t, "External", got.Title)
				return
			}
		case <-deadline:
			t.Fatal("no reload notification")
		}
	}
}

func TestAutosaveFlushesOnStop(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, ics.New(time.UTC))
	require.NoError(t, err)

	require.NoError(t, s.Put(&model.Event{
		ID: "ev-1", Title: "Pending",
		Start: utc(2025, 3, 10, 9, 0), End: utc(2025, 3, 10, 10, 0), CalendarID: "work",
	}))

	stop, err := s.StartAutosave("* * * * *")
	require.NoError(t, err)
	stop()

	_, err = os.Stat(filepath.Join(dir, "work.ics"))
	require.NoError(t, err)
}

func TestStartAutosaveRejectsBadSpec(t *testing.T) {
	s := newTestStore(t)
	_, err := s.StartAutosave("not a cron spec")
	require.Error(t, err)
}
