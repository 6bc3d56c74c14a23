// Package ics maps between the in-memory event model and iCalendar
// documents, one document per logical calendar. Proprietary features
// (timer state, colors, task linkage, grouping) travel as X-GRIDCAL-*
// extension properties that standard readers ignore.
package ics

import (
	"bytes"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "gridcal/internal/log"
	"gridcal/internal/model"
)

// Extension property names. Decoding matches them case-insensitively
// because standard parsers normalize unknown property names.
const (
	propColor            = "x-gridcal-color"
	propIcon             = "x-gridcal-icon"
	propIconSize         = "x-gridcal-icon-size"
	propCalendarID       = "x-gridcal-calendar-id"
	propTimerState       = "x-gridcal-timer-state"
	propTimerStarted     = "x-gridcal-timer-started"
	propTimerAccumulated = "x-gridcal-timer-accumulated"
	propCompleted        = "x-gridcal-completed"
	propOriginalStart    = "x-gridcal-original-start"
	propOriginalEnd      = "x-gridcal-original-end"
	propGroupID          = "x-gridcal-group-id"
	propOrder            = "x-gridcal-order"
	propParentID         = "x-gridcal-parent-id"
	propTaskID           = "x-gridcal-task-id"
	propCollapsed        = "x-gridcal-collapsed"
	propEstimatedMin     = "x-gridcal-estimated-minutes"
)

// defaultEventDuration is assumed when a block carries DTSTART but no
// DTEND.
const defaultEventDuration = 30 * time.Minute

// Codec encodes and decodes calendar documents.
type Codec struct {
	// Location is the display timezone advertised on encoded documents.
	Location *time.Location

	// ProductID overrides the PRODID emitted on encode.
	ProductID string
}

// New returns a Codec for the given display location. A nil location
// falls back to time.Local.
func New(loc *time.Location) *Codec {
	if loc == nil {
		loc = time.Local
	}
	return &Codec{Location: loc, ProductID: "-//gridcal//calendar//EN"}
}

// Decode parses one calendar document into events.
//
// Per-block failures (missing UID, missing DTSTART) skip that block and
// keep decoding the rest; a document that fails to parse at all returns an
// error and the caller should treat the calendar as unavailable. Absent
// extension properties decode to unset fields, never to defaults.
//
// calendarID is assigned to events whose blocks carry no calendar-id
// extension property.
func (c *Codec) Decode(calendarID string, data []byte) ([]*model.Event, error) {
	if len(data) == 0 {
		return nil, errors.New("ics: empty document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	events := make([]*model.Event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, derr := c.decodeEvent(calendarID, ve)
		if derr != nil {
			appLog.Warn("ics: skipping event block", "calendar", calendarID, "reason", derr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Codec) decodeEvent(calendarID string, ve *ical.VEvent) (*model.Event, error) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return nil, errors.New("missing UID")
	}

	// A calendar resource with no start time is not representable.
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return nil, errors.New("missing DTSTART")
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, err
	}

	ev := &model.Event{
		ID:         uidProp.Value,
		Start:      start,
		CalendarID: calendarID,
		AllDay:     isAllDay(dtStart),
	}

	if end, eerr := ve.GetEndAt(); eerr == nil {
		ev.End = end
	} else {
		ev.End = start.Add(defaultEventDuration)
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}

	c.decodeExtensions(ev, ve)
	return ev, nil
}

// decodeExtensions reads the X-GRIDCAL-* properties into ev. Lookups go
// through a lowercase key map so MixedCase property names from foreign
// writers still match.
func (c *Codec) decodeExtensions(ev *model.Event, ve *ical.VEvent) {
	ext := make(map[string]string, len(ve.Properties))
	for _, p := range ve.Properties {
		key := strings.ToLower(p.IANAToken)
		if strings.HasPrefix(key, "x-gridcal-") {
			ext[key] = p.Value
		}
	}

	if v, ok := ext[propColor]; ok {
		ev.Color = v
	}
	if v, ok := ext[propIcon]; ok {
		if dec, err := url.QueryUnescape(v); err == nil {
			ev.Icon = dec
		} else {
			ev.Icon = v
		}
	}
	if v, ok := ext[propIconSize]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			ev.IconSize = n
		}
	}
	if v, ok := ext[propCalendarID]; ok && v != "" {
		ev.CalendarID = v
	}
	if v, ok := ext[propTaskID]; ok {
		ev.LinkedTaskID = v
	}
	if v, ok := ext[propCompleted]; ok {
		ev.Completed = strings.EqualFold(v, "TRUE")
	}
	if v, ok := ext[propCollapsed]; ok {
		ev.Collapsed = strings.EqualFold(v, "TRUE")
	}
	if v, ok := ext[propGroupID]; ok {
		ev.GroupID = v
	}
	if v, ok := ext[propParentID]; ok {
		ev.ParentID = v
	}
	if v, ok := ext[propOrder]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			ev.Order = &f
		}
	}
	if v, ok := ext[propEstimatedMin]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			ev.EstimatedMinutes = &n
		}
	}
	if t, ok := epochMillis(ext[propOriginalStart]); ok {
		ev.OriginalStart = &t
	}
	if t, ok := epochMillis(ext[propOriginalEnd]); ok {
		ev.OriginalEnd = &t
	}

	if v, ok := ext[propTimerState]; ok {
		timer := &model.Timer{State: model.TimerState(strings.ToLower(v))}
		switch timer.State {
		case model.TimerIdle, model.TimerRunning, model.TimerPaused:
		default:
			timer.State = model.TimerIdle
		}
		if ms, mok := ext[propTimerAccumulated]; mok {
			if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
				timer.AccumulatedMs = n
			}
		}
		if timer.State == model.TimerRunning {
			if t, tok := epochMillis(ext[propTimerStarted]); tok {
				timer.StartedAt = &t
			} else {
				// A running timer without a start instant is not a valid
				// state; demote to paused so the ledger survives.
				timer.State = model.TimerPaused
			}
		}
		ev.Timer = timer
	}
}

// Encode serializes events into one document per calendar, keyed by
// calendar ID. Only extension fields that are actually set are emitted, so
// "never set" and "cleared" stay distinguishable across round trips.
func (c *Codec) Encode(events []*model.Event) (map[string][]byte, error) {
	byCalendar := make(map[string][]*model.Event)
	for _, ev := range events {
		if ev == nil {
			continue
		}
		id := ev.CalendarID
		if id == "" {
			id = "default"
		}
		byCalendar[id] = append(byCalendar[id], ev)
	}

	out := make(map[string][]byte, len(byCalendar))
	for calID, evs := range byCalendar {
		doc, err := c.EncodeCalendar(calID, evs)
		if err != nil {
			return nil, err
		}
		out[calID] = doc
	}
	return out, nil
}

// EncodeCalendar serializes one calendar's events into a single document.
// Zero events yield a valid empty document, so an emptied calendar stays
// empty on the next load instead of resurrecting stale blocks.
func (c *Codec) EncodeCalendar(calendarID string, events []*model.Event) ([]byte, error) {
	// Stable block order keeps documents diffable.
	evs := make([]*model.Event, len(events))
	copy(evs, events)
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].Start.Equal(evs[j].Start) {
			return evs[i].Start.Before(evs[j].Start)
		}
		return evs[i].ID < evs[j].ID
	})

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(c.ProductID)
	cal.SetXWRCalName(calendarID)
	cal.SetXWRTimezone(c.Location.String())

	for _, ev := range evs {
		if ev == nil {
			continue
		}
		c.encodeEvent(cal, ev)
	}
	return []byte(cal.Serialize()), nil
}

func (c *Codec) encodeEvent(cal *ical.Calendar, ev *model.Event) {
	ve := cal.AddEvent(ev.ID)
	ve.SetDtStampTime(ev.Start.In(time.UTC))

	if ev.AllDay {
		ve.SetAllDayStartAt(ev.Start)
		// DTEND is emitted even when it equals DTSTART; omitting it would
		// make decode default the end to start+30m.
		ve.SetAllDayEndAt(ev.End)
	} else {
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
	}

	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}

	set := func(name, value string) {
		ve.SetProperty(ical.ComponentProperty(strings.ToUpper(name)), value)
	}

	if ev.Color != "" {
		set(propColor, ev.Color)
	}
	if ev.Icon != "" {
		set(propIcon, url.QueryEscape(ev.Icon))
	}
	if ev.IconSize != 0 {
		set(propIconSize, strconv.Itoa(ev.IconSize))
	}
	if ev.CalendarID != "" {
		set(propCalendarID, ev.CalendarID)
	}
	if ev.LinkedTaskID != "" {
		set(propTaskID, ev.LinkedTaskID)
	}
	if ev.Completed {
		set(propCompleted, "TRUE")
	}
	if ev.Collapsed {
		set(propCollapsed, "TRUE")
	}
	if ev.GroupID != "" {
		set(propGroupID, ev.GroupID)
	}
	if ev.ParentID != "" {
		set(propParentID, ev.ParentID)
	}
	if ev.Order != nil {
		set(propOrder, strconv.FormatFloat(*ev.Order, 'f', -1, 64))
	}
	if ev.EstimatedMinutes != nil {
		set(propEstimatedMin, strconv.Itoa(*ev.EstimatedMinutes))
	}
	if ev.OriginalStart != nil {
		set(propOriginalStart, strconv.FormatInt(ev.OriginalStart.UnixMilli(), 10))
	}
	if ev.OriginalEnd != nil {
		set(propOriginalEnd, strconv.FormatInt(ev.OriginalEnd.UnixMilli(), 10))
	}

	if ev.Timer != nil {
		set(propTimerState, string(ev.Timer.State))
		if ev.Timer.AccumulatedMs != 0 {
			set(propTimerAccumulated, strconv.FormatInt(ev.Timer.AccumulatedMs, 10))
		}
		if ev.Timer.State == model.TimerRunning && ev.Timer.StartedAt != nil {
			set(propTimerStarted, strconv.FormatInt(ev.Timer.StartedAt.UnixMilli(), 10))
		}
	}
}

// isAllDay mirrors the standard convention: VALUE=DATE or a date-only
// DTSTART value marks an all-day event.
func isAllDay(dtStart *ical.IANAProperty) bool {
	if params := dtStart.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(dtStart.Value, "T")
}

func epochMillis(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(n).UTC(), true
}
