package ics

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// vevent is one decoded VEVENT before recurrence expansion.
type vevent struct {
	UID         string
	Sequence    int
	Modified    string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Cancelled   bool
	Attendees   []domain.Attendee
	RRule       string
	ExDates     []time.Time
	Recurrence  *time.Time
}

func parseFeed(body []byte, window domain.Window) ([]domain.RawEvent, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	var (
		out       []domain.RawEvent
		base      []vevent
		overrides = make(map[string][]vevent)
	)
	for _, comp := range cal.Events() {
		ev, perr := decodeVEvent(comp)
		if perr != nil {
			out = append(out, domain.RawEvent{ProviderEventID: ev.UID, Err: perr})
			continue
		}
		if ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		base = append(base, ev)
	}

	for _, ev := range base {
		if ev.RRule == "" {
			if !ev.Cancelled && overlaps(ev.Start, ev.End, window) {
				out = append(out, rawEvent(ev, ev.UID))
			}
			continue
		}
		occurrences, err := expand(ev, overrides[ev.UID], window)
		if err != nil {
			out = append(out, domain.RawEvent{ProviderEventID: ev.UID, Err: err})
			continue
		}
		out = append(out, occurrences...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ProviderEventID < out[j].ProviderEventID
	})
	return out, nil
}

func decodeVEvent(ve *ical.VEvent) (vevent, error) {
	var ev vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = strings.TrimSpace(uid.Value)

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			ev.Sequence = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyLastModified); p != nil {
		ev.Modified = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		ev.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("invalid DTSTART: %w", err)
	}
	ev.Start = start.UTC()

	end, err := ve.GetEndAt()
	switch {
	case err == nil:
		ev.End = end.UTC()
	case isAllDay(ve):
		ev.End = ev.Start.Add(24 * time.Hour)
	default:
		ev.End = ev.Start
	}
	if ev.End.Before(ev.Start) {
		return ev, errors.New("DTEND before DTSTART")
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		if attendee, ok := decodeAttendee(p.Value, p.ICalParameters); ok {
			ev.Attendees = append(ev.Attendees, attendee)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = strings.TrimSpace(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tzid(p.ICalParameters)); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseICSTime(p.Value, tzid(p.ICalParameters)); err == nil {
			ev.Recurrence = &t
		}
	}
	return ev, nil
}

func decodeAttendee(value string, params map[string][]string) (domain.Attendee, bool) {
	email := strings.TrimSpace(value)
	if idx := strings.Index(strings.ToLower(email), "mailto:"); idx >= 0 {
		email = email[idx+len("mailto:"):]
	}
	if email == "" || !strings.Contains(email, "@") {
		return domain.Attendee{}, false
	}
	attendee := domain.Attendee{Email: email}
	if cn := params["CN"]; len(cn) > 0 {
		attendee.Name = strings.Trim(cn[0], `"`)
	}
	if ps := params["PARTSTAT"]; len(ps) > 0 {
		attendee.ResponseStatus = responseStatus(ps[0])
	}
	return attendee, true
}

func responseStatus(partstat string) string {
	switch strings.ToUpper(strings.TrimSpace(partstat)) {
	case "ACCEPTED":
		return "accepted"
	case "DECLINED":
		return "declined"
	case "TENTATIVE":
		return "tentative"
	case "NEEDS-ACTION":
		return "needsAction"
	default:
		return strings.ToLower(partstat)
	}
}

func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzid(params map[string][]string) string {
	if tz := params["TZID"]; len(tz) > 0 {
		return tz[0]
	}
	return ""
}

// parseICSTime parses DATE and DATE-TIME values, honouring a TZID parameter when present.
func parseICSTime(v, tz string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// version combines SEQUENCE and LAST-MODIFIED into the provider modification marker.
func (ev vevent) version() string {
	if ev.Modified == "" && ev.Sequence == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%s", ev.Sequence, ev.Modified)
}

func rawEvent(ev vevent, providerID string) domain.RawEvent {
	return domain.RawEvent{
		ProviderEventID: providerID,
		Title:           ev.Summary,
		Description:     ev.Description,
		StartAt:         ev.Start,
		EndAt:           ev.End,
		Location:        ev.Location,
		Attendees:       ev.Attendees,
		Version:         ev.version(),
	}
}

func overlaps(start, end time.Time, window domain.Window) bool {
	if end.Equal(start) {
		return window.Contains(start)
	}
	return start.Before(window.End) && end.After(window.Start)
}
