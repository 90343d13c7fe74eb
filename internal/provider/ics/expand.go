package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// maxOccurrences caps the instances produced for one recurring event inside a window.
const maxOccurrences = 500

// instanceID names one occurrence of a recurring event: UID plus its original start in UTC.
func instanceID(uid string, start time.Time) string {
	return uid + "/" + start.UTC().Format("20060102T150405Z")
}

// expand turns a recurring VEVENT into the occurrences that overlap window. Overrides
// (RECURRENCE-ID) replace the matching instance and keep its instance id.
func expand(ev vevent, overrides []vevent, window domain.Window) ([]domain.RawEvent, error) {
	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", ev.RRule, err)
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.UTC())
	}

	duration := ev.End.Sub(ev.Start)
	byStart := make(map[int64]vevent, len(overrides))
	for _, o := range overrides {
		byStart[o.Recurrence.Unix()] = o
	}

	// Widen the lower bound by the duration so meetings that started before the window but
	// run into it are kept.
	starts := set.Between(window.Start.Add(-duration), window.End, true)
	out := make([]domain.RawEvent, 0, len(starts)+1)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
		// Reported under the series UID so the skipped instances are not read as deleted.
		out = append(out, domain.RawEvent{
			ProviderEventID: ev.UID,
			Err:             fmt.Errorf("more than %d occurrences in window, later instances skipped", maxOccurrences),
		})
	}

	for _, start := range starts {
		start = start.UTC()
		instance := ev
		instance.Start = start
		instance.End = start.Add(duration)
		if o, ok := byStart[start.Unix()]; ok {
			instance = o
		}
		if instance.Cancelled || !overlaps(instance.Start, instance.End, window) {
			continue
		}
		out = append(out, rawEvent(instance, instanceID(ev.UID, start)))
	}
	return out, nil
}
