// Package scheduler computes task due-times from a schedule string and
// drives the periodic tick loop that fires due tasks onto the Event Bus.
package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// NextRunTS returns the next unix timestamp (seconds) at or after which
// schedule next fires, strictly after afterTS. It returns nil when the
// schedule has no future occurrence. occurred is the number of times
// the schedule has already fired, used to honor an RRULE's COUNT limit;
// it is ignored for one-shot timestamp schedules.
//
// schedule is either an RRULE string ("RRULE:FREQ=DAILY;INTERVAL=1...")
// or an RFC 3339 / ISO-8601 timestamp for a one-shot task.
func NextRunTS(schedule string, afterTS int64, occurred int) (*int64, error) {
	schedule = strings.TrimSpace(schedule)
	if strings.HasPrefix(strings.ToUpper(schedule), "RRULE:") {
		next, err := nextRRuleOccurrence(schedule, afterTS, occurred)
		if err != nil {
			return nil, err
		}
		return next, nil
	}

	t, err := parseScheduleTime(schedule)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule format: %s", schedule)
	}
	ts := t.Unix()
	if ts <= afterTS {
		return nil, nil
	}
	return &ts, nil
}

func parseScheduleTime(schedule string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, schedule); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp")
}

func nextRRuleOccurrence(schedule string, afterTS int64, occurred int) (*int64, error) {
	body := schedule[len("RRULE:"):]
	rule, err := parseRRule(body)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid RRULE: %w", err)
	}
	after := time.Unix(afterTS, 0).UTC()
	next := rule.after(after, occurred)
	if next == nil {
		return nil, nil
	}
	ts := next.Unix()
	return &ts, nil
}
