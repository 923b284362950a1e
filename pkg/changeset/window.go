package changeset

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidWindow is returned for unparseable or inverted time windows.
var ErrInvalidWindow = errors.New("invalid time window")

// Input layouts accepted by NormalizeWindow, most specific first.
const (
	layoutSeconds = "2006-01-02T15:04:05"
	layoutMinutes = "2006-01-02T15:04"
	layoutDate    = "2006-01-02"
)

// Window is a query interval in UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// String renders the window for user-facing messages.
func (w Window) String() string {
	return fmt.Sprintf("%s to %s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// EndsBefore reports whether the whole window lies before t.
func (w Window) EndsBefore(t time.Time) bool {
	return w.End.Before(t)
}

// NormalizeWindow turns raw start/end inputs into a Window.
//
// Inputs are dates (2006-01-02) or date-times with minute or second precision
// (2006-01-02T15:04[:05]), optionally suffixed with Z; all are read as UTC. A
// missing start time means the start of that day; a missing end time means the
// end of that day, and an end with minute precision covers that whole minute.
// An empty start means today (relative to now); an empty end means the end of
// the start's day.
func NormalizeWindow(startRaw, endRaw string, now time.Time) (Window, error) {
	startRaw = strings.TrimSpace(startRaw)
	endRaw = strings.TrimSpace(endRaw)

	if startRaw == "" {
		startRaw = now.UTC().Format(layoutDate)
	}

	start, err := parseBound(startRaw, false)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start %q: %v", ErrInvalidWindow, startRaw, err)
	}

	var end time.Time
	if endRaw == "" {
		end = endOfDay(start)
	} else {
		end, err = parseBound(endRaw, true)
		if err != nil {
			return Window{}, fmt.Errorf("%w: end %q: %v", ErrInvalidWindow, endRaw, err)
		}
	}

	if end.Before(start) {
		return Window{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	return Window{Start: start, End: end}, nil
}

// parseBound parses one bound, filling the missing clock portion with the
// start (isEnd=false) or end (isEnd=true) of the omitted period.
func parseBound(raw string, isEnd bool) (time.Time, error) {
	value := strings.TrimSuffix(strings.TrimSuffix(raw, "Z"), "z")

	if t, err := time.Parse(layoutSeconds, value); err == nil {
		return t, nil
	}

	if t, err := time.Parse(layoutMinutes, value); err == nil {
		if isEnd {
			return t.Add(59 * time.Second), nil
		}
		return t, nil
	}

	t, err := time.Parse(layoutDate, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or YYYY-MM-DDThh:mm[:ss]")
	}
	if isEnd {
		return endOfDay(t), nil
	}
	return t, nil
}

// endOfDay returns 23:59:59 on t's date.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}
