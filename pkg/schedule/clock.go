package schedule

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Clock is a facility-local time of day expressed in minutes since midnight.
type Clock int

const (
	Midnight Clock = 0
	EndOfDay Clock = 24 * 60
)

// ParseClock parses a 24-hour "HH:MM" value. "24:00" is accepted as the end of day.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q; expected HH:MM", s)
	}

	hour, ok := twoDigits(parts[0])
	if !ok {
		return 0, fmt.Errorf("invalid time %q; expected HH:MM", s)
	}
	minute, ok := twoDigits(parts[1])
	if !ok {
		return 0, fmt.Errorf("invalid time %q; expected HH:MM", s)
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time %q is out of range", s)
	}

	return Clock(hour*60 + minute), nil
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time must be a string in HH:MM format")
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is a half-open interval [Start, End) on a single day.
type Window struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func NewWindow(start, end Clock) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// ParseWindow builds a window from two "HH:MM" values.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	return NewWindow(s, e)
}

// ParseRange parses the compact "HH:MM-HH:MM" notation used in directory files.
func ParseRange(s string) (Window, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid window %q; expected HH:MM-HH:MM", s)
	}
	return ParseWindow(parts[0], parts[1])
}

func MustParseRange(s string) Window {
	w, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return w
}

func (w Window) Validate() error {
	if w.Start < Midnight || w.End > EndOfDay {
		return fmt.Errorf("window %s is outside the day", w)
	}
	if w.Start >= w.End {
		return fmt.Errorf("window start %s must be before end %s", w.Start, w.End)
	}
	return nil
}

// Overlaps reports whether two half-open windows share any minute.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

func (w Window) Contains(o Window) bool {
	return w.Start <= o.Start && o.End <= w.End
}

func (w Window) Duration() time.Duration {
	return time.Duration(w.End-w.Start) * time.Minute
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Windows is stored as a JSON array of {"start","end"} objects.
type Windows []Window

func (ws Windows) Sorted() Windows {
	out := make(Windows, len(ws))
	copy(out, ws)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start == out[j].Start {
			return out[i].End < out[j].End
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// OverlapsAny reports whether w overlaps any window in ws.
func (ws Windows) OverlapsAny(w Window) bool {
	for _, o := range ws {
		if o.Overlaps(w) {
			return true
		}
	}
	return false
}

func (ws Windows) Value() (driver.Value, error) {
	if ws == nil {
		return "[]", nil
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (ws *Windows) Scan(src interface{}) error {
	return scanJSON(src, ws)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
}
