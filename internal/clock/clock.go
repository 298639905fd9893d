package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the exclusive upper bound of a minute-of-day value.
const MinutesPerDay = 24 * 60

// ErrInvalidClock is returned for clock values outside their documented
// ranges. Values are never clamped.
var ErrInvalidClock = errors.New("invalid clock time")

// Period is the AM/PM half of a 12-hour clock reading.
type Period int

const (
	AM Period = iota
	PM
)

func (p Period) String() string {
	if p == PM {
		return "PM"
	}
	return "AM"
}

// ParsePeriod accepts "AM"/"PM" in any case, with or without dots.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), ".", "")) {
	case "AM":
		return AM, nil
	case "PM":
		return PM, nil
	default:
		return AM, fmt.Errorf("%w: unknown period %q", ErrInvalidClock, s)
	}
}

// ClockTime is a 12-hour wall clock reading.
type ClockTime struct {
	Hour   int    `json:"hour"`   // 1..12
	Minute int    `json:"minute"` // 0..59
	Period Period `json:"period"`
}

// Validate reports whether c lies in the 12-hour domain.
func (c ClockTime) Validate() error {
	if c.Hour < 1 || c.Hour > 12 {
		return fmt.Errorf("%w: hour %d not in 1..12", ErrInvalidClock, c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("%w: minute %d not in 0..59", ErrInvalidClock, c.Minute)
	}
	if c.Period != AM && c.Period != PM {
		return fmt.Errorf("%w: period %d", ErrInvalidClock, c.Period)
	}
	return nil
}

// MinuteOfDay converts c to 0..1439 (12:00 AM is 0, 12:00 PM is 720).
func (c ClockTime) MinuteOfDay() (int, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	m := (c.Hour%12)*60 + c.Minute
	if c.Period == PM {
		m += 720
	}
	return m, nil
}

// String renders c as "8:05 AM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%d:%02d %s", c.Hour, c.Minute, c.Period)
}

// FromMinuteOfDay is the inverse of ClockTime.MinuteOfDay.
func FromMinuteOfDay(m int) (ClockTime, error) {
	if m < 0 || m >= MinutesPerDay {
		return ClockTime{}, fmt.Errorf("%w: minute of day %d not in 0..1439", ErrInvalidClock, m)
	}
	p := AM
	if m >= 720 {
		p = PM
	}
	h := (m / 60) % 12
	if h == 0 {
		h = 12
	}
	return ClockTime{Hour: h, Minute: m % 60, Period: p}, nil
}

// Parse12 builds a ClockTime from the hour, minute and period strings the
// settings form stores.
func Parse12(hour, minute, period string) (ClockTime, error) {
	h, err := strconv.Atoi(strings.TrimSpace(hour))
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: hour %q", ErrInvalidClock, hour)
	}
	m, err := strconv.Atoi(strings.TrimSpace(minute))
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: minute %q", ErrInvalidClock, minute)
	}
	p, err := ParsePeriod(period)
	if err != nil {
		return ClockTime{}, err
	}
	c := ClockTime{Hour: h, Minute: m, Period: p}
	return c, c.Validate()
}

// ParseClock parses "8:00 AM" / "12:30pm" style strings used in config files.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	body, period := strings.TrimSpace(s[:len(s)-2]), s[len(s)-2:]
	hour, minute, ok := strings.Cut(body, ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Parse12(hour, minute, period)
}

// ParseHHMM parses a 24-hour "HH:MM" value into a minute of day. "24:00"
// is accepted as 1440 and marks the end of the day.
func ParseHHMM(s string) (int, error) {
	hour, minute, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hour)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(minute)
	if err != nil || len(minute) != 2 {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidClock, s)
	}
	if h == 24 && m == 0 {
		return MinutesPerDay, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

func mustMinute(m int) {
	if m < 0 || m >= MinutesPerDay {
		panic(fmt.Sprintf("clock: minute of day %d out of range", m))
	}
}

// Format24 renders a minute of day as zero-padded "HH:MM".
// It panics if m is outside 0..1439.
func Format24(m int) string {
	mustMinute(m)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Format12 renders a minute of day as "h:mm am" / "h:mm pm".
// It panics if m is outside 0..1439.
func Format12(m int) string {
	mustMinute(m)
	c, _ := FromMinuteOfDay(m)
	return fmt.Sprintf("%d:%02d %s", c.Hour, c.Minute, strings.ToLower(c.Period.String()))
}
