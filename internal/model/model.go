package model

import "time"

// DateLayout is the calendar-date key format used for per-day state
// (imported events, adjustments, block state).
const DateLayout = "20060102"

// Occurrence represents a single concrete instance of an imported event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary  string
	Location string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

// CalendarEvent is the day-keyed shape imported events are stored in and
// handed to the planner. Times are 24-hour "HH:MM" in the display
// timezone; Date is "YYYYMMDD".
type CalendarEvent struct {
	SourceID        string `json:"source_id,omitempty"`
	Summary         string `json:"summary"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration"`
	Date            string `json:"date"`
}

// Settings is the user-editable planner configuration snapshot. Clock
// fields are kept as the hour/minute/period strings the settings form
// edits.
type Settings struct {
	DayStart   ClockField `json:"day_start" yaml:"day_start"`
	DayEnd     ClockField `json:"day_end" yaml:"day_end"`
	FocusHours float64    `json:"focus_hours" yaml:"focus_hours"`
	PeakWindow string     `json:"peak_window" yaml:"peak_window"`
	ShortBreak int        `json:"short_break" yaml:"short_break"`
	LongBreak  int        `json:"long_break" yaml:"long_break"`
	Muted      bool       `json:"muted" yaml:"muted"`
}

// ClockField is a 12-hour clock reading as entered in the settings form.
type ClockField struct {
	Hour   string `json:"hour" yaml:"hour"`
	Minute string `json:"minute" yaml:"minute"`
	Period string `json:"period" yaml:"period"`
}

// SettingsPatch carries a partial settings update; nil fields are left
// untouched. Voice integrations call back through this shape.
type SettingsPatch struct {
	DayStart   *ClockField `json:"day_start,omitempty"`
	DayEnd     *ClockField `json:"day_end,omitempty"`
	FocusHours *float64    `json:"focus_hours,omitempty"`
	PeakWindow *string     `json:"peak_window,omitempty"`
	ShortBreak *int        `json:"short_break,omitempty"`
	LongBreak  *int        `json:"long_break,omitempty"`
	Muted      *bool       `json:"muted,omitempty"`
}

// Apply returns a copy of s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.DayStart != nil {
		s.DayStart = *p.DayStart
	}
	if p.DayEnd != nil {
		s.DayEnd = *p.DayEnd
	}
	if p.FocusHours != nil {
		s.FocusHours = *p.FocusHours
	}
	if p.PeakWindow != nil {
		s.PeakWindow = *p.PeakWindow
	}
	if p.ShortBreak != nil {
		s.ShortBreak = *p.ShortBreak
	}
	if p.LongBreak != nil {
		s.LongBreak = *p.LongBreak
	}
	if p.Muted != nil {
		s.Muted = *p.Muted
	}
	return s
}

// BlockState is the UI progress marker persisted per block.
type BlockState string

const (
	BlockCompleted BlockState = "completed"
	BlockActive    BlockState = "active"
	BlockPending   BlockState = ""
)
