package planner

import "strings"

// Range is a half-open minute-of-day interval [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether m lies in [Start, End).
func (r Range) Contains(m int) bool { return m >= r.Start && m < r.End }

// Peak window names.
const (
	PeakMorning   = "morning"
	PeakAfternoon = "afternoon"
	PeakEvening   = "evening"
	PeakLateNight = "late_night"
)

var peakWindows = map[string]Range{
	PeakMorning:   {Start: 420, End: 720},
	PeakAfternoon: {Start: 720, End: 1020},
	PeakEvening:   {Start: 1020, End: 1260},
	PeakLateNight: {Start: 1260, End: 1380},
}

// PeakWindows returns the known window names in day order.
func PeakWindows() []string {
	return []string{PeakMorning, PeakAfternoon, PeakEvening, PeakLateNight}
}

func canonicalPeak(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	return n
}

// KnownPeak reports whether name resolves to a window without falling back.
func KnownPeak(name string) bool {
	_, ok := peakWindows[canonicalPeak(name)]
	return ok
}

// ResolvePeak maps a window name to its range. Unknown names resolve to
// the morning window.
func ResolvePeak(name string) Range {
	if r, ok := peakWindows[canonicalPeak(name)]; ok {
		return r
	}
	return peakWindows[PeakMorning]
}
