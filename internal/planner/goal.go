package planner

// OnTargetThreshold is the largest |scheduled - goal| still considered on target.
const OnTargetThreshold = 15

// Direction is the kind of adjustment offered for an off-target day.
type Direction string

const (
	AddFocus    Direction = "add"
	ReduceFocus Direction = "reduce"
)

// GoalStatus compares a generated schedule against the stated goal.
type GoalStatus struct {
	Goal      int  `json:"goal"`
	Scheduled int  `json:"scheduled"`
	Diff      int  `json:"diff"`
	OnTarget  bool `json:"on_target"`

	// Direction and Minutes describe the offered adjustment; both are zero
	// when the day is on target.
	Direction Direction `json:"direction,omitempty"`
	Minutes   int       `json:"minutes,omitempty"`
}

// Track sums Focus and Meeting minutes and derives the adjustment to offer.
func Track(blocks []ScheduleBlock, goal int) GoalStatus {
	scheduled := 0
	for _, b := range blocks {
		if b.Kind.IsExertion() {
			scheduled += b.DurationMinutes
		}
	}

	st := GoalStatus{Goal: goal, Scheduled: scheduled, Diff: scheduled - goal}
	switch {
	case abs(st.Diff) < OnTargetThreshold:
		st.OnTarget = true
	case st.Diff < 0:
		st.Direction = AddFocus
		st.Minutes = max(60, roundUp(-st.Diff, 60))
	default:
		st.Direction = ReduceFocus
		st.Minutes = roundNearest(st.Diff, 15)
	}
	return st
}

// Signed returns the suggestion as signed minutes to add to the goal.
func (g GoalStatus) Signed() int {
	if g.Direction == ReduceFocus {
		return -g.Minutes
	}
	return g.Minutes
}

// Adjustments maps a "YYYYMMDD" date to signed goal minutes. Values are
// treated as immutable: With and WithHours return a new map.
type Adjustments map[string]int

// For returns the adjustment for date, or 0.
func (a Adjustments) For(date string) int { return a[date] }

// With returns a copy with delta minutes added to date's adjustment.
// A resulting zero removes the entry.
func (a Adjustments) With(date string, delta int) Adjustments {
	out := make(Adjustments, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	out[date] += delta
	if out[date] == 0 {
		delete(out, date)
	}
	return out
}

// WithHours is With for a signed hour count.
func (a Adjustments) WithHours(date string, hours int) Adjustments {
	return a.With(date, hours*60)
}

// Without returns a copy with date's adjustment cleared.
func (a Adjustments) Without(date string) Adjustments {
	out := make(Adjustments, len(a))
	for k, v := range a {
		if k != date {
			out[k] = v
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func roundUp(n, unit int) int {
	return (n + unit - 1) / unit * unit
}

func roundNearest(n, unit int) int {
	return (n + unit/2) / unit * unit
}
