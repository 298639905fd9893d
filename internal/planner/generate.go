package planner

import (
	"fmt"

	"dayplan/internal/clock"
)

// Policy holds the numeric knobs of the sweep. Caps is keyed by the
// generated kinds; the Focus entry is the off-peak focus cap.
type Policy struct {
	Caps map[Kind]int

	// PeakFocusCap replaces the Focus cap while the cursor is inside the
	// peak range. Must not be smaller than Caps[Focus].
	PeakFocusCap int

	// WellnessMinGap is the smallest free gap that may hold a wellness
	// break instead of a short break.
	WellnessMinGap int

	// LunchWindow is where the once-a-day lunch block may start.
	LunchWindow Range
}

// DefaultPolicy returns the reference caps.
func DefaultPolicy() Policy {
	return Policy{
		Caps: map[Kind]int{
			Focus:    45,
			Break:    15,
			Wellness: 45,
			Lunch:    60,
			Hobby:    60,
		},
		PeakFocusCap:   90,
		WellnessMinGap: 90,
		LunchWindow:    Range{Start: 780, End: 840},
	}
}

// Config is the per-call generator input. It is never retained.
type Config struct {
	// Date is the "YYYYMMDD" key the schedule is for; it seeds block IDs
	// and selects the adjustment.
	Date string

	DayStart int
	DayEnd   int

	// FocusGoal is the stated goal in minutes, before adjustment.
	FocusGoal int
	Peak      Range

	// ShortBreak and LongBreak override the Break and Lunch caps when
	// positive.
	ShortBreak int
	LongBreak  int

	Adjustments Adjustments

	// Policy defaults to DefaultPolicy when Caps is nil.
	Policy Policy
}

// EffectiveGoal is FocusGoal plus the adjustment for Date, floored at 0.
func (c Config) EffectiveGoal() int {
	return max(0, c.FocusGoal+c.Adjustments.For(c.Date))
}

func (c Config) resolvedPolicy() Policy {
	p := c.Policy
	if p.Caps == nil {
		p = DefaultPolicy()
	}
	caps := make(map[Kind]int, len(p.Caps))
	for k, v := range p.Caps {
		caps[k] = v
	}
	if c.ShortBreak > 0 {
		caps[Break] = c.ShortBreak
	}
	if c.LongBreak > 0 {
		caps[Lunch] = c.LongBreak
	}
	p.Caps = caps
	return p
}

func (p Policy) validate() error {
	for _, k := range []Kind{Focus, Break, Wellness, Lunch, Hobby} {
		if p.Caps[k] <= 0 {
			return fmt.Errorf("%w: %s cap must be positive", ErrInvalidInput, k)
		}
	}
	if p.PeakFocusCap < p.Caps[Focus] {
		return fmt.Errorf("%w: peak focus cap %d below off-peak cap %d", ErrInvalidInput, p.PeakFocusCap, p.Caps[Focus])
	}
	return nil
}

// sweepInput is the read-only context of one generation run.
type sweepInput struct {
	date     string
	dayStart int
	dayEnd   int
	peak     Range
	policy   Policy
	events   []Event
	// busyFrom[i] is the total event duration of events[i:].
	busyFrom []int
}

// sweepState is the state threaded through each step of the sweep.
type sweepState struct {
	cursor    int
	remaining int
	last      Kind
	started   bool
	lunchDone bool
	next      int
}

func (s sweepState) lastIsRest() bool { return !s.started || s.last.IsRest() }

// Generate builds the day timeline for cfg around the given events,
// which must be sorted, non-overlapping and inside [DayStart, DayEnd].
// The result is a pure function of the arguments.
func Generate(cfg Config, events []Event) ([]ScheduleBlock, error) {
	in, err := prepare(cfg, events)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return []ScheduleBlock{}, nil
	}

	state := sweepState{cursor: in.dayStart, remaining: cfg.EffectiveGoal()}
	blocks := make([]ScheduleBlock, 0, 2*len(events)+8)

	budget := len(in.events) + (in.dayEnd - in.dayStart) + 1
	for state.cursor < in.dayEnd {
		if budget == 0 {
			return nil, fmt.Errorf("%w: sweep did not finish within its iteration budget at %s", ErrInternal, clock.Format24(state.cursor))
		}
		budget--

		next, block := step(in, state)
		if next.cursor <= state.cursor {
			return nil, fmt.Errorf("%w: cursor stalled at %s", ErrInternal, clock.Format24(state.cursor))
		}
		blocks = append(blocks, block)
		state = next
	}

	if err := verify(in, blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func prepare(cfg Config, events []Event) (*sweepInput, error) {
	if cfg.DayStart < 0 || cfg.DayEnd > clock.MinutesPerDay {
		return nil, fmt.Errorf("%w: day %d-%d outside 0..%d", ErrInvalidInput, cfg.DayStart, cfg.DayEnd, clock.MinutesPerDay)
	}
	if cfg.DayStart > cfg.DayEnd {
		return nil, fmt.Errorf("%w: day start %s after day end %s", ErrInvalidInput,
			formatEnd(cfg.DayStart), formatEnd(cfg.DayEnd))
	}
	if cfg.FocusGoal < 0 {
		return nil, fmt.Errorf("%w: negative focus goal %d", ErrInvalidInput, cfg.FocusGoal)
	}
	if cfg.DayStart == cfg.DayEnd {
		return nil, nil
	}

	policy := cfg.resolvedPolicy()
	if err := policy.validate(); err != nil {
		return nil, err
	}

	for i, ev := range events {
		if ev.EndMinute <= ev.StartMinute {
			return nil, fmt.Errorf("%w: event %q has no duration", ErrInvalidInput, ev.Summary)
		}
		if ev.StartMinute < cfg.DayStart || ev.EndMinute > cfg.DayEnd {
			return nil, fmt.Errorf("%w: event %q outside the day window", ErrInvalidInput, ev.Summary)
		}
		if i > 0 && ev.StartMinute < events[i-1].StartMinute {
			return nil, fmt.Errorf("%w: events not sorted by start", ErrInvalidInput)
		}
	}
	if err := CheckOverlaps(events); err != nil {
		return nil, err
	}

	busy := make([]int, len(events)+1)
	for i := len(events) - 1; i >= 0; i-- {
		busy[i] = busy[i+1] + events[i].EndMinute - events[i].StartMinute
	}

	return &sweepInput{
		date:     cfg.Date,
		dayStart: cfg.DayStart,
		dayEnd:   cfg.DayEnd,
		peak:     cfg.Peak,
		policy:   policy,
		events:   events,
		busyFrom: busy,
	}, nil
}

// step emits exactly one block and returns the advanced state.
func step(in *sweepInput, s sweepState) (sweepState, ScheduleBlock) {
	if s.next < len(in.events) && in.events[s.next].StartMinute == s.cursor {
		ev := in.events[s.next]
		label := ev.Summary
		if label == "" {
			label = Meeting.Label()
		}
		b := newBlock(in.date, Meeting, label, ev.StartMinute, ev.EndMinute-ev.StartMinute)
		s.cursor = ev.EndMinute
		s.last, s.started = Meeting, true
		s.next++
		return s, b
	}

	boundary := in.dayEnd
	if s.next < len(in.events) {
		boundary = in.events[s.next].StartMinute
	}
	gap := boundary - s.cursor

	kind := in.choose(s, gap)
	d := min(gap, in.capFor(kind, s.cursor))
	if kind == Focus {
		d = min(d, s.remaining)
		s.remaining -= d
	}
	if kind == Lunch {
		s.lunchDone = true
	}

	b := newBlock(in.date, kind, "", s.cursor, d)
	s.cursor += d
	s.last, s.started = kind, true
	return s, b
}

func (in *sweepInput) choose(s sweepState, gap int) Kind {
	if !s.lastIsRest() {
		switch {
		case !s.lunchDone && in.policy.LunchWindow.Contains(s.cursor):
			return Lunch
		case in.wellnessFits(s, gap):
			return Wellness
		default:
			return Break
		}
	}
	if s.remaining > 0 {
		return Focus
	}
	return Hobby
}

func (in *sweepInput) capFor(k Kind, cursor int) int {
	if k == Focus && in.peak.Contains(cursor) {
		return in.policy.PeakFocusCap
	}
	return in.policy.Caps[k]
}

// wellnessFits reports whether a wellness break can replace a short
// break at s without crowding out the remaining focus goal.
func (in *sweepInput) wellnessFits(s sweepState, gap int) bool {
	extra := in.policy.Caps[Wellness] - in.policy.Caps[Break]
	if extra <= 0 || gap < in.policy.WellnessMinGap {
		return false
	}
	return in.slack(s) >= extra
}

// slack is the free time ahead of the cursor minus a conservative
// estimate of what the remaining focus goal still needs: the focus
// itself, one short break per off-peak sized focus block, and the
// lunch surplus while lunch is still pending.
func (in *sweepInput) slack(s sweepState) int {
	free := in.dayEnd - s.cursor - in.busyFrom[s.next]
	p := in.policy
	blocksLeft := (s.remaining + p.Caps[Focus] - 1) / p.Caps[Focus]
	need := s.remaining + blocksLeft*p.Caps[Break]
	if !s.lunchDone && s.cursor < p.LunchWindow.End {
		need += max(0, p.Caps[Lunch]-p.Caps[Break])
	}
	return free - need
}

// verify checks the output invariants; any failure is a generator defect.
func verify(in *sweepInput, blocks []ScheduleBlock) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: no blocks for a non-empty day", ErrInternal)
	}
	if blocks[0].StartMinute != in.dayStart {
		return fmt.Errorf("%w: first block starts at %d, day starts at %d", ErrInternal, blocks[0].StartMinute, in.dayStart)
	}
	meetings := 0
	for i, b := range blocks {
		if b.DurationMinutes <= 0 {
			return fmt.Errorf("%w: block %d has duration %d", ErrInternal, i, b.DurationMinutes)
		}
		if b.EndMinute() > in.dayEnd {
			return fmt.Errorf("%w: block %d ends after the day", ErrInternal, i)
		}
		if i > 0 && blocks[i-1].EndMinute() != b.StartMinute {
			return fmt.Errorf("%w: gap or overlap between blocks %d and %d", ErrInternal, i-1, i)
		}
		if b.Kind == Meeting {
			if meetings >= len(in.events) {
				return fmt.Errorf("%w: unexpected meeting block %d", ErrInternal, i)
			}
			ev := in.events[meetings]
			if b.StartMinute != ev.StartMinute || b.EndMinute() != ev.EndMinute {
				return fmt.Errorf("%w: meeting %q moved", ErrInternal, ev.Summary)
			}
			meetings++
		}
	}
	if meetings != len(in.events) {
		return fmt.Errorf("%w: %d of %d events placed", ErrInternal, meetings, len(in.events))
	}
	if last := blocks[len(blocks)-1]; last.EndMinute() != in.dayEnd {
		return fmt.Errorf("%w: schedule ends at %d, day ends at %d", ErrInternal, last.EndMinute(), in.dayEnd)
	}
	return nil
}
