package planner

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the closed set of block types a schedule is made of.
type Kind uint8

const (
	Focus Kind = iota
	Meeting
	Break
	Wellness
	Lunch
	Hobby

	kindCount
)

type kindInfo struct {
	name  string
	label string
	color string
	rest  bool
}

// kinds is indexed by Kind; every Kind must have an entry.
var kinds = [kindCount]kindInfo{
	Focus:    {name: "focus", label: "Focus", color: "indigo"},
	Meeting:  {name: "meeting", label: "Meeting", color: "amber"},
	Break:    {name: "break", label: "Short Break", color: "teal", rest: true},
	Wellness: {name: "wellness", label: "Wellness Break", color: "green", rest: true},
	Lunch:    {name: "lunch", label: "Lunch", color: "orange", rest: true},
	Hobby:    {name: "hobby", label: "Hobby Time", color: "pink", rest: true},
}

// Kinds lists every block kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) valid() bool { return k < kindCount }

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kinds[k].name
}

// Label is the default display label for generated blocks of this kind.
func (k Kind) Label() string {
	if !k.valid() {
		return ""
	}
	return kinds[k].label
}

// ColorHint is an opaque presentation tag.
func (k Kind) ColorHint() string {
	if !k.valid() {
		return ""
	}
	return kinds[k].color
}

// IsRest reports whether the kind is Break, Wellness, Lunch or Hobby.
func (k Kind) IsRest() bool { return k.valid() && kinds[k].rest }

// IsExertion reports whether the kind is Focus or Meeting.
func (k Kind) IsExertion() bool { return k.valid() && !kinds[k].rest }

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k := Kind(0); k < kindCount; k++ {
		if kinds[k].name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown block kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("unknown block kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ScheduleBlock is one entry of a generated timeline.
type ScheduleBlock struct {
	ID              string `json:"id"`
	Kind            Kind   `json:"kind"`
	Label           string `json:"label"`
	StartMinute     int    `json:"start"`
	DurationMinutes int    `json:"duration"`
	ColorHint       string `json:"color,omitempty"`
}

// EndMinute is the exclusive end of the block.
func (b ScheduleBlock) EndMinute() int { return b.StartMinute + b.DurationMinutes }

var blockNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("dayplan:schedule-block"))

// BlockID derives the stable identifier of a block from its date, kind
// and start minute.
func BlockID(date string, kind Kind, start int) string {
	return uuid.NewSHA1(blockNamespace, []byte(fmt.Sprintf("%s/%s/%d", date, kind, start))).String()
}

func newBlock(date string, kind Kind, label string, start, duration int) ScheduleBlock {
	if label == "" {
		label = kind.Label()
	}
	return ScheduleBlock{
		ID:              BlockID(date, kind, start),
		Kind:            kind,
		Label:           label,
		StartMinute:     start,
		DurationMinutes: duration,
		ColorHint:       kind.ColorHint(),
	}
}
