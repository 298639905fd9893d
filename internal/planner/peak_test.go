package planner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePeak(t *testing.T) {
	tests := []struct {
		name string
		want Range
	}{
		{"morning", Range{420, 720}},
		{"Afternoon", Range{720, 1020}},
		{" EVENING ", Range{1020, 1260}},
		{"Late Night", Range{1260, 1380}},
		{"late-night", Range{1260, 1380}},
		{"late_night", Range{1260, 1380}},
		{"brunch", Range{420, 720}},
		{"", Range{420, 720}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePeak(tt.name))
		})
	}
	assert.True(t, KnownPeak("Late Night"))
	assert.False(t, KnownPeak("brunch"))
}

func TestPeakWindows_Disjoint(t *testing.T) {
	names := PeakWindows()
	require.Len(t, names, 4)
	for i := 1; i < len(names); i++ {
		prev, cur := ResolvePeak(names[i-1]), ResolvePeak(names[i])
		assert.LessOrEqual(t, prev.End, cur.Start)
	}
}

func TestRange_Contains(t *testing.T) {
	r := Range{Start: 420, End: 720}
	assert.True(t, r.Contains(420))
	assert.True(t, r.Contains(719))
	assert.False(t, r.Contains(720))
	assert.False(t, r.Contains(419))
}

func TestKind_Table(t *testing.T) {
	for _, k := range Kinds() {
		assert.NotEmpty(t, k.String())
		assert.NotEmpty(t, k.Label())
		assert.NotEmpty(t, k.ColorHint())
		assert.NotEqual(t, k.IsRest(), k.IsExertion(), k.String())

		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.True(t, Focus.IsExertion())
	assert.True(t, Meeting.IsExertion())
	assert.True(t, Lunch.IsRest())
	assert.False(t, kindCount.IsRest())
	assert.False(t, kindCount.IsExertion())

	_, err := ParseKind("nap")
	assert.Error(t, err)
}

func TestScheduleBlock_JSON(t *testing.T) {
	b := newBlock(testDate, Wellness, "", 675, 45)
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+b.ID+`","kind":"wellness","label":"Wellness Break","start":675,"duration":45,"color":"green"}`, string(data))

	var back ScheduleBlock
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, b, back)
}
