package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/clock"
	"dayplan/internal/model"
	"dayplan/internal/planner"
	"dayplan/internal/store"
)

const testDate = "20260119"

func defaultSettings() model.Settings {
	return model.Settings{
		DayStart:   model.ClockField{Hour: "8", Minute: "00", Period: "AM"},
		DayEnd:     model.ClockField{Hour: "6", Minute: "00", Period: "PM"},
		FocusHours: 7,
		PeakWindow: "morning",
		ShortBreak: 15,
		LongBreak:  60,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "dayplan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, Options{
		Defaults:    defaultSettings(),
		Location:    time.UTC,
		HorizonDays: 3,
		Now:         func() time.Time { return time.Date(2026, 1, 19, 7, 0, 0, 0, time.UTC) },
	})
}

func icsBody(events ...string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//dayplan//test//EN\r\n")
	for _, ev := range events {
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(ev), "\n", "\r\n"))
		b.WriteString("\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

const (
	sync10 = `BEGIN:VEVENT
UID:sync@example.com
DTSTART:20260119T100000Z
DTEND:20260119T110000Z
SUMMARY:Team sync
END:VEVENT`
	early7 = `BEGIN:VEVENT
UID:gym@example.com
DTSTART:20260119T070000Z
DTEND:20260119T073000Z
SUMMARY:Gym
END:VEVENT`
	overlap1030 = `BEGIN:VEVENT
UID:clash@example.com
DTSTART:20260119T103000Z
DTEND:20260119T113000Z
SUMMARY:Clash
END:VEVENT`
	straddle730 = `BEGIN:VEVENT
UID:breakfast@example.com
DTSTART:20260119T073000Z
DTEND:20260119T083000Z
SUMMARY:Breakfast meeting
END:VEVENT`
)

func TestSchedule_Defaults(t *testing.T) {
	svc := newTestService(t)
	v, err := svc.Schedule(context.Background(), testDate)
	require.NoError(t, err)

	require.Len(t, v.Blocks, 15)
	first, last := v.Blocks[0], v.Blocks[len(v.Blocks)-1]
	assert.Equal(t, planner.BlockID(testDate, planner.Focus, 480), first.ID)
	assert.Equal(t, "8:00 am", first.StartTime)
	assert.Equal(t, "6:00 pm", last.EndTime)
	assert.True(t, v.Goal.OnTarget)
	assert.Equal(t, 420, v.Goal.Scheduled)
	assert.Equal(t, testDate, svc.Today())
}

func TestSchedule_CachesGeneration(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	b, err := svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, svc.cache.EstimatedSize())

	_, err = svc.Schedule(ctx, "20260120")
	require.NoError(t, err)
	assert.Equal(t, 2, svc.cache.EstimatedSize())
}

func TestSchedule_ImportedEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	n, err := svc.ImportICS(ctx, "upload", icsBody(sync10, early7))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, v.Skipped, 1)
	assert.Equal(t, "Gym", v.Skipped[0].Summary)

	var meeting *BlockView
	for i := range v.Blocks {
		if v.Blocks[i].Kind == planner.Meeting {
			meeting = &v.Blocks[i]
		}
	}
	require.NotNil(t, meeting)
	assert.Equal(t, 600, meeting.StartMinute)
	assert.Equal(t, 60, meeting.DurationMinutes)
	assert.Equal(t, "10:00 am", meeting.StartTime)

	require.NoError(t, svc.MarkBlock(ctx, testDate, meeting.ID, model.BlockActive))
	v, err = svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	for _, b := range v.Blocks {
		if b.ID == meeting.ID {
			assert.Equal(t, model.BlockActive, b.State)
		} else {
			assert.Equal(t, model.BlockPending, b.State)
		}
	}

	err = svc.MarkBlock(ctx, testDate, "nope", model.BlockCompleted)
	assert.ErrorIs(t, err, ErrUnknownBlock)
	err = svc.MarkBlock(ctx, testDate, meeting.ID, model.BlockState("skipped"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSchedule_ClipsEventsCrossingDayStart(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportICS(ctx, "upload", icsBody(straddle730))
	require.NoError(t, err)

	v, err := svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	assert.Empty(t, v.Skipped)
	require.NotEmpty(t, v.Blocks)
	first := v.Blocks[0]
	assert.Equal(t, planner.Meeting, first.Kind)
	assert.Equal(t, 480, first.StartMinute)
	assert.Equal(t, 30, first.DurationMinutes)
	assert.Equal(t, "Breakfast meeting", first.Label)
}

func TestPruneSources(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, src := range []string{"upload", "work", "old"} {
		_, err := svc.ImportICS(ctx, src, icsBody(sync10))
		require.NoError(t, err)
	}

	dropped, err := svc.PruneSources(ctx, []string{"work"})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, dropped)

	dropped, err = svc.PruneSources(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, dropped)

	v, err := svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	meetings := 0
	for _, b := range v.Blocks {
		if b.Kind == planner.Meeting {
			meetings++
		}
	}
	assert.Equal(t, 1, meetings)
}

func TestSchedule_RejectsOverlaps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportICS(ctx, "work", icsBody(sync10))
	require.NoError(t, err)
	_, err = svc.ImportICS(ctx, "personal", icsBody(overlap1030))
	require.NoError(t, err)

	_, err = svc.Schedule(ctx, testDate)
	assert.ErrorIs(t, err, planner.ErrOverlappingEvents)
}

func TestSchedule_BadDate(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Schedule(context.Background(), "2026-01-19")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAdjust(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportICS(ctx, "upload", icsBody(sync10))
	require.NoError(t, err)

	// The meeting counts toward the goal, so the day runs 30 minutes over.
	before, err := svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	require.False(t, before.Goal.OnTarget)
	require.Equal(t, planner.ReduceFocus, before.Goal.Direction)
	require.Equal(t, 30, before.Goal.Minutes)
	require.Equal(t, 450, before.Goal.Scheduled)

	_, err = svc.Adjust(ctx, testDate, "add")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	after, err := svc.Adjust(ctx, testDate, "reduce")
	require.NoError(t, err)
	assert.Equal(t, -30, after.Adjustment)
	assert.LessOrEqual(t, after.Goal.Scheduled, before.Goal.Scheduled)

	again, err := svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, after, again)

	reset, err := svc.Adjust(ctx, testDate, "reset")
	require.NoError(t, err)
	assert.Zero(t, reset.Adjustment)
	assert.Equal(t, before.Blocks, reset.Blocks)
}

func TestUpdateSettings(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	hours := 4.5
	peak := "afternoon"
	got, err := svc.UpdateSettings(ctx, model.SettingsPatch{FocusHours: &hours, PeakWindow: &peak})
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.FocusHours)
	assert.Equal(t, "afternoon", got.PeakWindow)
	assert.Equal(t, defaultSettings().DayStart, got.DayStart)

	saved, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, saved)

	v, err := svc.Schedule(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, 270, v.Goal.Goal)

	bad := model.ClockField{Hour: "13", Minute: "00", Period: "PM"}
	_, err = svc.UpdateSettings(ctx, model.SettingsPatch{DayEnd: &bad})
	assert.ErrorIs(t, err, clock.ErrInvalidClock)

	neg := -1.0
	_, err = svc.UpdateSettings(ctx, model.SettingsPatch{FocusHours: &neg})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	evening := model.ClockField{Hour: "6", Minute: "00", Period: "PM"}
	morning := model.ClockField{Hour: "8", Minute: "00", Period: "AM"}
	_, err = svc.UpdateSettings(ctx, model.SettingsPatch{DayStart: &evening, DayEnd: &morning})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.Schedule(ctx, testDate)
	require.NoError(t, err)

	unchanged, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, unchanged)
}

func TestImportICS_RejectsGarbage(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ImportICS(context.Background(), "upload", []byte(" "))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.ImportICS(context.Background(), "", icsBody(sync10))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
