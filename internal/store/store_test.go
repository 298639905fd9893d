package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "dayplan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	_, err := db.Settings(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	s := model.Settings{
		DayStart:   model.ClockField{Hour: "8", Minute: "00", Period: "AM"},
		DayEnd:     model.ClockField{Hour: "6", Minute: "00", Period: "PM"},
		FocusHours: 6.5,
		PeakWindow: "afternoon",
		ShortBreak: 10,
		LongBreak:  45,
		Muted:      true,
	}
	require.NoError(t, db.PutSettings(ctx, s))

	got, err := db.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	s.FocusHours = 4
	require.NoError(t, db.PutSettings(ctx, s))
	got, err = db.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.FocusHours)
}

func TestEvents_ReplacePerSource(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	require.NoError(t, db.ReplaceEvents(ctx, "work", []model.CalendarEvent{
		{Summary: "Retro", Start: "15:00", End: "16:00", DurationMinutes: 60, Date: "20260119"},
		{Summary: "Standup", Start: "09:30", End: "09:45", DurationMinutes: 15, Date: "20260119"},
	}))
	require.NoError(t, db.ReplaceEvents(ctx, "upload", []model.CalendarEvent{
		{Summary: "Dentist", Start: "08:00", End: "08:30", DurationMinutes: 30, Date: "20260118"},
	}))

	all, err := db.Events(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Dentist", all[0].Summary)
	assert.Equal(t, "upload", all[0].SourceID)
	assert.Equal(t, "Standup", all[1].Summary)
	assert.Equal(t, "work", all[1].SourceID)

	require.NoError(t, db.ReplaceEvents(ctx, "work", nil))
	all, err = db.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	sources, err := db.EventSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"upload", "work"}, sources)

	require.NoError(t, db.DeleteEvents(ctx, "upload"))
	all, err = db.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Error(t, db.ReplaceEvents(ctx, "", nil))
}

func TestAdjustments(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	adj, err := db.Adjustments(ctx)
	require.NoError(t, err)
	assert.Empty(t, adj)

	require.NoError(t, db.UpdateAdjustments(ctx, func(cur map[string]int) (map[string]int, error) {
		assert.Empty(t, cur)
		return map[string]int{"20260119": 60, "20260120": -30}, nil
	}))
	adj, err = db.Adjustments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"20260119": 60, "20260120": -30}, adj)
}

func TestBlockState_SingleActive(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	const date = "20260119"

	require.NoError(t, db.SetBlockState(ctx, date, "a", model.BlockCompleted))
	require.NoError(t, db.SetBlockState(ctx, date, "b", model.BlockActive))
	require.NoError(t, db.SetBlockState(ctx, date, "c", model.BlockActive))

	states, err := db.BlockStates(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.BlockState{"a": model.BlockCompleted, "c": model.BlockActive}, states)

	require.NoError(t, db.SetBlockState(ctx, date, "a", model.BlockPending))
	states, err = db.BlockStates(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.BlockState{"c": model.BlockActive}, states)

	other, err := db.BlockStates(ctx, "20260120")
	require.NoError(t, err)
	assert.Empty(t, other)

	assert.Error(t, db.SetBlockState(ctx, date, "a", model.BlockState("skipped")))
}

func TestUpdateAdjustments_KeepsOldOnError(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	require.NoError(t, db.UpdateAdjustments(ctx, func(map[string]int) (map[string]int, error) {
		return map[string]int{"20260119": 60}, nil
	}))
	boom := errors.New("boom")
	err := db.UpdateAdjustments(ctx, func(map[string]int) (map[string]int, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	adj, err := db.Adjustments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"20260119": 60}, adj)
}

func TestSetBlockState_Concurrent(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)
	const date = "20260119"

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state := model.BlockCompleted
			if i%2 == 1 {
				state = model.BlockActive
			}
			assert.NoError(t, db.SetBlockState(ctx, date, fmt.Sprintf("block-%02d", i), state))
		}(i)
	}
	wg.Wait()

	states, err := db.BlockStates(ctx, date)
	require.NoError(t, err)
	assert.Len(t, states, 21)
	active := 0
	for _, st := range states {
		if st == model.BlockActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestUpdateAdjustments_Concurrent(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	var wg sync.WaitGroup
	for day := 1; day <= 20; day++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			date := fmt.Sprintf("202601%02d", day)
			assert.NoError(t, db.UpdateAdjustments(ctx, func(cur map[string]int) (map[string]int, error) {
				next := make(map[string]int, len(cur)+1)
				for k, v := range cur {
					next[k] = v
				}
				next[date] = 15
				return next, nil
			}))
		}(day)
	}
	wg.Wait()

	adj, err := db.Adjustments(ctx)
	require.NoError(t, err)
	assert.Len(t, adj, 20)
}
