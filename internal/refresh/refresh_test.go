package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/config"
	"dayplan/internal/ics"
)

type fakeFetcher struct {
	bodies map[string][]byte
}

func (f fakeFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, []error) {
	var out []ics.FetchResult
	var errs []error
	for _, s := range sources {
		body, ok := f.bodies[s.ID]
		if !ok {
			errs = append(errs, errors.New(s.ID+": 404 Not Found"))
			continue
		}
		out = append(out, ics.FetchResult{Source: s, Body: body})
	}
	return out, errs
}

type fakeImporter struct {
	calls map[string]int
}

func (f *fakeImporter) ImportICS(_ context.Context, source string, body []byte) (int, error) {
	if string(body) == "broken" {
		return 0, errors.New("parse failed")
	}
	f.calls[source]++
	return len(body), nil
}

func TestSources(t *testing.T) {
	got := Sources([]config.ICSConfig{
		{URL: "https://a.example/cal.ics", Name: "work"},
		{URL: ""},
		{URL: "https://b.example/cal.ics", ID: "home"},
	})
	assert.Equal(t, []ics.Source{
		{ID: "work", URL: "https://a.example/cal.ics"},
		{ID: "home", URL: "https://b.example/cal.ics"},
	}, got)
}

func TestRunOnce(t *testing.T) {
	imp := &fakeImporter{calls: map[string]int{}}
	r := New(fakeFetcher{bodies: map[string][]byte{
		"work":  []byte("abc"),
		"other": []byte("broken"),
	}}, imp, []ics.Source{{ID: "work"}, {ID: "other"}, {ID: "gone"}})

	res, err := r.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, map[string]int{"work": 3}, res.Imported)
	assert.ElementsMatch(t, []string{"other", "gone"}, res.Failed)
	assert.Equal(t, map[string]int{"work": 1}, imp.calls)
}

func TestRunOnce_NoSources(t *testing.T) {
	r := New(fakeFetcher{}, &fakeImporter{calls: map[string]int{}}, nil)
	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Imported)
}

func TestStart(t *testing.T) {
	r := New(fakeFetcher{}, &fakeImporter{calls: map[string]int{}}, nil)
	assert.True(t, r.Next().IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, r.Start(ctx, "not a cron", time.UTC))
	require.NoError(t, r.Start(ctx, "*/15 * * * *", time.UTC))
	next := r.Next()
	assert.False(t, next.IsZero())
	assert.Zero(t, next.Minute()%15)
}
