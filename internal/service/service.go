package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	"dayplan/internal/clock"
	"dayplan/internal/ics"
	appLog "dayplan/internal/log"
	"dayplan/internal/metrics"
	"dayplan/internal/model"
	"dayplan/internal/planner"
	"dayplan/internal/store"
)

var (
	// ErrInvalidRequest marks caller input the service refuses before
	// reaching the planner.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownBlock is returned when a block id is not part of the day.
	ErrUnknownBlock = errors.New("unknown block")
)

// Store is the persistence the service needs. *store.DB implements it.
type Store interface {
	Settings(ctx context.Context) (model.Settings, error)
	PutSettings(ctx context.Context, s model.Settings) error
	ReplaceEvents(ctx context.Context, source string, events []model.CalendarEvent) error
	Events(ctx context.Context) ([]model.CalendarEvent, error)
	Adjustments(ctx context.Context) (map[string]int, error)
	UpdateAdjustments(ctx context.Context, fn func(map[string]int) (map[string]int, error)) error
	EventSources(ctx context.Context) ([]string, error)
	DeleteEvents(ctx context.Context, source string) error
	BlockStates(ctx context.Context, date string) (map[string]model.BlockState, error)
	SetBlockState(ctx context.Context, date, id string, state model.BlockState) error
}

// Options configures a Service.
type Options struct {
	// Defaults are used until settings have been saved once.
	Defaults model.Settings
	// Location keys imported events and "today".
	Location *time.Location
	// HorizonDays bounds recurrence expansion on import.
	HorizonDays int
	CacheSize   int
	CacheTTL    time.Duration
	// Now is overridable in tests.
	Now func() time.Time
}

// UploadSource is the source id of calendars uploaded by hand.
const UploadSource = "upload"

// Service joins the store, the planner and the ICS importer.
type Service struct {
	store Store
	opts  Options
	cache *otter.Cache[string, []planner.ScheduleBlock]

	// adjustMu keeps an offer and the write that accepts it together.
	adjustMu sync.Mutex
}

// New creates a Service over st.
func New(st Store, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 14
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store: st,
		opts:  opts,
		cache: otter.Must(&otter.Options[string, []planner.ScheduleBlock]{
			MaximumSize:      opts.CacheSize,
			ExpiryCalculator: otter.ExpiryWriting[string, []planner.ScheduleBlock](opts.CacheTTL),
		}),
	}
}

// Today returns the date key of the current day in the configured location.
func (s *Service) Today() string {
	return s.opts.Now().In(s.opts.Location).Format(model.DateLayout)
}

// BlockView is a generated block joined with its saved progress state.
type BlockView struct {
	planner.ScheduleBlock
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
	State     model.BlockState `json:"state,omitempty"`
}

// View is one day's timeline as served to clients.
type View struct {
	Date       string             `json:"date"`
	Blocks     []BlockView        `json:"blocks"`
	Goal       planner.GoalStatus `json:"goal"`
	Adjustment int                `json:"adjustment"`
	// Skipped lists imported events outside the work window.
	Skipped []planner.Event `json:"skipped_events,omitempty"`
}

// Settings returns the saved settings or the configured defaults.
func (s *Service) Settings(ctx context.Context) (model.Settings, error) {
	st, err := s.store.Settings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return s.opts.Defaults, nil
	}
	return st, err
}

// UpdateSettings applies a partial update and saves the result.
func (s *Service) UpdateSettings(ctx context.Context, patch model.SettingsPatch) (model.Settings, error) {
	cur, err := s.Settings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	next := patch.Apply(cur)
	win, err := dayBounds(next)
	if err != nil {
		return model.Settings{}, err
	}
	if win.start > win.end {
		return model.Settings{}, fmt.Errorf("%w: day start %s is after day end %s",
			ErrInvalidRequest, clock.Format12(win.start), clock.Format12(win.end))
	}
	if next.FocusHours < 0 || next.FocusHours > 24 {
		return model.Settings{}, fmt.Errorf("%w: focus hours %.2f outside 0..24", ErrInvalidRequest, next.FocusHours)
	}
	if next.ShortBreak < 0 || next.LongBreak < 0 {
		return model.Settings{}, fmt.Errorf("%w: break minutes must not be negative", ErrInvalidRequest)
	}
	if !planner.KnownPeak(next.PeakWindow) {
		appLog.Warn("unknown peak window, morning will be used", "peak_window", next.PeakWindow)
	}
	if err := s.store.PutSettings(ctx, next); err != nil {
		return model.Settings{}, err
	}
	appLog.Info("settings updated", "focus_hours", next.FocusHours, "peak_window", next.PeakWindow)
	return next, nil
}

// window is the day span in minutes of day.
type window struct{ start, end int }

func dayBounds(st model.Settings) (window, error) {
	start, err := clock.Parse12(st.DayStart.Hour, st.DayStart.Minute, st.DayStart.Period)
	if err != nil {
		return window{}, fmt.Errorf("day start: %w", err)
	}
	end, err := clock.Parse12(st.DayEnd.Hour, st.DayEnd.Minute, st.DayEnd.Period)
	if err != nil {
		return window{}, fmt.Errorf("day end: %w", err)
	}
	sm, err := start.MinuteOfDay()
	if err != nil {
		return window{}, err
	}
	em, err := end.MinuteOfDay()
	if err != nil {
		return window{}, err
	}
	return window{start: sm, end: em}, nil
}

func checkDate(date string) error {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYYMMDD", ErrInvalidRequest, date)
	}
	return nil
}

// plan gathers the inputs for date and returns the generated blocks.
func (s *Service) plan(ctx context.Context, date string) (View, error) {
	if err := checkDate(date); err != nil {
		return View{}, err
	}
	st, err := s.Settings(ctx)
	if err != nil {
		return View{}, err
	}
	win, err := dayBounds(st)
	if err != nil {
		return View{}, err
	}
	all, err := s.store.Events(ctx)
	if err != nil {
		return View{}, err
	}
	events, err := planner.EventsForDate(all, date)
	if err != nil {
		return View{}, err
	}
	inside, outside := planner.Within(events, win.start, win.end)
	for _, ev := range outside {
		appLog.Warn("event outside work window skipped", "date", date, "summary", ev.Summary, "start", ev.StartMinute, "end", ev.EndMinute)
	}
	adj, err := s.store.Adjustments(ctx)
	if err != nil {
		return View{}, err
	}

	goal := int(math.Round(st.FocusHours * 60))
	cfg := planner.Config{
		Date:        date,
		DayStart:    win.start,
		DayEnd:      win.end,
		FocusGoal:   goal,
		Peak:        planner.ResolvePeak(st.PeakWindow),
		ShortBreak:  st.ShortBreak,
		LongBreak:   st.LongBreak,
		Adjustments: planner.Adjustments{date: adj[date]},
	}

	blocks, err := s.generate(cfg, inside)
	if err != nil {
		return View{}, err
	}
	return View{
		Date:       date,
		Blocks:     views(blocks),
		Goal:       planner.Track(blocks, goal),
		Adjustment: adj[date],
		Skipped:    outside,
	}, nil
}

// generate runs the planner, memoized on a digest of its inputs.
func (s *Service) generate(cfg planner.Config, events []planner.Event) ([]planner.ScheduleBlock, error) {
	key, err := cacheKey(cfg, events)
	if err != nil {
		return nil, err
	}
	if blocks, ok := s.cache.GetIfPresent(key); ok {
		metrics.IncCache(true)
		return blocks, nil
	}
	metrics.IncCache(false)

	started := time.Now()
	blocks, err := planner.Generate(cfg, events)
	metrics.ObserveGenerate(time.Since(started), err)
	if err != nil {
		if errors.Is(err, planner.ErrInternal) {
			appLog.Error("schedule generation defect", err, "date", cfg.Date)
		}
		return nil, err
	}
	s.cache.Set(key, blocks)
	return blocks, nil
}

func cacheKey(cfg planner.Config, events []planner.Event) (string, error) {
	raw, err := json.Marshal(struct {
		Date       string
		Start, End int
		Goal       int
		Peak       planner.Range
		Short      int
		Long       int
		Adjust     int
		Events     []planner.Event
	}{cfg.Date, cfg.DayStart, cfg.DayEnd, cfg.FocusGoal, cfg.Peak, cfg.ShortBreak, cfg.LongBreak, cfg.Adjustments.For(cfg.Date), events})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func views(blocks []planner.ScheduleBlock) []BlockView {
	out := make([]BlockView, len(blocks))
	for i, b := range blocks {
		out[i] = BlockView{
			ScheduleBlock: b,
			StartTime:     format12(b.StartMinute),
			EndTime:       format12(b.EndMinute()),
		}
	}
	return out
}

func format12(m int) string {
	return clock.Format12(m % clock.MinutesPerDay)
}

// Schedule returns the timeline for date with saved block states.
func (s *Service) Schedule(ctx context.Context, date string) (View, error) {
	v, err := s.plan(ctx, date)
	if err != nil {
		return View{}, err
	}
	states, err := s.store.BlockStates(ctx, date)
	if err != nil {
		return View{}, err
	}
	for i := range v.Blocks {
		v.Blocks[i].State = states[v.Blocks[i].ID]
	}
	return v, nil
}

// Adjust applies the goal tracker's offered adjustment for date. The
// direction must match the offer; "reset" clears the date's adjustment.
func (s *Service) Adjust(ctx context.Context, date, direction string) (View, error) {
	if err := checkDate(date); err != nil {
		return View{}, err
	}
	s.adjustMu.Lock()
	defer s.adjustMu.Unlock()

	var signed int
	if direction != "reset" {
		v, err := s.plan(ctx, date)
		if err != nil {
			return View{}, err
		}
		if v.Goal.OnTarget || string(v.Goal.Direction) != direction {
			return View{}, fmt.Errorf("%w: no %q adjustment offered for %s", ErrInvalidRequest, direction, date)
		}
		signed = v.Goal.Signed()
	}

	var adj planner.Adjustments
	err := s.store.UpdateAdjustments(ctx, func(cur map[string]int) (map[string]int, error) {
		if direction == "reset" {
			adj = planner.Adjustments(cur).Without(date)
		} else {
			adj = planner.Adjustments(cur).With(date, signed)
		}
		return adj, nil
	})
	if err != nil {
		return View{}, err
	}
	appLog.Info("goal adjusted", "date", date, "direction", direction, "minutes", adj.For(date))
	return s.Schedule(ctx, date)
}

// MarkBlock records the progress state of a block of date's timeline.
func (s *Service) MarkBlock(ctx context.Context, date, id string, state model.BlockState) error {
	switch state {
	case model.BlockCompleted, model.BlockActive, model.BlockPending:
	default:
		return fmt.Errorf("%w: unknown block state %q", ErrInvalidRequest, state)
	}
	v, err := s.plan(ctx, date)
	if err != nil {
		return err
	}
	for _, b := range v.Blocks {
		if b.ID == id {
			return s.store.SetBlockState(ctx, date, id, state)
		}
	}
	return fmt.Errorf("%w: %s on %s", ErrUnknownBlock, id, date)
}

// PruneSources drops the stored events of every source not in keep.
// Uploaded events are always kept. It returns the dropped sources.
func (s *Service) PruneSources(ctx context.Context, keep []string) ([]string, error) {
	want := map[string]bool{UploadSource: true}
	for _, id := range keep {
		want[id] = true
	}
	stored, err := s.store.EventSources(ctx)
	if err != nil {
		return nil, err
	}
	var dropped []string
	for _, id := range stored {
		if want[id] {
			continue
		}
		if err := s.store.DeleteEvents(ctx, id); err != nil {
			return dropped, err
		}
		dropped = append(dropped, id)
		appLog.Info("events of removed calendar dropped", "source", id)
	}
	return dropped, nil
}

// ImportICS replaces source's events with the timed occurrences of body
// from today through the import horizon.
func (s *Service) ImportICS(ctx context.Context, source string, body []byte) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("%w: source is empty", ErrInvalidRequest)
	}
	events, err := ics.Import(ics.Source{ID: source}, body, ics.ImportConfig{
		Location: s.opts.Location,
		From:     s.opts.Now(),
		Days:     s.opts.HorizonDays,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.store.ReplaceEvents(ctx, source, events); err != nil {
		return 0, err
	}
	metrics.AddImported(source, len(events))
	appLog.Info("calendar imported", "source", source, "events", len(events))
	return len(events), nil
}
