package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"dayplan/internal/clock"
	"dayplan/internal/model"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PlannerConfig holds the default settings used until the user saves
// their own through the API.
type PlannerConfig struct {
	// DayStart / DayEnd are 12-hour clock strings, e.g. "8:00 AM".
	DayStart   string  `yaml:"day_start" json:"day_start"`
	DayEnd     string  `yaml:"day_end" json:"day_end"`
	FocusHours float64 `yaml:"focus_hours" json:"focus_hours"`
	// PeakWindow is one of morning, afternoon, evening, late_night.
	PeakWindow string `yaml:"peak_window" json:"peak_window"`
	ShortBreak int    `yaml:"short_break" json:"short_break"`
	LongBreak  int    `yaml:"long_break" json:"long_break"`
	Muted      bool   `yaml:"muted" json:"muted"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone imported events are keyed in (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic subscription refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of future days subscription events are
	// expanded for.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// StorePath is the sqlite file holding settings, events and day state.
	StorePath string `yaml:"store_path" json:"store_path"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Metrics toggles the /metrics endpoint.
	Metrics bool `yaml:"metrics" json:"metrics"`

	Planner PlannerConfig `yaml:"planner" json:"planner"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func defaultPlanner() PlannerConfig {
	return PlannerConfig{
		DayStart:   "8:00 AM",
		DayEnd:     "6:00 PM",
		FocusHours: 7,
		PeakWindow: "morning",
		ShortBreak: 15,
		LongBreak:  60,
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "UTC",
		RefreshCron: "*/15 * * * *",
		HorizonDays: 14,
		StorePath:   "./var/dayplan.db",
		CacheDir:    "./var/ics-cache",
		LogLevel:    "info",
		Metrics:     true,
		Planner:     defaultPlanner(),
		ICS:         []ICSConfig{},
		BasicAuth:   nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.StorePath == "" {
		c.StorePath = def.StorePath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	p := &c.Planner
	if p.DayStart == "" {
		p.DayStart = def.Planner.DayStart
	}
	if p.DayEnd == "" {
		p.DayEnd = def.Planner.DayEnd
	}
	if p.FocusHours < 0 {
		p.FocusHours = 0
	}
	if p.PeakWindow == "" {
		p.PeakWindow = def.Planner.PeakWindow
	}
	if p.ShortBreak <= 0 {
		p.ShortBreak = def.Planner.ShortBreak
	}
	if p.LongBreak <= 0 {
		p.LongBreak = def.Planner.LongBreak
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Validate checks values Normalize cannot repair.
func (c *Config) Validate() error {
	start, err := clock.ParseClock(c.Planner.DayStart)
	if err != nil {
		return fmt.Errorf("planner.day_start: %w", err)
	}
	end, err := clock.ParseClock(c.Planner.DayEnd)
	if err != nil {
		return fmt.Errorf("planner.day_end: %w", err)
	}
	sm, err := start.MinuteOfDay()
	if err != nil {
		return fmt.Errorf("planner.day_start: %w", err)
	}
	em, err := end.MinuteOfDay()
	if err != nil {
		return fmt.Errorf("planner.day_end: %w", err)
	}
	if sm > em {
		return fmt.Errorf("planner.day_start %s is after planner.day_end %s", start, end)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	seen := make(map[string]bool, len(c.ICS))
	for i, src := range c.ICS {
		if src.URL == "" {
			return fmt.Errorf("ics[%d]: url is empty", i)
		}
		id := src.SourceID()
		if seen[id] {
			return fmt.Errorf("ics[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
	}
	return nil
}

// DefaultSettings converts the planner section to the settings snapshot
// used before the user has saved their own.
func (c *Config) DefaultSettings() (model.Settings, error) {
	start, err := clock.ParseClock(c.Planner.DayStart)
	if err != nil {
		return model.Settings{}, fmt.Errorf("planner.day_start: %w", err)
	}
	end, err := clock.ParseClock(c.Planner.DayEnd)
	if err != nil {
		return model.Settings{}, fmt.Errorf("planner.day_end: %w", err)
	}
	return model.Settings{
		DayStart:   clockField(start),
		DayEnd:     clockField(end),
		FocusHours: c.Planner.FocusHours,
		PeakWindow: c.Planner.PeakWindow,
		ShortBreak: c.Planner.ShortBreak,
		LongBreak:  c.Planner.LongBreak,
		Muted:      c.Planner.Muted,
	}, nil
}

func clockField(ct clock.ClockTime) model.ClockField {
	return model.ClockField{
		Hour:   strconv.Itoa(ct.Hour),
		Minute: fmt.Sprintf("%02d", ct.Minute),
		Period: ct.Period.String(),
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - expand ${ENV} placeholders (bare $NAME is left alone), read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	data = expandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} with the environment value of NAME. Other
// dollar signs, such as in passwords, are kept verbatim.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".dayplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
