package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/ics"
	appLog "dayplan/internal/log"
	"dayplan/internal/metrics"
	"dayplan/internal/planner"
	"dayplan/internal/refresh"
	"dayplan/internal/service"
	"dayplan/internal/store"
	"dayplan/internal/timeline"
	"dayplan/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	date       string
	importPath string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("dayplan starting", "version", "0.1.0")

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"store_path", conf.StorePath,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}
	defaults, err := conf.DefaultSettings()
	if err != nil {
		appLog.Error("invalid planner defaults", err)
		os.Exit(1)
	}

	db, err := store.Open(conf.StorePath)
	if err != nil {
		appLog.Error("failed to open store", err, "store_path", conf.StorePath)
		os.Exit(1)
	}
	defer db.Close()

	svc := service.New(db, service.Options{
		Defaults:    defaults,
		Location:    loc,
		HorizonDays: conf.HorizonDays,
	})

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.importPath != "" {
		if err := importFile(ctx, svc, flags.importPath); err != nil {
			appLog.Error("import failed", err, "path", flags.importPath)
			os.Exit(1)
		}
	}

	if flags.once {
		if err := printDay(ctx, svc, flags.date); err != nil {
			appLog.Error("schedule failed", err, "date", flags.date)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, conf, svc, loc); err != nil {
		appLog.Error("dayplan stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("dayplan exiting")
}

// run starts the refresh scheduler and the HTTP API and blocks until ctx
// is canceled.
func run(ctx context.Context, conf *config.Config, svc *service.Service, loc *time.Location) error {
	if conf.Metrics {
		metrics.Register()
	}

	sources := refresh.Sources(conf.ICS)
	keep := make([]string, len(sources))
	for i, src := range sources {
		keep[i] = src.ID
	}
	if _, err := svc.PruneSources(ctx, keep); err != nil {
		appLog.Warn("failed to drop events of removed calendars", "error", err)
	}

	runner := refresh.New(ics.NewFetcher(conf.CacheDir), svc, sources)
	if len(conf.ICS) > 0 {
		go func() {
			if _, err := runner.RunOnce(ctx); err != nil {
				appLog.Warn("initial refresh finished with errors", "error", err)
			}
		}()
	}
	if err := runner.Start(ctx, conf.RefreshCron, loc); err != nil {
		return err
	}
	appLog.Info("next calendar refresh", "at", runner.Next().Format(time.RFC3339))

	srv := web.NewServer(conf, svc)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func importFile(ctx context.Context, svc *service.Service, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	n, err := svc.ImportICS(ctx, service.UploadSource, body)
	if err != nil {
		return err
	}
	appLog.Info("calendar file imported", "path", path, "events", n)
	return nil
}

func printDay(ctx context.Context, svc *service.Service, date string) error {
	if date == "" {
		date = svc.Today()
	}
	v, err := svc.Schedule(ctx, date)
	if err != nil {
		return err
	}
	blocks := make([]planner.ScheduleBlock, len(v.Blocks))
	for i, b := range v.Blocks {
		blocks[i] = b.ScheduleBlock
	}
	return timeline.Render(os.Stdout, v.Date, blocks, v.Goal)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/dayplan/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print one day's timeline and exit")
	flag.StringVar(&cfg.date, "date", "", "Date for -once as YYYYMMDD (default today)")
	flag.StringVar(&cfg.importPath, "import", "", "Import an .ics file as the upload calendar before running")

	flag.Parse()

	return cfg
}
