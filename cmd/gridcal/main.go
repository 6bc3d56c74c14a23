package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"gridcal/internal/config"
	"gridcal/internal/ics"
	"gridcal/internal/layout"
	appLog "gridcal/internal/log"
	"gridcal/internal/store"
	"gridcal/internal/task"
	"gridcal/internal/timegrid"
	"gridcal/internal/timer"
)

type flagConfig struct {
	configPath string
	dumpDay    string
	once       bool
}

func main() {
	appLog.Info("gridcal starting", "version", "0.1.0-dev")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	if conf.LogLevel != "" {
		if lvl, ok := appLog.ParseLevel(conf.LogLevel); ok {
			appLog.SetLevel(lvl)
		} else {
			appLog.Warn("unknown log_level in config", "log_level", conf.LogLevel)
		}
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"calendar_dir", conf.CalendarDir,
		"timezone", conf.Timezone,
		"autosave", conf.AutosaveCron,
		"day_start_minutes", conf.Grid.DayStartMinutes,
		"snap_minutes", conf.Grid.SnapMinutes,
		"once", flags.once,
	)

	st, err := store.New(conf.CalendarDir, ics.New(loc))
	if err != nil {
		appLog.Error("failed to open calendar store", err, "dir", conf.CalendarDir)
		os.Exit(1)
	}
	if err := st.LoadAll(); err != nil {
		appLog.Error("failed to load calendars", err, "dir", conf.CalendarDir)
		os.Exit(1)
	}

	gridCfg := timegrid.Config{
		HourHeightPx:    conf.Grid.HourHeightPx,
		DayStartMinutes: conf.Grid.DayStartMinutes,
		SnapMinutes:     conf.Grid.SnapMinutes,
	}

	if flags.dumpDay != "" {
		if err := dumpDay(st, flags.dumpDay, loc, gridCfg); err != nil {
			appLog.Error("dump-day failed", err, "day", flags.dumpDay)
			os.Exit(1)
		}
		return
	}

	if flags.once {
		if err := st.SaveAll(); err != nil {
			appLog.Error("save failed", err)
			os.Exit(1)
		}
		appLog.Info("load+save round trip complete", "dir", conf.CalendarDir)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	var tasks *task.Store
	if conf.TaskDB != "" {
		tasks, err = task.Open(ctx, conf.TaskDB)
		if err != nil {
			appLog.Error("failed to open task db", err, "path", conf.TaskDB)
			os.Exit(1)
		}
		defer tasks.Close()
	}

	stopAutosave, err := st.StartAutosave(conf.AutosaveCron)
	if err != nil {
		appLog.Error("failed to start autosave", err, "spec", conf.AutosaveCron)
		os.Exit(1)
	}
	defer stopAutosave()

	rt := timer.NewRuntime(st, func(batch []timer.Tick) {
		for _, tk := range batch {
			appLog.Debug("timer tick", "event_id", tk.EventID, "elapsed_ms", tk.ElapsedMs)
		}
	}, time.Duration(conf.TimerTickMs)*time.Millisecond)
	go rt.Run(ctx)

	// Kick the runtime whenever the event set changes so a freshly started
	// timer is noticed without waiting for a poll.
	changes := st.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-changes:
				appLog.Debug("store change", "kind", int(c.Kind), "calendar_id", c.CalendarID)
				rt.Kick()
			}
		}
	}()

	watchDone := make(chan error, 1)
	go func() { watchDone <- st.Watch(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-watchDone:
		if err != nil {
			appLog.Error("calendar watcher failed", err)
		}
		cancel()
	}

	if err := st.SaveDirty(); err != nil {
		appLog.Error("final save failed", err)
	}
	appLog.Info("gridcal exiting")
}

// dumpDay prints one day's timed events with their computed grid geometry.
func dumpDay(st *store.Store, day string, loc *time.Location, cfg timegrid.Config) error {
	d, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return fmt.Errorf("bad -dump-day value %q: %w", day, err)
	}

	blocks := st.DayBlocks(d, cfg)
	lb := make([]layout.Block, len(blocks))
	for i, b := range blocks {
		lb[i] = layout.Block{ID: b.Event.ID, Start: b.Start, End: b.End}
	}
	placed := layout.Compute(lb)

	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Start != blocks[j].Start {
			return blocks[i].Start < blocks[j].Start
		}
		return blocks[i].Event.ID < blocks[j].Event.ID
	})

	fmt.Printf("%s (%d timed events)\n", d.Format("2006-01-02"), len(blocks))
	for _, b := range blocks {
		p := placed[b.Event.ID]
		start := b.Event.Start.In(loc)
		fmt.Printf("  %s-%s  col %d/%d  y=%.1fpx  %s\n",
			start.Format("15:04"),
			b.Event.End.In(loc).Format("15:04"),
			p.Column+1, p.TotalColumns,
			timegrid.MinutesToPixels(start.Hour()*60+start.Minute(), cfg),
			b.Event.Title,
		)
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath(), "Path to config file")
	flag.StringVar(&cfg.dumpDay, "dump-day", "", "Print the layout for a day (YYYY-MM-DD) and exit")
	flag.BoolVar(&cfg.once, "once", false, "Load all calendars, save them back, and exit")

	flag.Parse()

	return cfg
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return home + "/.gridcal/config.yaml"
}
