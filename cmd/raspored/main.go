package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"raspored/internal/app"
	"raspored/internal/capture"
	"raspored/internal/clock"
	"raspored/internal/config"
	"raspored/internal/ics"
	appLog "raspored/internal/log"
	"raspored/internal/metrics"
	"raspored/internal/overlay"
	"raspored/internal/storage"
	"raspored/internal/web"
	"raspored/internal/week"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	listen     string
	seedPath   string
	snapshot   string
	week       string
	once       bool
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		appLog.Error("raspored failed", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/raspored/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.seedPath, "seed", "", "YAML fixture with groups, teachers, rooms, courses and students to upsert on start")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG of the week page to this path and exit")
	flag.StringVar(&cfg.week, "week", "", "ISO week for -snapshot, e.g. 2024-W42 (default: initial/current week)")
	flag.BoolVar(&cfg.once, "once", false, "Migrate, seed and refresh overlays once, then exit")

	flag.Parse()

	return cfg
}

func run(flags flagConfig) error {
	appLog.Info("raspored starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"storage", conf.Storage.Driver,
		"grid", fmt.Sprintf("%02d-%02d", conf.Grid.StartHour, conf.Grid.EndHour),
		"refresh", conf.RefreshCron,
		"overlay_count", len(conf.Overlays),
		"once", flags.once,
		"snapshot", flags.snapshot != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, conf.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLog.Error("close storage", err)
		}
	}()

	if flags.seedPath != "" {
		fx, err := storage.LoadFixture(flags.seedPath)
		if err != nil {
			return err
		}
		if err := store.Seed(ctx, fx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		appLog.Info("fixture seeded", "path", flags.seedPath,
			"groups", len(fx.Groups), "teachers", len(fx.Teachers), "rooms", len(fx.Rooms),
			"courses", len(fx.Courses), "students", len(fx.Students))
	}

	m := metrics.New()
	clk := clock.NewSystem(conf.Location())
	fetcher := ics.NewFetcher(conf.CacheDir, &http.Client{Timeout: 15 * time.Second})
	overlays := overlay.NewService(fetcher, conf.Location(), m)
	overlays.SetFeeds(overlay.FeedsFromConfig(conf.Overlays))

	grid, err := conf.LayoutGrid()
	if err != nil {
		return err
	}
	schedule := app.NewScheduleService(store, overlays, grid, clk)
	reports := app.NewReportService(store, clk)
	srv, err := web.NewServer(conf, schedule, reports, m, clk)
	if err != nil {
		return err
	}

	if flags.once || flags.snapshot != "" {
		if err := overlays.Refresh(ctx); err != nil {
			appLog.Warn("overlay refresh incomplete", "cause", err.Error())
		}
		if flags.snapshot == "" {
			appLog.Info("single run finished")
			return nil
		}
		wk := schedule.DefaultWeek()
		if flags.week != "" {
			if wk, err = week.ParseISOWeek(flags.week); err != nil {
				return err
			}
		}
		return snapshot(ctx, srv, wk, flags.snapshot)
	}

	if err := overlays.Start(ctx, conf.RefreshCron); err != nil {
		return err
	}

	refreshCron := conf.RefreshCron
	go func() {
		err := config.Watch(ctx, flags.configPath, func(next *config.Config) {
			if flags.listen != "" {
				next.Listen = flags.listen
			}
			appLog.SetLevel(appLog.ParseLevel(next.LogLevel))
			if err := srv.ApplyConfig(next); err != nil {
				appLog.Error("config reload rejected", err)
				return
			}
			overlays.SetLocation(next.Location())
			overlays.SetFeeds(overlay.FeedsFromConfig(next.Overlays))
			if next.RefreshCron != refreshCron {
				if err := overlays.Reschedule(next.RefreshCron); err != nil {
					appLog.Error("overlay reschedule failed", err)
				} else {
					refreshCron = next.RefreshCron
				}
			}
			go func() {
				if err := overlays.Refresh(ctx); err != nil {
					appLog.Warn("overlay refresh after reload incomplete", "cause", err.Error())
				}
			}()
		})
		if err != nil {
			appLog.Error("config watcher stopped", err, "path", flags.configPath)
		}
	}()

	if err := srv.ListenAndServe(ctx, conf.Listen); err != nil {
		return err
	}
	appLog.Info("raspored exiting")
	return nil
}

// snapshot serves the week page on a loopback port and captures it.
func snapshot(ctx context.Context, srv *web.Server, wk week.ISOWeek, out string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("snapshot listener: %w", err)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(serveCtx, ln)
	}()

	q := url.Values{}
	q.Set("year", strconv.Itoa(wk.Year))
	q.Set("week", strconv.Itoa(wk.Week))
	target := "http://" + ln.Addr().String() + "/?" + q.Encode()

	appLog.Info("capturing week", "week", wk.String(), "url", target, "out", out)
	captureErr := capture.CaptureWeekPNG(ctx, capture.Options{URL: target, OutputPath: out})

	cancel()
	serveErr := <-served
	if captureErr != nil {
		return captureErr
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	appLog.Info("snapshot written", "path", out)
	return nil
}
