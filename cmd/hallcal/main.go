package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"hallcal/internal/capture"
	"hallcal/internal/config"
	"hallcal/internal/feed"
	appLog "hallcal/internal/log"
	"hallcal/internal/timetable"
	"hallcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	offset     int
	capture    bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		if conf == nil {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		// Defaults could not be written; keep running on them.
		appLog.Error("failed to write default config", err, "config_path", flags.configPath)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	level, _ := appLog.ParseLevel(conf.LogLevel)
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	appLog.Info("hallcal starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"schema", conf.Feed.Schema,
		"format", conf.Feed.Format,
		"feed_configured", conf.Feed.URL != "",
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	loader, err := newLoader(conf)
	if err != nil {
		appLog.Error("invalid feed configuration", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case flags.once:
		if err := runOnce(ctx, loader, flags.offset); err != nil {
			appLog.Error("one-shot run failed", err)
			os.Exit(1)
		}
	case flags.capture:
		if err := runCapture(ctx, conf, loader); err != nil {
			appLog.Error("capture failed", err)
			os.Exit(1)
		}
	default:
		if err := serve(ctx, conf, loader); err != nil {
			appLog.Error("server stopped with error", err)
			os.Exit(1)
		}
	}
	appLog.Info("hallcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/hallcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print one week to stdout and exit")
	flag.IntVar(&cfg.offset, "offset", 0, "Week offset for -once (0 = this week)")
	flag.BoolVar(&cfg.capture, "capture", false, "Render one screenshot of the current week and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func newLoader(conf *config.Config) (*timetable.Loader, error) {
	schema, err := conf.FeedSchema()
	if err != nil {
		return nil, err
	}
	if conf.Feed.URL == "" {
		return nil, errors.New("feed.url is not set (config file or " + config.EnvFeedURL + ")")
	}
	loc := conf.Location()

	return timetable.NewLoader(timetable.Options{
		Source: feed.Source{ID: conf.Feed.ID, URL: conf.Feed.URL},
		Fetcher: feed.NewFetcher(feed.FetcherOptions{
			CacheDir:      conf.CacheDir,
			CacheFallback: conf.Feed.CacheFallback,
		}),
		Parser:   feed.NewParser(schema, conf.FeedFormat(), loc),
		Location: loc,
		CacheTTL: conf.CacheTTL(),
	}), nil
}

// runOnce drives the navigator the way the page does: load this week, then
// move to the requested offset.
func runOnce(ctx context.Context, loader *timetable.Loader, offset int) error {
	nav := timetable.NewNavigator(loader)
	v, err := nav.Init(ctx)
	if err == nil && offset != 0 {
		v, err = nav.ChangeWeek(ctx, offset)
	}
	if err != nil {
		return err
	}
	return printWeek(os.Stdout, v)
}

func serve(ctx context.Context, conf *config.Config, loader *timetable.Loader) error {
	srv, err := web.NewServer(conf, loader)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(conf.Location()))
	if _, err := c.AddFunc(conf.RefreshCron, func() { refresh(ctx, conf, loader) }); err != nil {
		return err
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	// Warm the cache so the first visitor does not wait on the sheet.
	go refresh(ctx, conf, loader)

	return srv.Run(ctx)
}

// refresh refetches the feed and, when enabled, recaptures the preview.
func refresh(ctx context.Context, conf *config.Config, loader *timetable.Loader) {
	n, err := loader.Refresh(ctx)
	if err != nil {
		appLog.Error("scheduled refresh failed", err)
		return
	}
	appLog.Info("scheduled refresh done", "sessions", n)

	if !conf.Capture.Enabled {
		return
	}
	// Give the listener a moment on the very first run.
	time.Sleep(500 * time.Millisecond)
	if err := capture.CaptureTimetablePNG(ctx, captureOptions(conf)); err != nil {
		appLog.Error("preview capture failed", err)
	}
}

// runCapture serves the page just long enough to screenshot it.
func runCapture(ctx context.Context, conf *config.Config, loader *timetable.Loader) error {
	srv, err := web.NewServer(conf, loader)
	if err != nil {
		return err
	}
	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(srvCtx) }()

	if err := waitListening(ctx, conf.Listen, 5*time.Second); err != nil {
		return err
	}
	if err := capture.CaptureTimetablePNG(ctx, captureOptions(conf)); err != nil {
		return err
	}
	appLog.Info("preview written", "path", conf.Capture.Output)

	stop()
	return <-errCh
}

func captureOptions(conf *config.Config) capture.Options {
	return capture.Options{
		URL:        localURL(conf.Listen) + "/week?offset=0",
		OutputPath: conf.Capture.Output,
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
	}
}

// localURL turns a listen address into a URL reachable from this host.
func localURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func waitListening(ctx context.Context, listen string, timeout time.Duration) error {
	addr := localURL(listen)[len("http://"):]
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
