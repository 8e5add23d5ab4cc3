package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ticketview/ticketview/internal/activity"
	apiPkg "github.com/ticketview/ticketview/internal/api"
	"github.com/ticketview/ticketview/internal/config"
	"github.com/ticketview/ticketview/internal/ics"
	"github.com/ticketview/ticketview/internal/ingest"
	"github.com/ticketview/ticketview/internal/localtime"
	"github.com/ticketview/ticketview/internal/portal"
	"github.com/ticketview/ticketview/internal/scheduler"
	"github.com/ticketview/ticketview/internal/store"
)

const calendarSyncJob = "calendar-sync"

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON or YAML)")
	remoteURL := flag.String("config-url", os.Getenv("TICKETVIEW_CONFIG_URL"), "Central config endpoint")
	remoteKey := flag.String("config-key", os.Getenv("TICKETVIEW_CONFIG_KEY"), "API key for the config endpoint")
	site := flag.String("site", os.Getenv("TICKETVIEW_SITE"), "Site ID sent to the config endpoint")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	feed := activity.NewFeed(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(activity.NewHandler(jsonHandler, feed, slog.LevelInfo))
	slog.SetDefault(logger)

	// Load config (3 modes: file, remote, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else if *remoteURL != "" {
		logger.Info("loading config from remote", "url", *remoteURL, "site", *site)
		cfg, err = config.LoadRemote(config.RemoteOptions{
			URL:     *remoteURL,
			APIKey:  *remoteKey,
			Site:    *site,
			DataDir: os.Getenv("TICKETVIEW_DATA_DIR"),
		})
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	loc, err := localtime.New(cfg.Display.Timezone)
	if err != nil {
		logger.Error("failed to load display timezone", "error", err)
		os.Exit(1)
	}
	logger.Info("ticketviewd starting", "timezone", cfg.Display.Timezone, "data_dir", cfg.Store.DataDir)

	// 1. Open the store
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.Store.DataDir, "error", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.Store.DBPath())
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Store.DBPath(), "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Calendar feed refresh
	sched := scheduler.New(logger.With("component", "scheduler"))
	if cfg.Calendar.Enabled() {
		importer := ics.NewImporter(logger.With("component", "ics"))
		src := ics.Source{
			Name: cfg.Calendar.FeedName(),
			Path: cfg.Calendar.ICSPath,
			URL:  cfg.Calendar.ICSURL,
		}
		syncCalendar := func(ctx context.Context) error {
			_, err := importer.Sync(ctx, src, st)
			return err
		}
		if err := sched.AddJob(calendarSyncJob, cfg.Calendar.Refresh, syncCalendar); err != nil {
			logger.Error("failed to schedule calendar sync", "error", err)
			os.Exit(1)
		}
		// Prime the store so the first page view has meetings.
		go safeGo(logger, "calendar-prime", func() { sched.RunNow(ctx, calendarSyncJob, syncCalendar) })
	} else {
		logger.Info("no calendar feed configured, meetings come from imports only")
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 3. API server
	svc := portal.NewService(st, loc, cfg.TimeEntry.DefaultAttendee, logger.With("component", "portal"))
	apiCfg := apiPkg.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Key:  cfg.Server.Key,
	}
	if cfg.Ingest.Enabled() {
		apiCfg.Ingest = ingest.New(cfg.Ingest.Endpoints, st, logger.With("component", "ingest"))
		logger.Info("ticket ingest enabled", "sources", len(cfg.Ingest.Endpoints))
	}
	apiSrv := apiPkg.NewServer(svc, apiCfg, logger.With("component", "api"), feed)

	go safeGo(logger, "api-server", func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server failed", "error", err)
			cancel()
		}
	})
	logger.Info("api server started", "port", cfg.Server.Port)

	// 4. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	cancel()
	logger.Info("ticketviewd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
