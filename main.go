package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (optional, env vars suffice)")
	flag.Parse()

	// .env is optional; a real environment wins either way.
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "loaded .env")
	}

	cfg := loadConfig(*configPath)
	defaultLogger = initLogger(cfg.Logging, cfg.baseDir)
	defer defaultLogger.Close()

	store, err := openStore(cfg)
	if err != nil {
		logError("store init failed", "error", err)
		fmt.Fprintf(os.Stderr, "store init failed: %v\n", err)
		os.Exit(1)
	}

	loc := cfg.location()
	tasks := newTaskRegistry(store, loc)
	okrs := newOKRRegistry(store, loc)
	sessions := newSessionStore()
	bot := newBot(cfg, tasks, okrs, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := okrs.SyncActive(ctx); err != nil {
		logWarn("initial okr sync failed", "error", err)
	}

	cron := newCronEngine(loc)
	jobs := []struct {
		id, name, hhmm string
		run            func(context.Context)
	}{
		{"daily_planning", "morning planning reminder", cfg.Schedule.planningOrDefault(), bot.sendPlanningReminder},
		{"daily_nudge", "missing-task nudge", cfg.Schedule.nudgeOrDefault(), bot.sendDailyNudge},
		{"midday_checkin", "mid-day check-in", cfg.Schedule.middayOrDefault(), bot.sendMiddayCheckin},
		{"eod_summary", "end-of-day summary", cfg.Schedule.eodOrDefault(), bot.sendEODSummary},
	}
	for _, j := range jobs {
		schedule, err := scheduleFromHHMM(j.hhmm)
		if err != nil {
			logError("bad schedule time", "jobId", j.id, "error", err)
			os.Exit(1)
		}
		if err := cron.addJob(j.id, j.name, schedule, j.run); err != nil {
			logError("cron job registration failed", "jobId", j.id, "error", err)
			os.Exit(1)
		}
	}
	cron.start(ctx)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		logInfo("shutting down", "signal", s.String())
		cancel()
	}()

	logInfo("internbot started", "backend", cfg.Store.backendOrDefault(), "tz", loc.String())
	bot.pollLoop(ctx)

	cron.stop()
	if closer, ok := store.(interface{ Close() error }); ok {
		closer.Close()
	}
	logInfo("internbot stopped")
}

// openStore builds the configured RowStore backend, making sure the three
// tables exist with their headers.
func openStore(cfg *Config) (RowStore, error) {
	switch cfg.Store.backendOrDefault() {
	case "sqlite":
		return newSQLiteStore(cfg.Store.pathOrDefault())
	case "sheets":
		s, err := newSheetsStore(cfg.Sheets.SpreadsheetID, cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, err
		}
		if err := s.Init(context.Background()); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
