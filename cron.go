package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// --- Cron Engine ---

// cronJob is one scheduled trigger: a 5-field expression plus the function
// it fires. nextRun/lastRun bookkeeping prevents double-firing within the
// same minute.
type cronJob struct {
	id      string
	name    string
	expr    cronExpr
	run     func(ctx context.Context)
	nextRun time.Time
	lastRun time.Time
	running bool
}

// CronEngine drives the daily triggers. All jobs share the configured
// timezone; a 30-second ticker checks which jobs match the current minute.
type CronEngine struct {
	loc *time.Location

	mu   sync.Mutex
	jobs []*cronJob

	stopCh chan struct{}
	wg     sync.WaitGroup // tracks the ticker goroutine
	jobWg  sync.WaitGroup // tracks all running job goroutines
}

func newCronEngine(loc *time.Location) *CronEngine {
	return &CronEngine{
		loc:    loc,
		stopCh: make(chan struct{}),
	}
}

// addJob registers a trigger. Bad schedules are rejected up front so a typo
// in config fails at startup, not silently at runtime.
func (ce *CronEngine) addJob(id, name, schedule string, run func(ctx context.Context)) error {
	expr, err := parseCronExpr(schedule)
	if err != nil {
		return fmt.Errorf("job %s: bad schedule %q: %w", id, schedule, err)
	}

	j := &cronJob{id: id, name: name, expr: expr, run: run}
	j.nextRun = nextRunAfter(j.expr, ce.loc, time.Now().In(ce.loc))

	ce.mu.Lock()
	ce.jobs = append(ce.jobs, j)
	ce.mu.Unlock()

	logInfo("cron job registered", "jobId", id, "schedule", schedule, "nextRun", j.nextRun.Format(time.RFC3339))
	return nil
}

func (ce *CronEngine) start(ctx context.Context) {
	ce.wg.Add(1)
	go func() {
		defer ce.wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		logInfo("cron scheduler started", "tick", "30s", "jobs", len(ce.jobs))

		for {
			select {
			case <-ctx.Done():
				return
			case <-ce.stopCh:
				return
			case <-ticker.C:
				ce.tick(ctx)
			}
		}
	}()
}

func (ce *CronEngine) tick(ctx context.Context) {
	now := time.Now().In(ce.loc)

	ce.mu.Lock()
	defer ce.mu.Unlock()

	for _, j := range ce.jobs {
		if j.running {
			continue
		}
		if !j.nextRun.IsZero() && now.Before(j.nextRun) {
			continue
		}
		if !j.expr.matches(now) {
			continue
		}
		// Avoid double-firing in the same minute.
		if !j.lastRun.IsZero() &&
			j.lastRun.In(ce.loc).Truncate(time.Minute).Equal(now.Truncate(time.Minute)) {
			continue
		}

		j.running = true
		j.lastRun = now
		j.nextRun = nextRunAfter(j.expr, ce.loc, now)
		ce.jobWg.Add(1)
		go func(j *cronJob) {
			defer ce.jobWg.Done()
			defer func() {
				if r := recover(); r != nil {
					logError("cron job panicked", "jobId", j.id, "panic", fmt.Sprintf("%v", r))
				}
				ce.mu.Lock()
				j.running = false
				ce.mu.Unlock()
			}()
			logInfo("cron job firing", "jobId", j.id, "name", j.name)
			j.run(ctx)
		}(j)
	}
}

func (ce *CronEngine) stop() {
	close(ce.stopCh)
	ce.wg.Wait() // wait for ticker goroutine

	// Wait for all running jobs to finish (with timeout).
	done := make(chan struct{})
	go func() {
		ce.jobWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logInfo("cron all jobs finished")
	case <-time.After(30 * time.Second):
		logWarn("cron shutdown timeout, some jobs still running")
	}
}

// --- Cron Expressions ---

type cronExpr struct {
	minutes []bool // [60]
	hours   []bool // [24]
	doms    []bool // [32] (index 0 unused)
	months  []bool // [13] (index 0 unused)
	dows    []bool // [7]
}

func (e cronExpr) matches(t time.Time) bool {
	return e.minutes[t.Minute()] &&
		e.hours[t.Hour()] &&
		e.doms[t.Day()] &&
		e.months[int(t.Month())] &&
		e.dows[int(t.Weekday())]
}

func parseCronExpr(s string) (cronExpr, error) {
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return cronExpr{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return cronExpr{}, fmt.Errorf("minute: %w", err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return cronExpr{}, fmt.Errorf("hour: %w", err)
	}
	doms, err := parseField(fields[2], 1, 31)
	if err != nil {
		return cronExpr{}, fmt.Errorf("dom: %w", err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return cronExpr{}, fmt.Errorf("month: %w", err)
	}
	dows, err := parseField(fields[4], 0, 6)
	if err != nil {
		return cronExpr{}, fmt.Errorf("dow: %w", err)
	}

	e := cronExpr{
		minutes: make([]bool, 60),
		hours:   make([]bool, 24),
		doms:    make([]bool, 32),
		months:  make([]bool, 13),
		dows:    make([]bool, 7),
	}
	for _, v := range minutes {
		e.minutes[v] = true
	}
	for _, v := range hours {
		e.hours[v] = true
	}
	for _, v := range doms {
		e.doms[v] = true
	}
	for _, v := range months {
		e.months[v] = true
	}
	for _, v := range dows {
		e.dows[v] = true
	}
	return e, nil
}

// parseField parses a single cron field. Supports: *, N, N-M, */N, N-M/S, N,M,O
func parseField(field string, min, max int) ([]int, error) {
	var result []int

	for _, part := range strings.Split(field, ",") {
		vals, err := parsePart(part, min, max)
		if err != nil {
			return nil, err
		}
		result = append(result, vals...)
	}

	return result, nil
}

func parsePart(part string, min, max int) ([]int, error) {
	// Handle step: */N or N-M/S
	step := 1
	if idx := strings.Index(part, "/"); idx != -1 {
		s, err := strconv.Atoi(part[idx+1:])
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("bad step in %q", part)
		}
		step = s
		part = part[:idx]
	}

	var lo, hi int

	switch {
	case part == "*":
		lo, hi = min, max

	case strings.Contains(part, "-"):
		parts := strings.SplitN(part, "-", 2)
		var err error
		lo, err = strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("bad range start in %q", part)
		}
		hi, err = strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("bad range end in %q", part)
		}

	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", part)
		}
		if v < min || v > max {
			return nil, fmt.Errorf("value %d out of bounds [%d,%d]", v, min, max)
		}
		if step == 1 {
			return []int{v}, nil
		}
		lo, hi = v, max
	}

	if lo < min || hi > max || lo > hi {
		return nil, fmt.Errorf("range %d-%d out of bounds [%d,%d]", lo, hi, min, max)
	}

	var vals []int
	for v := lo; v <= hi; v += step {
		vals = append(vals, v)
	}
	return vals, nil
}

// nextRunAfter finds the next time after `after` that matches the cron expression.
func nextRunAfter(expr cronExpr, loc *time.Location, after time.Time) time.Time {
	// Start from the next minute.
	t := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to 366 days ahead.
	limit := t.Add(366 * 24 * time.Hour)
	for t.Before(limit) {
		if expr.matches(t) {
			return t
		}
		// Skip ahead intelligently.
		if !expr.months[int(t.Month())] {
			// Skip to next month.
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !expr.doms[t.Day()] || !expr.dows[int(t.Weekday())] {
			// Skip to next day.
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !expr.hours[t.Hour()] {
			// Skip to next hour.
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		// Skip to next minute.
		t = t.Add(time.Minute)
	}
	return time.Time{} // no match found
}

// --- Daily Schedules ---

// parseHHMM parses "15:04", returning (-1, -1) when malformed.
func parseHHMM(s string) (int, int) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return -1, -1
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return -1, -1
	}
	return h, m
}

// scheduleFromHHMM turns a local wall-clock time into an every-day cron
// expression.
func scheduleFromHHMM(hhmm string) (string, error) {
	h, m := parseHHMM(hhmm)
	if h < 0 {
		return "", fmt.Errorf("%q is not HH:MM", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}
