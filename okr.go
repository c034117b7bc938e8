package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// --- Objective Registry ---

// OKRRegistry keeps the set of currently active objectives in memory,
// refreshed from OKR_Log via SyncActive, and records progress samples with
// pace-tracking feedback.
type OKRRegistry struct {
	store RowStore
	loc   *time.Location
	now   func() time.Time

	mu     sync.RWMutex
	active []Objective
}

func newOKRRegistry(store RowStore, loc *time.Location) *OKRRegistry {
	return &OKRRegistry{store: store, loc: loc, now: time.Now}
}

func (r *OKRRegistry) today() time.Time {
	return r.now().In(r.loc)
}

// SyncActive reloads OKR_Log and keeps objectives whose period contains
// today, inclusive on both ends. Rows with unparsable dates are skipped.
func (r *OKRRegistry) SyncActive(ctx context.Context) (int, error) {
	recs, err := r.store.Records(ctx, okrTable)
	if err != nil {
		return 0, fmt.Errorf("read okrs: %w", err)
	}

	today := r.today()
	var active []Objective
	for _, rec := range recs {
		obj, ok := objectiveFromRecord(rec)
		if !ok {
			logWarn("skipping okr row with bad dates", "id", rec["OKR_ID"])
			continue
		}
		if obj.activeOn(today) {
			active = append(active, obj)
		}
	}

	r.mu.Lock()
	r.active = active
	r.mu.Unlock()

	logInfo("okrs synced", "active", len(active))
	return len(active), nil
}

// ActiveByID returns the active objective with the given ID, or nil.
func (r *OKRRegistry) ActiveByID(id string) *Objective {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.active {
		if r.active[i].ID == id {
			return &r.active[i]
		}
	}
	return nil
}

func (r *OKRRegistry) activeSnapshot() []Objective {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Objective(nil), r.active...)
}

// latestSample returns the most recent progress sample for a goal, by date
// descending then insertion order.
func (r *OKRRegistry) latestSample(ctx context.Context, goal string) (ProgressSample, bool, error) {
	recs, err := r.store.Records(ctx, progressTable)
	if err != nil {
		return ProgressSample{}, false, fmt.Errorf("read progress log: %w", err)
	}
	var samples []ProgressSample
	for _, rec := range recs {
		s := sampleFromRecord(rec)
		if s.Goal == goal {
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		return ProgressSample{}, false, nil
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Date > samples[j].Date
	})
	return samples[0], true, nil
}

// RecordProgress validates and appends one progress sample, returning pacing
// feedback for the chat. The previous value is read before the append so the
// delta compares against the last update, not the one just written. A false
// return means nothing was stored.
func (r *OKRRegistry) RecordProgress(ctx context.Context, user, okrID, raw string) (bool, string) {
	obj := r.ActiveByID(okrID)
	if obj == nil {
		return false, "OKR not found. Please use /syncokrs to refresh from the sheet."
	}

	current, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return false, "Please provide a valid number for the OKR value."
	}

	prev := 0.0
	hasPrev := false
	if sample, ok, err := r.latestSample(ctx, obj.Goal); err != nil {
		logWarn("progress history unavailable", "goal", obj.Goal, "error", err)
	} else if ok {
		if v, err := strconv.ParseFloat(sample.Value, 64); err == nil {
			prev = v
			hasPrev = true
		}
	}

	today := r.today()
	row := []string{today.Format("2006-01-02"), user, obj.Goal, strings.TrimSpace(raw)}
	if err := r.store.AppendRow(ctx, progressTable, row); err != nil {
		logError("progress append failed", "goal", obj.Goal, "error", err)
		return false, "Could not save your update. Please try again."
	}

	logInfo("okr progress recorded", "goal", obj.Goal, "user", user, "value", current)
	return true, pacingFeedback(*obj, current, prev, hasPrev, today)
}

// pacingFeedback builds the linear-pace message for a new sample. When the
// numeric fields or the period are unusable it degrades to a plain
// acknowledgement rather than failing the update.
func pacingFeedback(obj Objective, current, prev float64, hasPrev bool, today time.Time) string {
	fallback := fmt.Sprintf("Progress updated for '%s'. New value: %v", obj.Goal, current)

	target, err1 := strconv.ParseFloat(strings.TrimSpace(obj.TargetRaw), 64)
	start, err2 := strconv.ParseFloat(strings.TrimSpace(obj.StartRaw), 64)
	if err1 != nil || err2 != nil {
		return fallback
	}

	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	totalDays := int(day(obj.End).Sub(day(obj.Start)).Hours() / 24)
	daysPassed := int(day(today).Sub(day(obj.Start)).Hours() / 24)
	daysRemaining := int(day(obj.End).Sub(day(today)).Hours() / 24)

	if daysPassed <= 0 {
		return fmt.Sprintf("Great! You're starting with %v for '%s'.", current, obj.Goal)
	}
	if totalDays <= 0 {
		return fallback
	}

	if !hasPrev {
		prev = start
	}
	dailyChange := current - prev

	changeText := fmt.Sprintf("gained %.1f", dailyChange)
	if dailyChange < 0 {
		changeText = fmt.Sprintf("lost %.1f", -dailyChange)
	}
	feedback := fmt.Sprintf("Great, you %s for '%s' today. ", changeText, obj.Goal)

	requiredDaily := (target - start) / float64(totalDays)
	expected := start + requiredDaily*float64(daysPassed)

	if daysRemaining > 0 {
		deficit := expected - current
		if deficit > 0 {
			newDaily := (target - current) / float64(daysRemaining)
			feedback += fmt.Sprintf("The daily target was %.1f. ", requiredDaily)
			feedback += fmt.Sprintf("The deficit of %.1f will be distributed over the remaining %d days. ", deficit, daysRemaining)
			feedback += fmt.Sprintf("New daily target: %.1f. Keep pushing!", newDaily)
		} else {
			feedback += fmt.Sprintf("You're ahead of schedule by %.1f! Keep up the good work!", -deficit)
		}
		return feedback
	}

	if current >= target {
		feedback += fmt.Sprintf("Congratulations! You've reached your target of %v!", target)
	} else {
		feedback += fmt.Sprintf("The period has ended. Final value: %v / Target: %v", current, target)
	}
	return feedback
}

// --- Message Composers ---

// UpdateKeyboard composes the OKR update prompt with one button per active
// objective.
func (r *OKRRegistry) UpdateKeyboard() (string, [][]tgInlineButton) {
	active := r.activeSnapshot()
	if len(active) == 0 {
		return "No active OKRs found. Use /syncokrs to refresh from the sheet.", nil
	}

	var sb strings.Builder
	sb.WriteString("📊 *OKR Progress Update*\n\n")
	sb.WriteString("Please click on an OKR to update its progress:\n\n")

	var keyboard [][]tgInlineButton
	for _, obj := range active {
		label := fmt.Sprintf("Update: %s (Target: %s)", obj.Goal, obj.TargetRaw)
		keyboard = append(keyboard, []tgInlineButton{{
			Text:         truncate(label, 60),
			CallbackData: "okr:" + obj.ID,
		}})
	}
	return sb.String(), keyboard
}

// Summary composes the /syncokrs progress overview: latest value vs target
// per active objective.
func (r *OKRRegistry) Summary(ctx context.Context) string {
	active := r.activeSnapshot()
	if len(active) == 0 {
		return "No active OKRs for the current period."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📈 *Active OKRs (%d):*\n\n", len(active))
	for _, obj := range active {
		value := obj.StartRaw
		if sample, ok, err := r.latestSample(ctx, obj.Goal); err == nil && ok {
			value = sample.Value
		}
		fmt.Fprintf(&sb, "• *%s*: %s / %s (period ends %s)\n",
			escapeMarkdown(obj.Goal), value, obj.TargetRaw, obj.End.Format("2006-01-02"))
	}
	return sb.String()
}
