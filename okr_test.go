package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOKRRegistry(store RowStore, today time.Time) *OKRRegistry {
	r := newOKRRegistry(store, time.UTC)
	r.now = func() time.Time { return today }
	return r
}

func addOKRRow(t *testing.T, store RowStore, id, goal, target, start, from, to string) {
	t.Helper()
	require.NoError(t, store.AppendRow(context.Background(), okrTable,
		[]string{id, goal, target, start, from, to, "alice"}))
}

func TestSyncActiveInclusiveBounds(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	addOKRRow(t, store, "okr1", "Signups", "100", "0", "2025-07-01", "2025-07-31")
	addOKRRow(t, store, "okr2", "Old", "10", "0", "2025-06-01", "2025-06-30")
	addOKRRow(t, store, "okr3", "Future", "10", "0", "2025-08-01", "2025-08-31")
	addOKRRow(t, store, "okr4", "EndsToday", "10", "0", "2025-06-15", "2025-07-10")
	addOKRRow(t, store, "okr5", "StartsToday", "10", "0", "2025-07-10", "2025-07-20")

	r := testOKRRegistry(store, time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC))
	n, err := r.SyncActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NotNil(t, r.ActiveByID("okr1"))
	assert.NotNil(t, r.ActiveByID("okr4"))
	assert.NotNil(t, r.ActiveByID("okr5"))
	assert.Nil(t, r.ActiveByID("okr2"))
	assert.Nil(t, r.ActiveByID("okr3"))
}

func TestSyncActiveSkipsBadDates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	addOKRRow(t, store, "good", "Fine", "10", "0", "2025-07-01", "2025-07-31")
	addOKRRow(t, store, "bad", "Broken", "10", "0", "next week", "2025-07-31")

	r := testOKRRegistry(store, time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC))
	n, err := r.SyncActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, r.ActiveByID("bad"))
}

func TestRecordProgressRejectsNonNumeric(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	addOKRRow(t, store, "okr1", "Signups", "100", "0", "2025-07-01", "2025-07-31")

	r := testOKRRegistry(store, time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC))
	_, err := r.SyncActive(ctx)
	require.NoError(t, err)

	ok, feedback := r.RecordProgress(ctx, "alice", "okr1", "lots")
	assert.False(t, ok)
	assert.Equal(t, "Please provide a valid number for the OKR value.", feedback)

	recs, err := store.Records(ctx, progressTable)
	require.NoError(t, err)
	assert.Empty(t, recs, "rejected input must not be stored")
}

func TestRecordProgressUnknownOKR(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testOKRRegistry(store, time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC))

	ok, feedback := r.RecordProgress(ctx, "alice", "ghost", "5")
	assert.False(t, ok)
	assert.Contains(t, feedback, "OKR not found")
}

func TestRecordProgressAppendsSample(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	addOKRRow(t, store, "okr1", "Signups", "100", "0", "2025-07-01", "2025-07-11")

	r := testOKRRegistry(store, time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC))
	_, err := r.SyncActive(ctx)
	require.NoError(t, err)

	ok, _ := r.RecordProgress(ctx, "alice", "okr1", "40")
	require.True(t, ok)

	recs, err := store.Records(ctx, progressTable)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2025-07-06", recs[0]["Date"])
	assert.Equal(t, "alice", recs[0]["User_Who_Updated"])
	assert.Equal(t, "Signups", recs[0]["OKR_Name"])
	assert.Equal(t, "40", recs[0]["Updated_Value"])
}

func TestRecordProgressDeltaUsesPreviousSample(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	addOKRRow(t, store, "okr1", "Signups", "100", "0", "2025-07-01", "2025-07-11")
	require.NoError(t, store.AppendRow(ctx, progressTable, []string{"2025-07-05", "alice", "Signups", "30"}))

	r := testOKRRegistry(store, time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC))
	_, err := r.SyncActive(ctx)
	require.NoError(t, err)

	ok, feedback := r.RecordProgress(ctx, "alice", "okr1", "40")
	require.True(t, ok)
	assert.Contains(t, feedback, "gained 10.0")
}

// --- Pacing Feedback ---

func pacingObjective() Objective {
	return Objective{
		ID:        "okr1",
		Goal:      "Signups",
		TargetRaw: "100",
		StartRaw:  "0",
		Start:     time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC),
	}
}

func TestPacingBehindSchedule(t *testing.T) {
	// Day 5 of 10, expected 50, current 40 → deficit 10 over 5 days left.
	today := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	got := pacingFeedback(pacingObjective(), 40, 30, true, today)
	assert.Contains(t, got, "gained 10.0")
	assert.Contains(t, got, "The daily target was 10.0.")
	assert.Contains(t, got, "The deficit of 10.0 will be distributed over the remaining 5 days.")
	assert.Contains(t, got, "New daily target: 12.0. Keep pushing!")
}

func TestPacingAheadOfSchedule(t *testing.T) {
	today := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	got := pacingFeedback(pacingObjective(), 60, 50, true, today)
	assert.Contains(t, got, "ahead of schedule by 10.0")
	assert.Contains(t, got, "Keep up the good work!")
}

func TestPacingDayOne(t *testing.T) {
	today := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	got := pacingFeedback(pacingObjective(), 5, 0, false, today)
	assert.Equal(t, "Great! You're starting with 5 for 'Signups'.", got)
}

func TestPacingLastDayReached(t *testing.T) {
	today := time.Date(2025, 7, 11, 12, 0, 0, 0, time.UTC)
	got := pacingFeedback(pacingObjective(), 105, 90, true, today)
	assert.Contains(t, got, "Congratulations! You've reached your target of 100!")
}

func TestPacingLastDayShortfall(t *testing.T) {
	today := time.Date(2025, 7, 11, 12, 0, 0, 0, time.UTC)
	got := pacingFeedback(pacingObjective(), 80, 70, true, today)
	assert.Contains(t, got, "The period has ended. Final value: 80 / Target: 100")
}

func TestPacingLostGround(t *testing.T) {
	today := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	got := pacingFeedback(pacingObjective(), 40, 45, true, today)
	assert.Contains(t, got, "lost 5.0")
}

func TestPacingFallbackOnBadNumbers(t *testing.T) {
	obj := pacingObjective()
	obj.TargetRaw = "a lot"
	today := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	got := pacingFeedback(obj, 40, 30, true, today)
	assert.Equal(t, "Progress updated for 'Signups'. New value: 40", got)
}

func TestUpdateKeyboard(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	addOKRRow(t, store, "okr1", "Signups", "100", "0", "2025-07-01", "2025-07-31")

	r := testOKRRegistry(store, time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC))
	_, err := r.SyncActive(ctx)
	require.NoError(t, err)

	text, keyboard := r.UpdateKeyboard()
	assert.Contains(t, text, "OKR Progress Update")
	require.Len(t, keyboard, 1)
	assert.Equal(t, "okr:okr1", keyboard[0][0].CallbackData)
	assert.Contains(t, keyboard[0][0].Text, "Signups")
}

func TestUpdateKeyboardEmpty(t *testing.T) {
	r := testOKRRegistry(newMemStore(), time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC))
	text, keyboard := r.UpdateKeyboard()
	assert.Contains(t, text, "No active OKRs")
	assert.Nil(t, keyboard)
}
