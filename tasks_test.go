package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTaskRegistry(store RowStore) *TaskRegistry {
	r := newTaskRegistry(store, time.UTC)
	r.now = func() time.Time {
		return time.Date(2025, 7, 10, 14, 30, 0, 0, time.UTC)
	}
	return r
}

func TestTaskAdd(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testTaskRegistry(store)

	task, err := r.Add(ctx, TaskInput{
		Priority:    "P1",
		Description: "Ship report",
		Category:    "Ops",
		DueDate:     "2025-07-12",
		Assignee:    "alice",
	})
	require.NoError(t, err)
	assert.Len(t, task.ID, 8)
	assert.Equal(t, statusOpen, task.Status)
	assert.Equal(t, "2025-07-10 14:30:00", task.Created)

	recs, err := store.Records(ctx, taskTable)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Ship report", recs[0]["Task_Description"])
	assert.Equal(t, "alice", recs[0]["Assigned_To_User"])
	assert.Equal(t, "2025-07-12", recs[0]["Due_Date"])
}

func TestListOpenSortsByPriorityStable(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testTaskRegistry(store)

	for _, in := range []TaskInput{
		{Priority: "P3", Description: "third", Assignee: "alice"},
		{Priority: "P1", Description: "first", Assignee: "alice"},
		{Priority: "P2", Description: "second a", Assignee: "alice"},
		{Priority: "P2", Description: "second b", Assignee: "alice"},
		{Priority: "P1", Description: "other user", Assignee: "bob"},
	} {
		_, err := r.Add(ctx, in)
		require.NoError(t, err)
	}

	open, err := r.ListOpen(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, open, 4)
	assert.Equal(t, "first", open[0].Description)
	assert.Equal(t, "second a", open[1].Description)
	assert.Equal(t, "second b", open[2].Description)
	assert.Equal(t, "third", open[3].Description)
}

func TestListByDueDateUndatedLast(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testTaskRegistry(store)

	for _, in := range []TaskInput{
		{Priority: "P1", Description: "no due a", Assignee: "alice"},
		{Priority: "P1", Description: "later", DueDate: "2025-07-20", Assignee: "alice"},
		{Priority: "P1", Description: "soon", DueDate: "2025-07-11", Assignee: "alice"},
		{Priority: "P1", Description: "no due b", Assignee: "alice"},
	} {
		_, err := r.Add(ctx, in)
		require.NoError(t, err)
	}

	tasks, err := r.ListByDueDate(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	assert.Equal(t, "soon", tasks[0].Description)
	assert.Equal(t, "later", tasks[1].Description)
	assert.Equal(t, "no due a", tasks[2].Description)
	assert.Equal(t, "no due b", tasks[3].Description)
}

func TestMarkDoneUnknownID(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testTaskRegistry(store)

	_, err := r.Add(ctx, TaskInput{Priority: "P1", Description: "keep me", Assignee: "alice"})
	require.NoError(t, err)

	ok, err := r.MarkDone(ctx, "nope1234", "")
	require.NoError(t, err)
	assert.False(t, ok)

	open, err := r.ListAllOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1, "unknown id must not mutate anything")
}

func TestMarkDoneWithLinkCreatesColumn(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testTaskRegistry(store)

	task, err := r.Add(ctx, TaskInput{Priority: "P2", Description: "deck", Assignee: "alice"})
	require.NoError(t, err)

	header, err := store.Header(ctx, taskTable)
	require.NoError(t, err)
	assert.Zero(t, colIndex(header, linkColumn), "link column must not exist up front")

	ok, err := r.MarkDone(ctx, task.ID, "https://example.com/deck")
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := r.Get(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, statusDone, got.Status)
	assert.Equal(t, "2025-07-10 14:30:00", got.Completed)
	assert.Equal(t, "https://example.com/deck", got.Link)
}

func TestMarkDoneWithoutLinkSkipsColumn(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testTaskRegistry(store)

	task, err := r.Add(ctx, TaskInput{Priority: "P3", Description: "tidy", Assignee: "bob"})
	require.NoError(t, err)

	ok, err := r.MarkDone(ctx, task.ID, "")
	require.NoError(t, err)
	require.True(t, ok)

	header, err := store.Header(ctx, taskTable)
	require.NoError(t, err)
	assert.Zero(t, colIndex(header, linkColumn))
}

func TestCompletedToday(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testTaskRegistry(store)

	a, err := r.Add(ctx, TaskInput{Priority: "P1", Description: "done today", Assignee: "alice"})
	require.NoError(t, err)
	_, err = r.Add(ctx, TaskInput{Priority: "P1", Description: "still open", Assignee: "alice"})
	require.NoError(t, err)

	ok, err := r.MarkDone(ctx, a.ID, "")
	require.NoError(t, err)
	require.True(t, ok)

	done, err := r.CompletedToday(ctx)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "done today", done[0].Description)
}

func TestUsersWithoutTaskToday(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := testTaskRegistry(store)

	_, err := r.Add(ctx, TaskInput{Priority: "P1", Description: "fresh", Assignee: "alice"})
	require.NoError(t, err)

	// A task created on an earlier day does not count for today.
	require.NoError(t, store.AppendRow(ctx, taskTable, []string{
		"old12345", "stale", "carol", "P2", "General", "2025-07-01 09:00:00", statusOpen, "", "",
	}))

	idle, err := r.UsersWithoutTaskToday(ctx, []string{"alice", "bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, idle)
}
