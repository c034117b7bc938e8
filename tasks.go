package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- Task Registry ---

var priorityEmoji = map[string]string{
	"P1": "🔴",
	"P2": "🟡",
	"P3": "🔵",
}

func emojiFor(priority string) string {
	if e, ok := priorityEmoji[priority]; ok {
		return e
	}
	return "⚪"
}

var priorityRank = map[string]int{"P1": 1, "P2": 2, "P3": 3}

// TaskRegistry owns the Task_Log table: creating tasks, listing views of the
// open set, and completing tasks. It holds no cache; every read goes to the
// store so sheet edits made by hand show up immediately.
type TaskRegistry struct {
	store RowStore
	loc   *time.Location
	now   func() time.Time
}

func newTaskRegistry(store RowStore, loc *time.Location) *TaskRegistry {
	return &TaskRegistry{store: store, loc: loc, now: time.Now}
}

func (r *TaskRegistry) today() string {
	return r.now().In(r.loc).Format("2006-01-02")
}

// Add appends a new open task and returns it with its generated ID.
func (r *TaskRegistry) Add(ctx context.Context, in TaskInput) (Task, error) {
	t := Task{
		ID:          uuid.NewString()[:8],
		Description: in.Description,
		Owner:       in.Assignee,
		Priority:    in.Priority,
		Category:    in.Category,
		Created:     r.now().In(r.loc).Format("2006-01-02 15:04:05"),
		Status:      statusOpen,
		DueDate:     in.DueDate,
	}
	row := []string{t.ID, t.Description, t.Owner, t.Priority, t.Category, t.Created, t.Status, "", t.DueDate}
	if err := r.store.AppendRow(ctx, taskTable, row); err != nil {
		return Task{}, fmt.Errorf("append task: %w", err)
	}
	logInfo("task added", "id", t.ID, "owner", t.Owner, "priority", t.Priority)
	return t, nil
}

func (r *TaskRegistry) all(ctx context.Context) ([]Task, error) {
	recs, err := r.store.Records(ctx, taskTable)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	tasks := make([]Task, 0, len(recs))
	for _, rec := range recs {
		tasks = append(tasks, taskFromRecord(rec))
	}
	return tasks, nil
}

func sortByPriority(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return priorityRank[tasks[i].Priority] < priorityRank[tasks[j].Priority]
	})
}

// ListOpen returns owner's open tasks, P1 first, insertion order within a
// priority.
func (r *TaskRegistry) ListOpen(ctx context.Context, owner string) ([]Task, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var open []Task
	for _, t := range all {
		if t.Status == statusOpen && t.Owner == owner {
			open = append(open, t)
		}
	}
	sortByPriority(open)
	return open, nil
}

// ListAllOpen returns every open task, sorted by priority.
func (r *TaskRegistry) ListAllOpen(ctx context.Context) ([]Task, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var open []Task
	for _, t := range all {
		if t.Status == statusOpen {
			open = append(open, t)
		}
	}
	sortByPriority(open)
	return open, nil
}

// ListByDueDate returns open tasks ascending by due date. Tasks without a
// parsable due date sort last, keeping insertion order among themselves.
func (r *TaskRegistry) ListByDueDate(ctx context.Context) ([]Task, error) {
	open, err := r.ListAllOpen(ctx)
	if err != nil {
		return nil, err
	}
	farFuture := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	sort.SliceStable(open, func(i, j int) bool {
		di, oki := open[i].dueTime()
		dj, okj := open[j].dueTime()
		if !oki {
			di = farFuture
		}
		if !okj {
			dj = farFuture
		}
		return di.Before(dj)
	})
	return open, nil
}

// Get finds a task by ID.
func (r *TaskRegistry) Get(ctx context.Context, id string) (Task, bool, error) {
	all, err := r.all(ctx)
	if err != nil {
		return Task{}, false, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, true, nil
		}
	}
	return Task{}, false, nil
}

// MarkDone completes a task: Status → Done, Date_Completed stamped, and the
// completion link written if given (the Completion_Link column is created on
// first use). Returns false with no mutation when the ID is unknown.
func (r *TaskRegistry) MarkDone(ctx context.Context, id, link string) (bool, error) {
	recs, err := r.store.Records(ctx, taskTable)
	if err != nil {
		return false, fmt.Errorf("read tasks: %w", err)
	}
	idx := -1
	for i, rec := range recs {
		if rec["Task_ID"] == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	header, err := r.store.Header(ctx, taskTable)
	if err != nil {
		return false, fmt.Errorf("read task header: %w", err)
	}
	statusCol := colIndex(header, "Status")
	completedCol := colIndex(header, "Date_Completed")
	if statusCol == 0 || completedCol == 0 {
		return false, fmt.Errorf("task table is missing Status or Date_Completed")
	}

	rowIndex := idx + 2 // row 1 is the header
	if err := r.store.UpdateCell(ctx, taskTable, rowIndex, statusCol, statusDone); err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	stamp := r.now().In(r.loc).Format("2006-01-02 15:04:05")
	if err := r.store.UpdateCell(ctx, taskTable, rowIndex, completedCol, stamp); err != nil {
		return false, fmt.Errorf("update completion date: %w", err)
	}
	if link != "" {
		linkCol, err := r.store.EnsureColumn(ctx, taskTable, linkColumn)
		if err != nil {
			return false, fmt.Errorf("ensure link column: %w", err)
		}
		if err := r.store.UpdateCell(ctx, taskTable, rowIndex, linkCol, link); err != nil {
			return false, fmt.Errorf("update link: %w", err)
		}
	}
	logInfo("task completed", "id", id, "hasLink", link != "")
	return true, nil
}

// CompletedToday returns tasks whose completion stamp falls on today's date.
func (r *TaskRegistry) CompletedToday(ctx context.Context) ([]Task, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	today := r.today()
	var done []Task
	for _, t := range all {
		if t.Status == statusDone && strings.HasPrefix(t.Completed, today) {
			done = append(done, t)
		}
	}
	return done, nil
}

// UsersWithoutTaskToday filters candidates down to those with no task
// created today, regardless of who created it.
func (r *TaskRegistry) UsersWithoutTaskToday(ctx context.Context, candidates []string) ([]string, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	today := r.today()
	hasTask := make(map[string]bool)
	for _, t := range all {
		if strings.HasPrefix(t.Created, today) {
			hasTask[t.Owner] = true
		}
	}
	var idle []string
	for _, u := range candidates {
		if !hasTask[u] {
			idle = append(idle, u)
		}
	}
	return idle, nil
}

// --- Message Composers ---

func taskLine(t Task) string {
	line := fmt.Sprintf("%s *%s* — %s", emojiFor(t.Priority), t.Priority, escapeMarkdown(t.Description))
	if t.Category != defaultCategory {
		line += fmt.Sprintf(" _(%s)_", escapeMarkdown(t.Category))
	}
	if t.DueDate != "" {
		line += fmt.Sprintf(" 📅 %s", t.DueDate)
	}
	return line
}

func doneButton(t Task) tgInlineButton {
	return tgInlineButton{
		Text:         "✅ " + truncate(t.Description, 40),
		CallbackData: "done:" + t.ID,
	}
}

// UserTasksMessage composes the /mytasks reply with one done button per task.
func (r *TaskRegistry) UserTasksMessage(ctx context.Context, user string) (string, [][]tgInlineButton, error) {
	tasks, err := r.ListOpen(ctx, user)
	if err != nil {
		return "", nil, err
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("No open tasks for @%s. Add one with /task.", user), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*Open tasks for @%s:*\n\n", user)
	var keyboard [][]tgInlineButton
	for _, t := range tasks {
		sb.WriteString(taskLine(t))
		sb.WriteByte('\n')
		keyboard = append(keyboard, []tgInlineButton{doneButton(t)})
	}
	return sb.String(), keyboard, nil
}

// AllOpenTasksMessage composes the /alltasks reply, grouped by user.
func (r *TaskRegistry) AllOpenTasksMessage(ctx context.Context) (string, [][]tgInlineButton, error) {
	tasks, err := r.ListAllOpen(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(tasks) == 0 {
		return "No open tasks anywhere. 🎉", nil, nil
	}

	byOwner := make(map[string][]Task)
	var owners []string
	for _, t := range tasks {
		if _, seen := byOwner[t.Owner]; !seen {
			owners = append(owners, t.Owner)
		}
		byOwner[t.Owner] = append(byOwner[t.Owner], t)
	}
	sort.Strings(owners)

	var sb strings.Builder
	sb.WriteString("*All open tasks:*\n")
	var keyboard [][]tgInlineButton
	for _, owner := range owners {
		fmt.Fprintf(&sb, "\n👤 @%s\n", owner)
		for _, t := range byOwner[owner] {
			sb.WriteString(taskLine(t))
			sb.WriteByte('\n')
			keyboard = append(keyboard, []tgInlineButton{doneButton(t)})
		}
	}
	return sb.String(), keyboard, nil
}

// DueTasksMessage composes the /duetasks reply, soonest due date first with
// undated tasks in a trailing section.
func (r *TaskRegistry) DueTasksMessage(ctx context.Context) (string, [][]tgInlineButton, error) {
	tasks, err := r.ListByDueDate(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(tasks) == 0 {
		return "No open tasks anywhere. 🎉", nil, nil
	}

	var sb strings.Builder
	sb.WriteString("*Open tasks by due date:*\n\n")
	var keyboard [][]tgInlineButton
	undatedHeader := false
	for _, t := range tasks {
		if _, ok := t.dueTime(); !ok && !undatedHeader {
			sb.WriteString("\n_No due date:_\n")
			undatedHeader = true
		}
		fmt.Fprintf(&sb, "%s (@%s)\n", taskLine(t), t.Owner)
		keyboard = append(keyboard, []tgInlineButton{doneButton(t)})
	}
	return sb.String(), keyboard, nil
}

// EndOfDaySummary composes the evening wrap-up: what got done today and what
// is still open, grouped by priority.
func (r *TaskRegistry) EndOfDaySummary(ctx context.Context) (string, error) {
	done, err := r.CompletedToday(ctx)
	if err != nil {
		return "", err
	}
	open, err := r.ListAllOpen(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("🌆 *End-of-day summary*\n\n")

	if len(done) == 0 {
		sb.WriteString("Nothing was completed today.\n")
	} else {
		fmt.Fprintf(&sb, "✅ *Completed today (%d):*\n", len(done))
		for _, t := range done {
			fmt.Fprintf(&sb, "• %s (@%s)\n", escapeMarkdown(t.Description), t.Owner)
		}
	}

	if len(open) == 0 {
		sb.WriteString("\nThe board is clear. 🎉\n")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "\n⏳ *Still open (%d):*\n", len(open))
	for _, p := range []string{"P1", "P2", "P3"} {
		var group []Task
		for _, t := range open {
			if t.Priority == p {
				group = append(group, t)
			}
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s *%s*\n", emojiFor(p), p)
		for _, t := range group {
			fmt.Fprintf(&sb, "• %s (@%s)\n", escapeMarkdown(t.Description), t.Owner)
		}
	}
	return sb.String(), nil
}
