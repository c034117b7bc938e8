package main

import (
	"context"
	"time"
)

// --- Row Store ---

// The three tables live in a spreadsheet-style store: a header row followed
// by data rows, addressed by 1-based (row, col) with row 1 = header.
const (
	taskTable     = "Task_Log"
	okrTable      = "OKR_Log"
	progressTable = "Daily_Progress_Log"
)

// linkColumn is added to Task_Log lazily, the first time a task is completed
// with a link.
const linkColumn = "Completion_Link"

var tableHeaders = map[string][]string{
	taskTable: {
		"Task_ID", "Task_Description", "Assigned_To_User", "Priority",
		"Category", "Date_Created", "Status", "Date_Completed", "Due_Date",
	},
	okrTable: {
		"OKR_ID", "Goal_Name", "Target_Value", "Start_Value",
		"Period_Start_Date", "Period_End_Date", "Owner",
	},
	progressTable: {
		"Date", "User_Who_Updated", "OKR_Name", "Updated_Value",
	},
}

// RowStore is the flat-table persistence contract shared by the Google
// Sheets backend and the local SQLite backend. Records returns data rows in
// insertion order as header-keyed maps; UpdateCell addresses cells the way a
// spreadsheet does (row 1 is the header, data starts at row 2).
type RowStore interface {
	AppendRow(ctx context.Context, table string, row []string) error
	Records(ctx context.Context, table string) ([]map[string]string, error)
	Header(ctx context.Context, table string) ([]string, error)
	UpdateCell(ctx context.Context, table string, row, col int, value string) error

	// EnsureColumn returns the 1-based index of the named column, adding it
	// to the table when missing.
	EnsureColumn(ctx context.Context, table, name string) (int, error)
}

// colIndex returns the 1-based index of name in header, or 0 when absent.
func colIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i + 1
		}
	}
	return 0
}

// --- Typed Records ---

// Task statuses. A task only ever moves Open → Done.
const (
	statusOpen = "Open"
	statusDone = "Done"
)

const (
	defaultPriority    = "P3"
	defaultCategory    = "General"
	defaultDescription = "Untitled Task"
)

// Task is a fully-defaulted view of a Task_Log row. Rows edited by hand in
// the sheet can arrive with fields missing; the defaults below are applied
// here, at the store boundary, so listing never fails on a partial row.
type Task struct {
	ID          string
	Description string
	Owner       string
	Priority    string // P1, P2, P3
	Category    string
	Created     string // "2006-01-02 15:04:05" in the bot timezone
	Status      string
	Completed   string // same format, empty while open
	DueDate     string // "2006-01-02" or empty
	Link        string
}

func taskFromRecord(rec map[string]string) Task {
	t := Task{
		ID:          rec["Task_ID"],
		Description: rec["Task_Description"],
		Owner:       rec["Assigned_To_User"],
		Priority:    rec["Priority"],
		Category:    rec["Category"],
		Created:     rec["Date_Created"],
		Status:      rec["Status"],
		Completed:   rec["Date_Completed"],
		DueDate:     rec["Due_Date"],
		Link:        rec[linkColumn],
	}
	if t.Description == "" {
		t.Description = defaultDescription
	}
	if t.Owner == "" {
		t.Owner = "unassigned"
	}
	t.Priority = normalizePriority(t.Priority)
	if t.Category == "" {
		t.Category = defaultCategory
	}
	if t.Status == "" {
		t.Status = statusOpen
	}
	return t
}

// normalizePriority maps loose stored values ("p1", "1", "") onto the P1-P3
// enum, defaulting to P3.
func normalizePriority(p string) string {
	switch trimUpper(p) {
	case "P1", "1":
		return "P1"
	case "P2", "2":
		return "P2"
	default:
		return defaultPriority
	}
}

// dueTime parses the due date, reporting whether one is set and valid.
func (t Task) dueTime() (time.Time, bool) {
	if t.DueDate == "" {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", t.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Objective is an OKR_Log row. Dates are parsed strictly when syncing (rows
// with bad dates are skipped); the numeric fields stay raw and are parsed
// where used, degrading to a generic message when junk.
type Objective struct {
	ID        string
	Goal      string
	TargetRaw string
	StartRaw  string
	Owner     string
	Start     time.Time
	End       time.Time
}

// objectiveFromRecord builds an Objective, failing only on unparsable dates.
func objectiveFromRecord(rec map[string]string) (Objective, bool) {
	start, err := time.Parse("2006-01-02", rec["Period_Start_Date"])
	if err != nil {
		return Objective{}, false
	}
	end, err := time.Parse("2006-01-02", rec["Period_End_Date"])
	if err != nil {
		return Objective{}, false
	}
	return Objective{
		ID:        rec["OKR_ID"],
		Goal:      rec["Goal_Name"],
		TargetRaw: rec["Target_Value"],
		StartRaw:  rec["Start_Value"],
		Owner:     rec["Owner"],
		Start:     start,
		End:       end,
	}, true
}

// activeOn reports whether the objective's period contains day (inclusive
// on both ends).
func (o Objective) activeOn(day time.Time) bool {
	d := day.Format("2006-01-02")
	return o.Start.Format("2006-01-02") <= d && d <= o.End.Format("2006-01-02")
}

// ProgressSample is one Daily_Progress_Log row.
type ProgressSample struct {
	Date  string // "2006-01-02"
	User  string
	Goal  string
	Value string
}

func sampleFromRecord(rec map[string]string) ProgressSample {
	return ProgressSample{
		Date:  rec["Date"],
		User:  rec["User_Who_Updated"],
		Goal:  rec["OKR_Name"],
		Value: rec["Updated_Value"],
	}
}
