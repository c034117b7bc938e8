package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// --- Task Command Parsing ---

// TaskInput is the parsed form of a /task command.
type TaskInput struct {
	Priority    string // P1, P2, P3
	Description string
	Category    string // defaults to "General"
	DueDate     string // "2006-01-02" or empty
	Assignee    string // empty means the invoking user
}

const taskUsage = "Couldn't read that. Format:\n" +
	"`/task P[1-3] <description> [-c category] [-d YYYY-MM-DD] [-a username]`\n" +
	"Example: `/task P1 Ship weekly report -c Ops -d 2025-07-05 -a alice`"

var (
	reDueFlag      = regexp.MustCompile(`-d\s+(\d{4}-\d{2}-\d{2})`)
	reAssigneeFlag = regexp.MustCompile(`-a\s+([\w_]+)`)
	reTaskBody     = regexp.MustCompile(`^(?i)(P[123])\s+(.+?)(?:\s+-c\s+(.+))?$`)
)

// parseTaskCommand parses the argument text after "/task". Flags may appear
// in any order after the description; -d and -a are stripped first, then the
// remainder must be "P<n> description [-c category]".
func parseTaskCommand(text string) (TaskInput, error) {
	var in TaskInput

	rest := strings.TrimSpace(text)
	if rest == "" {
		return in, fmt.Errorf("%s", taskUsage)
	}

	if m := reDueFlag.FindStringSubmatch(rest); m != nil {
		if _, err := time.Parse("2006-01-02", m[1]); err != nil {
			return in, fmt.Errorf("`%s` is not a real date. Use `-d YYYY-MM-DD`.", m[1])
		}
		in.DueDate = m[1]
		rest = strings.TrimSpace(reDueFlag.ReplaceAllString(rest, ""))
	}

	if m := reAssigneeFlag.FindStringSubmatch(rest); m != nil {
		in.Assignee = m[1]
		rest = strings.TrimSpace(reAssigneeFlag.ReplaceAllString(rest, ""))
	}

	m := reTaskBody.FindStringSubmatch(rest)
	if m == nil {
		return in, fmt.Errorf("%s", taskUsage)
	}

	in.Priority = trimUpper(m[1])
	in.Description = strings.TrimSpace(m[2])
	in.Category = strings.TrimSpace(m[3])

	// A bare "/task P1 -c Ops" leaves a flag where the description belongs.
	if in.Description == "" || strings.HasPrefix(in.Description, "-") {
		return in, fmt.Errorf("%s", taskUsage)
	}
	if in.Category == "" {
		in.Category = defaultCategory
	}
	return in, nil
}

func trimUpper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
