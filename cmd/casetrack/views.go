package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"casetrack/internal/api"
	"casetrack/internal/notifications"
)

var taskColumns = []tableColumn{
	{Header: "ID", MaxWidth: 38},
	{Header: "Category"},
	{Header: "Case"},
	{Header: "Progress", Align: alignRight},
	{Header: "Status", MaxWidth: 40},
	{Header: "Updated"},
}

// renderTaskGroups prints one section per non-empty state group.
func renderTaskGroups(out io.Writer, list api.TaskListResponse, colorize bool, now time.Time) {
	printed := false
	for _, group := range list.Groups {
		if len(group.Items) == 0 {
			continue
		}
		if printed {
			fmt.Fprintln(out)
		}
		title := fmt.Sprintf("%s (%d)", notifications.CategoryLabel(group.State), len(group.Items))
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(out, line)
		}
		rows := make([][]string, 0, len(group.Items))
		for _, task := range group.Items {
			rows = append(rows, taskRow(task, now))
		}
		fmt.Fprintln(out, renderTable(taskColumns, rows))
		printed = true
	}
	if !printed {
		fmt.Fprintln(out, "No tracked tasks")
	}
}

func taskRow(task api.Task, now time.Time) []string {
	status := task.StatusText
	if task.ErrorDetail != "" {
		status = task.ErrorDetail
	}
	return []string{
		task.ID,
		notifications.CategoryLabel(task.Context.Category),
		dash(task.Context.CaseID),
		strconv.Itoa(task.Progress) + "%",
		dash(status),
		relativeTime(task.UpdatedAt, now),
	}
}

func renderTaskDetail(out io.Writer, task api.Task, colorize bool, now time.Time) {
	title := task.Context.Title
	if title == "" {
		title = notifications.CategoryLabel(task.Context.Category)
	}
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
	field := func(label, value string) {
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, label+":", value)
	}
	field("ID", task.ID)
	field("State", colorState(task.State, colorize))
	field("Progress", renderProgressBar(task.Progress))
	if task.StatusText != "" {
		field("Status", task.StatusText)
	}
	if task.Context.Description != "" {
		field("Description", task.Context.Description)
	}
	field("Category", dash(task.Context.Category))
	field("Case", dash(task.Context.CaseID))
	if task.Context.Target != "" {
		field("Target", task.Context.Target)
	}
	if task.ErrorDetail != "" {
		field("Error", task.ErrorDetail)
	}
	if task.PollFailures > 0 {
		field("Poll failures", strconv.Itoa(task.PollFailures))
	}
	field("Registered", relativeTime(task.RegisteredAt, now))
	field("Updated", relativeTime(task.UpdatedAt, now))
	if len(task.Result) > 0 {
		field("Result", strings.TrimSpace(string(task.Result)))
	}
}

func renderCounts(out io.Writer, counts map[string]int, order []string) {
	parts := make([]string, 0, len(order))
	for _, state := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", state, counts[state]))
	}
	fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Tasks:", strings.Join(parts, " "))
}

func renderNotificationLine(n notifications.Notification, colorize bool) string {
	stamp := n.CreatedAt.Local().Format("15:04:05")
	line := fmt.Sprintf("#%d %s %-7s %s", n.Seq, stamp, strings.ToUpper(string(n.Level)), n.Title)
	if n.Message != "" {
		line += ": " + n.Message
	}
	if n.Target != "" {
		line += " -> " + n.Target
	}
	if colorize {
		if color := levelColor(n.Level); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func levelColor(level notifications.Level) string {
	switch level {
	case notifications.LevelSuccess:
		return ansiGreen
	case notifications.LevelWarning:
		return ansiYellow
	case notifications.LevelError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func relativeTime(value string, now time.Time) string {
	ts := api.ParseTime(value)
	if ts.IsZero() {
		return "-"
	}
	return humanize.RelTime(ts, now, "ago", "from now")
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
