package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"casetrack/internal/logging"
)

// Entry is one decoded JSON log record.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	TaskID    string
	Fields    map[string]any
	Raw       string
}

// ParseEntry decodes a JSON log line. Lines that are not JSON objects are
// returned as plain messages with ok=false.
func ParseEntry(line string) (Entry, bool) {
	entry := Entry{Raw: line, Message: line}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return entry, false
	}
	entry.Fields = make(map[string]any, len(record))
	for key, value := range record {
		switch key {
		case "ts":
			if s, ok := value.(string); ok {
				entry.Time, _ = time.Parse(time.RFC3339, s)
			}
		case "level":
			entry.Level, _ = value.(string)
		case "msg":
			entry.Message, _ = value.(string)
		case logging.FieldComponent:
			entry.Component, _ = value.(string)
		case logging.FieldTaskID:
			entry.TaskID, _ = value.(string)
		default:
			entry.Fields[key] = value
		}
	}
	return entry, true
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects entries. Zero values match everything.
type Filter struct {
	TaskID    string
	Component string
	MinLevel  string
}

func (f Filter) empty() bool {
	return f.TaskID == "" && f.Component == "" && f.MinLevel == ""
}

// Matches reports whether the entry passes the filter. Non-JSON lines only
// pass an empty filter.
func (f Filter) Matches(entry Entry, parsed bool) bool {
	if f.empty() {
		return true
	}
	if !parsed {
		return false
	}
	if f.TaskID != "" && entry.TaskID != f.TaskID {
		return false
	}
	if f.Component != "" && !strings.EqualFold(entry.Component, f.Component) {
		return false
	}
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToLower(f.MinLevel)]
		if ok && levelRank[strings.ToLower(entry.Level)] < want {
			return false
		}
	}
	return true
}

func (f Filter) matchLine(line string) bool {
	if f.empty() {
		return true
	}
	entry, parsed := ParseEntry(line)
	return f.Matches(entry, parsed)
}

// Format renders an entry on one line for terminals.
func Format(entry Entry) string {
	if entry.Fields == nil && entry.Level == "" {
		return entry.Raw
	}
	var b strings.Builder
	if !entry.Time.IsZero() {
		b.WriteString(entry.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(entry.Level))
	if entry.Component != "" {
		fmt.Fprintf(&b, " [%s]", entry.Component)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if entry.TaskID != "" {
		fmt.Fprintf(&b, " %s=%s", logging.FieldTaskID, entry.TaskID)
	}
	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Fields[key])
	}
	return b.String()
}
