package tracker

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"casetrack/internal/backend"
	"casetrack/internal/tasks"
)

const (
	genericFailureText = "Task failed"
	pendingText        = "Waiting in queue"
	completedText      = "Completed"
	cancelledText      = "Cancelled"
)

// subStatusMessages maps backend sub-status keys to display text.
var subStatusMessages = map[string]string{
	"pending":     pendingText,
	"queued":      pendingText,
	"uploading":   "Uploading evidence",
	"ocr":         "Running OCR",
	"extracting":  "Extracting text",
	"classifying": "Classifying documents",
	"analyzing":   "Analyzing evidence",
	"associating": "Linking related evidence",
	"casting":     "Casting cards",
	"generating":  "Generating documents",
	"saving":      "Saving results",
	"finalizing":  "Finalizing",
}

// keywordProgress is checked in order; the first keyword found in the message
// wins, so later stages come first.
var keywordProgress = []struct {
	keyword string
	percent int
}{
	{"finaliz", 95},
	{"sav", 90},
	{"generat", 80},
	{"cast", 70},
	{"associat", 65},
	{"link", 65},
	{"analy", 60},
	{"classif", 45},
	{"extract", 35},
	{"ocr", 25},
	{"upload", 10},
	{"start", 5},
}

// mapStatus converts a remote status into a patch for job.
func mapStatus(job *tasks.Job, remote *backend.TaskStatus, inferProgress bool) tasks.Patch {
	info := remote.Info
	if info == nil {
		info = &backend.StatusInfo{}
	}

	var (
		state    tasks.State
		progress int
		text     string
		patch    tasks.Patch
	)

	switch remote.Status {
	case backend.StatusPending:
		state = tasks.StateQueued
		progress = 0
		text = firstNonEmpty(displayMessage(info), pendingText)
	case backend.StatusStarted, backend.StatusRetry, backend.StatusProgress:
		state = tasks.StateActive
		text = firstNonEmpty(displayMessage(info), job.StatusText)
		if value, ok := reportedProgress(info); ok {
			progress = value
		} else {
			progress = job.Progress
			if inferProgress {
				if inferred, ok := inferFromText(text, info.Message.String()); ok && inferred > progress {
					progress = inferred
				}
			}
		}
	case backend.StatusSuccess:
		state = tasks.StateSucceeded
		progress = 100
		text = firstNonEmpty(info.Message.String(), resultMessage(remote.Result), completedText)
		if result := normalizeResult(remote.Result); result != nil {
			patch.Result = result
		}
		empty := ""
		patch.ErrorDetail = &empty
	case backend.StatusFailure:
		state = tasks.StateFailed
		if value, ok := ratioProgress(info); ok {
			progress = value
		}
		detail := failureText(remote, info)
		patch.ErrorDetail = &detail
		text = detail
	case backend.StatusRevoked:
		state = tasks.StateCancelled
		progress = job.Progress
		text = firstNonEmpty(info.Message.String(), cancelledText)
	default:
		state = tasks.StateQueued
		progress = 0
		text = firstNonEmpty(job.StatusText, pendingText)
	}

	progress = tasks.ClampProgress(progress)
	patch.State = &state
	patch.Progress = &progress
	patch.StatusText = &text
	return patch
}

func reportedProgress(info *backend.StatusInfo) (int, bool) {
	if info.Progress != nil && !math.IsNaN(*info.Progress) {
		return int(math.Round(*info.Progress)), true
	}
	return ratioProgress(info)
}

func ratioProgress(info *backend.StatusInfo) (int, bool) {
	if info.Current == nil || info.Total == nil || *info.Total <= 0 {
		return 0, false
	}
	return int(math.Round(*info.Current / *info.Total * 100)), true
}

func displayMessage(info *backend.StatusInfo) string {
	if key := strings.ToLower(strings.TrimSpace(info.Status)); key != "" {
		if text, ok := subStatusMessages[key]; ok {
			return text
		}
	}
	return firstNonEmpty(info.Message.String(), strings.TrimSpace(info.Status))
}

func inferFromText(texts ...string) (int, bool) {
	for _, candidate := range keywordProgress {
		for _, text := range texts {
			if strings.Contains(strings.ToLower(text), candidate.keyword) {
				return candidate.percent, true
			}
		}
	}
	return 0, false
}

func failureText(remote *backend.TaskStatus, info *backend.StatusInfo) string {
	return firstNonEmpty(
		remote.Error.String(),
		info.Error.String(),
		info.ExcMessage.String(),
		info.Message.String(),
		genericFailureText,
	)
}

func normalizeResult(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), trimmed...)
}

func resultMessage(raw json.RawMessage) string {
	if normalizeResult(raw) == nil {
		return ""
	}
	var payload struct {
		Message backend.Text `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.Message.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
