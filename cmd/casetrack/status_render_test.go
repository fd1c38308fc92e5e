package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"casetrack/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestRenderCheckLine(t *testing.T) {
	failed := renderCheckLine(api.CheckResult{Name: "Backend", Passed: false, Detail: "connection refused"}, false)
	if !strings.Contains(failed, "[ERROR] connection refused") {
		t.Fatalf("unexpected failed check line %q", failed)
	}
	passed := renderCheckLine(api.CheckResult{Name: "Redis", Passed: true}, false)
	if !strings.Contains(passed, "[OK]") {
		t.Fatalf("unexpected passed check line %q", passed)
	}
}

func TestRenderProgressBar(t *testing.T) {
	cases := map[int]string{
		0:   "[....................]   0%",
		45:  "[#########...........]  45%",
		100: "[####################] 100%",
		150: "[####################] 100%",
	}
	for progress, want := range cases {
		if got := renderProgressBar(progress); got != want {
			t.Errorf("renderProgressBar(%d) = %q, want %q", progress, got, want)
		}
	}
}

func TestStateKind(t *testing.T) {
	if stateKind("succeeded") != statusOK || stateKind("failed") != statusError {
		t.Fatal("unexpected terminal state kinds")
	}
	if stateKind("cancelled") != statusWarn || stateKind("active") != statusInfo {
		t.Fatal("unexpected non-error state kinds")
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
