package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"casetrack/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBackend_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckBackend(context.Background(), srv.URL+"/api", "good-token")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckBackend_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	result := CheckBackend(context.Background(), srv.URL, "bad")
	if result.Passed {
		t.Fatal("expected failure for rejected token")
	}
}

func TestCheckBackend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if result := CheckBackend(context.Background(), srv.URL, ""); result.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestCheckBackend_MissingURL(t *testing.T) {
	if result := CheckBackend(context.Background(), " ", "token"); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckNtfyTopic(t *testing.T) {
	if r := CheckNtfyTopic("https://ntfy.sh/casetrack"); !r.Passed {
		t.Fatalf("expected valid topic, got %s", r.Detail)
	}
	for _, bad := range []string{"ntfy.sh/casetrack", "https://ntfy.sh/", "ftp://x/y"} {
		if r := CheckNtfyTopic(bad); r.Passed {
			t.Errorf("expected %q to fail", bad)
		}
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Backend.BaseURL = srv.URL

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesConfiguredSinks(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Backend.BaseURL = "http://127.0.0.1:1"
	cfg.Notifications.NtfyTopic = "https://ntfy.sh/casetrack"
	cfg.Notifications.RedisAddress = "127.0.0.1:1"

	results := RunAll(context.Background(), &cfg)
	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = r.Passed
	}
	if passed, ok := names["Redis"]; !ok || passed {
		t.Fatalf("expected failing Redis check, got %+v", results)
	}
	if passed, ok := names["ntfy"]; !ok || !passed {
		t.Fatalf("expected passing ntfy check, got %+v", results)
	}
	if len(Failed(results)) != 2 {
		t.Fatalf("expected backend and redis failures, got %+v", Failed(results))
	}
}
