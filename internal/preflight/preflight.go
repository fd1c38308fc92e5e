package preflight

import (
	"context"
	"strings"

	"casetrack/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckBackend(ctx, cfg.Backend.BaseURL, cfg.Backend.Token),
	}

	if addr := strings.TrimSpace(cfg.Notifications.RedisAddress); addr != "" {
		results = append(results, CheckRedis(ctx, addr, cfg.Notifications.RedisPassword, cfg.Notifications.RedisDB))
	}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		results = append(results, CheckNtfyTopic(topic))
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
