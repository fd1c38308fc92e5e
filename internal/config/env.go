package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// envOverrides lists the environment variables that take precedence over the
// TOML file. Empty values leave the file setting untouched.
type envOverrides struct {
	StateDir      string `env:"CASETRACK_STATE_DIR"`
	LogDir        string `env:"CASETRACK_LOG_DIR"`
	APIBind       string `env:"CASETRACK_API_BIND"`
	APIToken      string `env:"CASETRACK_API_TOKEN"`
	BaseURL       string `env:"CASETRACK_BASE_URL"`
	BackendToken  string `env:"CASETRACK_BACKEND_TOKEN"`
	NtfyTopic     string `env:"CASETRACK_NTFY_TOPIC"`
	RedisAddress  string `env:"CASETRACK_REDIS_ADDRESS"`
	RedisPassword string `env:"CASETRACK_REDIS_PASSWORD"`
	LogLevel      string `env:"CASETRACK_LOG_LEVEL"`
	LogFormat     string `env:"CASETRACK_LOG_FORMAT"`
}

// loadDotEnv reads a .env file next to the config file and one in the working
// directory. Variables already present in the environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{".env"}
	if configDir != "" && configDir != "." {
		candidates = append([]string{filepath.Join(configDir, ".env")}, candidates...)
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		info, err := os.Stat(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file: %w", err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load env file %s: %w", abs, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var env envOverrides
	if err := envconfig.Process(ctx, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	override := func(dst *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*dst = value
		}
	}
	override(&c.Paths.StateDir, env.StateDir)
	override(&c.Paths.LogDir, env.LogDir)
	override(&c.Paths.APIBind, env.APIBind)
	override(&c.Paths.APIToken, env.APIToken)
	override(&c.Backend.BaseURL, env.BaseURL)
	override(&c.Backend.Token, env.BackendToken)
	override(&c.Notifications.NtfyTopic, env.NtfyTopic)
	override(&c.Notifications.RedisAddress, env.RedisAddress)
	override(&c.Notifications.RedisPassword, env.RedisPassword)
	override(&c.Logging.Level, env.LogLevel)
	override(&c.Logging.Format, env.LogFormat)
	return nil
}
