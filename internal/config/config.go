// Package config loads toolbridge settings from the environment.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/toolzflow/toolbridge/internal/platform"
	"github.com/toolzflow/toolbridge/internal/provider"
)

// Config holds all toolbridge configuration.
type Config struct {
	Addr     string
	APIKey   string
	ToolsDir string
	LogLevel slog.Level

	LLM         provider.Config
	LLMFallback *provider.Config

	MaxToolIterations int
	TurnTimeout       time.Duration
	HTTPTimeout       time.Duration
	StrictRoutes      bool
	ValidateArgs      bool

	Image platform.ImageConfig
}

// Load reads a .env file at path, if present, then the environment.
// Variables already set in the environment win over .env values.
func Load(path string) Config {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load .env", slog.String("path", path), slog.Any("error", err))
		}
	}
	return Init()
}

// Init builds the config from environment variables.
func Init() Config {
	openaiKey := env("OPENAI_API_KEY", "")
	cfg := Config{
		Addr:     env("TOOLBRIDGE_ADDR", ":8790"),
		APIKey:   env("TOOLBRIDGE_API_KEY", ""),
		ToolsDir: env("TOOLBRIDGE_TOOLS_DIR", "./tools"),
		LogLevel: envLevel("TOOLBRIDGE_LOG_LEVEL", slog.LevelInfo),
		LLM: provider.Config{
			URL:     env("TOOLBRIDGE_LLM_URL", "https://api.openai.com/v1"),
			APIKey:  env("TOOLBRIDGE_LLM_API_KEY", openaiKey),
			Model:   env("TOOLBRIDGE_LLM_MODEL", "gpt-4o-mini"),
			Retries: envInt("TOOLBRIDGE_LLM_RETRIES", 2),
		},
		MaxToolIterations: envInt("TOOLBRIDGE_MAX_TOOL_ITERATIONS", 10),
		TurnTimeout:       envDuration("TOOLBRIDGE_TURN_TIMEOUT", 300*time.Second),
		HTTPTimeout:       envDuration("TOOLBRIDGE_HTTP_TIMEOUT", 60*time.Second),
		StrictRoutes:      envBool("TOOLBRIDGE_STRICT_ROUTES", false),
		ValidateArgs:      envBool("TOOLBRIDGE_VALIDATE_ARGS", false),
		Image: platform.ImageConfig{
			APIKey:  openaiKey,
			OrgID:   env("OPENAI_ORGANIZATION_ID", ""),
			BaseURL: env("OPENAI_BASE_URL", ""),
		},
	}

	fb := provider.Config{
		URL:     env("TOOLBRIDGE_LLM_FALLBACK_URL", ""),
		APIKey:  env("TOOLBRIDGE_LLM_FALLBACK_API_KEY", ""),
		Model:   env("TOOLBRIDGE_LLM_FALLBACK_MODEL", ""),
		Retries: cfg.LLM.Retries,
	}
	if fb.URL != "" || fb.APIKey != "" || fb.Model != "" {
		cfg.LLMFallback = &fb
	}
	return cfg
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDuration reads whole seconds; a Go duration string such as "90s" is
// also accepted.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func envLevel(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return def
	}
	return l
}
