package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tracechat/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Render  RenderConfig  `yaml:"render"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// BackendConfig describes the agent backend and the defaults sent with
// every chat request.
type BackendConfig struct {
	URL         string        `yaml:"url"`
	StreamPath  string        `yaml:"stream_path"`
	Token       string        `yaml:"token"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	// RespTimeout bounds the wait for response headers. The body of a stream
	// has no deadline.
	RespTimeout       time.Duration `yaml:"resp_timeout"`
	SessionID         string        `yaml:"session_id"`
	KBID              string        `yaml:"kb_id"`
	FileIDs           []string      `yaml:"file_ids,omitempty"`
	UseMemory         bool          `yaml:"use_memory"`
	AutoSelect        *bool         `yaml:"auto_select,omitempty"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around opening a stream.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration `yaml:"timeout"`
	// Interval clears failure counts while closed. Zero never clears them.
	Interval time.Duration `yaml:"interval"`
}

// RenderConfig holds presentation settings.
type RenderConfig struct {
	Locale        string        `yaml:"locale"`
	OneShotFlash  time.Duration `yaml:"one_shot_flash"`
	OneShotBrief  time.Duration `yaml:"one_shot_brief"`
	TickRate      time.Duration `yaml:"tick_rate"`
	MarkdownStyle string        `yaml:"markdown_style"`
	MaxEntries    int           `yaml:"max_entries"`
	ParallelView  string        `yaml:"parallel_view"`
}

// LoggerConfig holds logger settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Output   string `yaml:"output"`
}

// DataDir returns the directory for logs and replays under
// $HOME/.tracechat. Falls back to "./data" if $HOME cannot be determined.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".tracechat")
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:               "http://localhost:8000",
			StreamPath:        "/api/chat/stream",
			ConnTimeout:       10 * time.Second,
			RespTimeout:       60 * time.Second,
			RequestsPerMinute: 30,
			Burst:             3,
			Breaker: BreakerConfig{
				MaxFailures: 3,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Render: RenderConfig{
			Locale:        "en",
			OneShotFlash:  500 * time.Millisecond,
			OneShotBrief:  100 * time.Millisecond,
			TickRate:      100 * time.Millisecond,
			MarkdownStyle: "auto",
			MaxEntries:    500,
			ParallelView:  "grid",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, decrypts secrets
// and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrConfigLoad, path, err)
	default:
		if err := validatePermissions(path); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfigLoad, path, err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("TRACECHAT_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	return cfg, nil
}

// ApplyEnvOverrides maps TRACECHAT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRACECHAT_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("TRACECHAT_BACKEND_STREAM_PATH"); v != "" {
		cfg.Backend.StreamPath = v
	}
	if v := os.Getenv("TRACECHAT_BACKEND_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := os.Getenv("TRACECHAT_KB_ID"); v != "" {
		cfg.Backend.KBID = v
	}
	if v := os.Getenv("TRACECHAT_FILE_IDS"); v != "" {
		cfg.Backend.FileIDs = splitAndTrim(v, ",")
	}
	if v := os.Getenv("TRACECHAT_USE_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Backend.UseMemory = b
		}
	}
	if v := os.Getenv("TRACECHAT_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("TRACECHAT_LOCALE"); v != "" {
		cfg.Render.Locale = v
	}
	if v := os.Getenv("TRACECHAT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TRACECHAT_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("TRACECHAT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TRACECHAT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s by sep, trims each element and drops empty ones.
func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
