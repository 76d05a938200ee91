package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateBackend(cfg, ve)
	validateRender(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBackend(cfg *Config, ve *ValidationError) {
	b := cfg.Backend
	u, err := url.Parse(b.URL)
	switch {
	case b.URL == "":
		ve.Add("backend.url is required")
	case err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https"):
		ve.Add("backend.url %q must be an absolute http(s) URL", b.URL)
	}
	if !strings.HasPrefix(b.StreamPath, "/") {
		ve.Add("backend.stream_path %q must start with /", b.StreamPath)
	}
	if b.ConnTimeout < 0 || b.RespTimeout < 0 {
		ve.Add("backend timeouts must be >= 0")
	}
	if b.RequestsPerMinute < 0 {
		ve.Add("backend.requests_per_minute must be >= 0")
	}
	if b.RequestsPerMinute > 0 && b.Burst <= 0 {
		ve.Add("backend.burst must be > 0 when requests_per_minute is set")
	}
	if strings.HasPrefix(b.Token, encPrefix) {
		ve.Add("backend.token is encrypted but TRACECHAT_CONFIG_KEY is not set")
	}
}

func validateRender(cfg *Config, ve *ValidationError) {
	r := cfg.Render
	if r.OneShotFlash <= 0 {
		ve.Add("render.one_shot_flash must be > 0")
	}
	if r.OneShotBrief <= 0 {
		ve.Add("render.one_shot_brief must be > 0")
	}
	if r.TickRate <= 0 {
		ve.Add("render.tick_rate must be > 0")
	}
	if r.MaxEntries < 0 {
		ve.Add("render.max_entries must be >= 0")
	}
	switch r.ParallelView {
	case "grid", "tab":
	default:
		ve.Add("render.parallel_view %q must be grid or tab", r.ParallelView)
	}
	switch r.MarkdownStyle {
	case "", "auto", "dark", "light", "notty", "plain":
	default:
		ve.Add("render.markdown_style %q is not one of auto, dark, light, notty, plain", r.MarkdownStyle)
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is unsupported", cfg.Tracer.Exporter)
	}
}
