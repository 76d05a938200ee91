package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tracechat/internal/adapter/i18n"
	"tracechat/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(flags cliFlags) error {
	cfgPath := configPath(flags)

	// Try to load config; some checks work without it.
	cfg, cfgErr := loadConfig(flags)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Backend token", Fn: checkBackendToken},
		{Name: "Backend connectivity", Fn: checkBackendConnectivity},
		{Name: "Locale", Fn: checkLocale},
		{Name: "Log output", Fn: checkLogOutput},
		{Name: "Trace output", Fn: checkTraceOutput},
	}

	fmt.Println("tracechat doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// checkConfigFile returns a check that verifies the config file parses. A
// missing file is only a warning because the defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: cfgErr.Error(),
				Fix:     fmt.Sprintf("Fix %s or the TRACECHAT_* variables", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Create the file to point tracechat at your backend",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkBackendToken warns when requests will be sent without credentials.
func checkBackendToken(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.Backend.Token == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no backend token; requests are sent unauthenticated",
			Fix:     "Set backend.token or TRACECHAT_BACKEND_TOKEN if the backend needs one",
		}
	}
	return CheckResult{Status: StatusPass, Message: "backend token configured"}
}

// checkBackendConnectivity dials the backend host.
func checkBackendConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	addr, err := dialAddress(cfg.Backend.URL)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Set backend.url to an absolute http(s) URL"}
	}

	timeout := cfg.Backend.ConnTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", addr, err),
			Fix:     "Check that the backend is running and backend.url is correct",
		}
	}
	conn.Close()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", addr, time.Since(start).Milliseconds()),
	}
}

// dialAddress turns a backend URL into host:port, filling in the scheme's
// default port.
func dialAddress(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid backend url %q", raw)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func checkLocale(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if _, err := i18n.New(cfg.Render.Locale); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     fmt.Sprintf("Use one of: %s", strings.Join(i18n.Locales(), ", ")),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("using %q", cfg.Render.Locale)}
}

// checkLogOutput verifies a file log output can be written. In chat mode
// terminal outputs are redirected to the data dir, which is checked instead.
func checkLogOutput(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	path := cfg.Logger.Output
	switch strings.ToLower(path) {
	case "", "stdout", "stderr":
		path = filepath.Join(config.DataDir(), "tracechat.log")
	}
	return checkWritableDir("log", filepath.Dir(path))
}

func checkTraceOutput(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Tracer.Enabled || cfg.Tracer.Exporter != "stdout" {
		return CheckResult{Status: StatusPass, Message: "tracing disabled"}
	}
	switch strings.ToLower(cfg.Tracer.Output) {
	case "", "stdout", "stderr":
		return CheckResult{
			Status:  StatusWarn,
			Message: "spans are written to the terminal and will garble the chat UI",
			Fix:     "Set tracer.output to a file path",
		}
	}
	return checkWritableDir("trace", filepath.Dir(cfg.Tracer.Output))
}

// checkWritableDir creates dir if needed and probes it with a temp file.
func checkWritableDir(what, dir string) CheckResult {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s directory %s: %v", what, dir, err),
		}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s directory %s is not writable: %v", what, dir, err),
			Fix:     fmt.Sprintf("Fix permissions on %s", dir),
		}
	}
	f.Close()
	os.Remove(f.Name())
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s directory %s is writable", what, dir)}
}
