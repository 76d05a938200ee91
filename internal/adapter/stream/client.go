package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"tracechat/internal/domain"
	"tracechat/internal/infra/config"
)

// maxErrorBody is how much of a non-2xx response body is kept.
const maxErrorBody = 4096

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 3
	defaultCBTimeout     time.Duration = 30 * time.Second
)

// ChatRequest is the body of the streaming chat request.
type ChatRequest struct {
	Query      string   `json:"query"`
	Stream     bool     `json:"stream"`
	SessionID  string   `json:"session_id,omitempty"`
	KBID       string   `json:"kb_id,omitempty"`
	FileIDs    []string `json:"file_ids,omitempty"`
	UseMemory  bool     `json:"use_memory"`
	AutoSelect *bool    `json:"auto_select,omitempty"`
}

// NewChatRequest builds a request for query from the backend defaults.
func NewChatRequest(query string, cfg config.BackendConfig) ChatRequest {
	return ChatRequest{
		Query:      query,
		Stream:     true,
		SessionID:  cfg.SessionID,
		KBID:       cfg.KBID,
		FileIDs:    append([]string(nil), cfg.FileIDs...),
		UseMemory:  cfg.UseMemory,
		AutoSelect: cfg.AutoSelect,
	}
}

// Opener opens the event stream for one chat request.
type Opener interface {
	Open(ctx context.Context, req ChatRequest) (*Stream, error)
}

// Client opens streaming chat requests against the agent backend. Opening
// is rate limited and guarded by a circuit breaker; reading an open stream
// is not.
type Client struct {
	url     string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *slog.Logger
}

// NewClient creates a client for cfg.
func NewClient(cfg config.BackendConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	if burst <= 0 {
		burst = 1
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Breaker.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "backend:" + cfg.URL,
		MaxRequests: 1,
		Interval:    cfg.Breaker.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Cancellation and 4xx responses say nothing about backend health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, domain.ErrUserCancelled) {
				return true
			}
			var te *domain.TransportError
			return errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500 && te.StatusCode != http.StatusTooManyRequests
		},
	})

	return &Client{
		url:     strings.TrimRight(cfg.URL, "/") + cfg.StreamPath,
		token:   cfg.Token,
		http:    newHTTPClient(cfg),
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		logger:  logger,
	}
}

// newHTTPClient has no overall timeout: a stream may legitimately run for
// minutes. Only connecting and waiting for headers are bounded.
func newHTTPClient(cfg config.BackendConfig) *http.Client {
	connTimeout := cfg.ConnTimeout
	if connTimeout == 0 {
		connTimeout = 10 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.RespTimeout,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// Open sends req and returns the framed response stream. Errors are
// classified: cancellation wraps domain.ErrUserCancelled, an open breaker
// wraps domain.ErrCircuitOpen, everything else is a *domain.TransportError.
func (c *Client) Open(ctx context.Context, req ChatRequest) (*Stream, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, &domain.TransportError{Err: fmt.Errorf("%w: %w", domain.ErrRateLimit, err)}
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.do(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.TransportError{Err: fmt.Errorf("%w: %w", domain.ErrCircuitOpen, err)}
		}
		return nil, err
	}

	c.logger.Debug("stream opened", "url", c.url, "status", resp.StatusCode)
	return NewStream(ctx, resp.Body, c.logger), nil
}

func (c *Client) do(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, &domain.TransportError{Err: fmt.Errorf("http request: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		te := &domain.TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
		if resp.StatusCode == http.StatusTooManyRequests {
			te.Err = domain.ErrRateLimit
		}
		return nil, te
	}
	return resp, nil
}

// State returns the circuit breaker state for display.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}
