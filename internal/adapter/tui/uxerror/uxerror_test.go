package uxerror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"tracechat/internal/domain"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{"circuit open", fmt.Errorf("open: %w", domain.ErrCircuitOpen), "Backend Unavailable"},
		{"rate limit", &domain.TransportError{StatusCode: 429, Err: domain.ErrRateLimit}, "Rate Limited"},
		{"unauthorized", &domain.TransportError{StatusCode: 401, Body: "bad token"}, "Authentication Failed"},
		{"not found", &domain.TransportError{StatusCode: 404}, "Endpoint Not Found"},
		{"bad request", &domain.TransportError{StatusCode: 400, Body: "knowledge base required"}, "Request Rejected"},
		{"server error", &domain.TransportError{StatusCode: 503}, "Backend Error"},
		{"agent error", &domain.StreamError{Message: "quota exceeded"}, "Agent Error"},
		{"config", fmt.Errorf("%w: parse config.yaml: bad", domain.ErrConfigLoad), "Configuration Error"},
		{"decryption", fmt.Errorf("%w: %w", domain.ErrConfigLoad, domain.ErrDecryption), "Secret Not Decrypted"},
		{"refused", errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"), "Connection Failed"},
		{"timeout", errors.New("i/o timeout"), "Request Timed Out"},
		{"reset", errors.New("read: connection reset by peer"), "Connection Lost"},
		{"unknown", errors.New("something odd"), "Unexpected Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Humanize(tt.err)
			assert.Equal(t, tt.title, fe.Title)
			assert.Equal(t, tt.err.Error(), fe.Raw)
		})
	}
}

func TestHumanizeNil(t *testing.T) {
	assert.Equal(t, "Unknown Error", Humanize(nil).Title)
}

func TestRenderIncludesHints(t *testing.T) {
	out := Humanize(domain.ErrCircuitOpen).Render()
	assert.Contains(t, out, "Backend Unavailable")
	assert.Contains(t, out, "Suggestions:")
	assert.Contains(t, out, "Check that the backend is running")
}
