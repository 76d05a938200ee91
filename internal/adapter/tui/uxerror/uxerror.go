// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the TUI.
package uxerror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tracechat/internal/adapter/tui/theme"
	"tracechat/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Connection Refused"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text (for debug)
}

// Render formats the FriendlyError for display in the TUI message list.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Domain sentinel errors (checked first so errors.Is works through wrapping).
	{
		match:   func(err error) bool { return errors.Is(err, domain.ErrUserCancelled) },
		produce: constantError("Stopped", "The reply was stopped before it finished.", nil),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrCircuitOpen) },
		produce: constantError("Backend Unavailable", "Several requests failed in a row, so sending is paused for a moment.",
			[]string{"Wait half a minute and try again", "Check that the backend is running"}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrRateLimit) },
		produce: constantError("Rate Limited", "Too many messages were sent in a short time.",
			[]string{"Wait a moment before retrying", "Raise backend.requests_per_minute in config"}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrDecryption) },
		produce: constantError("Secret Not Decrypted", "An encrypted value in the config could not be decrypted.",
			[]string{"Check TRACECHAT_CONFIG_KEY matches the key used to encrypt", "Re-encrypt the token with the current key"}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrConfigLoad) },
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Configuration Error",
				Message: err.Error(),
				Hints:   []string{"Run 'tracechat doctor' to check the config", "Config files must not be readable by other users (chmod 600)"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match: func(err error) bool {
			var se *domain.StreamError
			return errors.As(err, &se)
		},
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Agent Error",
				Message: err.Error(),
				Hints:   []string{"Try rephrasing the question", "Check the backend logs for this session"},
				Raw:     err.Error(),
			}
		},
	},

	// HTTP status codes from the backend.
	{
		match: statusIn(http.StatusUnauthorized, http.StatusForbidden),
		produce: constantError("Authentication Failed", "The backend rejected the access token.",
			[]string{"Set backend.token or TRACECHAT_BACKEND_TOKEN", "Verify the token hasn't expired"}),
	},
	{
		match: statusIn(http.StatusNotFound, http.StatusMethodNotAllowed),
		produce: constantError("Endpoint Not Found", "The backend has no streaming chat endpoint at the configured path.",
			[]string{"Check backend.stream_path in config", "Verify backend.url points at the chat service"}),
	},
	{
		match: statusIn(http.StatusBadRequest, http.StatusUnprocessableEntity),
		produce: func(err error) FriendlyError {
			return FriendlyError{
				Title:   "Request Rejected",
				Message: err.Error(),
				Hints:   []string{"Check the selected knowledge base (/kb) and files (/files)"},
				Raw:     err.Error(),
			}
		},
	},
	{
		match: func(err error) bool {
			var te *domain.TransportError
			return errors.As(err, &te) && te.StatusCode >= 500
		},
		produce: constantError("Backend Error", "The backend failed while handling the message.",
			[]string{"Try again", "Check the backend logs"}),
	},

	// Network / connectivity patterns (string matching for external errors).
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the backend.", []string{"Check that the backend is running", "Verify backend.url or TRACECHAT_BACKEND_URL", "Check if a firewall is blocking the connection"}),
	},
	{
		match:   containsAny("deadline exceeded", "timeout", "context deadline"),
		produce: constantError("Request Timed Out", "The backend took too long to respond.", []string{"Check your network connection", "Increase backend.resp_timeout in config"}),
	},
	{
		match:   containsAny("connection reset", "unexpected eof", "broken pipe"),
		produce: constantError("Connection Lost", "The stream was interrupted before the reply finished.", []string{"Send the message again"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	// Fallback for unrecognized errors.
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with TRACECHAT_LOGGER_LEVEL=debug for more details"},
		Raw:     err.Error(),
	}
}

// statusIn matches transport errors carrying one of codes.
func statusIn(codes ...int) func(error) bool {
	return func(err error) bool {
		var te *domain.TransportError
		if !errors.As(err, &te) {
			return false
		}
		for _, c := range codes {
			if te.StatusCode == c {
				return true
			}
		}
		return false
	}
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
