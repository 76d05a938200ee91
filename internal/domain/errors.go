package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the streaming core.
var (
	ErrUserCancelled  = fmt.Errorf("stream cancelled by user")
	ErrMalformedFrame = fmt.Errorf("malformed stream frame")
	ErrCircuitOpen    = fmt.Errorf("backend circuit open")
	ErrRateLimit      = fmt.Errorf("rate limit exceeded")
	ErrBusy           = fmt.Errorf("a message is already streaming")
	ErrConfigLoad     = fmt.Errorf("failed to load configuration")
	ErrDecryption     = fmt.Errorf("decryption failed")
)

// DefaultStreamErrorMessage is used when an error event carries no message.
const DefaultStreamErrorMessage = "stream error"

// TransportError reports a failure to open or read the event stream that was
// not caused by user cancellation.
type TransportError struct {
	StatusCode int    // 0 when the request never produced a response
	Body       string // excerpt of the response body for non-2xx responses
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("transport: status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport: status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport: %v", e.Err)
	default:
		return "transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamError is raised by an explicit error event inside the stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return DefaultStreamErrorMessage
	}
	return e.Message
}

// IsUserCancellation reports whether err is the result of a user abort.
func IsUserCancellation(err error) bool {
	return errors.Is(err, ErrUserCancelled)
}

// IsSurfaced reports whether err must reach the top-level send flow. Only
// transport failures and explicit stream errors propagate; everything else is
// absorbed where it is detected.
func IsSurfaced(err error) bool {
	if err == nil || IsUserCancellation(err) {
		return false
	}
	var te *TransportError
	var se *StreamError
	return errors.As(err, &te) || errors.As(err, &se)
}

// ErrorCode is a machine-parseable error category for logging and toasts.
type ErrorCode string

const (
	CodeUnknown        ErrorCode = "UNKNOWN"
	CodeUserCancelled  ErrorCode = "USER_CANCELLED"
	CodeTransport      ErrorCode = "TRANSPORT"
	CodeStream         ErrorCode = "STREAM"
	CodeMalformedFrame ErrorCode = "MALFORMED_FRAME"
	CodeCircuitOpen    ErrorCode = "CIRCUIT_OPEN"
	CodeRateLimit      ErrorCode = "RATE_LIMIT"
	CodeBusy           ErrorCode = "BUSY"
	CodeConfig         ErrorCode = "CONFIG"
	CodeDecryption     ErrorCode = "DECRYPTION"
)

// ErrorCodeOf maps an error to its ErrorCode.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	var se *StreamError
	var te *TransportError
	switch {
	case errors.Is(err, ErrUserCancelled):
		return CodeUserCancelled
	case errors.Is(err, ErrCircuitOpen):
		return CodeCircuitOpen
	case errors.Is(err, ErrRateLimit):
		return CodeRateLimit
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrMalformedFrame):
		return CodeMalformedFrame
	case errors.Is(err, ErrDecryption):
		return CodeDecryption
	case errors.Is(err, ErrConfigLoad):
		return CodeConfig
	case errors.As(err, &se):
		return CodeStream
	case errors.As(err, &te):
		return CodeTransport
	}
	return CodeUnknown
}
