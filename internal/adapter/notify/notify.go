// Package notify delivers transient notifications (toasts).
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tracechat/internal/domain"
)

// BusToaster publishes toasts on the event bus; views subscribe to
// domain.EventToast and draw them.
type BusToaster struct {
	bus   domain.EventBus
	clock domain.Clock
}

// NewBusToaster creates a toaster publishing on bus.
func NewBusToaster(bus domain.EventBus, clock domain.Clock) *BusToaster {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &BusToaster{bus: bus, clock: clock}
}

// Toast implements domain.Toaster.
func (t *BusToaster) Toast(level domain.ToastLevel, message string) {
	t.bus.Publish(context.Background(), domain.Event{
		Type:      domain.EventToast,
		Timestamp: t.clock.Now(),
		Payload:   domain.MustPayload(domain.ToastPayload{Level: level, Message: message}),
	})
}

// LogToaster writes toasts to a logger. Headless commands use it where no
// view exists to show them.
type LogToaster struct {
	logger *slog.Logger
}

// NewLogToaster creates a toaster writing to logger.
func NewLogToaster(logger *slog.Logger) *LogToaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogToaster{logger: logger}
}

// Toast implements domain.Toaster.
func (t *LogToaster) Toast(level domain.ToastLevel, message string) {
	t.logger.Log(context.Background(), slogLevel(level), message, "toast", string(level))
}

func slogLevel(level domain.ToastLevel) slog.Level {
	switch level {
	case domain.ToastError:
		return slog.LevelError
	case domain.ToastWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Multi fans a toast out to several toasters in order.
type Multi []domain.Toaster

// Toast implements domain.Toaster.
func (m Multi) Toast(level domain.ToastLevel, message string) {
	for _, t := range m {
		if t != nil {
			t.Toast(level, message)
		}
	}
}

// Toast is a decoded toast event.
type Toast struct {
	Level   domain.ToastLevel
	Message string
	At      time.Time
}

// Decode extracts the toast carried by a domain.EventToast event.
func Decode(ev domain.Event) (Toast, bool) {
	if ev.Type != domain.EventToast {
		return Toast{}, false
	}
	var p domain.ToastPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Message == "" {
		return Toast{}, false
	}
	return Toast{Level: p.Level, Message: p.Message, At: ev.Timestamp}, true
}

// Expired reports whether t has been visible for at least ttl.
func (t Toast) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.At) >= ttl
}
