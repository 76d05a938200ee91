package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechat/internal/domain"
	"tracechat/internal/usecase/eventbus"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestBusToasterPublishesDecodableEvent(t *testing.T) {
	bus := eventbus.New(nil)
	defer bus.Close()

	got := make(chan Toast, 1)
	bus.Subscribe(domain.EventToast, func(_ context.Context, ev domain.Event) {
		if toast, ok := Decode(ev); ok {
			got <- toast
		}
	})

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	NewBusToaster(bus, fixedClock{at}).Toast(domain.ToastError, "Error: boom")

	select {
	case toast := <-got:
		assert.Equal(t, Toast{Level: domain.ToastError, Message: "Error: boom", At: at}, toast)
		assert.False(t, toast.Expired(at.Add(time.Second), 3*time.Second))
		assert.True(t, toast.Expired(at.Add(3*time.Second), 3*time.Second))
	case <-time.After(2 * time.Second):
		t.Fatal("toast not delivered")
	}
}

func TestDecodeRejectsOtherEvents(t *testing.T) {
	_, ok := Decode(domain.Event{Type: domain.EventStreamStarted})
	assert.False(t, ok)
	_, ok = Decode(domain.Event{Type: domain.EventToast, Payload: []byte(`{"level":"info"}`)})
	assert.False(t, ok)
}

func TestLogToasterLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	toaster := NewLogToaster(logger)

	toaster.Toast(domain.ToastInfo, "hidden")
	toaster.Toast(domain.ToastError, "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "toast=error")
}

type recorder struct{ msgs []string }

func (r *recorder) Toast(_ domain.ToastLevel, msg string) { r.msgs = append(r.msgs, msg) }

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.Toast(domain.ToastWarning, "careful")
	require.Equal(t, []string{"careful"}, a.msgs)
	assert.Equal(t, []string{"careful"}, b.msgs)
}
