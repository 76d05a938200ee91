package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"tracechat/internal/domain"
	"tracechat/internal/usecase/dispatch"
)

const readChunkSize = 4096

// Frame is one decoded data line. Err is set, wrapping
// domain.ErrMalformedFrame, when the payload could not be decoded.
type Frame struct {
	Event domain.StreamEvent
	Raw   []byte
	Err   error
}

// Stream reads and frames a response body on its own goroutine. Frames are
// delivered in arrival order; the channel closes at transport EOF, at the
// end-of-stream sentinel, on a read failure or on cancellation.
type Stream struct {
	frames   chan Frame
	body     io.ReadCloser
	err      error
	sentinel bool
	logger   *slog.Logger
}

// NewStream starts reading body. The body is closed when reading stops.
func NewStream(ctx context.Context, body io.ReadCloser, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stream{
		frames: make(chan Frame, 64),
		body:   body,
		logger: logger,
	}
	go s.run(ctx)
	return s
}

// Frames returns the frame channel.
func (s *Stream) Frames() <-chan Frame { return s.frames }

// Err returns why reading stopped. It is valid once Frames is closed: nil
// for EOF or the sentinel, an error wrapping domain.ErrUserCancelled for
// cancellation, otherwise a *domain.TransportError.
func (s *Stream) Err() error { return s.err }

// Sentinel reports whether the stream ended with the end-of-stream marker.
// It is valid once Frames is closed.
func (s *Stream) Sentinel() bool { return s.sentinel }

func (s *Stream) run(ctx context.Context) {
	defer close(s.frames)
	defer s.body.Close()
	// Unblock a Read that does not observe ctx itself.
	stop := context.AfterFunc(ctx, func() { _ = s.body.Close() })
	defer stop()

	var framer Framer
	buf := make([]byte, readChunkSize)
	for {
		n, err := s.body.Read(buf)
		if n > 0 {
			for _, payload := range framer.Feed(buf[:n]) {
				if !s.emit(ctx, payload) {
					s.err = cancelled(ctx.Err())
					return
				}
			}
			if framer.Ended() {
				s.sentinel = true
				return
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			s.err = cancelled(ctx.Err())
			return
		}
		if errors.Is(err, io.EOF) {
			if payload, ok := framer.Flush(); ok {
				s.logger.Debug("unterminated trailing line at EOF")
				if !s.emit(ctx, payload) {
					s.err = cancelled(ctx.Err())
				}
			}
			return
		}
		s.err = &domain.TransportError{Err: fmt.Errorf("read stream: %w", err)}
		return
	}
}

func (s *Stream) emit(ctx context.Context, payload []byte) bool {
	ev, err := domain.DecodeStreamEvent(payload)
	select {
	case s.frames <- Frame{Event: ev, Raw: payload, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", domain.ErrUserCancelled, cause)
}

// Deliver hands f to d. Malformed frames are rejected and never escalate.
func Deliver(d *dispatch.Dispatcher, f Frame) error {
	if f.Err != nil {
		d.Reject(f.Raw, f.Err)
		return nil
	}
	return d.Dispatch(f.Event)
}
