package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"tracechat/internal/domain"
)

// ReplayOpener serves a recorded SSE capture instead of calling the
// backend. Every request replays the same capture.
type ReplayOpener struct {
	Path string
	// Pace delays each line so card timers and one-shot flashes are visible.
	Pace   time.Duration
	Logger *slog.Logger
}

// Open implements Opener.
func (o ReplayOpener) Open(ctx context.Context, _ ChatRequest) (*Stream, error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("open replay: %w", err)}
	}
	var body io.ReadCloser = f
	if o.Pace > 0 {
		body = &pacedReader{ctx: ctx, src: f, pace: o.Pace}
	}
	return NewStream(ctx, body, o.Logger), nil
}

// pacedReader yields its source one line per pace interval.
type pacedReader struct {
	ctx     context.Context
	src     io.ReadCloser
	pace    time.Duration
	pending []byte
	buf     [512]byte
	eof     bool
}

func (r *pacedReader) Read(p []byte) (int, error) {
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 || (r.eof && len(r.pending) > 0) {
			end := len(r.pending)
			if i >= 0 {
				end = i + 1
			}
			select {
			case <-time.After(r.pace):
			case <-r.ctx.Done():
				return 0, r.ctx.Err()
			}
			n := copy(p, r.pending[:end])
			r.pending = r.pending[n:]
			return n, nil
		}
		if r.eof {
			return 0, io.EOF
		}
		n, err := r.src.Read(r.buf[:])
		r.pending = append(r.pending, r.buf[:n]...)
		if err == io.EOF {
			r.eof = true
		} else if err != nil {
			return 0, err
		}
	}
}

func (r *pacedReader) Close() error { return r.src.Close() }

