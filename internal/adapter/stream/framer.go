// Package stream owns the transport side of a chat message: it opens the
// streaming request, splits the response body into server-sent-event data
// lines and drives the dispatcher from a single loop.
package stream

import (
	"bytes"
)

var (
	dataPrefix = []byte("data:")
	sentinel   = []byte("[DONE]")
)

// Framer splits a byte stream into SSE data payloads. Chunks may end in the
// middle of a line; the partial line is kept and completed by the next Feed.
type Framer struct {
	partial []byte
	ended   bool
}

// Feed appends chunk and returns the payloads of every line it completed.
// After the end-of-stream sentinel has been seen Feed returns nothing.
func (f *Framer) Feed(chunk []byte) [][]byte {
	if f.ended {
		return nil
	}
	f.partial = append(f.partial, chunk...)

	var out [][]byte
	for {
		i := bytes.IndexByte(f.partial, '\n')
		if i < 0 {
			break
		}
		line := f.partial[:i]
		f.partial = f.partial[i+1:]
		if payload, ok := f.line(line); ok {
			out = append(out, payload)
		}
		if f.ended {
			f.partial = nil
			break
		}
	}
	// Keep the retained tail in its own backing array so the next append
	// does not grow an ever-larger buffer.
	f.partial = append([]byte(nil), f.partial...)
	return out
}

// Flush returns the payload of a trailing line that was never terminated.
func (f *Framer) Flush() ([]byte, bool) {
	if f.ended || len(f.partial) == 0 {
		return nil, false
	}
	line := f.partial
	f.partial = nil
	return f.line(line)
}

// Ended reports whether the end-of-stream sentinel was seen.
func (f *Framer) Ended() bool { return f.ended }

// line extracts the payload of one data line. Comments, other SSE fields
// and blank lines carry nothing.
func (f *Framer) line(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false
	}
	if bytes.Equal(payload, sentinel) {
		f.ended = true
		return nil, false
	}
	return append([]byte(nil), payload...), true
}
