package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechat/internal/domain"
)

func payloads(frames [][]byte) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f)
	}
	return out
}

func TestFramerSplitsAcrossChunks(t *testing.T) {
	var f Framer
	assert.Empty(t, f.Feed([]byte(`data: {"type":"reas`)))
	assert.Empty(t, f.Feed([]byte(`oning","content":"a"}`)))
	got := f.Feed([]byte("\ndata: {\"type\":\"delta\"}\ndata: {\"ty"))
	assert.Equal(t, []string{`{"type":"reasoning","content":"a"}`, `{"type":"delta"}`}, payloads(got))
	got = f.Feed([]byte("pe\":\"done\"}\n"))
	assert.Equal(t, []string{`{"type":"done"}`}, payloads(got))
}

func TestFramerIgnoresNonDataLines(t *testing.T) {
	var f Framer
	got := f.Feed([]byte(": keepalive\nevent: message\nid: 7\n\ndata:\ndata:   {\"type\":\"start\"}  \r\n"))
	assert.Equal(t, []string{`{"type":"start"}`}, payloads(got))
}

func TestFramerSentinelEndsStream(t *testing.T) {
	var f Framer
	got := f.Feed([]byte("data: {\"a\":1}\ndata: [DONE]\ndata: {\"b\":2}\n"))
	assert.Equal(t, []string{`{"a":1}`}, payloads(got))
	assert.True(t, f.Ended())
	assert.Empty(t, f.Feed([]byte("data: {\"c\":3}\n")))
	_, ok := f.Flush()
	assert.False(t, ok)
}

func TestFramerFlushTrailingLine(t *testing.T) {
	var f Framer
	assert.Empty(t, f.Feed([]byte(`data: {"type":"done","final_output":"x"}`)))
	payload, ok := f.Flush()
	require.True(t, ok)
	assert.Equal(t, `{"type":"done","final_output":"x"}`, string(payload))

	_, ok = f.Flush()
	assert.False(t, ok, "a flushed line is never produced twice")
}

func TestFramerByteAtATime(t *testing.T) {
	input := "data: {\"n\":1}\r\ndata: {\"n\":2}\n"
	var f Framer
	var got []string
	for i := 0; i < len(input); i++ {
		got = append(got, payloads(f.Feed([]byte{input[i]}))...)
	}
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, got)
}

func collect(s *Stream) []Frame {
	var out []Frame
	for f := range s.Frames() {
		out = append(out, f)
	}
	return out
}

func TestStreamDecodesFrames(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: {\"type\":\"reasoning\",\"content\":\"hi\"}\n" +
			"data: {not json}\n" +
			"data: [DONE]\n" +
			"data: {\"type\":\"delta\"}\n"))
	s := NewStream(context.Background(), body, nil)

	frames := collect(s)
	require.Len(t, frames, 2)
	assert.Equal(t, domain.ReasoningEvent{Content: "hi"}, frames[0].Event)
	assert.ErrorIs(t, frames[1].Err, domain.ErrMalformedFrame)
	assert.Equal(t, "{not json}", string(frames[1].Raw))
	assert.NoError(t, s.Err())
	assert.True(t, s.Sentinel())
}

func TestStreamEOFWithoutSentinel(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {\"type\":\"done\"}\ndata: {\"type\":\"analysis\",\"id\":\"a\",\"content\":\"c\"}"))
	s := NewStream(context.Background(), body, nil)

	frames := collect(s)
	require.Len(t, frames, 2)
	assert.Equal(t, domain.AnalysisEvent{ID: "a", Content: "c"}, frames[1].Event)
	assert.NoError(t, s.Err())
	assert.False(t, s.Sentinel())
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "data: {\"type\":\"delta\",\"content\":\"x\"}\n"), nil
	}
	return 0, errors.New("connection reset by peer")
}

func TestStreamReadFailureIsTransportError(t *testing.T) {
	s := NewStream(context.Background(), io.NopCloser(&failingReader{}), nil)
	frames := collect(s)
	require.Len(t, frames, 1)

	var te *domain.TransportError
	require.ErrorAs(t, s.Err(), &te)
	assert.Contains(t, te.Error(), "connection reset")
	assert.False(t, domain.IsUserCancellation(s.Err()))
}

func TestStreamCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(ctx, pr, nil)

	go func() {
		_, _ = pw.Write([]byte("data: {\"type\":\"delta\",\"content\":\"x\"}\n"))
	}()
	first := <-s.Frames()
	require.NoError(t, first.Err)

	cancel()
	for range s.Frames() {
	}
	assert.ErrorIs(t, s.Err(), domain.ErrUserCancelled)
	assert.True(t, domain.IsUserCancellation(s.Err()))
}
