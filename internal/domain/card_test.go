package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopwatchStopsOnce(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sw := StartStopwatch(t0)
	assert.True(t, sw.Running())
	assert.Equal(t, 2*time.Second, sw.Elapsed(t0.Add(2*time.Second)))

	assert.True(t, sw.Stop(t0.Add(3*time.Second)))
	assert.False(t, sw.Stop(t0.Add(9*time.Second)))
	assert.False(t, sw.Running())
	assert.Equal(t, t0.Add(3*time.Second), sw.StoppedAt())
	assert.Equal(t, 3*time.Second, sw.Elapsed(t0.Add(time.Hour)))
}

func TestStopwatchZeroValue(t *testing.T) {
	var sw Stopwatch
	assert.False(t, sw.Running())
	assert.False(t, sw.Stop(time.Now()))
	assert.Zero(t, sw.Elapsed(time.Now()))
}

func TestStopwatchClockSkew(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sw := StartStopwatch(t0)
	assert.Zero(t, sw.Elapsed(t0.Add(-time.Second)))
	sw.Stop(t0.Add(-time.Second))
	assert.Zero(t, sw.Elapsed(t0.Add(time.Minute)))
}

func TestCardNilSafe(t *testing.T) {
	var c *Card
	assert.False(t, c.Running())
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0.0s", FormatElapsed(0))
	assert.Equal(t, "1.5s", FormatElapsed(1500*time.Millisecond))
	assert.Equal(t, "59.9s", FormatElapsed(59900*time.Millisecond))
	assert.Equal(t, "2m 5s", FormatElapsed(125*time.Second))
	assert.Equal(t, "0.0s", FormatElapsed(-time.Second))
}

func TestParseContentType(t *testing.T) {
	assert.Equal(t, ContentJSON, ParseContentType("json"))
	assert.Equal(t, ContentCode, ParseContentType("code"))
	assert.Equal(t, ContentMarkdown, ParseContentType("markdown"))
	assert.Equal(t, ContentText, ParseContentType(""))
	assert.Equal(t, ContentText, ParseContentType("html"))
}
