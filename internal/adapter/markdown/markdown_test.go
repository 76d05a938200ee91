package markdown

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRenderNotty(t *testing.T) {
	r := New("notty", 60, quiet())
	out := r.Render("# Heading\n\nsome **bold** text")
	assert.Contains(t, out, "Heading")
	assert.Contains(t, out, "bold")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestRenderPlainEscapes(t *testing.T) {
	r := New("plain", 60, quiet())
	assert.Equal(t, "red\ttext\nnext", r.Render("red\ttext\r\nnext"))
	assert.Equal(t, "[31mred", r.Render("\x1b[31mred"))
}

func TestEscapeKeepsPrintable(t *testing.T) {
	assert.Equal(t, "héllo 世界\n", Escape("héllo 世界\n"))
	assert.Equal(t, "ab", Escape("a\x07\x00b"))
	assert.Equal(t, "x", Escape("x\u009b"))
}

func TestSetWidth(t *testing.T) {
	r := New("notty", 0, quiet())
	assert.Equal(t, DefaultWidth, r.Width())

	r.SetWidth(40)
	assert.Equal(t, 40, r.Width())
	r.SetWidth(0)
	assert.Equal(t, 40, r.Width())
	assert.Contains(t, r.Render("still renders"), "still renders")
}

func TestRenderNeverEmptyForText(t *testing.T) {
	r := New("auto", 80, quiet())
	assert.Contains(t, r.Render("plain words"), "plain words")
}
