package theme

import (
	"os"
	"strings"
)

// glyphs pairs every Symbol* variable with its Unicode and ASCII form.
var glyphs = []struct {
	target         *string
	unicode, ascii string
}{
	{&SymbolSuccess, "✓", "[OK]"},
	{&SymbolError, "✗", "[ERR]"},
	{&SymbolInfo, "●", "[i]"},
	{&SymbolSpinner, "⏳", "[...]"},
	{&SymbolArrowR, "→", "->"},
	{&SymbolBullet, "•", "*"},
	{&SymbolEllipsis, "…", "..."},
	{&SymbolExpand, "▾", "v"},
	{&SymbolCollapse, "▸", ">"},
}

// UnicodeSupported reports whether card and status glyphs can be drawn.
// TRACECHAT_ASCII_SYMBOLS=1 forces ASCII.
func UnicodeSupported() bool {
	v := os.Getenv("TRACECHAT_ASCII_SYMBOLS")
	return v != "1" && !strings.EqualFold(v, "true")
}

// UseASCII switches every symbol to its ASCII fallback, or back.
func UseASCII(ascii bool) {
	for _, g := range glyphs {
		if ascii {
			*g.target = g.ascii
		} else {
			*g.target = g.unicode
		}
	}
}

func init() {
	UseASCII(!UnicodeSupported())
}
