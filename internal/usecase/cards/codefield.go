package cards

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// codeFields are the keys whose string value is shown as source code.
var codeFields = map[string]bool{"code": true, "sql": true}

type scanState int

const (
	stateBeforeField scanState = iota // outside any string
	stateInKey                        // inside a string token
	stateAfterKey                     // code key read, expecting ':'
	stateAfterColon                   // expecting the opening quote of the value
	stateInValue                      // inside the code value
)

// ExtractCodeField returns the decoded string value of the first "code" or
// "sql" key in a possibly truncated JSON fragment. A value cut off mid-stream
// yields the prefix received so far; an escape sequence cut off at the end is
// dropped. ok is false when no such key with a string value is present.
func ExtractCodeField(s string) (value, field string, ok bool) {
	var (
		state scanState
		token strings.Builder
		out   strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateBeforeField:
			if c == '"' {
				token.Reset()
				state = stateInKey
			}
		case stateInKey:
			switch c {
			case '\\':
				i++ // keys of interest never contain escapes
			case '"':
				if codeFields[token.String()] {
					field = token.String()
					state = stateAfterKey
				} else {
					state = stateBeforeField
				}
			default:
				token.WriteByte(c)
			}
		case stateAfterKey:
			switch {
			case isSpace(c):
			case c == ':':
				state = stateAfterColon
			default:
				// The string was a value, not a key; rescan from here.
				state = stateBeforeField
				i--
			}
		case stateAfterColon:
			switch {
			case isSpace(c):
			case c == '"':
				state = stateInValue
			default:
				state = stateBeforeField
				i--
			}
		case stateInValue:
			switch c {
			case '"':
				return out.String(), field, true
			case '\\':
				n, complete := decodeEscape(s[i:], &out)
				if !complete {
					return out.String(), field, true
				}
				i += n - 1
			default:
				out.WriteByte(c)
			}
		}
	}
	switch state {
	case stateAfterColon, stateInValue:
		return out.String(), field, true
	}
	return "", "", false
}

// decodeEscape decodes the escape sequence at the start of s (s[0] is the
// backslash) into out. It returns the number of bytes consumed and whether
// the sequence was complete.
func decodeEscape(s string, out *strings.Builder) (int, bool) {
	if len(s) < 2 {
		return len(s), false
	}
	switch s[1] {
	case 'n':
		out.WriteByte('\n')
	case 't':
		out.WriteByte('\t')
	case 'r':
		out.WriteByte('\r')
	case 'b':
		out.WriteByte('\b')
	case 'f':
		out.WriteByte('\f')
	case 'u':
		r, n, complete := decodeUnicode(s)
		if !complete {
			return len(s), false
		}
		out.WriteRune(r)
		return n, true
	default:
		// \" \\ \/ and unknown escapes keep the escaped character.
		out.WriteByte(s[1])
	}
	return 2, true
}

func decodeUnicode(s string) (rune, int, bool) {
	if len(s) < 6 {
		return 0, len(s), false
	}
	r1, err := strconv.ParseUint(s[2:6], 16, 16)
	if err != nil {
		return utf8.RuneError, 6, true
	}
	if !utf16.IsSurrogate(rune(r1)) {
		return rune(r1), 6, true
	}
	if len(s) < 12 {
		// A high surrogate at the end may still be followed by its pair.
		rest := s[6:]
		if rest == "" || strings.HasPrefix(`\u`, rest[:min(len(rest), 2)]) {
			return 0, len(s), false
		}
		return utf8.RuneError, 6, true
	}
	if s[6] != '\\' || s[7] != 'u' {
		return utf8.RuneError, 6, true
	}
	r2, err := strconv.ParseUint(s[8:12], 16, 16)
	if err != nil {
		return utf8.RuneError, 6, true
	}
	return utf16.DecodeRune(rune(r1), rune(r2)), 12, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
