package markup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// charRefRe matches a character reference at the start of a string.
var charRefRe = regexp.MustCompile(`^&(?:#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|[A-Za-z][A-Za-z0-9]{1,31});`)

// EscapeString replaces &, < and > with their entities in one left-to-right
// scan. An & that already starts a character reference is kept, so escaping
// escaped text returns it unchanged.
func EscapeString(s string) string {
	if !strings.ContainsAny(s, "&<>") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			if ref := charRefRe.FindString(s[i:]); ref != "" {
				b.WriteString(ref)
				i += len(ref) - 1
				continue
			}
			b.WriteString("&amp;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Escape formats v for inclusion in generated HTML. Booleans pass through
// unescaped; nil becomes the empty string. Floats are written without an
// exponent, as a reader would have typed them.
func Escape(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case string:
		return EscapeString(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return EscapeString(v.String())
	default:
		return EscapeString(fmt.Sprint(v))
	}
}
