package markup

import (
	"strings"
)

// ExpandAttrs turns attribute shorthand such as "-0.note#intro" into HTML
// attribute text.
//
// A leading run of '-' and '0' flags hides the element and gives it an inert
// href. After that "#name" sets the id (the last one wins) and ".name" adds a
// class; classes keep the order they were written in.
func ExpandAttrs(shorthand string) string {
	var b strings.Builder

	i := 0
flags:
	for ; i < len(shorthand); i++ {
		switch shorthand[i] {
		case '-':
			b.WriteString(`style="display:none" `)
		case '0':
			b.WriteString(`href="javascript:void(0)" `)
		default:
			break flags
		}
	}

	var (
		id      string
		hasID   bool
		classes []string
	)
	for _, tok := range attrTokens(shorthand[i:]) {
		switch tok[0] {
		case '#':
			id, hasID = tok[1:], true
		case '.':
			classes = append(classes, tok[1:])
		}
	}

	if hasID {
		b.WriteString(`id="` + id + `" `)
	}
	if len(classes) > 0 {
		b.WriteString(`class="` + strings.Join(classes, " ") + `"`)
	}
	return strings.TrimSpace(b.String())
}

// attrTokens splits s into "#name" and ".name" tokens. A marker with an empty
// name is dropped, as is any text before the first marker.
func attrTokens(s string) []string {
	var toks []string
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start > 1 {
			toks = append(toks, s[start:end])
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '#' || s[i] == '.' {
			flush(i)
			start = i
		}
	}
	flush(len(s))
	return toks
}
