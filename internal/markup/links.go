package markup

import (
	"regexp"
	"strings"
)

// ResolveLink splits the inside of a [[...]] link into the text shown to the
// reader and the passage it points at. Separators are honored in the order
// "|", "->", "<-"; only the first occurrence of the chosen one counts.
func ResolveLink(raw string) (display, target string) {
	if i := strings.Index(raw, "|"); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	if i := strings.Index(raw, "->"); i >= 0 {
		return raw[:i], raw[i+2:]
	}
	if i := strings.Index(raw, "<-"); i >= 0 {
		return raw[i+2:], raw[:i]
	}
	return raw, raw
}

var anyLinkRe = regexp.MustCompile(`\[\[((?:[^\[\]\n]|\[[^\[\]\n]*\]|\][^\[\]\n])*)\]\]`)

// LinkTargets lists the passage targets of every link and submit link in
// src, in order of appearance.
func LinkTargets(src string) []string {
	var targets []string
	for _, m := range anyLinkRe.FindAllStringSubmatch(src, -1) {
		raw := m[1]
		switch {
		case strings.HasPrefix(raw, "!"):
			if _, _, target, err := parseLazySubmit(raw[1:]); err == nil {
				targets = append(targets, target)
			}
		case strings.Count(raw, "!!") >= 2:
			parts := strings.SplitN(raw, "!!", 3)
			targets = append(targets, strings.ReplaceAll(parts[2], "->", ""))
		default:
			_, target := ResolveLink(raw)
			targets = append(targets, target)
		}
	}
	return targets
}
