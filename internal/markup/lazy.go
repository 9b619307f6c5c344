package markup

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	taggedParamRe = regexp.MustCompile(`^\[([^\[\]/]+)\](.*)\[/([^\[\]]+)\]$`)
	flagParamRe   = regexp.MustCompile(`^\[([^\[\]/]+)\]$`)
)

// camelParams restores the spelling the submit endpoint expects for
// parameter names that authors tend to write in one case.
var camelParams = map[string]string{
	"sendto": "sendTo",
}

// parseLazySubmit reads the body of [[!display->param->...->target]]. Params
// are written as [tag]value[/tag], [flag] or a bare value and come back
// joined as "tag:value;flag;value".
func parseLazySubmit(body string) (display, params, target string, err error) {
	segs := splitArrows(body)
	display = strings.TrimSpace(segs[0])
	target = strings.TrimSpace(segs[len(segs)-1])
	if len(segs) < 3 {
		return display, "", target, nil
	}

	encoded := make([]string, 0, len(segs)-2)
	for _, seg := range segs[1 : len(segs)-1] {
		p, err := encodeParam(strings.TrimSpace(seg))
		if err != nil {
			return "", "", "", err
		}
		encoded = append(encoded, p)
	}
	return display, strings.Join(encoded, ";"), target, nil
}

func encodeParam(seg string) (string, error) {
	if m := taggedParamRe.FindStringSubmatch(seg); m != nil {
		if !strings.EqualFold(m[1], m[3]) {
			return "", fmt.Errorf("%w: [%s] closed by [/%s]", ErrBadParam, m[1], m[3])
		}
		return paramName(m[1]) + ":" + m[2], nil
	}
	if m := flagParamRe.FindStringSubmatch(seg); m != nil {
		return paramName(m[1]), nil
	}
	if strings.ContainsAny(seg, "[]") {
		return "", fmt.Errorf("%w: %q", ErrBadParam, seg)
	}
	return seg, nil
}

func paramName(tag string) string {
	name := strings.ToLower(strings.TrimSpace(tag))
	if camel, ok := camelParams[name]; ok {
		return camel
	}
	return name
}

// splitArrows splits s on "->" outside of [...] groups.
func splitArrows(s string) []string {
	var (
		parts []string
		depth int
		last  int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '-':
			if depth == 0 && i+1 < len(s) && s[i+1] == '>' {
				parts = append(parts, s[last:i])
				last = i + 2
				i++
			}
		}
	}
	return append(parts, s[last:])
}
