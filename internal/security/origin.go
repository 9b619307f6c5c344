package security

import (
	"net/url"
	"slices"
	"strings"
)

// OriginAllowed reports whether a browser Origin header may talk to a server
// reached as host. Same-host origins are always allowed; "*" in allowed
// admits everything. An empty origin (non-browser client) is allowed.
func OriginAllowed(origin, host string, allowed []string) bool {
	if origin == "" {
		return true
	}
	if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}
