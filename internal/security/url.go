// Package security holds the checks applied to endpoints the server posts
// enquiries to and to browser origins it accepts.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// AllowPrivateEndpoints lets form and captcha endpoints point at internal
// networks. It is set from form.allow_private_endpoints and by tests.
var AllowPrivateEndpoints bool

// ValidateHTTPURL checks that an outgoing endpoint is an http(s) URL that
// does not reach localhost, private, link-local or unspecified addresses.
func ValidateHTTPURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if AllowPrivateEndpoints {
		return nil
	}

	hostLower := strings.ToLower(host)
	if hostLower == "localhost" || hostLower == "localhost.localdomain" {
		return fmt.Errorf("requests to localhost are not allowed")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostnames are not resolved here.
		return nil
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("requests to loopback addresses are not allowed")
	case ip.IsPrivate():
		return fmt.Errorf("requests to private network addresses are not allowed")
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("requests to link-local addresses are not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("requests to unspecified addresses are not allowed")
	}

	return nil
}
