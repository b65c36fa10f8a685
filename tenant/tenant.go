// Package tenant resolves the active club tenant for a session, owns the
// demo tenant's per-browser isolation identifier, and publishes a
// cache-invalidation signal when either changes.
package tenant

import (
	"net/url"
	"strings"
)

// Reserved tenant identifiers. Every other value is a free-form club slug.
const (
	Default   = "default"
	Demo      = "demo"
	Marketing = "marketing"
)

// Resolve derives the tenant identifier from a page URL: the leftmost
// hostname label when it is neither "www" nor the apex, otherwise the
// first path segment, otherwise Default. Resolution happens once per
// session; the result is threaded through every authority call.
func Resolve(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Default
	}

	host := u.Hostname()
	labels := strings.Split(host, ".")
	if len(labels) >= 3 && labels[0] != "www" && labels[0] != "" {
		return strings.ToLower(labels[0])
	}

	for _, segment := range strings.Split(u.EscapedPath(), "/") {
		if segment != "" {
			return strings.ToLower(segment)
		}
	}
	return Default
}
