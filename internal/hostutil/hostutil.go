// Package hostutil normalizes API base URLs.
package hostutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize converts a host string to a full URL.
// Bare localhost addresses get http://, every other bare host gets https://,
// and full URLs are returned unchanged.
func Normalize(host string) string {
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	if IsLocalhost(hostPart(host)) {
		return "http://" + host
	}
	return "https://" + host
}

// hostPart strips any path from a bare host so "127.0.0.1:8000/api/" matches
// as localhost.
func hostPart(host string) string {
	if i := strings.Index(host, "/"); i >= 0 {
		return host[:i]
	}
	return host
}

// IsLocalhost returns true if host is localhost, a .localhost subdomain,
// 127.0.0.1, or [::1] (with optional port).
func IsLocalhost(host string) bool {
	hostWithoutPort := host
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		// Bracketed IPv6 keeps its colons unless a port follows.
		if !strings.HasPrefix(host, "[") || strings.HasPrefix(host, "[::1]:") {
			hostWithoutPort = host[:idx]
		}
	}

	if hostWithoutPort == "localhost" || strings.HasSuffix(hostWithoutPort, ".localhost") {
		return true
	}
	return hostWithoutPort == "127.0.0.1" || hostWithoutPort == "[::1]"
}

// RequireSecureURL rejects plain http:// URLs that do not point at the
// local machine. Bearer tokens must never travel in cleartext.
func RequireSecureURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme == "http" && !IsLocalhost(u.Host) {
		return fmt.Errorf("refusing insecure http:// URL %s (use https:// or a localhost address)", raw)
	}
	return nil
}

// BaseURL normalizes an API base URL: scheme filled in, query and fragment
// rejected, and exactly one trailing slash so relative endpoint paths such as
// "projects/" resolve underneath it.
func BaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("base URL is empty")
	}
	u, err := url.Parse(Normalize(raw))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("invalid base URL %q: query and fragment are not allowed", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawPath = ""
	return u.String(), nil
}
