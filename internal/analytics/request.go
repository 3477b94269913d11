package analytics

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// UnknownIP is used when no client address can be determined.
const UnknownIP = "unknown"

const (
	maxUserAgentLength = 500
	maxReferrerLength  = 500
	maxPathLength      = 2048
)

// ClientIP extracts the client address from the request.
// Priority: first X-Forwarded-For entry, X-Real-IP, the connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}

	return UnknownIP
}

// NormalizeURL reduces an absolute URL to its path and query.
// Relative values are kept as given; an empty value becomes "/".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/"
	}

	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() {
		return truncate(raw, maxPathLength)
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}

	return truncate(path, maxPathLength)
}

// QueryMap returns the first value of each query parameter of a normalized path.
func QueryMap(path string) map[string]string {
	result := make(map[string]string)

	_, rawQuery, found := strings.Cut(path, "?")
	if !found || rawQuery == "" {
		return result
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return result
	}
	for key, vals := range values {
		if len(vals) > 0 {
			result[key] = vals[0]
		}
	}

	return result
}

// SanitizeReferrer cleans and truncates the referrer URL.
// Strips query parameters and fragments for privacy. The beacon's "direct"
// marker is stored as an empty referrer.
func SanitizeReferrer(ref string) string {
	if ref == "" || strings.EqualFold(ref, "direct") {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	// Keep only scheme + host + path; strip query params and fragments
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return truncate(parsed.String(), maxReferrerLength)
}

// TruncateUserAgent truncates user agent to max 500 chars.
func TruncateUserAgent(ua string) string {
	return truncate(ua, maxUserAgentLength)
}

// ExtractCountryCode extracts country code from Cloudflare header.
// Returns empty string if header is missing or invalid.
func ExtractCountryCode(cfIPCountry string) string {
	if len(cfIPCountry) == 2 && !strings.EqualFold(cfIPCountry, "xx") {
		return strings.ToUpper(cfIPCountry)
	}
	return ""
}

// truncate cuts s to at most limit bytes without splitting a UTF-8
// sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
