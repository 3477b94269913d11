package analytics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		xff        string
		xRealIP    string
		remoteAddr string
		want       string
	}{
		{"forwarded first entry", "203.0.113.1, 10.0.0.1", "", "10.0.0.2:1234", "203.0.113.1"},
		{"real ip", "", "198.51.100.4", "10.0.0.2:1234", "198.51.100.4"},
		{"remote addr with port", "", "", "192.0.2.9:5555", "192.0.2.9"},
		{"remote addr without port", "", "", "192.0.2.9", "192.0.2.9"},
		{"blank forwarded falls through", " , 10.0.0.1", "198.51.100.4", "", "198.51.100.4"},
		{"nothing", "", "", "", UnknownIP},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"   ", "/"},
		{"http://example.com/foo?x=1", "/foo?x=1"},
		{"https://example.com", "/"},
		{"https://example.com/a/b#frag", "/a/b"},
		{"/already/relative?q=2", "/already/relative?q=2"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL_Truncates(t *testing.T) {
	t.Parallel()

	long := "/" + strings.Repeat("a", maxPathLength+10)
	if got := NormalizeURL(long); len(got) != maxPathLength {
		t.Errorf("len = %d, want %d", len(got), maxPathLength)
	}
}

func TestQueryMap(t *testing.T) {
	t.Parallel()

	got := QueryMap("/foo?x=1&y=2&x=3")
	if got["x"] != "1" || got["y"] != "2" || len(got) != 2 {
		t.Errorf("QueryMap() = %v", got)
	}
	if got := QueryMap("/foo"); len(got) != 0 {
		t.Errorf("QueryMap(no query) = %v, want empty", got)
	}
	if got := QueryMap("/foo?"); got == nil {
		t.Error("QueryMap should never return nil")
	}
}

func TestSanitizeReferrer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"direct marker", "direct", ""},
		{"strips query and fragment", "https://news.example.com/item?id=1#top", "https://news.example.com/item"},
		{"plain", "https://example.org/", "https://example.org/"},
		{"unparseable", "http://[::1", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeReferrer(tt.in); got != tt.want {
				t.Errorf("SanitizeReferrer(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractCountryCode(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"us":  "US",
		"DE":  "DE",
		"XX":  "",
		"":    "",
		"USA": "",
	}
	for in, want := range tests {
		if got := ExtractCountryCode(in); got != want {
			t.Errorf("ExtractCountryCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	ua := strings.Repeat("x", 600)
	if got := TruncateUserAgent(ua); len(got) != maxUserAgentLength {
		t.Errorf("len = %d, want %d", len(got), maxUserAgentLength)
	}
	if got := TruncateUserAgent("short"); got != "short" {
		t.Errorf("TruncateUserAgent(short) = %q", got)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"ascii", "abcdef", 4, "abcd"},
		{"fits", "héllo", 10, "héllo"},
		{"cut inside two-byte rune", "aé", 2, "a"},
		{"cut inside three-byte rune", "ab日本", 4, "ab"},
		{"cut after rune", "ab日本", 5, "ab日"},
		{"cut inside four-byte rune", "😀😀", 6, "😀"},
		{"nothing fits", "日本", 2, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := truncate(tt.in, tt.limit)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
			if !utf8.ValidString(got) || len(got) > tt.limit {
				t.Errorf("truncate(%q, %d) = %q is not a valid prefix", tt.in, tt.limit, got)
			}
		})
	}
}

func TestTruncateUserAgent_MultiByte(t *testing.T) {
	t.Parallel()

	ua := strings.Repeat("a", maxUserAgentLength-1) + "é"
	got := TruncateUserAgent(ua)
	if !utf8.ValidString(got) || len(got) != maxUserAgentLength-1 {
		t.Errorf("TruncateUserAgent() len = %d valid = %v", len(got), utf8.ValidString(got))
	}
}
