package beacon

import "testing"

func TestResolveSiteID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		env  Environment
		want string
	}{
		{"config override", Config{SiteID: "cfg"}, Environment{ScriptAttributes: map[string]string{SiteIDAttribute: "attr"}}, "cfg"},
		{"script attribute", Config{}, Environment{ScriptAttributes: map[string]string{SiteIDAttribute: "attr"}, ScriptURL: "https://cdn.pagedrop.io/s/other.js"}, "attr"},
		{"site query", Config{}, Environment{ScriptURL: "https://cdn.pagedrop.io/pd.js?site=q1"}, "q1"},
		{"id query", Config{}, Environment{ScriptURL: "https://cdn.pagedrop.io/pd.js?id=q2"}, "q2"},
		{"path segment", Config{}, Environment{ScriptURL: "https://cdn.pagedrop.io/s/abc123.js"}, "abc123"},
		{"nested snippet path", Config{}, Environment{ScriptURL: "https://pagedrop.io/assets/s/abc123.js"}, "abc123"},
		{"not a script", Config{}, Environment{ScriptURL: "https://cdn.pagedrop.io/s/abc123"}, ""},
		{"generic loader", Config{}, Environment{ScriptURL: "https://example.com/tracker.js"}, ""},
		{"shared snippet", Config{}, Environment{ScriptURL: "https://cdn.pagedrop.io/pd.js"}, ""},
		{"empty snippet name", Config{}, Environment{ScriptURL: "https://cdn.pagedrop.io/s/.js"}, ""},
		{"nothing", Config{}, Environment{}, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ResolveSiteID(tt.cfg, tt.env); got != tt.want {
				t.Errorf("ResolveSiteID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	env := testEnv()
	a := Fingerprint(env)
	if a != Fingerprint(env) {
		t.Error("fingerprint should be deterministic")
	}
	if len(a) < 4 || a[:3] != "fp_" {
		t.Errorf("fingerprint = %q, want fp_ prefix", a)
	}

	changed := env
	changed.TimezoneOffset = 120
	if Fingerprint(changed) == a {
		t.Error("timezone offset should change the fingerprint")
	}
	changed = env
	changed.DoNotTrack = true
	if Fingerprint(changed) == a {
		t.Error("DNT flag should change the fingerprint")
	}
}

func TestEnvironment_Screen(t *testing.T) {
	t.Parallel()

	if got := (Environment{ScreenWidth: 390, ScreenHeight: 844}).Screen(); got != "390x844" {
		t.Errorf("Screen() = %q", got)
	}
	if got := (Environment{}).Screen(); got != "" {
		t.Errorf("Screen() = %q, want empty", got)
	}
}
