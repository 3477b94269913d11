package beacon

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

// SiteIDAttribute is the script tag attribute carrying the site id.
const SiteIDAttribute = "data-site-id"

// Environment describes the page the client reports on.
type Environment struct {
	URL            string
	Referrer       string
	UserAgent      string
	Language       string
	ScreenWidth    int
	ScreenHeight   int
	TimezoneOffset int // minutes from UTC
	CookiesEnabled bool
	DoNotTrack     bool

	// ScriptURL and ScriptAttributes describe the embedding script tag.
	ScriptURL        string
	ScriptAttributes map[string]string
}

// Screen formats the screen size as WIDTHxHEIGHT, or "" when unknown.
func (e Environment) Screen() string {
	if e.ScreenWidth <= 0 || e.ScreenHeight <= 0 {
		return ""
	}
	return strconv.Itoa(e.ScreenWidth) + "x" + strconv.Itoa(e.ScreenHeight)
}

// ResolveSiteID picks the site id: the configured override, the script's
// data-site-id attribute, then the script URL (?site= or ?id= query, or the
// file name of a .../{siteId}.js path). It returns "" when none applies.
func ResolveSiteID(cfg Config, env Environment) string {
	if id := strings.TrimSpace(cfg.SiteID); id != "" {
		return id
	}
	if id := strings.TrimSpace(env.ScriptAttributes[SiteIDAttribute]); id != "" {
		return id
	}
	return siteIDFromScriptURL(env.ScriptURL)
}

// siteScriptDir is the path segment holding per-site snippets.
const siteScriptDir = "/s/"

func siteIDFromScriptURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, key := range []string{"site", "id"} {
		if id := strings.TrimSpace(q.Get(key)); id != "" {
			return id
		}
	}
	// Per-site snippets are served as /s/{siteId}.js; any other script
	// name is a shared loader and says nothing about the site.
	dir, base := path.Split(u.Path)
	if !strings.HasSuffix(dir, siteScriptDir) || !strings.HasSuffix(base, ".js") {
		return ""
	}
	return strings.TrimSuffix(base, ".js")
}
