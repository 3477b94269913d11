// Package beacon is a Go client for the Pagedrop hit endpoint. It keeps
// visitor and session identity across runs and delivers pageview, event and
// unload signals over several best-effort transports.
package beacon

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "PAGEDROP_"

// Config controls a Client.
type Config struct {
	// Endpoint is the origin of the hit endpoint.
	Endpoint string `env:"ENDPOINT" envDefault:"https://pagedrop.io"`
	// SiteID overrides site id discovery when set.
	SiteID         string        `env:"SITE_ID"`
	RespectDNT     bool          `env:"RESPECT_DNT" envDefault:"true"`
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"30m"`
	PageviewDelay  time.Duration `env:"PAGEVIEW_DELAY" envDefault:"100ms"`
	TrackUnload    bool          `env:"TRACK_UNLOAD" envDefault:"true"`
	Debug          bool          `env:"DEBUG" envDefault:"false"`
	// Transports names the delivery channels used by the CLI. The server
	// records every delivery, so each extra channel is an extra hit.
	Transports []string `env:"TRANSPORTS" envSeparator:"," envDefault:"beacon"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "https://pagedrop.io",
		RespectDNT:     true,
		SessionTimeout: 30 * time.Minute,
		PageviewDelay:  100 * time.Millisecond,
		TrackUnload:    true,
		Transports:     []string{"beacon"},
	}
}

// LoadConfig reads PAGEDROP_* environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse beacon config: %w", err)
	}
	return cfg.normalize(), nil
}

// normalize fills zero values with defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	if c.Endpoint == "" {
		c.Endpoint = def.Endpoint
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = def.SessionTimeout
	}
	if c.PageviewDelay < 0 {
		c.PageviewDelay = 0
	}
	if len(c.Transports) == 0 {
		c.Transports = def.Transports
	}
	c.SiteID = strings.TrimSpace(c.SiteID)
	return c
}

// HitURL returns the hit endpoint for siteID.
func (c Config) HitURL(siteID string) string {
	return c.Endpoint + "/api/v1/analytics/hit/" + siteID
}
