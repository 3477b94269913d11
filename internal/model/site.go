// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
)

// SiteStatus represents the hosting status of a site.
type SiteStatus string

const (
	SiteStatusActive    SiteStatus = "active"
	SiteStatusSuspended SiteStatus = "suspended"
	SiteStatusArchived  SiteStatus = "archived"
)

// SiteAnalytics is the optional analytics sub-configuration of a site.
type SiteAnalytics struct {
	Enabled      bool `json:"enabled"`
	ExcludeAdmin bool `json:"exclude_admin"`
}

// Site is a hosted site. It is owned by the hosting platform; the analytics
// service only reads it.
type Site struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Domain       string         `json:"domain"`
	Status       SiteStatus     `json:"status"`
	Analytics    *SiteAnalytics `json:"analytics,omitempty"`
	HitCount     int64          `json:"hit_count"`
	SessionCount int64          `json:"session_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsActive returns true if the site is currently served.
func (s *Site) IsActive() bool {
	return s.Status == SiteStatusActive
}

// AnalyticsEnabled returns false only when analytics were explicitly turned off.
// A site without an analytics block is tracked.
func (s *Site) AnalyticsEnabled() bool {
	return s.Analytics == nil || s.Analytics.Enabled
}

// ExcludesAdmin reports whether admin preview traffic must be ignored.
func (s *Site) ExcludesAdmin() bool {
	return s.Analytics != nil && s.Analytics.ExcludeAdmin
}

// Trackable returns true if hits for this site should be recorded.
func (s *Site) Trackable() bool {
	return s.IsActive() && s.AnalyticsEnabled()
}

// CachedSite represents site data stored in Redis cache.
// Uses string types for Redis hash compatibility.
type CachedSite struct {
	Status           string `redis:"status"`
	HasAnalytics     string `redis:"has_analytics"`     // "1" or "0"
	AnalyticsEnabled string `redis:"analytics_enabled"` // "1" or "0"
	ExcludeAdmin     string `redis:"exclude_admin"`     // "1" or "0"
	UpdatedAt        string `redis:"updated_at"`        // Unix timestamp
}

// ToSite converts CachedSite to the Site domain model.
// Only the fields needed for hit ingestion are cached.
func (c *CachedSite) ToSite(id string) *Site {
	site := &Site{
		ID:     id,
		Status: SiteStatus(c.Status),
	}

	if c.HasAnalytics == "1" {
		site.Analytics = &SiteAnalytics{
			Enabled:      c.AnalyticsEnabled == "1",
			ExcludeAdmin: c.ExcludeAdmin == "1",
		}
	}

	if c.UpdatedAt != "" {
		if ts, err := strconv.ParseInt(c.UpdatedAt, 10, 64); err == nil {
			site.UpdatedAt = time.Unix(ts, 0)
		}
	}

	return site
}

// ToCachedSite converts Site to its cached representation.
func (s *Site) ToCachedSite() *CachedSite {
	cached := &CachedSite{
		Status:       string(s.Status),
		HasAnalytics: boolToString(s.Analytics != nil),
		UpdatedAt:    strconv.FormatInt(s.UpdatedAt.Unix(), 10),
	}

	if s.Analytics != nil {
		cached.AnalyticsEnabled = boolToString(s.Analytics.Enabled)
		cached.ExcludeAdmin = boolToString(s.Analytics.ExcludeAdmin)
	} else {
		cached.AnalyticsEnabled = "0"
		cached.ExcludeAdmin = "0"
	}

	return cached
}

// SiteCounters holds counter deltas accumulated in Redis for a site.
type SiteCounters struct {
	Hits     int64 `json:"hits"`
	Sessions int64 `json:"sessions"`
	BotHits  int64 `json:"bot_hits"`
}

// IsZero reports whether there is nothing to flush.
func (c SiteCounters) IsZero() bool {
	return c.Hits == 0 && c.Sessions == 0 && c.BotHits == 0
}

// boolToString converts boolean to "1" or "0".
func boolToString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
