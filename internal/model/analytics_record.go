package model

import "time"

// Known event types. Anything else is stored verbatim and flagged as custom.
const (
	EventTypePageview = "pageview"
	EventTypeUnload   = "unload"
	EventTypeEvent    = "event"
)

// Device types produced by user-agent classification.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// IsKnownEventType reports whether t is one of the built-in event types.
func IsKnownEventType(t string) bool {
	switch t {
	case EventTypePageview, EventTypeUnload, EventTypeEvent:
		return true
	}
	return false
}

// AnalyticsRecord is a single accepted hit. Created once, never mutated.
type AnalyticsRecord struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	SiteID    string `json:"site_id"`
	SessionID string `json:"session_id"`
	VisitorID string `json:"visitor_id"`

	// IPHash is a keyed one-way digest. The raw address is never stored.
	IPHash     string `json:"ip_hash"`
	UserAgent  string `json:"user_agent,omitempty"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"`

	Referrer string            `json:"referrer,omitempty"`
	Path     string            `json:"path"`
	Query    map[string]string `json:"query"`

	EventType string         `json:"event_type"`
	IsCustom  bool           `json:"is_custom"`
	EventName string         `json:"event_name,omitempty"`
	EventData map[string]any `json:"event_data"`

	SessionStart    bool   `json:"session_start"`
	SessionDuration int64  `json:"session_duration"`    // seconds
	LoadTime        *int64 `json:"load_time,omitempty"` // milliseconds
	Bandwidth       *int64 `json:"bandwidth,omitempty"` // bytes
	ScreenSize      string `json:"screen_size,omitempty"`
	Language        string `json:"language,omitempty"`
	CountryCode     string `json:"country_code,omitempty"` // ISO 3166-1 alpha-2

	IsBot   bool   `json:"is_bot"`
	BotName string `json:"bot_name,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// SiteStats is the read model for a site's analytics summary.
type SiteStats struct {
	SiteID         string       `json:"site_id"`
	HitCount       int64        `json:"hit_count"`
	SessionCount   int64        `json:"session_count"`
	Pending        SiteCounters `json:"pending"`
	Period         StatsPeriod  `json:"period"`
	Pageviews      int64        `json:"pageviews"`
	UniqueVisitors int64        `json:"unique_visitors"`
	Sessions       int64        `json:"sessions"`
	BotHits        int64        `json:"bot_hits"`
	TopPaths       []PathCount  `json:"top_paths,omitempty"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// StatsPeriod is the inclusive date range of a stats query.
type StatsPeriod struct {
	From string `json:"from"` // ISO date
	To   string `json:"to"`   // ISO date
}

// PathCount is a pageview count for a single path.
type PathCount struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}
