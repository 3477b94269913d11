package beacon

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Event types sent by the client.
const (
	EventPageview = "pageview"
	EventCustom   = "event"
	EventUnload   = "unload"
)

// Payload is the flat body of one hit.
type Payload struct {
	SiteID          string         `json:"siteId"`
	VisitorID       string         `json:"visitorId"`
	SessionID       string         `json:"sessionId"`
	EventType       string         `json:"eventType"`
	EventName       string         `json:"eventName,omitempty"`
	EventData       map[string]any `json:"eventData,omitempty"`
	URL             string         `json:"url"`
	Referrer        string         `json:"referrer"`
	Timestamp       int64          `json:"timestamp"` // Unix milliseconds
	Screen          string         `json:"screen,omitempty"`
	Language        string         `json:"language,omitempty"`
	SessionStart    bool           `json:"sessionStart"`
	Pageviews       int            `json:"pageviews"`
	SessionDuration int64          `json:"sessionDuration,omitempty"` // seconds, unload only

	// UserAgent travels as the User-Agent header, not in the body.
	UserAgent string `json:"-"`
}

// Values encodes the payload as a query string or form body. EventData is
// carried as a JSON string.
func (p Payload) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("siteId", p.SiteID)
	set("visitorId", p.VisitorID)
	set("sessionId", p.SessionID)
	set("eventType", p.EventType)
	set("eventName", p.EventName)
	set("url", p.URL)
	set("referrer", p.Referrer)
	set("timestamp", strconv.FormatInt(p.Timestamp, 10))
	set("screen", p.Screen)
	set("language", p.Language)
	set("sessionStart", strconv.FormatBool(p.SessionStart))
	set("pageviews", strconv.Itoa(p.Pageviews))
	if p.SessionDuration > 0 {
		set("sessionDuration", strconv.FormatInt(p.SessionDuration, 10))
	}
	if len(p.EventData) > 0 {
		if data, err := json.Marshal(p.EventData); err == nil {
			set("eventData", string(data))
		}
	}
	return v
}
