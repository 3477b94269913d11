package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pagedrop/pagedrop/internal/model"
)

// Hit parsing errors.
var (
	ErrMissingSiteID    = errors.New("site id is required")
	ErrInvalidBody      = errors.New("invalid hit body")
	ErrInvalidEventData = errors.New("invalid event data")
)

// maxClockSkew bounds how far in the future a client timestamp may be.
const maxClockSkew = 24 * time.Hour

// HitInput holds the raw caller-supplied fields of a hit.
// Values arrive as strings from query strings and forms; JSON bodies are
// flattened into the same shape.
type HitInput struct {
	SessionID       string
	VisitorID       string
	EventType       string
	EventName       string
	EventDataRaw    string
	EventData       map[string]any // set when a JSON body carries an object
	URL             string
	Referrer        string
	Timestamp       string
	SessionStart    string
	SessionDuration string
	LoadTime        string
	Bandwidth       string
	Screen          string
	Language        string
	Admin           string
}

// fieldAliases maps each HitInput field to the wire names it accepts,
// preferred name first.
var fieldAliases = map[string][]string{
	"sessionId":       {"sessionId", "session_id", "sid"},
	"visitorId":       {"visitorId", "visitor_id", "vid"},
	"eventType":       {"eventType", "event_type", "type"},
	"eventName":       {"eventName", "event_name", "name"},
	"eventData":       {"eventData", "event_data", "data"},
	"url":             {"url", "path", "u"},
	"referrer":        {"referrer", "ref", "r"},
	"timestamp":       {"timestamp", "ts", "t"},
	"sessionStart":    {"sessionStart", "session_start"},
	"sessionDuration": {"sessionDuration", "session_duration", "duration"},
	"loadTime":        {"loadTime", "load_time"},
	"bandwidth":       {"bandwidth"},
	"screen":          {"screen", "screenSize"},
	"language":        {"language", "lang"},
	"admin":           {"admin"},
}

// ParseValues builds a HitInput from a query string or form body.
func ParseValues(values url.Values) HitInput {
	get := func(field string) string {
		for _, name := range fieldAliases[field] {
			if v := values.Get(name); v != "" {
				return v
			}
		}
		return ""
	}
	return fromLookup(get)
}

// ParseJSON builds a HitInput from a JSON object body.
// Numbers and booleans are accepted in place of strings; eventData may be an
// object or a JSON encoded string.
func ParseJSON(body []byte) (HitInput, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return HitInput{}, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if raw == nil {
		return HitInput{}, fmt.Errorf("%w: body is not an object", ErrInvalidBody)
	}

	lookup := func(field string) (any, bool) {
		for _, name := range fieldAliases[field] {
			if v, ok := raw[name]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	}
	get := func(field string) string {
		v, ok := lookup(field)
		if !ok {
			return ""
		}
		return stringify(v)
	}

	in := fromLookup(get)

	if v, ok := lookup("eventData"); ok {
		switch data := v.(type) {
		case map[string]any:
			in.EventData = data
			in.EventDataRaw = ""
		case string:
			in.EventDataRaw = data
		default:
			encoded, err := json.Marshal(data)
			if err == nil {
				in.EventDataRaw = string(encoded)
			}
		}
	}

	return in, nil
}

func fromLookup(get func(string) string) HitInput {
	return HitInput{
		SessionID:       get("sessionId"),
		VisitorID:       get("visitorId"),
		EventType:       get("eventType"),
		EventName:       get("eventName"),
		EventDataRaw:    get("eventData"),
		URL:             get("url"),
		Referrer:        get("referrer"),
		Timestamp:       get("timestamp"),
		SessionStart:    get("sessionStart"),
		SessionDuration: get("sessionDuration"),
		LoadTime:        get("loadTime"),
		Bandwidth:       get("bandwidth"),
		Screen:          get("screen"),
		Language:        get("language"),
		Admin:           get("admin"),
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// IsAdmin reports whether the hit carries the admin preview marker.
func (in HitInput) IsAdmin() bool {
	return parseBool(in.Admin)
}

// RequestMeta is the server-side context of a hit.
type RequestMeta struct {
	IP          string
	UserAgent   string
	CountryCode string
	ReceivedAt  time.Time
}

// RecordBuilder assembles AnalyticsRecords from hit input.
type RecordBuilder struct {
	hasher        *IPHasher
	sessionWindow time.Duration
}

// NewRecordBuilder creates a RecordBuilder.
func NewRecordBuilder(hasher *IPHasher, sessionWindow time.Duration) *RecordBuilder {
	if sessionWindow <= 0 {
		sessionWindow = DefaultSessionWindow
	}
	return &RecordBuilder{hasher: hasher, sessionWindow: sessionWindow}
}

// Build assembles a record with explicit defaults for every optional field.
// Malformed numeric fields fall back to their default; a malformed eventData
// string is an error.
func (b *RecordBuilder) Build(siteID string, in HitInput, meta RequestMeta) (*model.AnalyticsRecord, error) {
	if strings.TrimSpace(siteID) == "" {
		return nil, ErrMissingSiteID
	}

	now := meta.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	ip := meta.IP
	if ip == "" {
		ip = UnknownIP
	}

	eventData, err := decodeEventData(in)
	if err != nil {
		return nil, err
	}

	ua := ClassifyUserAgent(meta.UserAgent)
	path := NormalizeURL(in.URL)

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = SessionID(ip, meta.UserAgent, now, b.sessionWindow)
	}
	visitorID := strings.TrimSpace(in.VisitorID)
	if visitorID == "" {
		visitorID = VisitorID(ip, meta.UserAgent)
	}

	eventType := strings.TrimSpace(in.EventType)
	if eventType == "" {
		eventType = model.EventTypePageview
	}
	isCustom := !model.IsKnownEventType(eventType)
	eventName := strings.TrimSpace(in.EventName)
	if isCustom && eventName == "" {
		eventName = eventType
	}

	return &model.AnalyticsRecord{
		ID:              ulid.Make().String(),
		SiteID:          siteID,
		SessionID:       truncate(sessionID, 64),
		VisitorID:       truncate(visitorID, 64),
		IPHash:          b.hasher.Hash(ip),
		UserAgent:       TruncateUserAgent(meta.UserAgent),
		Browser:         ua.Browser,
		OS:              ua.OS,
		DeviceType:      ua.DeviceType,
		Referrer:        SanitizeReferrer(in.Referrer),
		Path:            path,
		Query:           QueryMap(path),
		EventType:       truncate(eventType, 64),
		IsCustom:        isCustom,
		EventName:       truncate(eventName, 128),
		EventData:       eventData,
		SessionStart:    parseBool(in.SessionStart),
		SessionDuration: parseInt(in.SessionDuration, 0),
		LoadTime:        parseOptionalInt(in.LoadTime),
		Bandwidth:       parseOptionalInt(in.Bandwidth),
		ScreenSize:      truncate(in.Screen, 32),
		Language:        truncate(in.Language, 35),
		CountryCode:     meta.CountryCode,
		IsBot:           ua.IsBot,
		BotName:         ua.BotName,
		Timestamp:       parseTimestamp(in.Timestamp, now),
		CreatedAt:       now,
	}, nil
}

func decodeEventData(in HitInput) (map[string]any, error) {
	if in.EventData != nil {
		return in.EventData, nil
	}

	raw := strings.TrimSpace(in.EventDataRaw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEventData, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseInt(s string, def int64) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return def
		}
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f < 1<<62 {
		return int64(f)
	}
	return def
}

func parseOptionalInt(s string) *int64 {
	n := parseInt(s, -1)
	if n < 0 {
		return nil
	}
	return &n
}

// parseTimestamp accepts Unix milliseconds; anything unparseable or too far
// in the future falls back to server time.
func parseTimestamp(s string, now time.Time) time.Time {
	ms := parseInt(s, 0)
	if ms <= 0 {
		return now
	}
	ts := time.UnixMilli(ms).UTC()
	if ts.After(now.Add(maxClockSkew)) {
		return now
	}
	return ts
}
