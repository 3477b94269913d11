package analytics

import (
	"errors"
	"fmt"

	"github.com/pagedrop/pagedrop/internal/model"
)

const (
	maxSiteIDLength = 64
	maxIdentityLen  = 64
	ipHashLength    = 64
	maxEventTypeLen = 64
	maxEventNameLen = 128
)

// ErrInvalidRecord marks a stream payload that can never be persisted.
var ErrInvalidRecord = errors.New("invalid analytics record")

// ValidateRecordPayload checks a decoded stream record before persistence.
func ValidateRecordPayload(record *model.AnalyticsRecord) error {
	if record == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidRecord)
	}
	if record.SiteID == "" {
		return fmt.Errorf("%w: site_id is required", ErrInvalidRecord)
	}
	if len(record.SiteID) > maxSiteIDLength {
		return fmt.Errorf("%w: site_id too long", ErrInvalidRecord)
	}
	if record.SessionID == "" || len(record.SessionID) > maxIdentityLen {
		return fmt.Errorf("%w: session_id missing or too long", ErrInvalidRecord)
	}
	if record.VisitorID == "" || len(record.VisitorID) > maxIdentityLen {
		return fmt.Errorf("%w: visitor_id missing or too long", ErrInvalidRecord)
	}
	if len(record.IPHash) != ipHashLength || !isHex(record.IPHash) {
		return fmt.Errorf("%w: ip_hash must be %d hex chars", ErrInvalidRecord, ipHashLength)
	}
	if record.EventType == "" || len(record.EventType) > maxEventTypeLen {
		return fmt.Errorf("%w: event_type missing or too long", ErrInvalidRecord)
	}
	if len(record.EventName) > maxEventNameLen {
		return fmt.Errorf("%w: event_name too long", ErrInvalidRecord)
	}
	if record.CountryCode != "" && len(record.CountryCode) != 2 {
		return fmt.Errorf("%w: country_code must be 2 chars", ErrInvalidRecord)
	}
	if record.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp must be set", ErrInvalidRecord)
	}
	if len(record.Referrer) > maxReferrerLength {
		return fmt.Errorf("%w: referrer too long", ErrInvalidRecord)
	}
	if len(record.UserAgent) > maxUserAgentLength {
		return fmt.Errorf("%w: user_agent too long", ErrInvalidRecord)
	}
	if len(record.Path) > maxPathLength {
		return fmt.Errorf("%w: path too long", ErrInvalidRecord)
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
