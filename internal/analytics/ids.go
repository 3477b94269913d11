// Package analytics provides hit parsing, identity derivation and the
// asynchronous record pipeline.
package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultSessionWindow is the inactivity bucket used for derived session ids.
	DefaultSessionWindow = 30 * time.Minute

	// derivedIDLength is the length in hex chars of derived session/visitor ids.
	derivedIDLength = 16
)

// SessionBucket returns the index of the time bucket t falls into.
func SessionBucket(t time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = DefaultSessionWindow
	}
	return t.Unix() / int64(window/time.Second)
}

// SessionID derives a session identifier from ip, user agent and the
// window-sized time bucket of t. Hits from the same client inside one bucket
// collapse to the same id.
func SessionID(ip, userAgent string, t time.Time, window time.Duration) string {
	bucket := strconv.FormatInt(SessionBucket(t, window), 10)
	return digest("session", ip, userAgent, bucket)
}

// VisitorID derives a stable visitor identifier from ip and user agent.
// Unlike SessionID it is not time bucketed.
func VisitorID(ip, userAgent string) string {
	return digest("visitor", ip, userAgent)
}

// digest hashes the NUL-joined parts with SHA256, truncated to 16 hex chars.
func digest(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:derivedIDLength]
}

// IPHasher produces keyed one-way digests of client IP addresses.
type IPHasher struct {
	key []byte
}

// NewIPHasher creates an IPHasher keyed by salt.
// The salt is stretched to a 32-byte BLAKE2b key so any length is accepted.
func NewIPHasher(salt string) *IPHasher {
	key := sha256.Sum256([]byte(salt))
	return &IPHasher{key: key[:]}
}

// Hash returns the hex encoded keyed BLAKE2b-256 digest of ip.
func (h *IPHasher) Hash(ip string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// Only possible with a key longer than 64 bytes.
		sum := blake2b.Sum256(append(h.key, ip...))
		return hex.EncodeToString(sum[:])
	}
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}
