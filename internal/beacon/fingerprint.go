package beacon

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Fingerprint derives a deterministic visitor id from page facts. It is only
// used when durable storage is unavailable, so it may differ from a
// previously stored id for the same browser.
func Fingerprint(env Environment) string {
	parts := []string{
		env.UserAgent,
		env.Language,
		env.Screen(),
		strconv.Itoa(env.TimezoneOffset),
		strconv.FormatBool(env.CookiesEnabled),
		strconv.FormatBool(env.DoNotTrack),
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.Join(parts, "|")))
	return "fp_" + strconv.FormatUint(uint64(h.Sum32()), 36)
}
