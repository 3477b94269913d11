package analytics

import (
	"os"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewConsumerID names this process within the writer group as
// host-pid-suffix. The random suffix keeps a restarted process from
// inheriting the pending entries of its previous run under the same name.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "writer"
	}
	host = strings.ReplaceAll(host, " ", "_")
	suffix := strings.ToLower(ulid.Make().String()[ulid.EncodedSize-8:])
	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + suffix
}
