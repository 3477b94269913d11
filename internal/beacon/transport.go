package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds a single transport request.
const DefaultHTTPTimeout = 10 * time.Second

// Transport delivers a payload to the hit endpoint. Errors are reported to
// the caller, which only logs them.
type Transport interface {
	Name() string
	Send(ctx context.Context, endpoint string, p Payload) error
}

// NewHTTPClient returns the client shared by the default transports.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// DefaultTransports returns the beacon, pixel and fetch transports.
func DefaultTransports(client *http.Client) []Transport {
	if client == nil {
		client = NewHTTPClient()
	}
	return []Transport{
		&BeaconTransport{Client: client},
		&PixelTransport{Client: client},
		&FetchTransport{Client: client},
	}
}

// TransportsByName builds the named transports in order.
func TransportsByName(names []string, client *http.Client) ([]Transport, error) {
	if client == nil {
		client = NewHTTPClient()
	}
	transports := make([]Transport, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "beacon":
			transports = append(transports, &BeaconTransport{Client: client})
		case "pixel":
			transports = append(transports, &PixelTransport{Client: client})
		case "fetch":
			transports = append(transports, &FetchTransport{Client: client})
		case "":
		default:
			return nil, fmt.Errorf("unknown transport %q", name)
		}
	}
	return transports, nil
}

// BeaconTransport posts the payload as JSON with a text/plain content type,
// the way navigator.sendBeacon does.
type BeaconTransport struct {
	Client *http.Client
}

// Name implements Transport.
func (t *BeaconTransport) Name() string { return "beacon" }

// Send implements Transport.
func (t *BeaconTransport) Send(ctx context.Context, endpoint string, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	return do(t.Client, req, p)
}

// PixelTransport requests the tracking pixel with the payload in the query string.
type PixelTransport struct {
	Client *http.Client
}

// Name implements Transport.
func (t *PixelTransport) Name() string { return "pixel" }

// Send implements Transport.
func (t *PixelTransport) Send(ctx context.Context, endpoint string, p Payload) error {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+sep+p.Values().Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "image/gif,image/*")
	return do(t.Client, req, p)
}

// FetchTransport posts the payload as a form over a keep-alive connection.
type FetchTransport struct {
	Client *http.Client
}

// Name implements Transport.
func (t *FetchTransport) Name() string { return "fetch" }

// Send implements Transport.
func (t *FetchTransport) Send(ctx context.Context, endpoint string, p Payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(p.Values().Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return do(t.Client, req, p)
}

// do sends req as the page's user agent and drains the body so the
// connection can be reused.
func do(client *http.Client, req *http.Request, p Payload) error {
	if client == nil {
		client = http.DefaultClient
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
