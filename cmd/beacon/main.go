// Package main sends Pagedrop hits from the command line. It is handy for
// smoke-testing an ingestion deployment and for tracking CLI usage.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pagedrop/pagedrop/internal/beacon"
)

// cliUserAgent identifies CLI hits. It must not match the server's bot
// patterns.
const cliUserAgent = "pagedrop-cli/0.1"

type options struct {
	site     string
	url      string
	referrer string
	event    string
	data     string
	unload   bool
	timeout  time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.site, "site", "", "Site id (overrides PAGEDROP_SITE_ID)")
	flag.StringVar(&opts.url, "url", "", "Page URL to report")
	flag.StringVar(&opts.referrer, "referrer", "", "Referrer URL")
	flag.StringVar(&opts.event, "event", "", "Custom event name; sends an event instead of a pageview")
	flag.StringVar(&opts.data, "data", "", "Custom event data as a JSON object")
	flag.BoolVar(&opts.unload, "unload", false, "Also send an unload event")
	flag.DurationVar(&opts.timeout, "timeout", 15*time.Second, "Max time to wait for delivery")
	flag.Parse()

	cfg, err := beacon.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, opts, logger); err != nil {
		logger.Error("beacon failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg beacon.Config, opts options, logger *slog.Logger) error {
	if opts.site != "" {
		cfg.SiteID = opts.site
	}
	if cfg.SiteID == "" {
		return fmt.Errorf("site id is required (-site or PAGEDROP_SITE_ID)")
	}

	data, err := parseData(opts.data)
	if err != nil {
		return err
	}

	transports, err := beacon.TransportsByName(cfg.Transports, beacon.NewHTTPClient())
	if err != nil {
		return err
	}
	if len(transports) == 0 {
		return fmt.Errorf("no transports configured")
	}

	durable, session := stores(logger)
	client := beacon.New(cfg, environment(opts), beacon.Options{
		Durable:    durable,
		Session:    session,
		Transports: transports,
		Logger:     logger,
	})

	if opts.event != "" {
		client.TrackEvent(opts.event, data)
	} else {
		client.TrackPageview()
	}
	if opts.unload {
		client.Unload()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		return fmt.Errorf("waiting for delivery: %w", err)
	}

	state := client.State()
	logger.Info("hit sent",
		"site_id", state.SiteID,
		"visitor_id", state.VisitorID,
		"session_id", state.SessionID,
	)
	return nil
}

func parseData(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("invalid -data: %w", err)
	}
	return data, nil
}

func environment(opts options) beacon.Environment {
	return beacon.Environment{
		URL:            opts.url,
		Referrer:       opts.referrer,
		UserAgent:      cliUserAgent,
		Language:       language(os.Getenv("LANG")),
		CookiesEnabled: true,
		DoNotTrack:     os.Getenv("DNT") == "1",
	}
}

// language turns a POSIX locale such as en_US.UTF-8 into en-US.
func language(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "C" || locale == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(locale, "_", "-")
}

// stores keeps identity under the user config directory, falling back to
// memory when there is none.
func stores(logger *slog.Logger) (beacon.Store, beacon.Store) {
	dir, err := os.UserConfigDir()
	if err != nil {
		logger.Debug("no user config dir, identity will not persist", "error", err)
		return beacon.NewMemoryStore(), beacon.NewMemoryStore()
	}
	dir = filepath.Join(dir, "pagedrop")
	return beacon.NewFileStore(filepath.Join(dir, "visitor.json")),
		beacon.NewFileStore(filepath.Join(dir, "session.json"))
}
