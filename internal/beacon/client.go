package beacon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storage keys.
const (
	keyVisitorID    = "pd_vid"
	keySessionID    = "pd_sid"
	keyLastActivity = "pd_last"
	keyPageviews    = "pd_pv"
)

// Options injects the collaborators of a Client. Zero values get defaults.
type Options struct {
	// Durable holds the visitor id across sessions.
	Durable Store
	// Session holds the session id, last activity and pageview count.
	Session    Store
	Transports []Transport
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
}

// State is a snapshot of the client for debugging.
type State struct {
	SiteID       string
	VisitorID    string
	SessionID    string
	Pageviews    int
	Initialized  bool
	Unloaded     bool
	LastActivity time.Time
	Config       Config
}

// Client reports page activity to the hit endpoint. Every public method is
// safe for concurrent use and never blocks on the network.
type Client struct {
	mu  sync.Mutex
	cfg Config
	env Environment

	durable    Store
	session    Store
	transports []Transport
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	siteID       string
	visitorID    string
	sessionID    string
	lastActivity time.Time
	sessionStart bool
	pageviews    int

	initialized bool
	unloaded    bool
	closed      bool
	startedAt   time.Time
	timer       *time.Timer
	inflight    sync.WaitGroup
}

// New creates a Client. The site id and visitor id are resolved once here.
func New(cfg Config, env Environment, opts Options) *Client {
	if opts.Durable == nil {
		opts.Durable = NewMemoryStore()
	}
	if opts.Session == nil {
		opts.Session = NewMemoryStore()
	}
	if opts.Transports == nil {
		opts.Transports = DefaultTransports(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	cfg = cfg.normalize()
	c := &Client{
		cfg:        cfg,
		env:        env,
		durable:    opts.Durable,
		session:    opts.Session,
		transports: opts.Transports,
		logger:     opts.Logger.With("component", "beacon.client"),
		now:        opts.Now,
		newID:      opts.NewID,
		siteID:     ResolveSiteID(cfg, env),
	}
	c.visitorID = c.loadVisitorID()
	c.loadSession()
	return c
}

// Init schedules the initial pageview. Later calls are no-ops.
func (c *Client) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized || c.closed {
		return
	}
	c.initialized = true
	c.startedAt = c.now()
	c.timer = time.AfterFunc(c.cfg.PageviewDelay, c.TrackPageview)
	c.debugLocked("beacon initialized", "site_id", c.siteID)
}

// TrackPageview sends a pageview.
func (c *Client) TrackPageview() {
	c.send(EventPageview, nil)
}

// TrackEvent sends a named custom event.
func (c *Client) TrackEvent(name string, data map[string]any) {
	name = strings.TrimSpace(name)
	if name == "" {
		c.debug("event name is required")
		return
	}
	c.send(EventCustom, func(p *Payload) {
		p.EventName = name
		p.EventData = data
	})
}

// OnVisibilityChange records the page becoming visible or hidden. Regaining
// visibility re-validates the session, rotating it after a long absence.
func (c *Client) OnVisibilityChange(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if visible {
		c.touchSessionLocked(now)
		return
	}
	c.lastActivity = now
	c.persistLocked(keyLastActivity, strconv.FormatInt(now.UnixMilli(), 10))
}

// Unload sends one unload event carrying the seconds since Init.
func (c *Client) Unload() {
	c.mu.Lock()
	if !c.cfg.TrackUnload || c.unloaded {
		c.mu.Unlock()
		return
	}
	c.unloaded = true
	start := c.startedAt
	c.mu.Unlock()

	c.send(EventUnload, func(p *Payload) {
		if !start.IsZero() {
			p.SessionDuration = int64(c.now().Sub(start) / time.Second)
		}
	})
}

// Configure mutates the configuration at runtime. A new SiteID replaces the
// resolved one; other discovery is not repeated.
func (c *Client) Configure(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.cfg.SiteID
	fn(&c.cfg)
	c.cfg = c.cfg.normalize()
	if c.cfg.SiteID != "" && c.cfg.SiteID != previous {
		c.siteID = c.cfg.SiteID
	}
}

// SetDebug toggles debug logging.
func (c *Client) SetDebug(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Debug = enabled
}

// State returns a snapshot of the client.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		SiteID:       c.siteID,
		VisitorID:    c.visitorID,
		SessionID:    c.sessionID,
		Pageviews:    c.pageviews,
		Initialized:  c.initialized,
		Unloaded:     c.unloaded,
		LastActivity: c.lastActivity,
		Config:       c.cfg,
	}
}

// Close cancels a pending initial pageview and waits for in-flight sends.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send builds the payload under the lock and fans it out to every transport.
func (c *Client) send(eventType string, fill func(*Payload)) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cfg.RespectDNT && c.env.DoNotTrack {
		c.debugLocked("do not track is set, skipping", "event_type", eventType)
		c.mu.Unlock()
		return
	}
	if c.siteID == "" {
		c.debugLocked("no site id, skipping", "event_type", eventType)
		c.mu.Unlock()
		return
	}

	now := c.now()
	c.touchSessionLocked(now)
	if eventType == EventPageview {
		c.pageviews++
		c.persistLocked(keyPageviews, strconv.Itoa(c.pageviews))
	}

	referrer := c.env.Referrer
	if referrer == "" {
		referrer = "direct"
	}
	p := Payload{
		SiteID:       c.siteID,
		VisitorID:    c.visitorID,
		SessionID:    c.sessionID,
		EventType:    eventType,
		URL:          c.env.URL,
		Referrer:     referrer,
		Timestamp:    now.UnixMilli(),
		Screen:       c.env.Screen(),
		Language:     c.env.Language,
		SessionStart: c.sessionStart,
		Pageviews:    c.pageviews,
		UserAgent:    c.env.UserAgent,
	}
	c.sessionStart = false
	if fill != nil {
		fill(&p)
	}

	endpoint := c.cfg.HitURL(url.PathEscape(c.siteID))
	transports := c.transports
	c.inflight.Add(len(transports))
	c.mu.Unlock()

	for _, t := range transports {
		go func(t Transport) {
			defer c.inflight.Done()
			if err := t.Send(context.Background(), endpoint, p); err != nil {
				c.debug("transport failed", "transport", t.Name(), "error", err)
				return
			}
			c.debug("hit sent", "transport", t.Name(), "event_type", p.EventType)
		}(t)
	}
}

// loadVisitorID reads or creates the durable visitor id, falling back to
// the fingerprint when durable storage cannot be used.
func (c *Client) loadVisitorID() string {
	id, ok, err := c.durable.Get(keyVisitorID)
	if err != nil {
		c.logStorageError("read visitor id", err)
		return Fingerprint(c.env)
	}
	if ok && id != "" {
		return id
	}

	id = c.newID()
	if err := c.durable.Set(keyVisitorID, id); err != nil {
		c.logStorageError("store visitor id", err)
		return Fingerprint(c.env)
	}
	return id
}

// loadSession restores session state left by a previous client.
func (c *Client) loadSession() {
	if id, ok, err := c.session.Get(keySessionID); err == nil && ok {
		c.sessionID = id
	}
	if raw, ok, err := c.session.Get(keyLastActivity); err == nil && ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.lastActivity = time.UnixMilli(ms)
		}
	}
	if raw, ok, err := c.session.Get(keyPageviews); err == nil && ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			c.pageviews = n
		}
	}
}

// touchSessionLocked rotates the session when it is missing or idle longer
// than the timeout, then records activity at now.
func (c *Client) touchSessionLocked(now time.Time) {
	if c.sessionID == "" || c.lastActivity.IsZero() || now.Sub(c.lastActivity) > c.cfg.SessionTimeout {
		c.sessionID = c.newID()
		c.pageviews = 0
		c.sessionStart = true
		c.persistLocked(keySessionID, c.sessionID)
		c.persistLocked(keyPageviews, "0")
		c.debugLocked("session started", "session_id", c.sessionID)
	}
	c.lastActivity = now
	c.persistLocked(keyLastActivity, strconv.FormatInt(now.UnixMilli(), 10))
}

// persistLocked writes session state. In-memory state stays authoritative
// when the session store fails.
func (c *Client) persistLocked(key, value string) {
	if err := c.session.Set(key, value); err != nil {
		c.debugLocked("session store write failed", "key", key, "error", err)
	}
}

func (c *Client) logStorageError(op string, err error) {
	if errors.Is(err, ErrStorageUnavailable) {
		c.logger.Debug(op+": durable storage unavailable, using fingerprint")
		return
	}
	c.logger.Warn(op+" failed", "error", err)
}

func (c *Client) debug(msg string, args ...any) {
	c.mu.Lock()
	enabled := c.cfg.Debug
	c.mu.Unlock()
	if enabled {
		c.logger.Info(msg, args...)
	}
}

func (c *Client) debugLocked(msg string, args ...any) {
	if c.cfg.Debug {
		c.logger.Info(msg, args...)
	}
}
