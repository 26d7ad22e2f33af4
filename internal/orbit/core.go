// Package orbit runs the app's embedded-browser takeover mode. A Core owns
// one headless Chrome and a registry of bubbles (the main page plus any
// popups), mirrors the site's cookies into the settings store, and keeps
// navigation within the configured redirect bounce cap.
package orbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"chickremind/internal/settings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// BubbleKind distinguishes the main page from adopted popups.
type BubbleKind string

const (
	BubbleMain  BubbleKind = "main"
	BubblePopup BubbleKind = "popup"
)

// Bubble is one embedded browser page tracked by the core.
type Bubble struct {
	ID        string     `json:"id"`
	TargetID  string     `json:"target_id"`
	Kind      BubbleKind `json:"kind"`
	URL       string     `json:"url,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	page *rod.Page
}

// Config holds orbit runtime settings.
type Config struct {
	Headless   bool
	NavTimeout time.Duration
	BounceCap  int
	MaxPopups  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:   true,
		NavTimeout: 30 * time.Second,
		BounceCap:  70,
		MaxPopups:  8,
	}
}

func (c Config) navTimeout() time.Duration {
	if c.NavTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavTimeout
}

func (c Config) maxPopups() int {
	if c.MaxPopups <= 0 {
		return 8
	}
	return c.MaxPopups
}

// Core owns the browser process and the bubble registry.
type Core struct {
	cfg    Config
	store  *settings.Store
	logger *log.Logger

	mu         sync.RWMutex
	browser    *rod.Browser
	bubbles    map[string]*Bubble // keyed by target ID
	controlURL string
}

// NewCore creates an orbit core. Nothing is launched until Start.
func NewCore(cfg Config, store *settings.Store, logger *log.Logger) *Core {
	return &Core{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		bubbles: make(map[string]*Bubble),
	}
}

// Start launches Chrome and connects to it.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return nil
		}
		c.logger.Printf("orbit: stale browser connection, relaunching")
		_ = c.browser.Close()
		c.browser = nil
		c.bubbles = make(map[string]*Bubble)
	}

	controlURL, err := launcher.New().Headless(c.cfg.Headless).Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	c.browser = browser
	c.controlURL = controlURL
	return nil
}

// Browser returns the connected browser, or nil before Start.
func (c *Core) Browser() *rod.Browser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.browser
}

// Shutdown closes all bubbles and the browser.
func (c *Core) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for targetID, bubble := range c.bubbles {
		if bubble.page != nil {
			_ = bubble.page.Close()
		}
		delete(c.bubbles, targetID)
	}

	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	c.controlURL = ""
	return err
}

// OpenMain creates and registers the main bubble at url.
func (c *Core) OpenMain(ctx context.Context, url string) (*Bubble, error) {
	c.mu.RLock()
	browser := c.browser
	c.mu.RUnlock()
	if browser == nil {
		return nil, errors.New("orbit core not started")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create main bubble: %w", err)
	}

	if err := c.RestoreCookies(page); err != nil {
		c.logger.Printf("orbit: cookie restore skipped: %v", err)
	}

	bubble := c.adopt(page, BubbleMain, url)
	if err := page.Context(ctx).Timeout(c.cfg.navTimeout()).Navigate(url); err != nil {
		return bubble, fmt.Errorf("navigate main bubble: %w", err)
	}
	return bubble, nil
}

// adopt registers a page as a tracked bubble.
func (c *Core) adopt(page *rod.Page, kind BubbleKind, url string) *Bubble {
	bubble := &Bubble{
		ID:        uuid.NewString(),
		TargetID:  string(page.TargetID),
		Kind:      kind,
		URL:       url,
		CreatedAt: time.Now(),
		page:      page,
	}

	c.mu.Lock()
	c.bubbles[bubble.TargetID] = bubble
	c.mu.Unlock()
	return bubble
}

// release drops a bubble from the registry, returning it if known.
func (c *Core) release(targetID string) *Bubble {
	c.mu.Lock()
	defer c.mu.Unlock()
	bubble, ok := c.bubbles[targetID]
	if !ok {
		return nil
	}
	delete(c.bubbles, targetID)
	return bubble
}

// Bubbles returns metadata for all tracked bubbles.
func (c *Core) Bubbles() []Bubble {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Bubble, 0, len(c.bubbles))
	for _, b := range c.bubbles {
		copied := *b
		copied.page = nil
		result = append(result, copied)
	}
	return result
}

func (c *Core) popupCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, b := range c.bubbles {
		if b.Kind == BubblePopup {
			count++
		}
	}
	return count
}

// MirrorCookies snapshots the page's cookies into the settings store.
func (c *Core) MirrorCookies(page *rod.Page) error {
	res, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return fmt.Errorf("get cookies: %w", err)
	}

	encoded, err := encodeCookies(res.Cookies)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return c.store.Set(settings.KeyOrbitCookies, encoded)
}

// RestoreCookies loads the mirrored cookie jar into a fresh page. A corrupt
// stored jar is discarded rather than treated as fatal.
func (c *Core) RestoreCookies(page *rod.Page) error {
	stored, err := c.store.Get(settings.KeyOrbitCookies)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return nil
		}
		return err
	}

	params, err := decodeCookies(stored)
	if err != nil {
		c.logger.Printf("orbit: discarding corrupt cookie jar: %v", err)
		return c.store.Delete(settings.KeyOrbitCookies)
	}
	if len(params) == 0 {
		return nil
	}
	return page.SetCookies(params)
}

// storedCookie is the settings-store representation of one cookie.
type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

func encodeCookies(cookies []*proto.NetworkCookie) (string, error) {
	stored := make([]storedCookie, 0, len(cookies))
	for _, cookie := range cookies {
		if cookie == nil {
			continue
		}
		stored = append(stored, storedCookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  float64(cookie.Expires),
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
			SameSite: string(cookie.SameSite),
		})
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeCookies(encoded string) ([]*proto.NetworkCookieParam, error) {
	var stored []storedCookie
	if err := json.Unmarshal([]byte(encoded), &stored); err != nil {
		return nil, err
	}

	params := make([]*proto.NetworkCookieParam, 0, len(stored))
	for _, cookie := range stored {
		if cookie.Name == "" {
			continue
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  proto.TimeSinceEpoch(cookie.Expires),
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
			SameSite: proto.NetworkCookieSameSite(cookie.SameSite),
		})
	}
	return params, nil
}
