package orbit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"chickremind/internal/settings"

	"github.com/go-rod/rod/lib/proto"
)

// bounceTracker counts server-side redirect hops in the current navigation
// chain. It is safe for concurrent use by the CDP event handlers.
type bounceTracker struct {
	mu    sync.Mutex
	cap   int
	count int
}

func newBounceTracker(cap int) *bounceTracker {
	if cap <= 0 {
		cap = 70
	}
	return &bounceTracker{cap: cap}
}

// Bounce records one redirect hop and reports whether the cap is exceeded.
func (t *bounceTracker) Bounce() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	return t.count, t.count > t.cap
}

// Reset clears the hop count after a stable load.
func (t *bounceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count = 0
}

func (t *bounceTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Navigator drives the main bubble: it follows the entry URL, trips the
// bounce cap on runaway redirect chains, and records each stable load as the
// fallback URL for the next one.
type Navigator struct {
	core     *Core
	store    *settings.Store
	tracker  *bounceTracker
	logger   *log.Logger
	entryURL string

	mu        sync.Mutex
	reloading bool
}

// NewNavigator creates a navigator over core.
func NewNavigator(core *Core, store *settings.Store, logger *log.Logger) *Navigator {
	return &Navigator{
		core:    core,
		store:   store,
		tracker: newBounceTracker(core.cfg.BounceCap),
		logger:  logger,
	}
}

// Run opens the main bubble at entryURL, wires the navigation event stream,
// and blocks until ctx is cancelled.
func (n *Navigator) Run(ctx context.Context, entryURL string) error {
	n.entryURL = entryURL

	bubble, err := n.core.OpenMain(ctx, entryURL)
	if err != nil && bubble == nil {
		return err
	}
	if err != nil {
		// The page exists but the first navigation failed; fall back to the
		// last URL that loaded cleanly on a previous run.
		n.logger.Printf("orbit: entry navigation failed, reloading last stable: %v", err)
		n.reloadLastStable(ctx, bubble)
	}

	n.watch(ctx, bubble)

	<-ctx.Done()
	return ctx.Err()
}

// watch subscribes to the CDP events that drive the bounce cap and the
// cookie mirror.
func (n *Navigator) watch(ctx context.Context, bubble *Bubble) {
	page := bubble.page

	wait := page.Context(ctx).EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.RedirectResponse == nil || ev.Type != proto.NetworkResourceTypeDocument {
				return
			}
			hops, exceeded := n.tracker.Bounce()
			if !exceeded {
				return
			}
			n.logger.Printf("orbit: bounce cap hit after %d hops at %s", hops, ev.Request.URL)
			n.reloadLastStable(ctx, bubble)
		},
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame.ParentID != "" {
				return // iframe navigations do not move the bubble
			}
			n.core.mu.Lock()
			if tracked, ok := n.core.bubbles[bubble.TargetID]; ok {
				tracked.URL = ev.Frame.URL
			}
			n.core.mu.Unlock()
		},
		func(ev *proto.PageLoadEventFired) {
			n.onStableLoad(bubble)
		},
	)
	go wait()
}

// onStableLoad runs after the page settles: the redirect counter resets, the
// landed URL becomes the fallback, and cookies are mirrored to storage.
func (n *Navigator) onStableLoad(bubble *Bubble) {
	n.tracker.Reset()

	n.mu.Lock()
	n.reloading = false
	n.mu.Unlock()

	info, err := bubble.page.Info()
	if err != nil {
		n.logger.Printf("orbit: page info: %v", err)
		return
	}
	if !stableURL(info.URL) {
		return
	}

	if err := n.store.Set(settings.KeyLastStableURL, info.URL); err != nil {
		n.logger.Printf("orbit: persist stable url: %v", err)
	}
	if err := n.core.MirrorCookies(bubble.page); err != nil {
		n.logger.Printf("orbit: mirror cookies: %v", err)
	}
	n.logger.Printf("orbit: stable at %s", info.URL)
}

// reloadLastStable forces the bubble back to the last URL that loaded
// cleanly, or the entry URL when none has been recorded yet.
func (n *Navigator) reloadLastStable(ctx context.Context, bubble *Bubble) {
	n.mu.Lock()
	if n.reloading {
		n.mu.Unlock()
		return
	}
	n.reloading = true
	n.mu.Unlock()

	n.tracker.Reset()
	target := n.store.GetDefault(settings.KeyLastStableURL, n.entryURL)

	go func() {
		err := bubble.page.Context(ctx).Timeout(n.core.cfg.navTimeout()).Navigate(target)
		if err != nil {
			n.logger.Printf("orbit: reload %s: %v", target, err)
			n.mu.Lock()
			n.reloading = false
			n.mu.Unlock()
		}
	}()
}

// LastStableURL returns the recorded fallback URL, if any.
func (n *Navigator) LastStableURL() (string, error) {
	value, err := n.store.Get(settings.KeyLastStableURL)
	if err != nil {
		return "", fmt.Errorf("last stable url: %w", err)
	}
	return value, nil
}

// stableURL filters out internal pages that must never become the fallback.
func stableURL(url string) bool {
	if url == "" || url == "about:blank" {
		return false
	}
	for _, prefix := range []string{"chrome://", "chrome-error://", "devtools://", "data:", "blob:"} {
		if strings.HasPrefix(url, prefix) {
			return false
		}
	}
	return true
}
