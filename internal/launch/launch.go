// Package launch decides on startup whether the app runs as the reminder
// service or takes over as the embedded browser ("orbit" mode). The decision
// comes from a remote config endpoint and is persisted so later launches
// skip the probe while the decision is still valid.
package launch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"chickremind/internal/attribution"
	"chickremind/internal/settings"
)

// Phase tracks where the bootstrap currently is.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProbing
	PhaseReminder
	PhaseOrbit
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProbing:
		return "probing"
	case PhaseReminder:
		return "reminder"
	case PhaseOrbit:
		return "orbit"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Mode is the persisted value of the app.mode setting.
const (
	ModeReminder = "reminder"
	ModeOrbit    = "orbit"
)

// Decision is the outcome of the bootstrap.
type Decision struct {
	Mode string
	URL  string
}

// probeResponse is the config endpoint's reply.
type probeResponse struct {
	Mode      string `json:"mode"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// Bootstrap resolves the launch mode.
type Bootstrap struct {
	store     *settings.Store
	tracker   *attribution.Tracker
	endpoint  string
	forceMode string
	tz        *time.Location
	client    *http.Client
	logger    *log.Logger
	now       func() time.Time

	phase Phase
}

// New creates a bootstrap against the given config endpoint. forceMode, when
// set to "reminder" or "orbit", short-circuits the probe (debug override).
func New(store *settings.Store, tracker *attribution.Tracker, endpoint, forceMode string, tz *time.Location, logger *log.Logger) *Bootstrap {
	return &Bootstrap{
		store:     store,
		tracker:   tracker,
		endpoint:  endpoint,
		forceMode: forceMode,
		tz:        tz,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
		now:       time.Now,
		phase:     PhaseIdle,
	}
}

// Phase returns the current bootstrap phase.
func (b *Bootstrap) Phase() Phase {
	return b.phase
}

// Resolve decides the launch mode. The persisted decision wins while valid;
// otherwise the config endpoint is probed and its answer persisted. On
// network failure the last persisted decision is reused, and with nothing
// persisted the app defaults to reminder mode without recording it, so the
// next launch probes again.
func (b *Bootstrap) Resolve(ctx context.Context) (Decision, error) {
	switch b.forceMode {
	case ModeReminder:
		b.phase = PhaseReminder
		return Decision{Mode: ModeReminder}, nil
	case ModeOrbit:
		if saved, ok := b.savedOrbit(); ok {
			b.phase = PhaseOrbit
			return saved, nil
		}
		b.logger.Printf("launch: FORCE_MODE=orbit but no saved orbit URL, probing")
	}

	if decision, ok := b.savedDecision(); ok {
		b.phase = phaseFor(decision.Mode)
		b.logger.Printf("launch: using saved decision %s", decision.Mode)
		return decision, nil
	}

	if b.endpoint == "" {
		b.phase = PhaseReminder
		return Decision{Mode: ModeReminder}, nil
	}

	b.phase = PhaseProbing
	resp, err := b.probe(ctx)
	if err != nil {
		b.logger.Printf("launch: probe failed: %v", err)
		return b.fallback()
	}

	decision := b.commit(resp)
	b.phase = phaseFor(decision.Mode)
	return decision, nil
}

// savedDecision returns the persisted decision when it is still usable.
// An expired orbit decision is not usable and forces a re-probe.
func (b *Bootstrap) savedDecision() (Decision, bool) {
	mode, err := b.store.Get(settings.KeyAppMode)
	if err != nil {
		return Decision{}, false
	}
	if mode == ModeReminder {
		return Decision{Mode: ModeReminder}, true
	}
	if mode == ModeOrbit {
		return b.savedOrbit()
	}
	return Decision{}, false
}

// savedOrbit returns the saved orbit decision unless the URL is missing or
// the expiry has passed.
func (b *Bootstrap) savedOrbit() (Decision, bool) {
	orbitURL, err := b.store.Get(settings.KeyOrbitURL)
	if err != nil || orbitURL == "" {
		return Decision{}, false
	}
	if expiry, err := b.store.GetTime(settings.KeyOrbitExpiry); err == nil && b.now().After(expiry) {
		b.logger.Printf("launch: saved orbit URL expired at %s", expiry.Format(time.RFC3339))
		return Decision{}, false
	}
	return Decision{Mode: ModeOrbit, URL: orbitURL}, true
}

// probe posts the install profile to the config endpoint and decodes the reply.
func (b *Bootstrap) probe(ctx context.Context) (*probeResponse, error) {
	profile, err := b.tracker.Profile(b.tz)
	if err != nil {
		return nil, fmt.Errorf("build profile: %w", err)
	}

	body, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe config endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A reachable endpoint that refuses the probe is an organic answer,
		// not a network failure.
		b.logger.Printf("launch: probe returned status %d, treating as organic", resp.StatusCode)
		return &probeResponse{Mode: "organic"}, nil
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read probe response: %w", err)
	}

	var decoded probeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		b.logger.Printf("launch: malformed probe response, treating as organic: %v", err)
		return &probeResponse{Mode: "organic"}, nil
	}

	go func() {
		reportCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.tracker.Report(reportCtx, profile, "launch_probe")
	}()

	return &decoded, nil
}

// commit persists the probe's answer and returns the decision. Anything that
// is not a well-formed orbit instruction degrades to reminder mode.
func (b *Bootstrap) commit(resp *probeResponse) Decision {
	if resp.Mode == ModeOrbit && validOrbitURL(resp.URL) {
		if err := b.store.Set(settings.KeyAppMode, ModeOrbit); err != nil {
			b.logger.Printf("launch: persist mode: %v", err)
		}
		if err := b.store.Set(settings.KeyOrbitURL, resp.URL); err != nil {
			b.logger.Printf("launch: persist orbit url: %v", err)
		}
		if expiry, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			if err := b.store.SetTime(settings.KeyOrbitExpiry, expiry); err != nil {
				b.logger.Printf("launch: persist orbit expiry: %v", err)
			}
		} else {
			_ = b.store.Delete(settings.KeyOrbitExpiry)
		}
		b.logger.Printf("launch: orbit mode, url=%s", resp.URL)
		return Decision{Mode: ModeOrbit, URL: resp.URL}
	}

	if resp.Mode == ModeOrbit {
		b.logger.Printf("launch: orbit answer with invalid url %q, degrading to reminder", resp.URL)
	}
	if err := b.store.Set(settings.KeyAppMode, ModeReminder); err != nil {
		b.logger.Printf("launch: persist mode: %v", err)
	}
	return Decision{Mode: ModeReminder}
}

// fallback reuses the last persisted decision after a probe failure. With
// the endpoint unreachable a stale orbit URL is still preferred over
// flipping modes; only a launch with nothing saved defaults to reminder.
func (b *Bootstrap) fallback() (Decision, error) {
	if mode, err := b.store.Get(settings.KeyAppMode); err == nil && mode == ModeOrbit {
		if orbitURL, err := b.store.Get(settings.KeyOrbitURL); err == nil && orbitURL != "" {
			b.phase = PhaseOrbit
			b.logger.Printf("launch: probe unreachable, reusing saved orbit url")
			return Decision{Mode: ModeOrbit, URL: orbitURL}, nil
		}
	}
	b.phase = PhaseReminder
	return Decision{Mode: ModeReminder}, nil
}

func phaseFor(mode string) Phase {
	if mode == ModeOrbit {
		return PhaseOrbit
	}
	return PhaseReminder
}

// validOrbitURL accepts only absolute http(s) URLs with a host.
func validOrbitURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
