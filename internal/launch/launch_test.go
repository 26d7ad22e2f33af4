package launch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chickremind/internal/attribution"
	"chickremind/internal/model"
	"chickremind/internal/settings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *settings.Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	if err := db.AutoMigrate(&model.AppSetting{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return settings.New(db)
}

func newTestBootstrap(t *testing.T, store *settings.Store, endpoint, forceMode string) *Bootstrap {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	tracker := attribution.New(store, "", "chickremind-test", "0.0.1", logger)
	return New(store, tracker, endpoint, forceMode, time.UTC, logger)
}

// probeServer answers the bootstrap probe with a fixed JSON body and records
// the request payloads it saw.
func probeServer(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("probe used method %s, want POST", r.Method)
		}
		var profile map[string]any
		if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
			t.Errorf("probe payload not JSON: %v", err)
		}
		if id, ok := profile["device_id"].(string); !ok || id == "" {
			t.Errorf("probe payload missing device_id")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestOrbitAnswerPersistsAndReturnsURL(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	server, _ := probeServer(t, http.StatusOK, `{"mode":"orbit","url":"https://promo.example.com/landing","expires_at":"2030-01-02T15:04:05Z"}`)
	b := newTestBootstrap(t, store, server.URL, "")

	decision, err := b.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Mode != ModeOrbit || decision.URL != "https://promo.example.com/landing" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if b.Phase() != PhaseOrbit {
		t.Fatalf("phase = %s, want orbit", b.Phase())
	}

	if got := store.GetDefault(settings.KeyAppMode, ""); got != ModeOrbit {
		t.Fatalf("persisted mode = %q, want orbit", got)
	}
	if got := store.GetDefault(settings.KeyOrbitURL, ""); got != "https://promo.example.com/landing" {
		t.Fatalf("persisted url = %q", got)
	}
	expiry, err := store.GetTime(settings.KeyOrbitExpiry)
	if err != nil {
		t.Fatalf("persisted expiry missing: %v", err)
	}
	if expiry.Year() != 2030 {
		t.Fatalf("expiry = %v", expiry)
	}
}

func TestOrganicAnswerPersistsReminderMode(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	server, _ := probeServer(t, http.StatusOK, `{"mode":"organic"}`)
	b := newTestBootstrap(t, store, server.URL, "")

	decision, err := b.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Mode != ModeReminder {
		t.Fatalf("mode = %q, want reminder", decision.Mode)
	}
	if got := store.GetDefault(settings.KeyAppMode, ""); got != ModeReminder {
		t.Fatalf("persisted mode = %q, want reminder", got)
	}
}

func TestInvalidOrbitURLDegradesToReminder(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`{"mode":"orbit"}`,
		`{"mode":"orbit","url":""}`,
		`{"mode":"orbit","url":"not a url"}`,
		`{"mode":"orbit","url":"ftp://example.com/x"}`,
		`{"mode":"orbit","url":"/relative/path"}`,
	}
	for _, body := range bodies {
		store := newTestStore(t)
		server, _ := probeServer(t, http.StatusOK, body)
		b := newTestBootstrap(t, store, server.URL, "")

		decision, err := b.Resolve(context.Background())
		if err != nil {
			t.Fatalf("resolve %s: %v", body, err)
		}
		if decision.Mode != ModeReminder {
			t.Fatalf("body %s: mode = %q, want reminder", body, decision.Mode)
		}
	}
}

func TestNon2xxAndMalformedJSONAreOrganic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		body   string
	}{
		{http.StatusForbidden, `{"mode":"orbit","url":"https://x.example.com"}`},
		{http.StatusOK, `{{not json`},
	}
	for _, tc := range cases {
		store := newTestStore(t)
		server, _ := probeServer(t, tc.status, tc.body)
		b := newTestBootstrap(t, store, server.URL, "")

		decision, err := b.Resolve(context.Background())
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if decision.Mode != ModeReminder {
			t.Fatalf("status %d: mode = %q, want reminder", tc.status, decision.Mode)
		}
	}
}

func TestSavedDecisionSkipsProbe(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	server, calls := probeServer(t, http.StatusOK, `{"mode":"organic"}`)

	if err := store.Set(settings.KeyAppMode, ModeOrbit); err != nil {
		t.Fatalf("seed mode: %v", err)
	}
	if err := store.Set(settings.KeyOrbitURL, "https://promo.example.com/saved"); err != nil {
		t.Fatalf("seed url: %v", err)
	}

	b := newTestBootstrap(t, store, server.URL, "")
	decision, err := b.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Mode != ModeOrbit || decision.URL != "https://promo.example.com/saved" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if *calls != 0 {
		t.Fatalf("probe called %d times, want 0", *calls)
	}
}

func TestExpiredOrbitURLReprobes(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	server, calls := probeServer(t, http.StatusOK, `{"mode":"orbit","url":"https://promo.example.com/fresh"}`)

	if err := store.Set(settings.KeyAppMode, ModeOrbit); err != nil {
		t.Fatalf("seed mode: %v", err)
	}
	if err := store.Set(settings.KeyOrbitURL, "https://promo.example.com/stale"); err != nil {
		t.Fatalf("seed url: %v", err)
	}
	if err := store.SetTime(settings.KeyOrbitExpiry, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("seed expiry: %v", err)
	}

	b := newTestBootstrap(t, store, server.URL, "")
	decision, err := b.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.URL != "https://promo.example.com/fresh" {
		t.Fatalf("url = %q, want fresh", decision.URL)
	}
	if *calls != 1 {
		t.Fatalf("probe called %d times, want 1", *calls)
	}
}

func TestNetworkFailureFallsBackToSaved(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	if err := store.Set(settings.KeyAppMode, ModeOrbit); err != nil {
		t.Fatalf("seed mode: %v", err)
	}
	if err := store.Set(settings.KeyOrbitURL, "https://promo.example.com/saved"); err != nil {
		t.Fatalf("seed url: %v", err)
	}
	// Expired saved URL forces a probe; the endpoint is unreachable, so the
	// stale URL is reused rather than flipping to reminder mode.
	if err := store.SetTime(settings.KeyOrbitExpiry, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("seed expiry: %v", err)
	}

	b := newTestBootstrap(t, store, "http://127.0.0.1:1/unreachable", "")
	decision, err := b.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Mode != ModeOrbit || decision.URL != "https://promo.example.com/saved" {
		t.Fatalf("unexpected fallback decision: %+v", decision)
	}
}

func TestNetworkFailureWithNothingSavedDefaultsWithoutPersisting(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	b := newTestBootstrap(t, store, "http://127.0.0.1:1/unreachable", "")

	decision, err := b.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Mode != ModeReminder {
		t.Fatalf("mode = %q, want reminder", decision.Mode)
	}
	if _, err := store.Get(settings.KeyAppMode); err == nil {
		t.Fatalf("mode must not be persisted after a failed probe")
	}
}

func TestForceModeOverrides(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	server, calls := probeServer(t, http.StatusOK, `{"mode":"orbit","url":"https://promo.example.com"}`)

	b := newTestBootstrap(t, store, server.URL, ModeReminder)
	decision, err := b.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Mode != ModeReminder {
		t.Fatalf("mode = %q, want reminder", decision.Mode)
	}
	if *calls != 0 {
		t.Fatalf("probe called %d times, want 0", *calls)
	}
}

func TestValidOrbitURL(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://example.com":      true,
		"http://example.com/p?q=1": true,
		"ftp://example.com":        false,
		"example.com":              false,
		"":                         false,
		"https://":                 false,
	}
	for raw, want := range cases {
		if got := validOrbitURL(raw); got != want {
			t.Fatalf("validOrbitURL(%q) = %v, want %v", raw, got, want)
		}
	}
}
