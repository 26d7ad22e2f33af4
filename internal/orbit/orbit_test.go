package orbit

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestBounceTrackerCap(t *testing.T) {
	t.Parallel()

	tracker := newBounceTracker(3)
	for i := 1; i <= 3; i++ {
		if hops, exceeded := tracker.Bounce(); exceeded {
			t.Fatalf("cap tripped at hop %d", hops)
		}
	}
	if _, exceeded := tracker.Bounce(); !exceeded {
		t.Fatalf("cap should trip on hop 4")
	}
}

func TestBounceTrackerReset(t *testing.T) {
	t.Parallel()

	tracker := newBounceTracker(2)
	tracker.Bounce()
	tracker.Bounce()
	tracker.Reset()

	if got := tracker.Count(); got != 0 {
		t.Fatalf("count after reset = %d, want 0", got)
	}
	if _, exceeded := tracker.Bounce(); exceeded {
		t.Fatalf("cap must not trip right after reset")
	}
}

func TestBounceTrackerDefaultCap(t *testing.T) {
	t.Parallel()

	tracker := newBounceTracker(0)
	for i := 1; i <= 70; i++ {
		if _, exceeded := tracker.Bounce(); exceeded {
			t.Fatalf("default cap tripped early at hop %d", i)
		}
	}
	if _, exceeded := tracker.Bounce(); !exceeded {
		t.Fatalf("default cap should trip on hop 71")
	}
}

func TestCookieCodecRoundTrip(t *testing.T) {
	t.Parallel()

	cookies := []*proto.NetworkCookie{
		{
			Name:     "session",
			Value:    "abc123",
			Domain:   ".promo.example.com",
			Path:     "/",
			Expires:  1900000000,
			HTTPOnly: true,
			Secure:   true,
			SameSite: proto.NetworkCookieSameSiteLax,
		},
		{
			Name:   "pref",
			Value:  "dark",
			Domain: "promo.example.com",
			Path:   "/app",
		},
		nil, // must be skipped
	}

	encoded, err := encodeCookies(cookies)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	params, err := decodeCookies(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(params) != 2 {
		t.Fatalf("decoded %d cookies, want 2", len(params))
	}

	session := params[0]
	if session.Name != "session" || session.Value != "abc123" || session.Domain != ".promo.example.com" {
		t.Fatalf("unexpected session cookie: %+v", session)
	}
	if !session.HTTPOnly || !session.Secure {
		t.Fatalf("session cookie flags lost: %+v", session)
	}
	if session.SameSite != proto.NetworkCookieSameSiteLax {
		t.Fatalf("same-site lost: %q", session.SameSite)
	}
	if float64(session.Expires) != 1900000000 {
		t.Fatalf("expiry lost: %v", session.Expires)
	}
}

func TestDecodeCookiesRejectsCorruptJar(t *testing.T) {
	t.Parallel()

	for _, corrupt := range []string{"{{", "null and void", `{"not":"a list"}`} {
		if _, err := decodeCookies(corrupt); err == nil {
			t.Fatalf("decode of %q should fail", corrupt)
		}
	}
}

func TestDecodeCookiesSkipsNameless(t *testing.T) {
	t.Parallel()

	params, err := decodeCookies(`[{"name":"","value":"x"},{"name":"ok","value":"y"}]`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(params) != 1 || params[0].Name != "ok" {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestStableURL(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://promo.example.com/landing": true,
		"http://promo.example.com":          true,
		"about:blank":                       false,
		"":                                  false,
		"chrome://newtab":                   false,
		"chrome-error://chromewebdata/":     false,
		"data:text/html,hi":                 false,
		"blob:https://x/123":                false,
	}
	for url, want := range cases {
		if got := stableURL(url); got != want {
			t.Fatalf("stableURL(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	if cfg.navTimeout().Seconds() != 30 {
		t.Fatalf("zero nav timeout should default to 30s")
	}
	if cfg.maxPopups() != 8 {
		t.Fatalf("zero popup cap should default to 8")
	}

	def := DefaultConfig()
	if def.BounceCap != 70 {
		t.Fatalf("default bounce cap = %d, want 70", def.BounceCap)
	}
	if !def.Headless {
		t.Fatalf("default config should be headless")
	}
}
