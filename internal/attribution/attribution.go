// Package attribution builds the install profile attached to the bootstrap
// probe and reports a one-shot conversion event to the attribution endpoint.
package attribution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"chickremind/internal/settings"

	"github.com/google/uuid"
)

// Profile identifies this install to the config and attribution endpoints.
type Profile struct {
	DeviceID        string    `json:"device_id"`
	AppID           string    `json:"app_id"`
	AppVersion      string    `json:"app_version"`
	Platform        string    `json:"platform"`
	FirstLaunchAt   time.Time `json:"first_launch_at"`
	Timezone        string    `json:"timezone"`
	NotifyConsent   bool      `json:"notify_consent"`
	TrackingConsent bool      `json:"tracking_consent"`
}

// Tracker loads and reports attribution profiles.
type Tracker struct {
	store    *settings.Store
	endpoint string
	appID    string
	version  string
	client   *http.Client
	logger   *log.Logger
}

// New creates a tracker. endpoint may be empty, in which case Report is a no-op.
func New(store *settings.Store, endpoint, appID, version string, logger *log.Logger) *Tracker {
	return &Tracker{
		store:    store,
		endpoint: endpoint,
		appID:    appID,
		version:  version,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Profile returns the persisted install profile, minting the device ID and
// first-launch timestamp on the first call.
func (t *Tracker) Profile(tz *time.Location) (Profile, error) {
	deviceID, err := t.store.Get(settings.KeyDeviceID)
	if err != nil {
		deviceID = uuid.NewString()
		if err := t.store.Set(settings.KeyDeviceID, deviceID); err != nil {
			return Profile{}, fmt.Errorf("persist device id: %w", err)
		}
	}

	firstLaunch, err := t.store.GetTime(settings.KeyFirstLaunchAt)
	if err != nil {
		firstLaunch = time.Now().UTC()
		if err := t.store.SetTime(settings.KeyFirstLaunchAt, firstLaunch); err != nil {
			return Profile{}, fmt.Errorf("persist first launch: %w", err)
		}
	}

	tzName := "Local"
	if tz != nil {
		tzName = tz.String()
	}

	return Profile{
		DeviceID:        deviceID,
		AppID:           t.appID,
		AppVersion:      t.version,
		Platform:        "go",
		FirstLaunchAt:   firstLaunch,
		Timezone:        tzName,
		NotifyConsent:   t.store.GetBool(settings.KeyNotifyConsent),
		TrackingConsent: t.store.GetBool(settings.KeyTrackingConsent),
	}, nil
}

// Report posts a conversion event. Failures are logged, never fatal, and
// nothing is sent unless the user consented to tracking.
func (t *Tracker) Report(ctx context.Context, profile Profile, event string) {
	if t.endpoint == "" || !profile.TrackingConsent {
		return
	}

	payload := struct {
		Profile
		Event string `json:"event"`
	}{Profile: profile, Event: event}

	body, err := json.Marshal(payload)
	if err != nil {
		t.logger.Printf("attribution: marshal event: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		t.logger.Printf("attribution: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Printf("attribution: report %s: %v", event, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		t.logger.Printf("attribution: report %s: status %d", event, resp.StatusCode)
	}
}
