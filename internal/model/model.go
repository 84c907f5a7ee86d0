// Package model holds the gateway's core data types: Application,
// DeviceId, Context, and the input event batch shape.
package model

import (
	"encoding/json"
	"time"
)

// Platform is the SDK platform an event batch arrived from.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
	PlatformUnknown Platform = "unknown"
)

// Application is an immutable registry entry: app-id, optional token,
// and up to three per-platform HMAC keys. Absence of a platform's key
// means that platform cannot be served for this app.
type Application struct {
	AppID         string
	Token         string
	SecretIOS     []byte
	SecretAndroid []byte
	SecretWeb     []byte
	AllowedOrigins []string
}

// KeyFor returns the HMAC key configured for platform, and whether one
// is configured at all.
func (a Application) KeyFor(p Platform) ([]byte, bool) {
	switch p {
	case PlatformIOS:
		return a.SecretIOS, len(a.SecretIOS) > 0
	case PlatformAndroid:
		return a.SecretAndroid, len(a.SecretAndroid) > 0
	case PlatformWeb:
		return a.SecretWeb, len(a.SecretWeb) > 0
	default:
		return nil, false
	}
}

// DeviceId is the (ciphertext, cleartext) pair handed between the
// crypto and resolver layers. Ciphertext is the AEAD-sealed cleartext
// UUID.
type DeviceId struct {
	Ciphertext string
	Cleartext  string
}

// Context is the immutable, per-request view built from headers. It
// is constructed once and passed read-only thereafter.
type Context struct {
	AppID     string
	Platform  Platform
	APIToken  string
	Signature string
	DeviceID  *DeviceId
	IP        string
	Origin    string
}

// EventBatch is the parsed JSON request body.
type EventBatch struct {
	Environment Environment `json:"environment"`
	Device      Device      `json:"device"`
	Events      []Event     `json:"events"`
}

// Environment carries the app identity and client versions.
type Environment struct {
	AppID          string `json:"app_id"`
	AppVersion     string `json:"app_version"`
	SDKVersion     string `json:"sdk_version"`
}

// Device carries the device dimensions reported by the SDK. HasH/HasW
// record whether the client sent h/w at all, since the wire default
// (-1, applied downstream by the enricher) must be distinguishable
// from an explicit 0.
type Device struct {
	IFA             string                 `json:"ifa"`
	TrackingEnabled bool                   `json:"tracking_enabled"`
	Platform        string                 `json:"platform"`
	OSName          string                 `json:"os_name"`
	OSVersion       string                 `json:"os_version"`
	Locale          string                 `json:"locale"`
	Language        string                 `json:"language"`
	H               int                    `json:"h"`
	W               int                    `json:"w"`
	HasH            bool                   `json:"-"`
	HasW            bool                   `json:"-"`
	Extra           map[string]interface{} `json:"extra,omitempty"`
}

// deviceAlias has Device's exact JSON shape, used so UnmarshalJSON can
// decode into it without recursing into itself.
type deviceAlias Device

// UnmarshalJSON decodes a Device and sets HasH/HasW from whether "h"/"w"
// were present as keys in the JSON object, not merely from their value.
func (d *Device) UnmarshalJSON(data []byte) error {
	var alias deviceAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*d = Device(alias)

	var presence map[string]json.RawMessage
	if err := json.Unmarshal(data, &presence); err != nil {
		return err
	}
	_, d.HasH = presence["h"]
	_, d.HasW = presence["w"]
	return nil
}

// Event is a single SDK event.
type Event struct {
	ID             string                 `json:"id"`
	Timestamp      string                 `json:"timestamp"`
	Name           string                 `json:"name"`
	Properties     map[string]interface{} `json:"properties"`
	SessionID      string                 `json:"session_id,omitempty"`
	ExternalUserID string                 `json:"external_user_id,omitempty"`
	ReferenceID    string                 `json:"reference_id,omitempty"`
}

// RegistrationData is attached to the register event's EventResult.
type RegistrationData struct {
	APIToken string `json:"api_token"`
	DeviceID string `json:"device_id"`
}

// EventResult is one per-event ack in the response body.
type EventResult struct {
	ID               string             `json:"id"`
	Status           string             `json:"status"`
	RegistrationData *RegistrationData `json:"registration_data,omitempty"`
}

// BatchResponse is the full JSON response body on success.
type BatchResponse struct {
	EventsStatus []EventResult `json:"events_status"`
}

// StatusSuccess is the only status value the gateway ever emits.
const StatusSuccess = "success"

// NowMillis converts t to epoch milliseconds, the unit of the
// downstream header's created_at field.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
