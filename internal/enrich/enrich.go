// Package enrich implements the enrichment stage between the resolver
// and the dual-bus publisher: IP hashing/geolocation, language and
// dimension defaults, property flattening, stable event ordering, and
// the legacy event-name compatibility shim.
package enrich

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sdkgateway/ingress/internal/geoip"
	"github.com/sdkgateway/ingress/internal/gwcrypto"
	"github.com/sdkgateway/ingress/internal/model"
	"github.com/sdkgateway/ingress/internal/sdkproto"
	"go.uber.org/zap"
)

// legacyDeeplinkName and canonicalDeeplinkName implement the
// compatibility rename shim carried over from the original service.
const (
	legacyDeeplinkName    = "d360_deeplink_opened"
	canonicalDeeplinkName = "d360_report_deeplink_opened"

	batchType = "events.SDKEventBatch"
)

// Enricher turns a validated, resolved request into the downstream
// wire-format batch.
type Enricher struct {
	geo      geoip.CountryLookup
	feedName string
	log      *zap.Logger
}

// New builds an Enricher. geo may be geoip.Noop{} when no database is
// configured.
func New(geo geoip.CountryLookup, feedName string, log *zap.Logger) *Enricher {
	if geo == nil {
		geo = geoip.Noop{}
	}
	return &Enricher{geo: geo, feedName: feedName, log: log}
}

// Enrich builds the protobuf-shaped Batch ready for sdkproto.Encode.
// now is the header's created_at instant; recipientID is the
// device-id cleartext when one is known (empty otherwise).
func (e *Enricher) Enrich(now time.Time, appID, ip, recipientID string, batch *model.EventBatch) sdkproto.Batch {
	device := e.enrichDevice(ip, batch.Device)

	events := make([]sdkproto.Event, 0, len(batch.Events))
	for _, ev := range batch.Events {
		events = append(events, e.enrichEvent(ev))
	}
	sortEventsStable(events)

	return sdkproto.Batch{
		Header: sdkproto.Header{
			CreatedAt:   now.UnixMilli(),
			Source:      appID,
			Type:        batchType,
			Feed:        e.feedName,
			RecipientID: recipientID,
		},
		Environment: sdkproto.Environment{
			AppID:      batch.Environment.AppID,
			AppVersion: batch.Environment.AppVersion,
			SDKVersion: batch.Environment.SDKVersion,
		},
		Device: device,
		Events: events,
	}
}

func (e *Enricher) enrichDevice(ip string, d model.Device) sdkproto.Device {
	out := sdkproto.Device{
		IFA:             d.IFA,
		TrackingEnabled: d.TrackingEnabled,
		Platform:        normalizePlatform(d.Platform, d.OSName),
		OSName:          d.OSName,
		OSVersion:       d.OSVersion,
		Locale:          d.Locale,
		Language:        languageFor(d.Language, d.Locale),
		H:               dimension(d.H, d.HasH),
		W:               dimension(d.W, d.HasW),
	}

	if ip != "" {
		if hashed, err := gwcrypto.HashIP(ip); err == nil {
			out.IPHashedBlake2 = hashed
		}
		if country, ok := e.geo.Country(ip); ok {
			out.Country = country
		}
	}

	return out
}

// normalizePlatform mirrors reqcontext.PlatformFromBatch's rule,
// applied to the device block's own platform/os_name pair rather than
// request headers. An unrecognised pair yields "" rather than "unknown".
func normalizePlatform(explicit, osName string) string {
	switch explicit {
	case "ios", "iOS":
		return "ios"
	case "android", "Android":
		return "android"
	case "web", "Web":
		return "web"
	}
	switch osName {
	case "iOS", "iPhone OS":
		return "ios"
	case "Android":
		return "android"
	}
	return ""
}

// languageFor returns explicit when set, else the portion of locale
// before its first underscore ("fi_FI" -> "fi"); empty when neither
// yields anything.
func languageFor(explicit, locale string) string {
	if explicit != "" {
		return explicit
	}
	if idx := strings.IndexByte(locale, '_'); idx >= 0 {
		return locale[:idx]
	}
	return ""
}

func dimension(v int, has bool) int32 {
	if !has {
		return -1
	}
	return int32(v)
}

func (e *Enricher) enrichEvent(ev model.Event) sdkproto.Event {
	name := ev.Name
	if name == legacyDeeplinkName {
		name = canonicalDeeplinkName
	}

	var props []sdkproto.PropertyValue
	flattenProperties("", ev.Properties, &props, e.log)

	ts, _ := strconv.ParseInt(ev.Timestamp, 10, 64)

	return sdkproto.Event{
		ID:             ev.ID,
		Timestamp:      ts,
		Name:           name,
		Properties:     props,
		SessionID:      ev.SessionID,
		ExternalUserID: ev.ExternalUserID,
		ReferenceID:    ev.ReferenceID,
	}
}

// flattenProperties walks a nested JSON object, turning leaves into
// typed properties keyed "parent__child__leaf". Unsupported scalar
// kinds (raw JSON arrays, null) are dropped with a warning rather than
// failing the batch.
func flattenProperties(prefix string, props map[string]interface{}, out *[]sdkproto.PropertyValue, log *zap.Logger) {
	for key, value := range props {
		prefixedKey := prefix + key
		switch v := value.(type) {
		case string:
			*out = append(*out, sdkproto.PropertyValue{Key: prefixedKey, StringValue: v, HasString: true})
		case bool:
			*out = append(*out, sdkproto.PropertyValue{Key: prefixedKey, BoolValue: v, HasBool: true})
		case float64:
			*out = append(*out, sdkproto.PropertyValue{Key: prefixedKey, NumberValue: v, HasNumber: true})
		case map[string]interface{}:
			flattenProperties(prefixedKey+"__", v, out, log)
		default:
			if log != nil {
				log.Warn("enrich: dropping unsupported property value", zap.String("key", prefixedKey))
			}
		}
	}
}

// sortEventsStable sorts events non-decreasingly by timestamp, ties
// broken by original order.
func sortEventsStable(events []sdkproto.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}
