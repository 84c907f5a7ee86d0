// Package sdkproto encodes the enriched event batch to the protobuf
// wire format handed to both downstream buses. Schema generation
// itself is out of scope; this package writes the wire format
// directly with google.golang.org/protobuf/encoding/protowire, the
// same low-level package every generated .pb.go Marshal method is
// built on.
package sdkproto

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers. Stable once assigned — never renumber a shipped field.
const (
	fieldHeaderCreatedAt   = 1
	fieldHeaderSource      = 2
	fieldHeaderType        = 3
	fieldHeaderFeed        = 4
	fieldHeaderRecipientID = 5

	fieldBatchHeader      = 1
	fieldBatchEnvironment = 2
	fieldBatchDevice      = 3
	fieldBatchEvents      = 4

	fieldEnvAppID      = 1
	fieldEnvAppVersion = 2
	fieldEnvSDKVersion = 3

	fieldDeviceIFA             = 1
	fieldDeviceTracking        = 2
	fieldDevicePlatform        = 3
	fieldDeviceOSName          = 4
	fieldDeviceOSVersion       = 5
	fieldDeviceLocale          = 6
	fieldDeviceLanguage        = 7
	fieldDeviceH               = 8
	fieldDeviceW               = 9
	fieldDeviceIPHashedBlake2  = 10
	fieldDeviceCountry         = 11

	fieldEventID             = 1
	fieldEventTimestamp      = 2
	fieldEventName           = 3
	fieldEventProperties     = 4
	fieldEventSessionID      = 5
	fieldEventExternalUserID = 6
	fieldEventReferenceID    = 7

	fieldPropKey          = 1
	fieldPropStringValue  = 2
	fieldPropNumberValue  = 3
	fieldPropBoolValue    = 4
)

// PropertyValue is a flattened, typed event property.
type PropertyValue struct {
	Key         string
	StringValue string
	HasString   bool
	NumberValue float64
	HasNumber   bool
	BoolValue   bool
	HasBool     bool
}

// Header is the downstream protobuf header.
type Header struct {
	CreatedAt   int64
	Source      string
	Type        string
	Feed        string
	RecipientID string
}

// Environment mirrors the input batch's environment block.
type Environment struct {
	AppID      string
	AppVersion string
	SDKVersion string
}

// Device is the enriched device block.
type Device struct {
	IFA             string
	TrackingEnabled bool
	Platform        string
	OSName          string
	OSVersion       string
	Locale          string
	Language        string
	H               int32
	W               int32
	IPHashedBlake2  string
	Country         string
}

// Event is one sorted, flattened event.
type Event struct {
	ID             string
	Timestamp      int64
	Name           string
	Properties     []PropertyValue
	SessionID      string
	ExternalUserID string
	ReferenceID    string
}

// Batch is the full downstream message.
type Batch struct {
	Header      Header
	Environment Environment
	Device      Device
	Events      []Event
}

// Encode serializes b to the protobuf wire format.
func Encode(b Batch) []byte {
	var out []byte
	out = appendMessageField(out, fieldBatchHeader, encodeHeader(b.Header))
	out = appendMessageField(out, fieldBatchEnvironment, encodeEnvironment(b.Environment))
	out = appendMessageField(out, fieldBatchDevice, encodeDevice(b.Device))
	for _, e := range b.Events {
		out = appendMessageField(out, fieldBatchEvents, encodeEvent(e))
	}
	return out
}

func encodeHeader(h Header) []byte {
	var out []byte
	out = appendVarintField(out, fieldHeaderCreatedAt, zigzag(h.CreatedAt))
	out = appendStringField(out, fieldHeaderSource, h.Source)
	out = appendStringField(out, fieldHeaderType, h.Type)
	out = appendStringField(out, fieldHeaderFeed, h.Feed)
	out = appendStringField(out, fieldHeaderRecipientID, h.RecipientID)
	return out
}

func encodeEnvironment(e Environment) []byte {
	var out []byte
	out = appendStringField(out, fieldEnvAppID, e.AppID)
	out = appendStringField(out, fieldEnvAppVersion, e.AppVersion)
	out = appendStringField(out, fieldEnvSDKVersion, e.SDKVersion)
	return out
}

func encodeDevice(d Device) []byte {
	var out []byte
	out = appendStringField(out, fieldDeviceIFA, d.IFA)
	out = protowire.AppendTag(out, fieldDeviceTracking, protowire.VarintType)
	out = protowire.AppendVarint(out, boolToVarint(d.TrackingEnabled))
	out = appendStringField(out, fieldDevicePlatform, d.Platform)
	out = appendStringField(out, fieldDeviceOSName, d.OSName)
	out = appendStringField(out, fieldDeviceOSVersion, d.OSVersion)
	out = appendStringField(out, fieldDeviceLocale, d.Locale)
	out = appendStringField(out, fieldDeviceLanguage, d.Language)
	out = appendVarintField(out, fieldDeviceH, zigzag(int64(d.H)))
	out = appendVarintField(out, fieldDeviceW, zigzag(int64(d.W)))
	out = appendStringField(out, fieldDeviceIPHashedBlake2, d.IPHashedBlake2)
	out = appendStringField(out, fieldDeviceCountry, d.Country)
	return out
}

func encodeEvent(e Event) []byte {
	var out []byte
	out = appendStringField(out, fieldEventID, e.ID)
	out = appendVarintField(out, fieldEventTimestamp, zigzag(e.Timestamp))
	out = appendStringField(out, fieldEventName, e.Name)
	for _, p := range e.Properties {
		out = appendMessageField(out, fieldEventProperties, encodeProperty(p))
	}
	out = appendStringField(out, fieldEventSessionID, e.SessionID)
	out = appendStringField(out, fieldEventExternalUserID, e.ExternalUserID)
	out = appendStringField(out, fieldEventReferenceID, e.ReferenceID)
	return out
}

func encodeProperty(p PropertyValue) []byte {
	var out []byte
	out = appendStringField(out, fieldPropKey, p.Key)
	if p.HasString {
		out = appendStringField(out, fieldPropStringValue, p.StringValue)
	}
	if p.HasNumber {
		out = protowire.AppendTag(out, fieldPropNumberValue, protowire.Fixed64Type)
		out = protowire.AppendFixed64(out, doubleBits(p.NumberValue))
	}
	if p.HasBool {
		out = protowire.AppendTag(out, fieldPropBoolValue, protowire.VarintType)
		out = protowire.AppendVarint(out, boolToVarint(p.BoolValue))
	}
	return out
}

func appendStringField(out []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return out
	}
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendString(out, s)
}

func appendVarintField(out []byte, num protowire.Number, v uint64) []byte {
	out = protowire.AppendTag(out, num, protowire.VarintType)
	return protowire.AppendVarint(out, v)
}

func appendMessageField(out []byte, num protowire.Number, msg []byte) []byte {
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendBytes(out, msg)
}

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// zigzag encodes a signed int64 the way protobuf's sint types do, so
// small negative numbers (h/w defaulting to -1) stay cheap to encode.
func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func doubleBits(f float64) uint64 {
	return math.Float64bits(f)
}
