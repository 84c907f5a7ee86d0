// Package gatewayerr implements the gateway's fixed error taxonomy:
// one Kind per failure mode, each mapping to a fixed HTTP status.
package gatewayerr

import (
	"errors"
	"net/http"
)

// Kind names a gateway failure mode.
type Kind string

const (
	KindAppDoesNotExist     Kind = "app_does_not_exist"
	KindInvalidToken        Kind = "invalid_token"
	KindMissingToken        Kind = "missing_token"
	KindMissingSignature    Kind = "missing_signature"
	KindInvalidSignature    Kind = "invalid_signature"
	KindUnknownOrigin       Kind = "unknown_origin"
	KindBadDeviceId         Kind = "bad_device_id"
	KindInvalidPayload      Kind = "invalid_payload"
	KindInternalServerError Kind = "internal_server_error"
	KindServiceUnavailable  Kind = "service_unavailable"
)

var statusByKind = map[Kind]int{
	KindAppDoesNotExist:     http.StatusForbidden,
	KindInvalidToken:        http.StatusPreconditionFailed,
	KindMissingToken:        http.StatusPreconditionFailed,
	KindMissingSignature:    http.StatusPreconditionFailed,
	KindInvalidSignature:    http.StatusPreconditionFailed,
	KindUnknownOrigin:       http.StatusForbidden,
	KindBadDeviceId:         http.StatusBadRequest,
	KindInvalidPayload:      http.StatusBadRequest,
	KindInternalServerError: http.StatusInternalServerError,
	KindServiceUnavailable:  http.StatusServiceUnavailable,
}

// Error is a typed gateway error carrying its taxonomy Kind and a
// human-readable reason, returned verbatim as the plain-text response
// body.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Status returns the fixed HTTP status for e's Kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func new(kind Kind, reason string) *Error { return &Error{Kind: kind, Reason: reason} }

func AppDoesNotExist(reason string) *Error     { return new(KindAppDoesNotExist, reason) }
func InvalidToken(reason string) *Error        { return new(KindInvalidToken, reason) }
func MissingToken(reason string) *Error        { return new(KindMissingToken, reason) }
func MissingSignature(reason string) *Error    { return new(KindMissingSignature, reason) }
func InvalidSignature(reason string) *Error    { return new(KindInvalidSignature, reason) }
func UnknownOrigin(reason string) *Error       { return new(KindUnknownOrigin, reason) }
func BadDeviceId(reason string) *Error         { return new(KindBadDeviceId, reason) }
func InvalidPayload(reason string) *Error      { return new(KindInvalidPayload, reason) }
func InternalServerError(reason string) *Error { return new(KindInternalServerError, reason) }
func ServiceUnavailable(reason string) *Error  { return new(KindServiceUnavailable, reason) }

// As reports whether err is (or wraps) a *Error, returning it if so.
func As(err error) (*Error, bool) {
	var ge *Error
	ok := errors.As(err, &ge)
	return ge, ok
}
