// Package reqcontext builds the immutable per-request Context from
// parsed HTTP headers and the request body.
package reqcontext

import (
	"net/http"

	"github.com/sdkgateway/ingress/internal/gatewayerr"
	"github.com/sdkgateway/ingress/internal/gwcrypto"
	"github.com/sdkgateway/ingress/internal/model"
)

// Build constructs a model.Context from the header map, the sealer
// used to attempt opening X-Device-Id, and the already-parsed batch's
// app-id/platform. A missing device-id header is never an error. A
// present-but-malformed one is: the caller sent a cookie and it failed
// to decrypt, which the request pipeline surfaces as BadDeviceId
// before the rest of the pipeline runs.
func Build(h http.Header, sealer *gwcrypto.Sealer, appID string, platform model.Platform) (*model.Context, error) {
	ctx := &model.Context{
		AppID:     appID,
		Platform:  platform,
		APIToken:  h.Get("X-Api-Token"),
		Signature: h.Get("X-Signature"),
		IP:        h.Get("X-Real-IP"),
		Origin:    h.Get("Origin"),
	}

	if raw := h.Get("X-Device-Id"); raw != "" {
		if sealer == nil {
			return ctx, gatewayerr.BadDeviceId("device-id sealer unavailable")
		}
		cleartext, err := sealer.Open(raw)
		if err != nil {
			return ctx, gatewayerr.BadDeviceId("device-id cookie failed to decrypt")
		}
		ctx.DeviceID = &model.DeviceId{Ciphertext: raw, Cleartext: cleartext}
	}

	return ctx, nil
}

// PlatformFromBatch derives the platform from the parsed batch:
// explicit platform string wins, os_name is only a fallback.
func PlatformFromBatch(explicit, osName string) model.Platform {
	switch explicit {
	case "ios", "iOS":
		return model.PlatformIOS
	case "android", "Android":
		return model.PlatformAndroid
	case "web", "Web":
		return model.PlatformWeb
	}
	switch osName {
	case "iOS", "iPhone OS":
		return model.PlatformIOS
	case "Android":
		return model.PlatformAndroid
	}
	return model.PlatformUnknown
}
