// Package admission implements the admission controller:
// app/token/signature validation composed with the CORS origin gate.
package admission

import (
	"github.com/sdkgateway/ingress/internal/gatewayerr"
	"github.com/sdkgateway/ingress/internal/gwcrypto"
	"github.com/sdkgateway/ingress/internal/model"
	"github.com/sdkgateway/ingress/internal/registry"
)

// Controller validates an incoming request against the application
// registry and, for web callers, the per-app CORS allow-list.
type Controller struct {
	registry            *registry.Registry
	defaultToken        string
	allowEmptySignature bool
}

// New builds a Controller. defaultToken seeds Application.Token when
// an app has none configured; allowEmptySignature mirrors
// gateway.allow_empty_signature, refused outside development by
// internal/config at startup.
func New(reg *registry.Registry, defaultToken string, allowEmptySignature bool) *Controller {
	return &Controller{registry: reg, defaultToken: defaultToken, allowEmptySignature: allowEmptySignature}
}

// Admit runs the full admission algorithm: the CORS gate for web
// platforms, then the ordered app/token/signature validation.
func (c *Controller) Admit(ctx *model.Context, batch *model.EventBatch, rawBody []byte) error {
	if ctx.Platform == model.PlatformWeb {
		if err := c.checkOrigin(ctx); err != nil {
			return err
		}
	}
	return c.validate(ctx, batch, rawBody)
}

// checkOrigin applies the CORS rule: a Web platform request is
// rejected with UnknownOrigin both when Origin is missing and when it
// is present but not allow-listed for the app.
func (c *Controller) checkOrigin(ctx *model.Context) error {
	app, ok := c.registry.Lookup(ctx.AppID)
	if !ok {
		// Let the ordinary validate() path raise AppDoesNotExist so the
		// caller gets one consistent reason, not UnknownOrigin for an
		// app that doesn't exist at all.
		return nil
	}
	if ctx.Origin == "" {
		return gatewayerr.UnknownOrigin("origin header required for web platform")
	}
	for _, allowed := range app.AllowedOrigins {
		if allowed == ctx.Origin {
			return nil
		}
	}
	return gatewayerr.UnknownOrigin("origin not allow-listed for this app")
}

// validate implements the ordered validation algorithm; first failure
// wins.
func (c *Controller) validate(ctx *model.Context, batch *model.EventBatch, rawBody []byte) error {
	app, ok := c.registry.Lookup(ctx.AppID)
	if !ok {
		return gatewayerr.AppDoesNotExist("unknown app")
	}

	token := app.Token
	if token == "" {
		token = c.defaultToken
	}
	if ctx.APIToken != "" && ctx.APIToken != token {
		return gatewayerr.InvalidToken("token mismatch")
	}

	if len(batch.Events) == 0 {
		return gatewayerr.InvalidPayload("batch contains zero events")
	}

	if c.allowEmptySignature {
		return nil
	}

	if ctx.Signature == "" {
		return gatewayerr.MissingSignature("signature header required")
	}

	key, ok := app.KeyFor(ctx.Platform)
	if !ok {
		// Deliberate conflation with AppDoesNotExist: a missing
		// per-platform key must be indistinguishable from "app not
		// served here", or the response would leak which platforms are
		// provisioned for this app.
		return gatewayerr.AppDoesNotExist("platform not provisioned for app")
	}

	if err := gwcrypto.VerifyHMAC(key, rawBody, ctx.Signature); err != nil {
		return gatewayerr.InvalidSignature("HMAC verification failed")
	}

	return nil
}
