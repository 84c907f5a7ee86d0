// Package resolver produces the canonical device-id for a batch:
// cookie, else IFA lookup/allocate on the register event, else
// nothing.
package resolver

import (
	"context"

	"github.com/google/uuid"
	"github.com/sdkgateway/ingress/internal/gwcrypto"
	"github.com/sdkgateway/ingress/internal/identitystore"
	"github.com/sdkgateway/ingress/internal/model"
)

// IdentityStore is the narrow slice of identitystore.Client the
// resolver needs, declared locally so tests can substitute a fake.
type IdentityStore interface {
	Get(ctx context.Context, appID, ifa string, trackingEnabled bool) (string, error)
	Put(ctx context.Context, appID, entityID, ifa string, trackingEnabled bool) error
}

// Result is what the resolver hands back to the enrichment stage: the
// device-id to stamp into the outgoing header (if any), and the
// registration data to attach to the register event's EventResult (if
// any).
type Result struct {
	DeviceID         *model.DeviceId
	RegistrationData *model.RegistrationData
}

// Resolver implements C6.
type Resolver struct {
	sealer        *gwcrypto.Sealer
	store         IdentityStore
	registerEvent string
}

// New builds a Resolver. registerEvent is the reserved event name that
// triggers registration, threaded through configuration rather than
// hard-coded.
func New(sealer *gwcrypto.Sealer, store IdentityStore, registerEvent string) *Resolver {
	return &Resolver{sealer: sealer, store: store, registerEvent: registerEvent}
}

// Resolve implements the three-way device-id resolution branch:
// cookie, register event, or neither.
func (r *Resolver) Resolve(ctx context.Context, reqCtx *model.Context, batch *model.EventBatch, token string) (Result, error) {
	if reqCtx.DeviceID != nil {
		return Result{DeviceID: reqCtx.DeviceID}, nil
	}

	if !hasRegisterEvent(batch, r.registerEvent) {
		return Result{}, nil
	}

	ifa := batch.Device.IFA
	tracking := batch.Device.TrackingEnabled

	entityID, err := r.store.Get(ctx, reqCtx.AppID, ifa, tracking)
	if err != nil {
		return Result{}, err
	}

	var cleartext string
	if entityID != "" {
		cleartext = entityID
	} else {
		cleartext = uuid.New().String()
	}

	sealed, err := r.sealer.Seal(cleartext)
	if err != nil {
		return Result{}, err
	}
	deviceID := &model.DeviceId{Ciphertext: sealed, Cleartext: cleartext}

	// Put is called regardless of hit/miss so the mapping is
	// idempotently (re)written. Put's bounded retry lives in
	// identitystore; on exhaustion it returns ErrExhausted, which the
	// HTTP front-end turns into a process abort.
	if err := r.store.Put(ctx, reqCtx.AppID, cleartext, ifa, tracking); err != nil {
		return Result{}, err
	}

	return Result{
		DeviceID:         deviceID,
		RegistrationData: &model.RegistrationData{APIToken: token, DeviceID: sealed},
	}, nil
}

func hasRegisterEvent(batch *model.EventBatch, registerEvent string) bool {
	for _, e := range batch.Events {
		if e.Name == registerEvent {
			return true
		}
	}
	return false
}

// IsNilOrUntracked reports whether ifa should be treated as absent —
// tracking disabled, or the IFA itself is the nil UUID — exposed for
// callers that need it outside a full Resolve call.
func IsNilOrUntracked(ifa string, trackingEnabled bool) bool {
	return !trackingEnabled || identitystore.IsNilUUID(ifa)
}
