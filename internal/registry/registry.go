// Package registry implements the hot-swappable application registry:
// an in-memory app-id -> Application map that is read lock-free and
// replaced wholesale by the refresh loop.
package registry

import (
	"sync/atomic"

	"github.com/sdkgateway/ingress/internal/model"
)

// Registry is a single mapping app-id -> Application, concurrently
// readable and singly writable via Replace. Readers never observe a
// partially constructed map: Replace swaps one fully-built map for
// another via an atomic.Value, so a reader either sees the whole old
// map or the whole new one, never a mix.
type Registry struct {
	v atomic.Value // map[string]model.Application
}

// New returns an empty Registry. Callers typically call Replace once
// with an initial blocking load before serving traffic.
func New() *Registry {
	r := &Registry{}
	r.v.Store(map[string]model.Application{})
	return r
}

// Lookup returns the Application for appID, and whether it exists.
func (r *Registry) Lookup(appID string) (model.Application, bool) {
	m := r.v.Load().(map[string]model.Application)
	app, ok := m[appID]
	return app, ok
}

// TokenFor returns the configured token for appID, if the app exists.
func (r *Registry) TokenFor(appID string) (string, bool) {
	app, ok := r.Lookup(appID)
	if !ok {
		return "", false
	}
	return app.Token, true
}

// Replace atomically swaps in a freshly built map. The old map remains
// live for any reader that loaded it before the swap; it is simply
// dropped once the last such reader finishes (ordinary GC, no explicit
// refcounting needed since readers only ever hold a map value, never a
// pointer into this Registry's internals).
func (r *Registry) Replace(apps map[string]model.Application) {
	r.v.Store(apps)
}

// Len reports the number of apps currently registered. Used by
// metrics and the /watchdog endpoint.
func (r *Registry) Len() int {
	return len(r.v.Load().(map[string]model.Application))
}
