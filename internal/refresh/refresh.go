// Package refresh periodically reloads the application registry from
// Postgres and re-attaches each app's CORS origin allow-list from the
// origins loaded into config at startup, following the ticker-loop
// pattern: an initial blocking load before the caller starts serving
// traffic, then a background ticker that keeps the registry current.
package refresh

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sdkgateway/ingress/internal/config"
	"github.com/sdkgateway/ingress/internal/metrics"
	"github.com/sdkgateway/ingress/internal/registry"
	"go.uber.org/zap"
)

// Loop drives the registry's periodic refresh.
type Loop struct {
	reg      *registry.Registry
	store    *registry.Store
	interval time.Duration
	log      *zap.Logger

	lastRefresh atomic.Int64 // unix nanos, 0 until the first successful load

	stop chan struct{}
	done chan struct{}
}

// New builds a Loop. interval is the ticker period between refreshes
// after the initial load.
func New(reg *registry.Registry, store *registry.Store, interval time.Duration, log *zap.Logger) *Loop {
	return &Loop{
		reg:      reg,
		store:    store,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// InitialLoad performs the blocking load every caller must complete
// before serving traffic. It does not start the background ticker.
func (l *Loop) InitialLoad(ctx context.Context) error {
	return l.refreshOnce(ctx)
}

// Run starts the background ticker. It blocks until Stop is called or
// ctx is cancelled; call it in its own goroutine.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
			if err := l.refreshOnce(ctx); err != nil && l.log != nil {
				l.log.Warn("refresh: periodic registry reload failed, keeping stale data", zap.Error(err))
			}
		}
	}
}

// Stop signals Run to exit and waits for it to do so.
func (l *Loop) Stop() {
	close(l.stop)
	<-l.done
}

// LastRefresh returns the time of the last successful load, or the
// zero time before InitialLoad has completed even once.
func (l *Loop) LastRefresh() time.Time {
	nanos := l.lastRefresh.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (l *Loop) refreshOnce(ctx context.Context) error {
	apps, err := l.store.LoadAll(ctx, config.App.Origins)
	if err != nil {
		return err
	}
	l.reg.Replace(apps)
	now := time.Now()
	l.lastRefresh.Store(now.UnixNano())
	metrics.RegistrySize.Set(float64(len(apps)))
	metrics.RegistryRefreshSeconds.Set(float64(now.Unix()))
	return nil
}
