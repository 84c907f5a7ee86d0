package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sdkgateway/ingress/internal/registry"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*registry.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return registry.NewStore(db), mock
}

func TestLoop_InitialLoadPopulatesRegistry(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"app_id", "token", "secret_ios", "secret_android", "secret_web"}).
		AddRow("app-1", "T", nil, nil, nil)
	mock.ExpectQuery("SELECT app_id, token, secret_ios, secret_android, secret_web").WillReturnRows(rows)

	reg := registry.New()
	loop := New(reg, store, time.Hour, nil)

	require.NoError(t, loop.InitialLoad(context.Background()))
	_, ok := reg.Lookup("app-1")
	require.True(t, ok)
	require.False(t, loop.LastRefresh().IsZero())
}

func TestLoop_LastRefreshIsZeroBeforeFirstLoad(t *testing.T) {
	store, _ := newMockStore(t)
	loop := New(registry.New(), store, time.Hour, nil)
	require.True(t, loop.LastRefresh().IsZero())
}

func TestLoop_RunStopsCleanly(t *testing.T) {
	store, _ := newMockStore(t)

	reg := registry.New()
	loop := New(reg, store, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	loop.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}
