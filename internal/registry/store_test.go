package registry

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/sdkgateway/ingress/internal/config"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"app_id", "token", "secret_ios", "secret_android", "secret_web"}).
		AddRow("1", "T", "1b66", nil, nil).
		AddRow("2", "", nil, nil, "abcd")

	mock.ExpectQuery("SELECT app_id, token, secret_ios, secret_android, secret_web").
		WillReturnRows(rows)

	store := NewStore(db)
	apps, err := store.LoadAll(context.Background(), []config.OriginConfig{
		{AppID: "2", Allowed: []string{"https://reddit.com"}},
	})
	require.NoError(t, err)
	require.Len(t, apps, 2)

	app1 := apps["1"]
	require.Equal(t, "T", app1.Token)
	require.Equal(t, []byte{0x1b, 0x66}, app1.SecretIOS)

	app2 := apps["2"]
	require.Equal(t, []string{"https://reddit.com"}, app2.AllowedOrigins)
	require.Equal(t, []byte{0xab, 0xcd}, app2.SecretWeb)

	require.NoError(t, mock.ExpectationsWereMet())
}
