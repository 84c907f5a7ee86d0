package registry

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/sdkgateway/ingress/internal/config"
	"github.com/sdkgateway/ingress/internal/model"
)

// Store loads the full application table from Postgres using
// `database/sql` and `lib/pq`.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open *sql.DB. The caller owns the
// connection's lifecycle: main opens it, defers Close, and passes the
// handle down.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// LoadAll performs the initial blocking load / periodic refresh query:
// every application row plus its per-platform secrets, joined against
// the configured per-app CORS origin allow-list.
func (s *Store) LoadAll(ctx context.Context, origins []config.OriginConfig) (map[string]model.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, token, secret_ios, secret_android, secret_web
		FROM gateway_apps
	`)
	if err != nil {
		return nil, fmt.Errorf("registry: querying gateway_apps: %w", err)
	}
	defer rows.Close()

	originsByApp := make(map[string][]string, len(origins))
	for _, o := range origins {
		originsByApp[o.AppID] = o.Allowed
	}

	apps := make(map[string]model.Application)
	for rows.Next() {
		var appID, token string
		var hexIOS, hexAndroid, hexWeb sql.NullString
		if err := rows.Scan(&appID, &token, &hexIOS, &hexAndroid, &hexWeb); err != nil {
			return nil, fmt.Errorf("registry: scanning gateway_apps row: %w", err)
		}

		app := model.Application{
			AppID:          appID,
			Token:          token,
			AllowedOrigins: originsByApp[appID],
		}
		if app.SecretIOS, err = decodeHexKey(hexIOS); err != nil {
			return nil, fmt.Errorf("registry: app %s secret_ios: %w", appID, err)
		}
		if app.SecretAndroid, err = decodeHexKey(hexAndroid); err != nil {
			return nil, fmt.Errorf("registry: app %s secret_android: %w", appID, err)
		}
		if app.SecretWeb, err = decodeHexKey(hexWeb); err != nil {
			return nil, fmt.Errorf("registry: app %s secret_web: %w", appID, err)
		}
		apps[appID] = app
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: iterating gateway_apps: %w", err)
	}

	mergeTestApps(apps, config.App.TestApps, originsByApp)

	return apps, nil
}

func decodeHexKey(v sql.NullString) ([]byte, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	return hex.DecodeString(v.String)
}

// mergeTestApps seeds development-only applications from config;
// LoadConfig already refuses a non-empty test_apps list outside
// ENV=development, so this is safe to apply unconditionally once
// config validation has passed.
func mergeTestApps(apps map[string]model.Application, testApps []config.TestAppConfig, originsByApp map[string][]string) {
	for _, ta := range testApps {
		app := model.Application{
			AppID:          ta.AppID,
			Token:          ta.Token,
			AllowedOrigins: originsByApp[ta.AppID],
		}
		app.SecretIOS, _ = hex.DecodeString(ta.SecretIOS)
		app.SecretAndroid, _ = hex.DecodeString(ta.SecretAndroid)
		app.SecretWeb, _ = hex.DecodeString(ta.SecretWeb)
		apps[ta.AppID] = app
	}
}

// Schema is the DDL this store expects. It is exposed so
// cmd/migrate can apply it; it is not executed automatically on boot.
const Schema = `
CREATE TABLE IF NOT EXISTS gateway_apps (
	app_id         TEXT PRIMARY KEY,
	token          TEXT NOT NULL DEFAULT '',
	secret_ios     TEXT,
	secret_android TEXT,
	secret_web     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
