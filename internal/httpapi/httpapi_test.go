package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdkgateway/ingress/internal/admission"
	"github.com/sdkgateway/ingress/internal/config"
	"github.com/sdkgateway/ingress/internal/enrich"
	"github.com/sdkgateway/ingress/internal/geoip"
	"github.com/sdkgateway/ingress/internal/gwcrypto"
	"github.com/sdkgateway/ingress/internal/identitystore"
	"github.com/sdkgateway/ingress/internal/model"
	"github.com/sdkgateway/ingress/internal/publish"
	"github.com/sdkgateway/ingress/internal/registry"
	"github.com/sdkgateway/ingress/internal/resolver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeIdentityStore struct {
	getID string
}

func (f *fakeIdentityStore) Get(ctx context.Context, appID, ifa string, trackingEnabled bool) (string, error) {
	return f.getID, nil
}

func (f *fakeIdentityStore) Put(ctx context.Context, appID, entityID, ifa string, trackingEnabled bool) error {
	return nil
}

type exhaustedIdentityStore struct{}

func (exhaustedIdentityStore) Get(ctx context.Context, appID, ifa string, trackingEnabled bool) (string, error) {
	return "", nil
}

func (exhaustedIdentityStore) Put(ctx context.Context, appID, entityID, ifa string, trackingEnabled bool) error {
	return identitystore.ErrExhausted
}

type fakeLogBus struct{}

func (fakeLogBus) Produce(ctx context.Context, key string, value []byte) error { return nil }

type fakeAMQPBus struct{}

func (fakeAMQPBus) Publish(ctx context.Context, routingKey string, body []byte) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	sealer, err := gwcrypto.NewSealer(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)

	reg := registry.New()
	reg.Replace(map[string]model.Application{
		"app-1": {
			AppID:          "app-1",
			Token:          "tok-1",
			SecretIOS:      []byte("secret"),
			AllowedOrigins: []string{"https://example.com"},
		},
	})

	adm := admission.New(reg, "", true)
	res := resolver.New(sealer, &fakeIdentityStore{getID: "entity-1"}, "device.registered")
	enr := enrich.New(geoip.Noop{}, "sdk-gateway", nil)
	pub := publish.New(fakeLogBus{}, fakeAMQPBus{}, false, nil)

	return New(Deps{
		Registry:      reg,
		Sealer:        sealer,
		Admission:     adm,
		Resolver:      res,
		Enricher:      enr,
		Publisher:     pub,
		RegisterEvent: "device.registered",
		CORS:          config.CORSConfig{AllowedMethods: []string{"POST", "OPTIONS"}, AllowedHeaders: []string{"Content-Type"}},
	})
}

func doIngest(t *testing.T, s *Server, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	router := s.Router("/ingest")
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	req.Header.Set("X-Api-Token", "tok-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIngest_SuccessWithEmptySignatureAllowed(t *testing.T) {
	s := newTestServer(t)
	batch := model.EventBatch{
		Environment: model.Environment{AppID: "app-1"},
		Device:      model.Device{Platform: "ios"},
		Events:      []model.Event{{ID: "e1", Name: "app.open", Timestamp: "1700000000000"}},
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	w := doIngest(t, s, body)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.EventsStatus, 1)
	assert.Equal(t, "e1", resp.EventsStatus[0].ID)
	assert.Equal(t, model.StatusSuccess, resp.EventsStatus[0].Status)
	assert.Nil(t, resp.EventsStatus[0].RegistrationData)
}

func TestIngest_RegisterEventGetsRegistrationData(t *testing.T) {
	s := newTestServer(t)
	batch := model.EventBatch{
		Environment: model.Environment{AppID: "app-1"},
		Device:      model.Device{Platform: "ios", IFA: "11111111-1111-1111-1111-111111111111", TrackingEnabled: true},
		Events:      []model.Event{{ID: "e1", Name: "device.registered", Timestamp: "1700000000000"}},
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	w := doIngest(t, s, body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.EventsStatus, 1)
	require.NotNil(t, resp.EventsStatus[0].RegistrationData)
	assert.Equal(t, "tok-1", resp.EventsStatus[0].RegistrationData.APIToken)
}

func TestIngest_UnknownAppRejected(t *testing.T) {
	s := newTestServer(t)
	batch := model.EventBatch{
		Environment: model.Environment{AppID: "ghost-app"},
		Events:      []model.Event{{ID: "e1", Name: "app.open"}},
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	w := doIngest(t, s, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIngest_MalformedJSONRejected(t *testing.T) {
	s := newTestServer(t)
	w := doIngest(t, s, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight_ReturnsNoContentWithWildcardOrigin(t *testing.T) {
	s := newTestServer(t)
	router := s.Router("/ingest")
	req := httptest.NewRequest(http.MethodOptions, "/ingest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestIngest_WebRequestFromAllowedOriginEchoesSpecificOrigin(t *testing.T) {
	s := newTestServer(t)
	batch := model.EventBatch{
		Environment: model.Environment{AppID: "app-1"},
		Device:      model.Device{Platform: "web"},
		Events:      []model.Event{{ID: "e1", Name: "app.open", Timestamp: "1700000000000"}},
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	router := s.Router("/ingest")
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	req.Header.Set("X-Api-Token", "tok-1")
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIngest_NonWebSuccessCarriesNoWildcardOrigin(t *testing.T) {
	s := newTestServer(t)
	batch := model.EventBatch{
		Environment: model.Environment{AppID: "app-1"},
		Device:      model.Device{Platform: "ios"},
		Events:      []model.Event{{ID: "e1", Name: "app.open", Timestamp: "1700000000000"}},
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	w := doIngest(t, s, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIngest_IdentityStoreExhaustionAbortsProcess(t *testing.T) {
	sealer, err := gwcrypto.NewSealer(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)

	reg := registry.New()
	reg.Replace(map[string]model.Application{
		"app-1": {AppID: "app-1", Token: "tok-1", SecretIOS: []byte("secret")},
	})

	adm := admission.New(reg, "", true)
	res := resolver.New(sealer, exhaustedIdentityStore{}, "device.registered")
	enr := enrich.New(geoip.Noop{}, "sdk-gateway", nil)
	pub := publish.New(fakeLogBus{}, fakeAMQPBus{}, false, nil)

	s := New(Deps{
		Registry:      reg,
		Sealer:        sealer,
		Admission:     adm,
		Resolver:      res,
		Enricher:      enr,
		Publisher:     pub,
		RegisterEvent: "device.registered",
		CORS:          config.CORSConfig{AllowedMethods: []string{"POST", "OPTIONS"}, AllowedHeaders: []string{"Content-Type"}},
	})

	batch := model.EventBatch{
		Environment: model.Environment{AppID: "app-1"},
		Device:      model.Device{Platform: "ios", IFA: "11111111-1111-1111-1111-111111111111", TrackingEnabled: true},
		Events:      []model.Event{{ID: "e1", Name: "device.registered", Timestamp: "1700000000000"}},
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	exited := false
	prevExit := exitProcess
	exitProcess = func(code int) { exited = true }
	defer func() { exitProcess = prevExit }()

	doIngest(t, s, body)
	assert.True(t, exited, "exhausted identity store write should abort the process")
}

func TestNoRoute_Returns404(t *testing.T) {
	s := newTestServer(t)
	router := s.Router("/ingest")
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWatchdog_ReportsRegisteredAppCount(t *testing.T) {
	s := newTestServer(t)
	router := s.Router("/ingest")
	req := httptest.NewRequest(http.MethodGet, "/watchdog", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["registered_apps"])
}
