package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Unsetenv("ENV")
	err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 64, App.Gateway.Threads)
	assert.True(t, App.Gateway.RequireLogBusAck)
	assert.Equal(t, "/", App.Gateway.IngestPath)
	assert.Equal(t, "sdk-gateway", App.Gateway.FeedName)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	os.Setenv("PORT", "9999")
	defer os.Unsetenv("PORT")

	err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "9999", App.Gateway.Port)
}

func TestValidateDevOnlyFlags(t *testing.T) {
	cfg := Config{}
	cfg.Gateway.AllowEmptySignature = true

	assert.NoError(t, validateDevOnlyFlags("development", cfg))
	assert.Error(t, validateDevOnlyFlags("production", cfg))
	assert.Error(t, validateDevOnlyFlags("", cfg))

	cfg2 := Config{TestApps: []TestAppConfig{{AppID: "1"}}}
	assert.Error(t, validateDevOnlyFlags("staging", cfg2))
	assert.NoError(t, validateDevOnlyFlags("development", cfg2))
}
