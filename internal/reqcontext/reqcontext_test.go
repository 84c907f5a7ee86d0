package reqcontext

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/sdkgateway/ingress/internal/gatewayerr"
	"github.com/sdkgateway/ingress/internal/gwcrypto"
	"github.com/sdkgateway/ingress/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *gwcrypto.Sealer {
	s, err := gwcrypto.NewSealer([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)
	return s
}

func TestBuild_NoDeviceIdHeader(t *testing.T) {
	h := http.Header{}
	h.Set("X-Api-Token", "T")
	ctx, err := Build(h, testSealer(t), "1", model.PlatformIOS)
	require.NoError(t, err)
	assert.Nil(t, ctx.DeviceID)
	assert.Equal(t, "T", ctx.APIToken)
}

func TestBuild_ValidDeviceIdDecrypts(t *testing.T) {
	sealer := testSealer(t)
	id := uuid.New().String()
	sealed, err := sealer.Seal(id)
	require.NoError(t, err)

	h := http.Header{}
	h.Set("X-Device-Id", sealed)
	ctx, err := Build(h, sealer, "1", model.PlatformIOS)
	require.NoError(t, err)
	require.NotNil(t, ctx.DeviceID)
	assert.Equal(t, id, ctx.DeviceID.Cleartext)
}

func TestBuild_MalformedDeviceIdIsBadDeviceId(t *testing.T) {
	h := http.Header{}
	h.Set("X-Device-Id", "THIS_IS_FAKED")
	_, err := Build(h, testSealer(t), "1", model.PlatformIOS)
	require.Error(t, err)
	ge, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindBadDeviceId, ge.Kind)
}

func TestPlatformFromBatch(t *testing.T) {
	assert.Equal(t, model.PlatformIOS, PlatformFromBatch("", "iPhone OS"))
	assert.Equal(t, model.PlatformIOS, PlatformFromBatch("ios", "Android"))
	assert.Equal(t, model.PlatformAndroid, PlatformFromBatch("", "Android"))
	assert.Equal(t, model.PlatformUnknown, PlatformFromBatch("", "Windows"))
}
