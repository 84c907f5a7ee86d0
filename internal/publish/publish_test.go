package publish

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogBus struct {
	err      error
	lastKey  string
	calls    int
}

func (f *fakeLogBus) Produce(ctx context.Context, key string, value []byte) error {
	f.calls++
	f.lastKey = key
	return f.err
}

type fakeAMQPBus struct {
	err            error
	lastRoutingKey string
	calls          int
}

func (f *fakeAMQPBus) Publish(ctx context.Context, routingKey string, body []byte) error {
	f.calls++
	f.lastRoutingKey = routingKey
	return f.err
}

func TestPublish_BothSucceed(t *testing.T) {
	logBus := &fakeLogBus{}
	amqpBus := &fakeAMQPBus{}
	p := New(logBus, amqpBus, true, nil)

	err := p.Publish(context.Background(), "app-1", "123e4567-e89b-12d3-a456-426614174000", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 1, logBus.calls)
	assert.Equal(t, 1, amqpBus.calls)
	assert.Equal(t, "app-1|123e4567-e89b-12d3-a456-426614174000", logBus.lastKey)
}

func TestPublish_EmptyDeviceIdYieldsEmptyLogKey(t *testing.T) {
	logBus := &fakeLogBus{}
	amqpBus := &fakeAMQPBus{}
	p := New(logBus, amqpBus, true, nil)

	err := p.Publish(context.Background(), "app-1", "", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "", logBus.lastKey)
}

func TestPublish_LogBusFailureFailsWhenRequireBoth(t *testing.T) {
	logBus := &fakeLogBus{err: errors.New("boom")}
	amqpBus := &fakeAMQPBus{}
	p := New(logBus, amqpBus, true, nil)

	err := p.Publish(context.Background(), "app-1", "123e4567-e89b-12d3-a456-426614174000", []byte("payload"))
	assert.Error(t, err)
}

func TestPublish_LogBusFailureSwallowedWhenNotRequireBoth(t *testing.T) {
	logBus := &fakeLogBus{err: errors.New("boom")}
	amqpBus := &fakeAMQPBus{}
	p := New(logBus, amqpBus, false, nil)

	err := p.Publish(context.Background(), "app-1", "123e4567-e89b-12d3-a456-426614174000", []byte("payload"))
	assert.NoError(t, err)
}

func TestPublish_AMQPBusFailureAlwaysFails(t *testing.T) {
	logBus := &fakeLogBus{}
	amqpBus := &fakeAMQPBus{err: errors.New("boom")}
	p := New(logBus, amqpBus, false, nil)

	err := p.Publish(context.Background(), "app-1", "123e4567-e89b-12d3-a456-426614174000", []byte("payload"))
	assert.Error(t, err)
}

func TestRoutingKeyFor_ValidUUID(t *testing.T) {
	// chars [24:28) of this UUID are "4266"; 0x4266 mod 256 is the
	// expected routing key.
	key := routingKeyFor("123e4567-e89b-12d3-a456-426614174000", nil)
	v, err := strconv.ParseUint(key, 10, 32)
	require.NoError(t, err)
	assert.Less(t, v, uint64(256))
	assert.Equal(t, uint64(0x4266%256), v)
}

func TestRoutingKeyFor_TooShortFallsBackToZero(t *testing.T) {
	assert.Equal(t, "0", routingKeyFor("short", nil))
}

func TestRoutingKeyFor_EmptyFallsBackToZero(t *testing.T) {
	assert.Equal(t, "0", routingKeyFor("", nil))
}
