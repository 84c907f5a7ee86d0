// Package publish fans the encoded event batch out to the two
// downstream buses: a partitioned log bus and an AMQP exchange.
package publish

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sdkgateway/ingress/internal/metrics"
)

// perPublishTimeout bounds each individual bus publish.
const perPublishTimeout = 1 * time.Second

// partitionCount is the number of downstream AMQP partitions the
// routing key is reduced to.
const partitionCount = 256

// LogBus is the partitioned, at-least-once log bus (backed by
// github.com/twmb/franz-go/pkg/kgo in production).
type LogBus interface {
	Produce(ctx context.Context, key string, value []byte) error
}

// AMQPBus is the exchange/routing-key bus (backed by
// github.com/rabbitmq/amqp091-go in production).
type AMQPBus interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Result pairs the two buses' errors. Publish does not build one; it
// returns a single error.
type Result struct {
	LogBusErr  error
	AMQPBusErr error
}

// Publisher publishes the same payload to both buses concurrently.
type Publisher struct {
	logBus        LogBus
	amqpBus       AMQPBus
	requireBoth   bool
	log           *zap.Logger
}

// New builds a Publisher. requireBoth mirrors
// gateway.require_log_bus_ack: when true (the default), a failure on
// either bus fails the request; when false, a log-bus failure alone is
// logged and swallowed.
func New(logBus LogBus, amqpBus AMQPBus, requireBoth bool, log *zap.Logger) *Publisher {
	return &Publisher{logBus: logBus, amqpBus: amqpBus, requireBoth: requireBoth, log: log}
}

// Publish sends payload to both buses. appID and deviceIDCleartext
// (empty when no device-id is known) derive each bus's partitioning.
func (p *Publisher) Publish(ctx context.Context, appID, deviceIDCleartext string, payload []byte) error {
	logCtx, logCancel := context.WithTimeout(ctx, perPublishTimeout)
	defer logCancel()
	amqpCtx, amqpCancel := context.WithTimeout(ctx, perPublishTimeout)
	defer amqpCancel()

	type outcome struct {
		bus string
		err error
	}
	results := make(chan outcome, 2)

	go func() {
		start := time.Now()
		err := p.logBus.Produce(logCtx, logBusKey(appID, deviceIDCleartext), payload)
		metrics.BusPublishDuration.WithLabelValues("log").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.BusPublishFailures.WithLabelValues("log").Inc()
		}
		results <- outcome{"log", err}
	}()
	go func() {
		start := time.Now()
		err := p.amqpBus.Publish(amqpCtx, routingKeyFor(deviceIDCleartext, p.log), payload)
		metrics.BusPublishDuration.WithLabelValues("amqp").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.BusPublishFailures.WithLabelValues("amqp").Inc()
		}
		results <- outcome{"amqp", err}
	}()

	var logErr, amqpErr error
	for i := 0; i < 2; i++ {
		o := <-results
		switch o.bus {
		case "log":
			logErr = o.err
		case "amqp":
			amqpErr = o.err
		}
	}

	if amqpErr != nil {
		return amqpErr
	}
	if logErr != nil {
		if p.requireBoth {
			return logErr
		}
		if p.log != nil {
			p.log.Warn("publish: log bus failed, swallowing per configuration", zap.String("app_id", appID), zap.Error(logErr))
		}
	}
	return nil
}

// logBusKey builds the log bus's partitioning key. An empty
// device-id cleartext yields an empty key, which producers map to a
// server-side random partition.
func logBusKey(appID, deviceIDCleartext string) string {
	if deviceIDCleartext == "" {
		return ""
	}
	return appID + "|" + deviceIDCleartext
}

// routingKeyFor reduces the device-id UUID's 24:28 hex slice to a
// routing key in [0, partitionCount). Any parse failure (including an
// unknown device-id) falls back to "0" with a warning.
func routingKeyFor(deviceIDCleartext string, log *zap.Logger) string {
	if len(deviceIDCleartext) < 28 {
		if log != nil {
			log.Warn("publish: device-id too short for routing key, defaulting to 0", zap.String("device_id", deviceIDCleartext))
		}
		return "0"
	}
	slice := deviceIDCleartext[24:28]
	v, err := strconv.ParseUint(slice, 16, 32)
	if err != nil {
		if log != nil {
			log.Warn("publish: device-id routing slice not hex, defaulting to 0", zap.String("slice", slice))
		}
		return "0"
	}
	return strconv.FormatUint(v%partitionCount, 10)
}
