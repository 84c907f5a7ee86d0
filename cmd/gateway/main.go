package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/sdkgateway/ingress/internal/admission"
	"github.com/sdkgateway/ingress/internal/config"
	"github.com/sdkgateway/ingress/internal/enrich"
	"github.com/sdkgateway/ingress/internal/geoip"
	"github.com/sdkgateway/ingress/internal/gwcrypto"
	"github.com/sdkgateway/ingress/internal/httpapi"
	"github.com/sdkgateway/ingress/internal/identitystore"
	"github.com/sdkgateway/ingress/internal/logging"
	"github.com/sdkgateway/ingress/internal/publish"
	"github.com/sdkgateway/ingress/internal/refresh"
	"github.com/sdkgateway/ingress/internal/registry"
	"github.com/sdkgateway/ingress/internal/resolver"
	"github.com/sdkgateway/ingress/internal/workerpool"
)

func main() {
	log.Println("Starting sdk-gateway...")

	configPath := os.Getenv("GATEWAY_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(os.Getenv("ENV"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if config.App.Postgres.DSN == "" {
		logger.Fatal("postgres.dsn (or REGISTRY_DSN) is required")
	}
	pg, err := sql.Open("postgres", config.App.Postgres.DSN)
	if err != nil {
		logger.Fatal("opening postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Ping(); err != nil {
		logger.Fatal("pinging postgres", zap.Error(err))
	}
	logger.Info("connected to postgres")

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.App.Redis.Addr,
		Password: config.App.Redis.Password,
		DB:       config.App.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("pinging redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	secretRaw, err := base64.URLEncoding.DecodeString(config.App.Gateway.DeviceIDSecretB64)
	if err != nil {
		logger.Fatal("decoding gateway.device_id_secret_base64", zap.Error(err))
	}
	sealer, err := gwcrypto.NewSealer(secretRaw)
	if err != nil {
		logger.Fatal("building sealer", zap.Error(err))
	}

	var geo geoip.CountryLookup = geoip.Noop{}
	if config.App.GeoIP.DBPath != "" {
		reader, err := geoip.Open(config.App.GeoIP.DBPath)
		if err != nil {
			logger.Fatal("opening geoip database", zap.Error(err))
		}
		defer reader.Close()
		geo = reader
	}

	logBus, closeLogBus := mustLogBus(logger)
	defer closeLogBus()

	amqpBus, closeAMQPBus := mustAMQPBus(logger)
	defer closeAMQPBus()

	reg := registry.New()
	store := registry.NewStore(pg)
	refreshLoop := refresh.New(reg, store, time.Duration(config.App.Gateway.RegistryRefreshSec)*time.Second, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := refreshLoop.InitialLoad(ctx); err != nil {
		logger.Fatal("initial registry load failed", zap.Error(err))
	}
	logger.Info("initial registry load complete")
	go refreshLoop.Run(ctx)
	defer refreshLoop.Stop()

	identity := identitystore.New(rdb, logger)
	adm := admission.New(reg, config.App.Gateway.DefaultToken, config.App.Gateway.AllowEmptySignature)
	res := resolver.New(sealer, identity, config.App.Gateway.RegisterEventName)
	enr := enrich.New(geo, config.App.Gateway.FeedName, logger)
	pub := publish.New(logBus, amqpBus, config.App.Gateway.RequireLogBusAck, logger)

	pool := workerpool.New(config.App.Gateway.WorkerPoolSize)
	defer pool.Close()

	server := httpapi.New(httpapi.Deps{
		Registry:      reg,
		Sealer:        sealer,
		Admission:     adm,
		Resolver:      res,
		Enricher:      enr,
		Publisher:     pub,
		Pool:          pool,
		RegisterEvent: config.App.Gateway.RegisterEventName,
		LastRefresh:   refreshLoop.LastRefresh,
		Log:           logger,
		CORS:          config.App.CORS,
	})

	httpServer := &http.Server{
		Addr:    ":" + config.App.Gateway.Port,
		Handler: server.Router(config.App.Gateway.IngestPath),
	}

	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(config.App.Gateway.ShutdownGraceSec)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func mustLogBus(logger *zap.Logger) (publish.LogBus, func()) {
	if len(config.App.Kafka.Brokers) == 0 {
		logger.Warn("kafka.brokers not configured, log bus publishes are no-ops")
		return noopLogBus{}, func() {}
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(config.App.Kafka.Brokers...))
	if err != nil {
		logger.Fatal("building kafka client", zap.Error(err))
	}
	return publish.NewKafkaLogBus(client, config.App.Kafka.Topic), client.Close
}

func mustAMQPBus(logger *zap.Logger) (publish.AMQPBus, func()) {
	if config.App.RabbitMQ.Host == "" {
		logger.Warn("rabbitmq.host not configured, AMQP bus publishes are no-ops")
		return noopAMQPBus{}, func() {}
	}
	conn, err := amqp.Dial(rabbitURL())
	if err != nil {
		logger.Fatal("dialing rabbitmq", zap.Error(err))
	}
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("opening rabbitmq channel", zap.Error(err))
	}
	return publish.NewRabbitBus(ch, config.App.RabbitMQ.Exchange), func() {
		ch.Close()
		conn.Close()
	}
}

func rabbitURL() string {
	c := config.App.RabbitMQ
	return "amqp://" + c.Login + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.VHost
}

type noopLogBus struct{}

func (noopLogBus) Produce(ctx context.Context, key string, value []byte) error { return nil }

type noopAMQPBus struct{}

func (noopAMQPBus) Publish(ctx context.Context, routingKey string, body []byte) error { return nil }
