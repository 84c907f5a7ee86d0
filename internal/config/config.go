// Package config loads the gateway's TOML configuration file and
// environment overlay into a single process-wide Config value.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all gateway configuration.
type Config struct {
	Gateway  GatewayConfig   `mapstructure:"gateway"`
	Postgres PostgresConfig  `mapstructure:"postgres"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Kafka    KafkaConfig     `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig  `mapstructure:"rabbitmq"`
	GeoIP    GeoIPConfig     `mapstructure:"geoip"`
	CORS     CORSConfig      `mapstructure:"cors"`
	Origins  []OriginConfig  `mapstructure:"origins"`
	TestApps []TestAppConfig `mapstructure:"test_apps"`
}

// GatewayConfig holds the gateway's top-level runtime settings.
type GatewayConfig struct {
	Threads             int    `mapstructure:"threads"`
	ProcessNamePrefix    string `mapstructure:"process_name_prefix"`
	DefaultToken        string `mapstructure:"default_token"`
	AllowEmptySignature bool   `mapstructure:"allow_empty_signature"`
	RequireLogBusAck    bool   `mapstructure:"require_log_bus_ack"`
	IngestPath          string `mapstructure:"ingest_path"`
	Port                string `mapstructure:"port"`
	ShutdownGraceSec    int    `mapstructure:"shutdown_grace_seconds"`
	RegistryRefreshSec  int    `mapstructure:"registry_refresh_seconds"`
	FeedName            string `mapstructure:"feed_name"`
	RegisterEventName   string `mapstructure:"register_event_name"`
	DeviceIDSecretB64   string `mapstructure:"device_id_secret_base64"`
	WorkerPoolSize      int    `mapstructure:"worker_pool_size"`
}

// RedisConfig is the identity store's backing KV (C3).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GeoIPConfig points at the optional MaxMind database. DBPath empty
// means geoip.Noop{} is used and no country is ever resolved.
type GeoIPConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// PostgresConfig is the registry backend: a relational store standing
// in for the original wide-column database, reachable through the
// same database/sql + lib/pq stack DESIGN.md explains the choice of.
type PostgresConfig struct {
	DSN        string `mapstructure:"dsn"`
	ManageApps bool   `mapstructure:"manage_apps"`
}

// KafkaConfig is the log bus (C8).
type KafkaConfig struct {
	Topic   string   `mapstructure:"topic"`
	Brokers []string `mapstructure:"brokers"`
}

// RabbitMQConfig is the AMQP bus (C8).
type RabbitMQConfig struct {
	Exchange string `mapstructure:"exchange"`
	VHost    string `mapstructure:"vhost"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Login    string `mapstructure:"login"`
	Password string `mapstructure:"password"`
}

// CORSConfig backs the wildcard preflight response (C5/C9).
type CORSConfig struct {
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// OriginConfig is one app's web CORS allow-list.
type OriginConfig struct {
	AppID   string   `mapstructure:"app_id"`
	Allowed []string `mapstructure:"allowed"`
}

// TestAppConfig seeds the registry for development (ENV=development only).
type TestAppConfig struct {
	AppID        string `mapstructure:"app_id"`
	Token        string `mapstructure:"token"`
	SecretIOS    string `mapstructure:"secret_ios"`
	SecretAndroid string `mapstructure:"secret_android"`
	SecretWeb    string `mapstructure:"secret_web"`
}

// App holds the global config instance, loaded once at startup.
var App Config

// LoadConfig loads the TOML config file (if any) and overlays
// environment variables: a `.env` convenience load for local
// development, explicit `BindEnv` calls for every externally
// documented variable, then `AutomaticEnv` as a catch-all.
func LoadConfig(path string) error {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env file")
	}

	v := viper.New()

	v.SetDefault("gateway.threads", 64)
	v.SetDefault("gateway.default_token", "")
	v.SetDefault("gateway.allow_empty_signature", false)
	v.SetDefault("gateway.require_log_bus_ack", true)
	v.SetDefault("gateway.ingest_path", "/")
	v.SetDefault("gateway.port", "8080")
	v.SetDefault("gateway.shutdown_grace_seconds", 30)
	v.SetDefault("gateway.registry_refresh_seconds", 60)
	v.SetDefault("gateway.feed_name", "sdk-gateway")
	v.SetDefault("gateway.register_event_name", "device.registered")
	v.SetDefault("gateway.worker_pool_size", 16)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cors.allowed_methods", []string{"POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"X-Api-Token", "X-Signature", "X-Device-Id", "X-Real-IP", "Content-Type"})

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("gateway")
		v.SetConfigType("toml")
	}

	_ = v.BindEnv("gateway.port", "PORT")
	_ = v.BindEnv("gateway.device_id_secret_base64", "SECRET")
	_ = v.BindEnv("postgres.dsn", "REGISTRY_DSN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("rabbitmq.login", "RABBITMQ_LOGIN")
	_ = v.BindEnv("rabbitmq.password", "RABBITMQ_PASSWORD")
	_ = v.BindEnv("gateway.worker_pool_size", "WORKER_POOL_SIZE")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("no config file found, using defaults and environment variables")
		} else {
			return fmt.Errorf("reading config: %w", err)
		}
	} else {
		log.Printf("loaded config from: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&App); err != nil {
		return fmt.Errorf("unmarshalling config: %w", err)
	}

	return validateDevOnlyFlags(os.Getenv("ENV"), App)
}

// validateDevOnlyFlags refuses the development-only escape hatches —
// empty-signature mode and hard-coded test apps — at startup whenever
// ENV is not "development".
func validateDevOnlyFlags(env string, cfg Config) error {
	if env == "development" {
		return nil
	}
	if cfg.Gateway.AllowEmptySignature {
		return fmt.Errorf("gateway.allow_empty_signature is refused outside ENV=development (got ENV=%q)", env)
	}
	if len(cfg.TestApps) > 0 {
		return fmt.Errorf("test_apps is refused outside ENV=development (got ENV=%q)", env)
	}
	return nil
}
