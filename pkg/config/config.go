package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP         HTTP         `envPrefix:"HTTP_"`
		Logger       Logger       `envPrefix:"LOGGER_"`
		Index        Index        `envPrefix:"INDEX_"`
		PayloadCache PayloadCache `envPrefix:"PAYLOAD_CACHE_"`
		Redis        Redis        `envPrefix:"REDIS_"`
		Telemetry    Telemetry    `envPrefix:"TELEMETRY_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `envPrefix:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL,required"`
	}

	// Index describes how to reach the remote index service. The URL scheme
	// selects the channel transport (amqp, tcp, ipc or inproc).
	Index struct {
		URL     string        `env:"URL,required"`
		Service string        `env:"SERVICE" envDefault:"index"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"1s"`
		Tries   int           `env:"TRIES" envDefault:"5"`
	}

	PayloadCache struct {
		Backend    string `env:"BACKEND" envDefault:"off"`
		SQLitePath string `env:"SQLITE_PATH" envDefault:"payload_cache.db"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"plateserve"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
