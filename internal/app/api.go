package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	v1 "github.com/jaennil/plateserve/internal/infrastructure/http/v1"
	"github.com/jaennil/plateserve/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/plateserve/internal/remote"
	"github.com/jaennil/plateserve/internal/repository/blob"
	"github.com/jaennil/plateserve/internal/repository/index"
	"github.com/jaennil/plateserve/internal/repository/payload"
	"github.com/jaennil/plateserve/internal/usecase"
	"github.com/jaennil/plateserve/pkg/config"
	"github.com/jaennil/plateserve/pkg/http_server"
	"github.com/jaennil/plateserve/pkg/logger"
	"github.com/jaennil/plateserve/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)
	defer l.Sync()

	l.Info("app config", "cfg", cfg)

	var shutdownTelemetry func(context.Context) error
	if cfg.Telemetry.Enabled {
		var err error
		shutdownTelemetry, err = telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
	}

	// The index cache dials lazily; every restart gets a fresh exclusive
	// reply queue on the broker.
	indexCfg := cfg.Index
	dial := func() (index.RemoteClient, error) {
		identity := "plateserve." + uuid.NewString()
		return remote.Dial(indexCfg.URL, identity, indexCfg.Service, indexCfg.Timeout, indexCfg.Tries, l)
	}

	indexCache := index.NewCache(dial, l)
	defer indexCache.Close()

	blobCache := blob.NewCache(l)

	payloadCache, err := newPayloadCache(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize payload cache", "error", err)
	}

	resolver := usecase.NewTileResolver(indexCache, blobCache, l)

	validate := validator.New()
	h := handler.NewHandler(validate, resolver, payloadCache)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down http server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	}

	l.Info("application shutdown completed")
}

func newPayloadCache(cfg *config.Config, l logger.Logger) (payload.Cache, error) {
	switch cfg.PayloadCache.Backend {
	case "off", "":
		return nil, nil
	case "map":
		return payload.NewMapCache(), nil
	case "sqlite":
		return payload.NewSQLiteCache(cfg.PayloadCache.SQLitePath, l)
	case "redis":
		return payload.NewRedisCache(payload.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
	default:
		return nil, errors.New("unknown payload cache backend: " + cfg.PayloadCache.Backend)
	}
}
