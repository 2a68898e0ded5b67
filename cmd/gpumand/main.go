package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gpumand/internal/config"
	"gpumand/internal/httpapi"
	"gpumand/internal/lifecycle"
	"gpumand/internal/lock"
	"gpumand/internal/orchestrator"
	"gpumand/internal/registry"
	"gpumand/internal/tracker"
)

// readyState reports true when a fresh VRAM snapshot, taken on each call,
// succeeds, satisfying httpapi.Readyer for /readyz.
type readyState struct {
	tr tracker.Tracker
}

func (r *readyState) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := r.tr.Snapshot(ctx)
	return err == nil
}

func main() {
	defaultAddr := ":8080"
	if v := os.Getenv("GPUMAND_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", os.Getenv("GPUMAND_CONFIG"), "Path to the service registry config (yaml/json/toml); empty uses the built-in defaults")
	deviceIndex := flag.Uint("device-index", 0, "NVML device index to track")
	redisURL := flag.String("redis-url", envOr("GPUMAND_REDIS_URL", "redis://localhost:6379/0"), "Redis connection URL for the distributed lock")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	httpapi.SetLogger(logger)

	vramReserveMB := config.DefaultVRAMReserveMB
	defaultLockTTL := time.Duration(config.DefaultLockTTLSeconds) * time.Second

	descs := registry.Defaults()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if int(*deviceIndex) == 0 && cfg.DeviceIndex != 0 {
			*deviceIndex = uint(cfg.DeviceIndex)
		}
		if cfg.Addr != "" {
			*addr = cfg.Addr
		}
		if cfg.RedisURL != "" {
			*redisURL = cfg.RedisURL
		}
		vramReserveMB = cfg.VRAMReserveMB
		defaultLockTTL = time.Duration(cfg.DefaultLockTTLS) * time.Second
		descs = cfg.Services
	}

	reg, err := registry.New(descs)
	if err != nil {
		log.Fatalf("failed to build registry: %v", err)
	}

	gpuTracker := tracker.NewNVMLTracker(*deviceIndex)
	lifecycleMgr := lifecycle.NewManager(reg)
	lockStore, err := lock.NewRedisStore(*redisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	orch := orchestrator.New(gpuTracker, reg, lifecycleMgr, lockStore, vramReserveMB, defaultLockTTL, orchestrator.NewLogPublisher(logger))

	httpapi.SetBaseContext(context.Background())
	mux := httpapi.NewMux(orch, &readyState{tr: gpuTracker})
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", *addr).Msg("gpumand listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := gpuTracker.Close(); err != nil {
		logger.Warn().Err(err).Msg("tracker close error")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
