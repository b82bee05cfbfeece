package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/config"
	"github.com/mossy-p/webrtc-signaling/internal/handlers"
	"github.com/mossy-p/webrtc-signaling/internal/logging"
	"github.com/mossy-p/webrtc-signaling/internal/redis"
	"github.com/mossy-p/webrtc-signaling/internal/store"
	"github.com/mossy-p/webrtc-signaling/internal/transport"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("development", "info")
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.Environment, cfg.LogLevel)

	// Connect to Redis
	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr()).Msg("failed to connect to Redis")
	}
	defer rdb.Close()

	log.Info().Str("addr", cfg.Redis.Addr()).Msg("Redis connection established")

	relays := transport.NewProvider(func() (transport.Transport, error) {
		return transport.NewRedis(rdb), nil
	})
	defer func() {
		if err := relays.Teardown(); err != nil {
			log.Warn().Err(err).Msg("failed to close relay")
		}
	}()

	var relay transport.Transport
	if cfg.Relay == config.RelayRedis {
		if relay, err = relays.GetOrCreate(); err != nil {
			log.Fatal().Err(err).Msg("failed to open relay")
		}
	}

	h := handlers.NewHandler(
		store.NewRooms(rdb, cfg.RoomTTL),
		handlers.NewHub(relay),
		cfg.MaxRoomConnections,
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.SetupRouter(cfg, h),
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("relay", cfg.Relay).Msg("call signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
