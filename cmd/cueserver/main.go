// Command cueserver runs the cue fan-out server: the Publish and Listen
// Endpoints, Key Provisioning, and the web collaborator surface, all
// backed by a single Redis instance acting as both Key Store and Event
// Bus.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/faat/cue/internal/api"
	"github.com/faat/cue/internal/authn"
	"github.com/faat/cue/internal/config"
	"github.com/faat/cue/internal/dispatcher"
	"github.com/faat/cue/internal/eventbus"
	"github.com/faat/cue/internal/keystore"
	"github.com/faat/cue/internal/logging"
	"github.com/faat/cue/internal/metrics"
	"github.com/faat/cue/internal/registry"
	"github.com/faat/cue/internal/web"
	"github.com/faat/cue/internal/websession"
)

func main() {
	cfg := config.Parse()

	logFormat := "json"
	if cfg.Debug {
		logFormat = "console"
	}
	logging.Init(logging.Config{Level: logLevel(cfg), Format: logFormat, TimeFormat: time.RFC3339})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("cueserver: invalid configuration")
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("cueserver: invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("cueserver: could not reach redis")
	}

	store := keystore.New(rdb, cfg.KeyRequestTTL)
	bus := eventbus.New(rdb)
	reg := registry.New()
	auth := authn.New(store)
	met := metrics.New("cue")

	disp := dispatcher.New(bus, reg, met)
	dispDone := make(chan struct{})
	go func() {
		disp.Run(ctx)
		close(dispDone)
	}()

	mux := http.NewServeMux()
	apiServer := api.New(cfg, store, auth, bus, reg, met)
	apiServer.Routes(mux)

	sessions := websession.New(cfg)
	web.New(cfg, apiServer, sessions).Routes(mux)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           met.Instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("cueserver: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("cueserver: http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("cueserver: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("cueserver: http server shutdown error")
	}

	// Await the dispatcher's own cancellation so in-flight sends can
	// complete or error out cleanly before the process exits.
	select {
	case <-dispDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("cueserver: dispatcher did not stop within grace period")
	}
}

func logLevel(cfg *config.Config) string {
	if cfg.Debug {
		return "debug"
	}
	return "info"
}
