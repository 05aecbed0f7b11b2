package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/loopgrid/loopgrid/internal/adapters/httpapi"
	"github.com/loopgrid/loopgrid/internal/adapters/media"
	"github.com/loopgrid/loopgrid/internal/adapters/token"
	"github.com/loopgrid/loopgrid/internal/app"
	"github.com/loopgrid/loopgrid/internal/config"
	"github.com/loopgrid/loopgrid/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, u := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}

	deps := core.SessionDeps{
		Creds:  token.NewClient(cfg.IssuerURL),
		Dialer: media.NewDialer(cfg.BackendURL),
		Opts: core.ConnectOptions{
			ICEServers:     iceServers,
			AutoReconnect:  false,
			AdaptiveStream: false,
		},
		SettleDelay: cfg.SettleDelay,
	}

	pool := app.NewPool(cfg.Slots, deps)
	for _, s := range pool.Sessions() {
		s.AttachSurfaces(
			httpapi.NewSurface(fmt.Sprintf("thumb-%d", s.Slot())),
			httpapi.NewSurface("detail"),
		)
	}

	controls := app.NewGlobalControls()
	reconciler := app.NewReconciler(ctx, pool, controls)

	r := httpapi.SetupRouter(ctx, cfg, pool, controls)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("slots", pool.Size()).Msg("Loopgrid started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	reconciler.DropAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
