// tokend is the credential issuer collaborator: it vends join tokens
// for the media router and TURN relay credentials.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/loopgrid/loopgrid/internal/auth"
	"github.com/loopgrid/loopgrid/internal/config"
)

type tokenRequest struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

func setupRouter(cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.POST("/token", func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Room == "" || req.Identity == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing room or identity"})
			return
		}
		tok, err := auth.MintJoinToken(cfg.Secret, req.Room, req.Identity, cfg.TokenTTL, time.Now())
		if err != nil {
			log.Error().Err(err).Str("module", "tokend").Msg("mint token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token minting failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": tok})
	})

	r.GET("/turn", func(c *gin.Context) {
		label := c.Query("label")
		if label == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing label"})
			return
		}
		c.JSON(http.StatusOK, auth.TURNCredentials(cfg.TURNSecret, label, time.Now()))
	})

	return r
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.TokendPort),
		Handler: setupRouter(cfg),
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("tokend started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
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
