// Package httpapi is the presentation surface: user intents in, pool
// snapshots out. It holds no session state of its own.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loopgrid/loopgrid/internal/app"
	"github.com/loopgrid/loopgrid/internal/config"
)

type Server struct {
	ctx      context.Context
	pool     *app.Pool
	controls *app.GlobalControls
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, pool *app.Pool, controls *app.GlobalControls) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LoopgridSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	s := &Server{ctx: ctx, pool: pool, controls: controls}

	api := r.Group("/api")
	api.GET("/state", s.handleState)
	api.GET("/ws/state", s.handleStateWS)

	loops := api.Group("/loops/:slot")
	loops.POST("/join", s.handleJoin)
	loops.POST("/leave", s.handleLeave)
	loops.POST("/mic", s.handleToggleMic)
	loops.POST("/video", s.handleToggleVideo)
	loops.POST("/audio", s.handleToggleAudio)
	loops.POST("/chat", s.handleChat)
	loops.POST("/detail", s.handleSelectDetail)
	api.DELETE("/detail", s.handleClearDetail)

	controlsGrp := api.Group("/controls")
	controlsGrp.POST("/mic", s.handleGlobalMic)
	controlsGrp.POST("/speaker", s.handleGlobalSpeaker)
	controlsGrp.POST("/video", s.handleGlobalVideo)
	controlsGrp.POST("/drop", s.handleDrop)

	log.Info().Str("module", "httpapi").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func (s *Server) slot(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil || slot < 0 || slot >= s.pool.Size() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot"})
		return 0, false
	}
	return slot, true
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loops":  s.pool.Snapshots(),
		"detail": s.pool.DetailSlot(),
		"controls": gin.H{
			"micMuted":     s.controls.MicMuted(),
			"speakerMuted": s.controls.SpeakerMuted(),
			"videoEnabled": s.controls.VideoEnabled(),
			"dropGen":      s.controls.DropGeneration(),
		},
	})
}

// handleJoin kicks the join off and returns immediately; the client
// watches the state stream for the joining→joined transition.
func (s *Server) handleJoin(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	go func() {
		if err := s.pool.Join(s.ctx, slot); err != nil {
			log.Warn().Err(err).Str("module", "httpapi").Int("slot", slot).Msg("join")
		}
	}()
	c.Status(http.StatusAccepted)
}

func (s *Server) handleLeave(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	_ = s.pool.Leave(slot)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleToggleMic(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	if err := s.pool.ToggleMic(c.Request.Context(), slot); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleToggleVideo(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	if err := s.pool.ToggleVideo(c.Request.Context(), slot); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleToggleAudio(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	_ = s.pool.ToggleAudioOutput(slot)
	c.Status(http.StatusNoContent)
}

type chatRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleChat(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing text"})
		return
	}
	if err := s.pool.SendChat(c.Request.Context(), slot, req.Text); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSelectDetail(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	_ = s.pool.SelectDetail(slot)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearDetail(c *gin.Context) {
	s.pool.ClearDetail()
	c.Status(http.StatusNoContent)
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleGlobalMic(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing muted"})
		return
	}
	s.controls.SetMicMuted(req.Muted)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGlobalSpeaker(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing muted"})
		return
	}
	s.controls.SetSpeakerMuted(req.Muted)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGlobalVideo(c *gin.Context) {
	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing enabled"})
		return
	}
	s.controls.SetVideoEnabled(req.Enabled)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDrop(c *gin.Context) {
	s.controls.Drop()
	c.Status(http.StatusNoContent)
}
