// Package api exposes the read-only monitor REST API: room and client
// state, battle history, and a kick control. It observes the relay; it
// never participates in the game protocol.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/colonyrelay-project/colonyrelay/internal/config"
	"github.com/colonyrelay-project/colonyrelay/internal/db"
	intnet "github.com/colonyrelay-project/colonyrelay/internal/network"
	"github.com/colonyrelay-project/colonyrelay/internal/relay"
	"github.com/colonyrelay-project/colonyrelay/internal/util"
)

// Server is the monitor REST API server.
type Server struct {
	cfg     *config.Config
	relay   *relay.Server
	history *db.History
	version string

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. history may be nil when the
// history database is disabled.
func NewServer(cfg *config.Config, relaySrv *relay.Server, history *db.History, version string) *Server {
	if cfg.Application.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:     cfg,
		relay:   relaySrv,
		history: history,
		version: version,
	}
}

// Start initializes and runs the API server until the context is
// cancelled. A zero port disables the API cleanly.
func (s *Server) Start(ctx context.Context) error {
	port := s.cfg.Application.APIPort
	if port == 0 {
		log.Info().Msg("API disabled (port 0)")
		<-ctx.Done()
		return nil
	}

	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// SO_REUSEADDR for immediate rebinding after restart
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("monitor API starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/status", s.handleStatus)
	}

	monitor := router.Group("/api/monitor")
	{
		monitor.GET("/rooms", s.handleGetRooms)
		monitor.GET("/rooms/:id", s.handleGetRoom)
		monitor.GET("/clients", s.handleGetClients)
		monitor.GET("/battles", s.handleGetBattles)
	}

	control := router.Group("/api/control")
	{
		control.POST("/kick/:client_id", s.handleKick)
	}

	return router
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	rooms, clients := s.relay.Manager().Counts()
	used, total := util.MemoryUsage()

	c.JSON(http.StatusOK, gin.H{
		"version":         s.version,
		"uptime_seconds":  int(time.Since(s.relay.StartedAt()).Seconds()),
		"rooms":           rooms,
		"clients":         clients,
		"sessions":        s.relay.SessionCount(),
		"system":          util.GetSystemInfo(),
		"cpu_percent":     util.CPUPercent(),
		"memory_used_mb":  used,
		"memory_total_mb": total,
	})
}

func (s *Server) handleGetRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.relay.Manager().RoomsInfo()})
}

func (s *Server) handleGetRoom(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	info, ok := s.relay.Manager().RoomInfoByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleGetClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": s.relay.Manager().ClientsInfo()})
}

func (s *Server) handleGetBattles(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}

	limit := 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	battles, err := s.history.RecentBattles(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"battles": battles})
}

func (s *Server) handleKick(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("client_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return
	}

	if !s.relay.Kick(c.Request.Context(), uint32(id)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": id})
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
