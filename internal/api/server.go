package api

import (
	"context"
	"fmt"
	"net/http"

	"tradelink/internal/engine"
	"tradelink/internal/settings"
	"tradelink/pkg/db"

	"github.com/gin-gonic/gin"
)

// AlertProcessor decides inbound alerts; the decision engine implements it.
type AlertProcessor interface {
	ProcessAlert(ctx context.Context, alert engine.Alert) bool
}

// Server is the local HTTP listener: the alert webhook plus a small status
// and activity-log surface.
type Server struct {
	Router *gin.Engine
	Store  *settings.Store
	Engine AlertProcessor
	DB     *db.Database
}

// NewServer builds the router with the full middleware stack.
func NewServer(store *settings.Store, eng AlertProcessor, database *db.Database) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())

	s := &Server{
		Router: r,
		Store:  store,
		Engine: eng,
		DB:     database,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/", s.home)
	s.Router.POST("/alert/:license_key", s.postAlert)
	s.Router.GET("/logs", s.getLogs)
}

func (s *Server) home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

func (s *Server) getLogs(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusOK, gin.H{"logs": []db.LogEntry{}})
		return
	}
	entries, err := s.DB.RecentLogLines(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "activity log unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// Start serves on the configured host/port, with TLS when the operator
// provided a certificate. Blocks until the listener fails.
func (s *Server) Start(cfg settings.ServerConfig) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if cfg.UseSSL && cfg.CertFile != "" && cfg.KeyFile != "" {
		return s.Router.RunTLS(addr, cfg.CertFile, cfg.KeyFile)
	}
	return s.Router.Run(addr)
}
