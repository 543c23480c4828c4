// Package server is the HTTP facade over the knowledge base engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/regulens/vectorkb"
	"github.com/regulens/vectorkb/pkg/config"
)

// Server represents the HTTP server
type Server struct {
	config *config.Config
	router *gin.Engine
	kb     *vectorkb.Engine
	logger *slog.Logger
	server *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, kb *vectorkb.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: cfg,
		kb:     kb,
		logger: logger,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// Router exposes the gin engine for httptest.
func (s *Server) Router() *gin.Engine { return s.router }

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	h := newHandlers(s.kb, s.logger)

	// Health endpoints
	s.router.GET("/health", h.Health)
	s.router.GET("/ready", h.Ready)
	s.router.GET("/live", h.Live)

	v1 := s.router.Group("/api/v1")
	{
		entities := v1.Group("/entities")
		{
			entities.POST("", h.StoreEntity)
			entities.GET("/:id", h.GetEntity)
			entities.PATCH("/:id", h.UpdateEntity)
			entities.PATCH("/:id/confidence", h.UpdateConfidence)
			entities.DELETE("/:id", h.DeleteEntity)
			entities.GET("/:id/related", h.GetRelated)
			entities.GET("/:id/graph", h.GetGraph)
			entities.PUT("/:id/retention", h.SetRetention)
		}

		v1.POST("/search", h.Search)
		v1.POST("/search/hybrid", h.HybridSearch)
		v1.POST("/context", h.DecisionContext)

		v1.POST("/relationships", h.CreateRelationship)

		memory := v1.Group("/memory")
		{
			memory.GET("/stats", h.MemoryStats)
			memory.POST("/cleanup", h.Cleanup)
		}

		learning := v1.Group("/learning")
		{
			learning.POST("/interactions", h.RecordInteraction)
			learning.POST("/reinforce", h.Reinforce)
			learning.GET("/recommendations", h.Recommendations)
		}

		analytics := v1.Group("/analytics")
		{
			analytics.GET("/domains/:domain", h.DomainStats)
			analytics.GET("/popular", h.PopularEntities)
			analytics.GET("/confidence", h.ConfidenceDistribution)
		}

		v1.GET("/snapshot", h.ExportSnapshot)
		v1.POST("/snapshot", h.ImportSnapshot)

		v1.POST("/admin/optimize", h.Optimize)
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
