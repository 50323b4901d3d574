// Package api exposes the cache engine's operational surface over HTTP:
// metrics, analytics, optimization, invalidation, warming and the
// Prometheus scrape endpoint.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siderealhq/astrocache/pkg/cache"
	"github.com/siderealhq/astrocache/pkg/observability"
)

// Server wraps the gin router serving the ops API.
type Server struct {
	engine *cache.Engine
	logger observability.Logger
	router *gin.Engine
}

// NewServer builds the router. promMetrics may be nil when Prometheus
// export is not wired.
func NewServer(engine *cache.Engine, logger observability.Logger, promMetrics *observability.PrometheusMetrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		logger: logger,
		router: router,
	}

	router.GET("/healthz", s.health)

	v1 := router.Group("/v1/cache")
	v1.GET("/metrics", s.metrics)
	v1.GET("/analytics", s.analytics)
	v1.POST("/optimize", s.optimize)
	v1.POST("/invalidate", s.invalidate)
	v1.POST("/warm", s.warm)

	if promMetrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			promMetrics.Registry(), promhttp.HandlerOpts{})))
	}

	return s
}

// Handler returns the http.Handler for embedding into an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	snap := s.engine.Metrics(false)
	status := http.StatusOK
	// A degraded L2 is not fatal; the engine keeps serving from L1.
	c.JSON(status, gin.H{
		"status": "ok",
		"l2":     snap.L2,
	})
}

func (s *Server) metrics(c *gin.Context) {
	reset := c.Query("reset") == "true"
	c.JSON(http.StatusOK, s.engine.Metrics(reset))
}

func (s *Server) analytics(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Analytics(c.Request.Context()))
}

func (s *Server) optimize(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Optimize(c.Request.Context()))
}

type invalidateRequest struct {
	Pattern  string `json:"pattern" binding:"required"`
	Strategy string `json:"strategy"`
}

func (s *Server) invalidate(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	strategy := cache.InvalidationStrategy(req.Strategy)
	if req.Strategy == "" {
		strategy = cache.InvalidationPatternBased
	}

	count, err := s.engine.InvalidatePattern(c.Request.Context(), req.Pattern, strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": count})
}

type warmRequest struct {
	Strategy string            `json:"strategy" binding:"required"`
	Request  cache.WarmRequest `json:"request"`
}

func (s *Server) warm(c *gin.Context) {
	var req warmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := s.engine.WarmCache(c.Request.Context(), cache.WarmingStrategy(req.Strategy), req.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
