// Package server exposes the Anthropic-dialect HTTP surface and drives
// the translators against the upstream.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/anthropic-proxy/internal/config"
	"github.com/tingly-dev/anthropic-proxy/internal/server/middleware"
	"github.com/tingly-dev/anthropic-proxy/internal/upstream"
)

// Upstream is the backend surface the handlers consume. *upstream.Client
// implements it; tests plug in fakes.
type Upstream interface {
	Complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
	StreamComplete(ctx context.Context, params openai.ChatCompletionNewParams) upstream.ChunkStream
	Forward(ctx context.Context, body []byte) (*http.Response, error)
}

// Server owns the router, the upstream and the per-request state shared
// across handlers.
type Server struct {
	cfg      *config.Config
	upstream Upstream
	registry *Registry
	metrics  *Metrics
	engine   *gin.Engine
}

// New wires the routes. The caller picks the upstream implementation.
func New(cfg *config.Config, up Upstream) *Server {
	if cfg.LogLevel >= logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		upstream: up,
		registry: NewRegistry(),
		metrics:  NewMetrics(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.metrics.Middleware())

	engine.GET("/", s.handleRoot)
	engine.GET("/health", s.handleHealth)
	engine.GET("/test-connection", s.handleTestConnection)
	engine.GET("/metrics", s.handleMetrics)

	auth := middleware.Auth(cfg.AnthropicAPIKey)
	v1 := engine.Group("/v1", auth)
	v1.POST("/messages", s.handleMessages)
	v1.POST("/messages/count_tokens", s.handleCountTokens)
	v1.POST("/chat/completions", s.handleOpenAIPassthrough)
	v1.POST("/requests/:id/cancel", s.handleCancelRequest)

	s.engine = engine
	return s
}

// Router exposes the engine for tests and for Run.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	logrus.WithFields(logrus.Fields{
		"addr":        s.cfg.Addr(),
		"big_model":   s.cfg.BigModel,
		"small_model": s.cfg.SmallModel,
		"client_auth": s.cfg.ClientAuthEnabled(),
	}).Info("starting proxy")
	return s.engine.Run(s.cfg.Addr())
}
