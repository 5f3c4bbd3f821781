package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openai/openai-go/v3"

	"github.com/tingly-dev/anthropic-proxy/internal/upstream"
)

// Version is stamped at build time.
var Version = "dev"

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "anthropic-proxy",
		"version": Version,
		"config": gin.H{
			"base_url":           s.cfg.OpenAIBaseURL,
			"big_model":          s.cfg.BigModel,
			"small_model":        s.cfg.SmallModel,
			"preferred_provider": s.cfg.PreferredProvider,
			"max_tokens_limit":   s.cfg.MaxTokensLimit,
			"client_auth":        s.cfg.ClientAuthEnabled(),
		},
		"endpoints": []string{
			"POST /v1/messages",
			"POST /v1/messages/count_tokens",
			"POST /v1/chat/completions",
			"POST /v1/requests/:id/cancel",
			"GET /health",
			"GET /test-connection",
			"GET /metrics",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleTestConnection probes the upstream with a one-token completion
// so deployments can verify credentials without a real client.
func (s *Server) handleTestConnection(c *gin.Context) {
	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(s.cfg.SmallModel),
		MaxTokens: openai.Opt[int64](1),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("ping"),
		},
	}

	resp, err := s.upstream.Complete(c.Request.Context(), params)
	if err != nil {
		cls := upstream.Classify(err)
		c.JSON(cls.Status, gin.H{
			"status":  "error",
			"error":   cls.Message,
			"message": "Upstream connection failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"model":    s.cfg.SmallModel,
		"response": resp.ID,
	})
}
