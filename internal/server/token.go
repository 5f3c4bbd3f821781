package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
)

// handleCountTokens serves POST /v1/messages/count_tokens with the
// character/4 estimate. The endpoint never calls the upstream.
func (s *Server) handleCountTokens(c *gin.Context) {
	var req protocol.TokenCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(protocol.ErrKindBadRequest, "invalid request body: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, protocol.TokenCountResponse{
		InputTokens: EstimateTokens(&req),
	})
}

// EstimateTokens sums the character lengths of every text string in the
// request and divides by four, with a floor of one token.
func EstimateTokens(req *protocol.TokenCountRequest) int64 {
	chars := 0

	if req.System.Set {
		if req.System.IsText {
			chars += len(req.System.Text)
		} else {
			for _, b := range req.System.Blocks {
				if b.Type == protocol.BlockTypeText {
					chars += len(b.Text)
				}
			}
		}
	}

	for _, msg := range req.Messages {
		if msg.Content.IsText {
			chars += len(msg.Content.Text)
			continue
		}
		for _, b := range msg.Content.Blocks {
			if b.Type == protocol.BlockTypeText {
				chars += len(b.Text)
			}
		}
	}

	tokens := int64(chars / 4)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
