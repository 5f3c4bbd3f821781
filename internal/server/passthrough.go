package server

import (
	"bufio"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
)

// handleOpenAIPassthrough forwards POST /v1/chat/completions bodies to
// the upstream verbatim, only rewriting a routed model name. Streaming
// bodies are relayed line by line.
func (s *Server) handleOpenAIPassthrough(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(protocol.ErrKindBadRequest, "failed to read request body"))
		return
	}
	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(protocol.ErrKindBadRequest, "invalid JSON in request body"))
		return
	}

	// Claude-flavored model names are rewritten even on the raw path so
	// agent tooling can point both endpoints at this proxy.
	if model := gjson.GetBytes(body, "model").String(); model != "" {
		routed := protocol.Rewrite(model, s.cfg.PreferredProvider, s.cfg.BigModel, s.cfg.SmallModel)
		if rewritten, err := sjson.SetBytes(body, "model", routed.UpstreamModel()); err == nil {
			body = rewritten
		}
	}

	isStream := gjson.GetBytes(body, "stream").Bool()

	resp, err := s.upstream.Forward(c.Request.Context(), body)
	if err != nil {
		s.writeClassified(c, "", err)
		return
	}
	defer resp.Body.Close()

	if !isStream {
		c.Status(resp.StatusCode)
		c.Header("Content-Type", resp.Header.Get("Content-Type"))
		if _, err := bufio.NewReader(resp.Body).WriteTo(c.Writer); err != nil {
			logrus.WithError(err).Debug("passthrough copy interrupted")
		}
		return
	}

	s.metrics.recordStream()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(resp.StatusCode)

	flusher, _ := c.Writer.(http.Flusher)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if _, err := c.Writer.Write(append(scanner.Bytes(), '\n')); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
