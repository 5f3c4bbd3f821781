package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/anthropic-proxy/internal/adaptor"
	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
	"github.com/tingly-dev/anthropic-proxy/internal/upstream"
)

var requestBanner = color.New(color.FgCyan, color.Bold)

// handleMessages serves POST /v1/messages for both streaming and
// non-streaming requests.
func (s *Server) handleMessages(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(protocol.ErrKindBadRequest, "failed to read request body"))
		return
	}

	var req protocol.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(protocol.ErrKindBadRequest, "invalid request body: "+err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(protocol.ErrKindBadRequest, err.Error()))
		return
	}

	routed := protocol.Rewrite(req.Model, s.cfg.PreferredProvider, s.cfg.BigModel, s.cfg.SmallModel)
	requestID := uuid.NewString()

	logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"model":      routed.Original,
		"target":     routed.Target,
		"stream":     req.Stream,
	}).Info(requestBanner.Sprintf("processing request: %s -> %s (messages=%d tools=%d stream=%v)",
		routed.Original, routed.Target, len(req.Messages), len(req.Tools), req.Stream))

	params, err := adaptor.BuildChatCompletionParams(&req, routed, s.cfg.MaxTokensLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, protocol.NewErrorResponse(protocol.ErrKindBadRequest, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()
	s.registry.Insert(requestID, cancel)
	defer s.registry.Remove(requestID)

	if req.Stream {
		s.streamMessages(c, ctx, params, routed, requestID)
		return
	}

	resp, err := s.upstream.Complete(ctx, params)
	if err != nil {
		s.writeClassified(c, requestID, err)
		return
	}

	out := adaptor.ConvertCompletion(resp, routed, routed.Rendering())
	s.metrics.recordUsage(out.Usage.InputTokens, out.Usage.OutputTokens)
	c.JSON(http.StatusOK, out)
}

// streamMessages drives the streaming translator against the upstream
// chunk stream. The first chunk is read before the SSE response is
// committed so that an upstream failure still gets a JSON error with a
// proper status code.
func (s *Server) streamMessages(c *gin.Context, ctx context.Context, params openai.ChatCompletionNewParams, routed protocol.RoutedModel, requestID string) {
	stream := s.upstream.StreamComplete(ctx, params)
	defer stream.Close()
	s.metrics.recordStream()

	hasFirst := stream.Next()
	if !hasFirst {
		if err := stream.Err(); err != nil {
			s.writeClassified(c, requestID, err)
			return
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	st := adaptor.NewStreamTranslator(routed.Target)
	flusher, _ := c.Writer.(http.Flusher)

	write := func(frames []adaptor.Frame) bool {
		for _, f := range frames {
			if _, err := c.Writer.Write(f); err != nil {
				// Client went away; writes are best effort from here.
				logrus.WithField("request_id", requestID).Debug("client disconnected mid-stream")
				return false
			}
		}
		if len(frames) > 0 && flusher != nil {
			flusher.Flush()
		}
		return true
	}

	alive := write(st.Start())
	if hasFirst && alive {
		alive = write(st.Next(stream.Current()))
	}

	for alive && !st.Done() && stream.Next() {
		select {
		case <-ctx.Done():
			alive = false
		default:
			alive = write(st.Next(stream.Current()))
		}
	}

	if !st.Done() {
		switch {
		case ctx.Err() != nil:
			s.metrics.recordCancelled()
			write(st.Fail())
		case stream.Err() != nil:
			logrus.WithError(stream.Err()).WithField("request_id", requestID).Error("upstream stream failed")
			write(st.Fail())
		default:
			write(st.Flush())
		}
	}

	in, out := st.Usage()
	s.metrics.recordUsage(in, out)
	if n := st.DroppedText(); n > 0 {
		s.metrics.recordDroppedText(n)
	}
}

// handleCancelRequest aborts an in-flight request by id.
func (s *Server) handleCancelRequest(c *gin.Context) {
	id := c.Param("id")
	if s.registry.Cancel(id) {
		s.metrics.recordCancelled()
		c.JSON(http.StatusOK, gin.H{"cancelled": true, "request_id": id})
		return
	}
	c.JSON(http.StatusNotFound, protocol.NewErrorResponse(protocol.ErrKindNotFoundModel, "request not found: "+id))
}

func (s *Server) writeClassified(c *gin.Context, requestID string, err error) {
	cls := upstream.Classify(err)
	if cls.Status == upstream.StatusClientClosedRequest {
		s.metrics.recordCancelled()
	}
	logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"status":     cls.Status,
	}).WithError(err).Warn("request failed")
	c.JSON(cls.Status, protocol.NewErrorResponse(cls.Kind, cls.Message))
}
