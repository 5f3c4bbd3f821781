package server

import (
	"html/template"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Metrics is the in-process counter set behind GET /metrics.
type Metrics struct {
	started time.Time

	totalRequests     atomic.Int64
	streamingRequests atomic.Int64
	errorResponses    atomic.Int64
	cancelledRequests atomic.Int64
	droppedTextDeltas atomic.Int64
	inputTokens       atomic.Int64
	outputTokens      atomic.Int64
}

// NewMetrics builds a zeroed counter set.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

// Middleware counts every request and its error outcome.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.totalRequests.Add(1)
		c.Next()
		if c.Writer.Status() >= http.StatusBadRequest {
			m.errorResponses.Add(1)
		}
	}
}

func (m *Metrics) recordStream()           { m.streamingRequests.Add(1) }
func (m *Metrics) recordCancelled()        { m.cancelledRequests.Add(1) }
func (m *Metrics) recordDroppedText(n int) { m.droppedTextDeltas.Add(int64(n)) }
func (m *Metrics) recordUsage(in, out int64) {
	m.inputTokens.Add(in)
	m.outputTokens.Add(out)
}

var metricsPage = template.Must(template.New("metrics").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Anthropic Proxy Metrics</title>
<style>
body { font-family: ui-monospace, monospace; margin: 2rem; background: #0f172a; color: #e2e8f0; }
h1 { font-size: 1.2rem; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { border: 1px solid #334155; padding: 0.4rem 0.9rem; text-align: left; }
th { background: #1e293b; }
</style>
</head>
<body>
<h1>Anthropic Proxy</h1>
<p>Uptime: {{.Uptime}}</p>
<table>
<tr><th>Metric</th><th>Value</th></tr>
<tr><td>Total requests</td><td>{{.Total}}</td></tr>
<tr><td>Streaming requests</td><td>{{.Streaming}}</td></tr>
<tr><td>Error responses</td><td>{{.Errors}}</td></tr>
<tr><td>Cancelled requests</td><td>{{.Cancelled}}</td></tr>
<tr><td>Dropped text deltas</td><td>{{.DroppedText}}</td></tr>
<tr><td>Input tokens</td><td>{{.InputTokens}}</td></tr>
<tr><td>Output tokens</td><td>{{.OutputTokens}}</td></tr>
<tr><td>Active requests</td><td>{{.Active}}</td></tr>
</table>
</body>
</html>
`))

func (s *Server) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	_ = metricsPage.Execute(c.Writer, map[string]any{
		"Uptime":       time.Since(s.metrics.started).Round(time.Second).String(),
		"Total":        s.metrics.totalRequests.Load(),
		"Streaming":    s.metrics.streamingRequests.Load(),
		"Errors":       s.metrics.errorResponses.Load(),
		"Cancelled":    s.metrics.cancelledRequests.Load(),
		"DroppedText":  s.metrics.droppedTextDeltas.Load(),
		"InputTokens":  s.metrics.inputTokens.Load(),
		"OutputTokens": s.metrics.outputTokens.Load(),
		"Active":       s.registry.Len(),
	})
}
