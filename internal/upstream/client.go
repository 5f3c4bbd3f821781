// Package upstream wraps the OpenAI-compatible backend: the typed chat
// client used by the translators, the raw passthrough, and the error
// classifier that maps backend failures to client-visible responses.
package upstream

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/anthropic-proxy/internal/config"
)

// ChunkStream is the streaming iterator consumed by the streaming
// translator. *ssestream.Stream satisfies it directly; tests substitute
// slice-backed fakes.
type ChunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// Client is the single upstream connection shared by all requests.
type Client struct {
	api        openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiVersion string
	headers    map[string]string
}

// NewClient builds the upstream client. A non-empty api-version selects
// the Azure endpoint form; custom headers ride on every request.
func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.OpenAIAPIVersion != "" {
		opts = append(opts, azure.WithEndpoint(cfg.OpenAIBaseURL, cfg.OpenAIAPIVersion))
	} else {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	for name, value := range cfg.CustomHeaders {
		opts = append(opts, option.WithHeader(name, value))
	}

	return &Client{
		api:        openai.NewClient(opts...),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		apiKey:     cfg.OpenAIAPIKey,
		apiVersion: cfg.OpenAIAPIVersion,
		headers:    cfg.CustomHeaders,
	}
}

// Complete performs a non-streaming chat completion. Cancellation rides
// on ctx.
func (c *Client) Complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	started := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	logrus.WithFields(logrus.Fields{
		"model":    params.Model,
		"duration": time.Since(started),
		"error":    err != nil,
	}).Debug("upstream completion finished")
	return resp, err
}

// StreamComplete opens a streaming chat completion. The returned stream
// surfaces errors through Err after Next returns false, and observes
// ctx between chunks.
func (c *Client) StreamComplete(ctx context.Context, params openai.ChatCompletionNewParams) ChunkStream {
	return c.api.Chat.Completions.NewStreaming(ctx, params)
}

var _ ChunkStream = (*ssestream.Stream[openai.ChatCompletionChunk])(nil)

// Forward sends a raw Chat Completions body upstream without decoding
// it, for the OpenAI passthrough endpoint. The caller owns the response
// body.
func (c *Client) Forward(ctx context.Context, body []byte) (*http.Response, error) {
	url := c.baseURL + "/chat/completions"
	if c.apiVersion != "" {
		url += "?api-version=" + c.apiVersion
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.apiVersion != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}

	return c.httpClient.Do(req)
}
