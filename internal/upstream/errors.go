package upstream

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"

	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
)

// StatusClientClosedRequest is the nginx convention for a request the
// client abandoned.
const StatusClientClosedRequest = 499

// Classified is an upstream failure mapped to its client-visible form.
type Classified struct {
	Status  int
	Kind    string
	Message string
}

type rule struct {
	phrases []string
	status  int
	kind    string
	message string
}

// Rules are checked in order against the lowercased error text; the
// first match wins. Messages replace the raw upstream text with
// actionable guidance.
var rules = []rule{
	{
		phrases: []string{"invalid_api_key", "incorrect api key", "unauthorized", "authentication"},
		status:  http.StatusUnauthorized,
		kind:    protocol.ErrKindInvalidAuth,
		message: "Invalid API key. Please check your OPENAI_API_KEY configuration.",
	},
	{
		phrases: []string{"unsupported_country_region_territory", "country, region, or territory not supported"},
		status:  http.StatusForbidden,
		kind:    protocol.ErrKindForbiddenRegion,
		message: "OpenAI API is not available in your region. Consider using a VPN or Azure OpenAI service.",
	},
	{
		phrases: []string{"invalid schema", "invalid value", "content management policy"},
		status:  http.StatusBadRequest,
		kind:    protocol.ErrKindBadRequest,
		message: "", // keep the upstream message
	},
	{
		phrases: []string{"model_not_found", "model not found", "does not exist"},
		status:  http.StatusBadRequest,
		kind:    protocol.ErrKindNotFoundModel,
		message: "Model not found. Please check your BIG_MODEL and SMALL_MODEL configuration.",
	},
	{
		phrases: []string{"rate_limit", "rate limit", "too many requests", "quota"},
		status:  http.StatusTooManyRequests,
		kind:    protocol.ErrKindRateLimited,
		message: "Rate limit exceeded. Please wait and try again, or upgrade your API plan.",
	},
	{
		phrases: []string{"billing", "payment", "insufficient funds"},
		status:  http.StatusPaymentRequired,
		kind:    protocol.ErrKindBilling,
		message: "Billing issue. Please check your OpenAI account billing status.",
	},
	{
		phrases: []string{"context_length_exceeded", "maximum context length", "context window"},
		status:  http.StatusBadRequest,
		kind:    protocol.ErrKindContextLength,
		message: "Context length exceeded. Please reduce the size of your messages or max_tokens parameter.",
	},
}

// Classify maps an upstream error to a status code, error kind and
// client-facing message. Unmatched errors keep their upstream status
// and message when known, and fall back to an internal error.
func Classify(err error) Classified {
	if err == nil {
		return Classified{Status: http.StatusOK}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Classified{
			Status:  StatusClientClosedRequest,
			Kind:    protocol.ErrKindCancelled,
			Message: "Request cancelled",
		}
	}

	text := strings.ToLower(err.Error())
	for _, r := range rules {
		for _, phrase := range r.phrases {
			if strings.Contains(text, phrase) {
				message := r.message
				if message == "" {
					message = err.Error()
				}
				return Classified{Status: r.status, Kind: r.kind, Message: message}
			}
		}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		kind := protocol.ErrKindUpstream
		if apiErr.StatusCode < http.StatusInternalServerError {
			kind = protocol.ErrKindBadRequest
		}
		return Classified{Status: apiErr.StatusCode, Kind: kind, Message: err.Error()}
	}

	return Classified{
		Status:  http.StatusInternalServerError,
		Kind:    protocol.ErrKindInternal,
		Message: err.Error(),
	}
}
