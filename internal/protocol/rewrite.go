package protocol

import "strings"

// ToolRendering selects how tool calls appear in translated responses.
type ToolRendering int

const (
	// StructuredBlocks renders tool calls as tool_use content blocks.
	StructuredBlocks ToolRendering = iota
	// TextSummary renders tool calls as a readable text appendix.
	TextSummary
)

// RoutedModel pairs the caller's model string with the rewritten target.
// The original is kept for logging only; nothing downstream branches on
// it except the tool-rendering choice.
type RoutedModel struct {
	Original string
	Target   string
}

// Rewrite applies the model-name mapping to an inbound model string.
// A leading "anthropic/" prefix is stripped, "haiku" names map to the
// small model, "sonnet" names to the big one, and anything else is
// prefixed with the provider if not already.
func Rewrite(model, provider, bigModel, smallModel string) RoutedModel {
	routed := RoutedModel{Original: model}

	clean := strings.TrimPrefix(model, "anthropic/")
	lower := strings.ToLower(clean)

	switch {
	case strings.Contains(lower, "haiku"):
		routed.Target = provider + "/" + smallModel
	case strings.Contains(lower, "sonnet"):
		routed.Target = provider + "/" + bigModel
	case strings.HasPrefix(clean, provider+"/"):
		routed.Target = clean
	default:
		routed.Target = provider + "/" + clean
	}
	return routed
}

// UpstreamModel is the model name sent on the wire: the target without
// its provider routing prefix.
func (m RoutedModel) UpstreamModel() string {
	if _, rest, ok := strings.Cut(m.Target, "/"); ok {
		return rest
	}
	return m.Target
}

// Rendering picks the tool-call rendering for this request. The check
// runs against the caller's model string with any provider routing
// prefix removed; only Claude-family names get structured tool_use
// blocks, everything else gets the textual summary.
func (m RoutedModel) Rendering() ToolRendering {
	clean := strings.TrimPrefix(m.Original, "anthropic/")
	clean = strings.TrimPrefix(clean, "openai/")
	if strings.HasPrefix(clean, "claude-") {
		return StructuredBlocks
	}
	return TextSummary
}
