package adaptor

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
)

// Anthropic stop_reason values. "error" is this proxy's terminal tag
// for streams that fail mid-flight; the SDK has no equivalent.
const (
	StopReasonEndTurn   = string(anthropic.StopReasonEndTurn)
	StopReasonMaxTokens = string(anthropic.StopReasonMaxTokens)
	StopReasonToolUse   = string(anthropic.StopReasonToolUse)
	StopReasonError     = "error"
)

// MapFinishReason translates an upstream finish_reason to the Anthropic
// stop_reason. Unknown or absent reasons map to end_turn.
func MapFinishReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return StopReasonEndTurn
	case "length":
		return StopReasonMaxTokens
	case "tool_calls":
		return StopReasonToolUse
	default:
		return StopReasonEndTurn
	}
}

// ConvertCompletion translates a non-streaming chat completion into a
// Messages response. Translation failures never propagate; the caller
// gets a degraded response carrying the failure text instead.
func ConvertCompletion(resp *openai.ChatCompletion, routed protocol.RoutedModel, rendering protocol.ToolRendering) (out protocol.MessagesResponse) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("response conversion failed")
			out = degradedResponse(routed, r)
		}
	}()

	endTurn := StopReasonEndTurn
	out = protocol.MessagesResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      routed.Target,
		StopReason: &endTurn,
		Usage: protocol.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if out.ID == "" {
		out.ID = "msg_" + uuid.NewString()
	}

	if len(resp.Choices) == 0 {
		out.Content = []protocol.ContentBlock{protocol.NewTextBlock("")}
		return out
	}
	choice := resp.Choices[0]

	stopReason := MapFinishReason(choice.FinishReason)
	out.StopReason = &stopReason

	if choice.Message.Content != "" {
		out.Content = append(out.Content, protocol.NewTextBlock(choice.Message.Content))
	}

	for _, call := range choice.Message.ToolCalls {
		input := parseToolArguments(call.Function.Arguments)
		id := call.ID
		if id == "" {
			id = newToolUseID()
		}

		switch rendering {
		case protocol.StructuredBlocks:
			out.Content = append(out.Content, protocol.NewToolUseBlock(id, call.Function.Name, input))
		default:
			summary := toolSummary(call.Function.Name, input)
			if len(out.Content) > 0 && out.Content[len(out.Content)-1].Type == protocol.BlockTypeText {
				out.Content[len(out.Content)-1].Text += summary
			} else {
				out.Content = append(out.Content, protocol.NewTextBlock(summary))
			}
		}
	}

	// The response always carries at least one block.
	if len(out.Content) == 0 {
		out.Content = []protocol.ContentBlock{protocol.NewTextBlock("")}
	}

	return out
}

// parseToolArguments decodes the upstream arguments string. Invalid
// JSON is preserved verbatim under a "raw" key rather than dropped.
func parseToolArguments(arguments string) json.RawMessage {
	if arguments == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	wrapped, err := json.Marshal(map[string]string{"raw": arguments})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return wrapped
}

// toolSummary renders a tool call as readable text for targets that do
// not understand tool_use blocks.
func toolSummary(name string, input json.RawMessage) string {
	var decoded any
	pretty := string(input)
	if err := json.Unmarshal(input, &decoded); err == nil {
		if b, err := json.MarshalIndent(decoded, "", "  "); err == nil {
			pretty = string(b)
		}
	}
	return "\n\nTool usage:\nTool: " + name + "\nArguments: " + pretty + "\n\n"
}

func degradedResponse(routed protocol.RoutedModel, cause any) protocol.MessagesResponse {
	endTurn := StopReasonEndTurn
	return protocol.MessagesResponse{
		ID:         "msg_" + uuid.NewString(),
		Type:       "message",
		Role:       "assistant",
		Model:      routed.Target,
		Content:    []protocol.ContentBlock{protocol.NewTextBlock(degradedText(cause))},
		StopReason: &endTurn,
	}
}

func degradedText(cause any) string {
	var sb strings.Builder
	sb.WriteString("Error converting response: ")
	switch v := cause.(type) {
	case error:
		sb.WriteString(v.Error())
	case string:
		sb.WriteString(v)
	default:
		encoded, _ := json.Marshal(v)
		sb.Write(encoded)
	}
	return sb.String()
}

// newToolUseID mints an Anthropic-shaped tool_use id.
func newToolUseID() string {
	return "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
