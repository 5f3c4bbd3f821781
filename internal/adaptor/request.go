// Package adaptor translates between the Anthropic Messages dialect and
// the OpenAI Chat Completions dialect, in both directions and for both
// streaming and non-streaming responses.
package adaptor

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
)

const (
	noContentPlaceholder   = "No content provided"
	unparseablePlaceholder = "Unparseable content"
)

// BuildChatCompletionParams converts an inbound Messages request into
// Chat Completions parameters for the routed target model. Pure; never
// performs I/O.
func BuildChatCompletionParams(req *protocol.MessagesRequest, routed protocol.RoutedModel, maxTokensLimit int64) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(routed.UpstreamModel()),
	}

	if system := systemText(req.System); system != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(system))
	}

	for i, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return params, fmt.Errorf("messages[%d]: %w", i, err)
		}
		params.Messages = append(params.Messages, converted...)
	}

	maxTokens := req.MaxTokens
	if maxTokens > maxTokensLimit {
		logrus.WithFields(logrus.Fields{
			"requested": req.MaxTokens,
			"limit":     maxTokensLimit,
		}).Debug("clamping max_tokens")
		maxTokens = maxTokensLimit
	}
	params.MaxTokens = openai.Opt(maxTokens)

	if req.Temperature != nil {
		params.Temperature = openai.Opt(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Opt(*req.TopP)
	}
	if req.TopK != nil {
		// Not part of the Chat Completions schema; compatible upstreams
		// may honor it, native OpenAI drops it.
		params.SetExtraFields(map[string]any{"top_k": *req.TopK})
	}
	if len(req.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopSequences}
	}

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	params.ToolChoice = convertToolChoice(req.ToolChoice, len(req.Tools) > 0)

	if req.Stream {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}

	return params, nil
}

// systemText renders the system prompt union to a single string. Block
// lists are joined with blank lines and right-trimmed.
func systemText(system protocol.SystemPrompt) string {
	if !system.Set {
		return ""
	}
	if system.IsText {
		return system.Text
	}
	var parts []string
	for _, b := range system.Blocks {
		if b.Type == protocol.BlockTypeText {
			parts = append(parts, b.Text)
		}
	}
	return strings.TrimRightFunc(strings.Join(parts, "\n\n"), unicode.IsSpace)
}

// convertMessage maps one inbound message to zero or more outbound chat
// messages. A user message carrying tool_result blocks flattens to a
// single string message because the chat schema has no user-side tool
// results.
func convertMessage(msg protocol.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	if msg.Content.IsText {
		switch msg.Role {
		case "assistant":
			return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(msg.Content.Text)}, nil
		default:
			return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(msg.Content.Text)}, nil
		}
	}

	if msg.Role == "user" && msg.Content.HasToolResult() {
		return []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(flattenToolResults(msg.Content.Blocks)),
		}, nil
	}

	if msg.Role == "assistant" {
		return []openai.ChatCompletionMessageParamUnion{convertAssistantBlocks(msg.Content.Blocks)}, nil
	}
	return []openai.ChatCompletionMessageParamUnion{convertUserBlocks(msg.Content.Blocks)}, nil
}

// flattenToolResults renders a mixed text/tool_result block list to one
// user-visible string.
func flattenToolResults(blocks []protocol.ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		switch b.Type {
		case protocol.BlockTypeText:
			sb.WriteString(b.Text)
			sb.WriteString("\n")
		case protocol.BlockTypeToolResult:
			sb.WriteString("Tool result for " + b.ToolUseID + ":\n")
			sb.WriteString(StringifyToolResult(b.Content))
			sb.WriteString("\n")
		}
	}
	return strings.TrimRightFunc(sb.String(), unicode.IsSpace)
}

// StringifyToolResult renders the loosely shaped tool_result content
// union to a string. No element is dropped; anything that cannot be
// decoded becomes a placeholder.
func StringifyToolResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return noContentPlaceholder
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return unparseablePlaceholder
	}

	switch v := value.(type) {
	case nil:
		return noContentPlaceholder
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, stringifyItem(item))
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	case map[string]any:
		return stringifyDict(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stringifyItem(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]any:
		return stringifyDict(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stringifyDict(dict map[string]any) string {
	if text, ok := dict["text"].(string); ok {
		if t, ok := dict["type"].(string); !ok || t == protocol.BlockTypeText {
			return text
		}
	}
	encoded, err := json.Marshal(dict)
	if err != nil {
		return unparseablePlaceholder
	}
	return string(encoded)
}

// convertUserBlocks maps a tool_result-free user block list to a chat
// message with typed content parts. Images become data URLs.
func convertUserBlocks(blocks []protocol.ContentBlock) openai.ChatCompletionMessageParamUnion {
	var parts []openai.ChatCompletionContentPartUnionParam
	for _, b := range blocks {
		switch b.Type {
		case protocol.BlockTypeText:
			parts = append(parts, openai.TextContentPart(b.Text))
		case protocol.BlockTypeImage:
			if url := imageURL(b.Source); url != "" {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: url,
				}))
			}
		}
	}
	if len(parts) == 0 {
		return openai.UserMessage("")
	}
	return openai.UserMessage(parts)
}

func imageURL(src *protocol.ImageSource) string {
	if src == nil {
		return ""
	}
	switch src.Type {
	case "url":
		return src.URL
	case "base64":
		return "data:" + src.MediaType + ";base64," + src.Data
	default:
		return ""
	}
}

// convertAssistantBlocks maps an assistant block list, turning tool_use
// blocks into tool_calls. The message is assembled through a JSON round
// trip because the param union has no direct constructor for an
// assistant message with tool calls.
func convertAssistantBlocks(blocks []protocol.ContentBlock) openai.ChatCompletionMessageParamUnion {
	var textContent strings.Builder
	var toolCalls []map[string]any

	for _, b := range blocks {
		switch b.Type {
		case protocol.BlockTypeText:
			textContent.WriteString(b.Text)
		case protocol.BlockTypeToolUse:
			args := "{}"
			if len(b.Input) > 0 {
				args = string(b.Input)
			}
			toolCalls = append(toolCalls, map[string]any{
				"id":   b.ID,
				"type": "function",
				"function": map[string]any{
					"name":      b.Name,
					"arguments": args,
				},
			})
		}
	}

	msgMap := map[string]any{
		"role":    "assistant",
		"content": textContent.String(),
	}
	if len(toolCalls) > 0 {
		msgMap["tool_calls"] = toolCalls
	}

	msgBytes, _ := json.Marshal(msgMap)
	var result openai.ChatCompletionMessageParamUnion
	_ = json.Unmarshal(msgBytes, &result)
	return result
}

// convertTools forwards every declared tool as a function tool. Tools
// are never filtered by model capability.
func convertTools(tools []protocol.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		fn := shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.Opt(t.Description),
			Parameters:  shared.FunctionParameters(t.InputSchema),
		}
		out = append(out, openai.ChatCompletionFunctionTool(fn))
	}
	return out
}

// convertToolChoice maps the tool_choice union. "any" is forwarded
// verbatim; API-compatible upstreams accept it even though native
// OpenAI spells it "required".
func convertToolChoice(tc *protocol.ToolChoice, hasTools bool) openai.ChatCompletionToolChoiceOptionUnionParam {
	if tc == nil {
		if hasTools {
			return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.Opt("auto")}
		}
		return openai.ChatCompletionToolChoiceOptionUnionParam{}
	}

	switch tc.Type {
	case "auto":
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.Opt("auto")}
	case "any":
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.Opt("any")}
	case "tool":
		return openai.ToolChoiceOptionFunctionToolChoice(
			openai.ChatCompletionNamedToolChoiceFunctionParam{Name: tc.Name},
		)
	default:
		if hasTools {
			return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.Opt("auto")}
		}
		return openai.ChatCompletionToolChoiceOptionUnionParam{}
	}
}
