package adaptor

import (
	"encoding/json"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
)

func decodeCompletion(t *testing.T, raw string) *openai.ChatCompletion {
	t.Helper()
	var c openai.ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return &c
}

func routedClaude() protocol.RoutedModel {
	return protocol.Rewrite("claude-3-sonnet-20240229", "openai", "gpt-4o", "gpt-4o-mini")
}

func TestConvertCompletionPlainText(t *testing.T) {
	resp := decodeCompletion(t, `{
		"id": "c1",
		"choices": [{"message": {"role": "assistant", "content": "Hi."}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 1}
	}`)

	routed := routedClaude()
	out := ConvertCompletion(resp, routed, routed.Rendering())

	assert.Equal(t, "c1", out.ID)
	assert.Equal(t, "message", out.Type)
	assert.Equal(t, "assistant", out.Role)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Equal(t, "Hi.", out.Content[0].Text)
	require.NotNil(t, out.StopReason)
	assert.Equal(t, "end_turn", *out.StopReason)
	assert.Equal(t, int64(1), out.Usage.InputTokens)
	assert.Equal(t, int64(1), out.Usage.OutputTokens)
}

func TestConvertCompletionToolCallStructured(t *testing.T) {
	resp := decodeCompletion(t, `{
		"id": "c2",
		"choices": [{
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "calculator", "arguments": "{\"expression\":\"2+2\"}"}}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5}
	}`)

	routed := routedClaude()
	out := ConvertCompletion(resp, routed, routed.Rendering())

	require.Len(t, out.Content, 1)
	block := out.Content[0]
	assert.Equal(t, "tool_use", block.Type)
	assert.Equal(t, "call_1", block.ID)
	assert.Equal(t, "calculator", block.Name)
	assert.JSONEq(t, `{"expression":"2+2"}`, string(block.Input))
	require.NotNil(t, out.StopReason)
	assert.Equal(t, "tool_use", *out.StopReason)
}

func TestConvertCompletionToolCallTextSummary(t *testing.T) {
	resp := decodeCompletion(t, `{
		"id": "c3",
		"choices": [{
			"message": {
				"role": "assistant",
				"content": "Let me check.",
				"tool_calls": [{"id": "call_2", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"x\"}"}}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 1}
	}`)

	routed := protocol.Rewrite("gpt-4o", "openai", "gpt-4o", "gpt-4o-mini")
	out := ConvertCompletion(resp, routed, routed.Rendering())

	require.Len(t, out.Content, 1)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Contains(t, out.Content[0].Text, "Let me check.")
	assert.Contains(t, out.Content[0].Text, "Tool usage:")
	assert.Contains(t, out.Content[0].Text, "Tool: lookup")
}

func TestConvertCompletionUnparseableArguments(t *testing.T) {
	resp := decodeCompletion(t, `{
		"id": "c4",
		"choices": [{
			"message": {
				"role": "assistant",
				"tool_calls": [{"id": "call_3", "type": "function", "function": {"name": "broken", "arguments": "{not json"}}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 0, "completion_tokens": 0}
	}`)

	routed := routedClaude()
	out := ConvertCompletion(resp, routed, protocol.StructuredBlocks)

	require.Len(t, out.Content, 1)
	assert.JSONEq(t, `{"raw":"{not json"}`, string(out.Content[0].Input))
}

func TestConvertCompletionEmptyContent(t *testing.T) {
	resp := decodeCompletion(t, `{
		"id": "c5",
		"choices": [{"message": {"role": "assistant", "content": ""}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 0, "completion_tokens": 0}
	}`)

	routed := routedClaude()
	out := ConvertCompletion(resp, routed, routed.Rendering())

	require.Len(t, out.Content, 1)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Equal(t, "", out.Content[0].Text)
}

func TestConvertCompletionNoChoices(t *testing.T) {
	resp := decodeCompletion(t, `{"id": "c6", "choices": [], "usage": {"prompt_tokens": 0, "completion_tokens": 0}}`)

	routed := routedClaude()
	out := ConvertCompletion(resp, routed, routed.Rendering())

	require.Len(t, out.Content, 1)
	assert.Equal(t, "text", out.Content[0].Type)
}

func TestConvertCompletionLengthFinish(t *testing.T) {
	resp := decodeCompletion(t, `{
		"id": "c7",
		"choices": [{"message": {"role": "assistant", "content": "truncat"}, "finish_reason": "length"}],
		"usage": {"prompt_tokens": 2, "completion_tokens": 300}
	}`)

	routed := routedClaude()
	out := ConvertCompletion(resp, routed, routed.Rendering())

	require.NotNil(t, out.StopReason)
	assert.Equal(t, "max_tokens", *out.StopReason)
}

func TestConvertCompletionMissingIDGetsGenerated(t *testing.T) {
	resp := decodeCompletion(t, `{
		"choices": [{"message": {"role": "assistant", "content": "x"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 0, "completion_tokens": 0}
	}`)

	routed := routedClaude()
	out := ConvertCompletion(resp, routed, routed.Rendering())
	assert.Contains(t, out.ID, "msg_")
}
