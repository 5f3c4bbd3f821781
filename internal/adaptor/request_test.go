package adaptor

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/tingly-dev/anthropic-proxy/internal/protocol"
)

func decodeRequest(t *testing.T, raw string) *protocol.MessagesRequest {
	t.Helper()
	var req protocol.MessagesRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	return &req
}

// paramsJSON converts the outbound params to JSON for assertions.
func paramsJSON(t *testing.T, req *protocol.MessagesRequest, limit int64) string {
	t.Helper()
	routed := protocol.Rewrite(req.Model, "openai", "gpt-4o", "gpt-4o-mini")
	params, err := BuildChatCompletionParams(req, routed, limit)
	require.NoError(t, err)
	data, err := json.Marshal(params)
	require.NoError(t, err)
	return string(data)
}

func TestBuildParamsPlainText(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 300,
		"messages": [{"role": "user", "content": "Hello"}]
	}`), 16384)

	assert.Equal(t, "gpt-4o", gjson.Get(body, "model").String())
	assert.Equal(t, int64(300), gjson.Get(body, "max_tokens").Int())
	assert.Equal(t, "user", gjson.Get(body, "messages.0.role").String())
	assert.Equal(t, "Hello", gjson.Get(body, "messages.0.content").String())
	assert.False(t, gjson.Get(body, "stream_options").Exists())
}

func TestBuildParamsSystemString(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"system": "Be terse.",
		"messages": [{"role": "user", "content": "Hi"}]
	}`), 16384)

	assert.Equal(t, "system", gjson.Get(body, "messages.0.role").String())
	assert.Equal(t, "Be terse.", gjson.Get(body, "messages.0.content").String())
	assert.Equal(t, "user", gjson.Get(body, "messages.1.role").String())
}

func TestBuildParamsSystemBlocks(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"system": [{"type": "text", "text": "First."}, {"type": "text", "text": "Second.  \n"}],
		"messages": [{"role": "user", "content": "Hi"}]
	}`), 16384)

	assert.Equal(t, "First.\n\nSecond.", gjson.Get(body, "messages.0.content").String())
}

func TestBuildParamsToolResultFlattening(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"messages": [
			{"role": "user", "content": [
				{"type": "text", "text": "Here you go:"},
				{"type": "tool_result", "tool_use_id": "t1", "content": "4"}
			]}
		]
	}`), 16384)

	require.Equal(t, int64(1), gjson.Get(body, "messages.#").Int())
	content := gjson.Get(body, "messages.0.content").String()
	assert.Equal(t, "user", gjson.Get(body, "messages.0.role").String())
	assert.Contains(t, content, "Here you go:")
	assert.Contains(t, content, "Tool result for t1:")
	assert.Contains(t, content, "4")
}

func TestBuildParamsAllToolResultsOneMessage(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"messages": [
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "t1", "content": "one"},
				{"type": "tool_result", "tool_use_id": "t2", "content": [{"type": "text", "text": "two"}]}
			]}
		]
	}`), 16384)

	require.Equal(t, int64(1), gjson.Get(body, "messages.#").Int())
	content := gjson.Get(body, "messages.0.content").String()
	assert.Contains(t, content, "Tool result for t1:")
	assert.Contains(t, content, "Tool result for t2:")
}

func TestStringifyToolResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"absent", "", "No content provided"},
		{"null", "null", "No content provided"},
		{"plain string", `"4"`, "4"},
		{"text block list", `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "a\nb"},
		{"mixed list", `[{"type":"text","text":"a"},"b",7]`, "a\nb\n7"},
		{"dict with text", `{"type":"text","text":"inner"}`, "inner"},
		{"other dict", `{"status":"ok"}`, `{"status":"ok"}`},
		{"number", `42`, "42"},
		{"invalid json", `{broken`, "Unparseable content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StringifyToolResult(json.RawMessage(tt.raw)))
		})
	}
}

func TestBuildParamsMaxTokensClamp(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100000,
		"messages": [{"role": "user", "content": "Hi"}]
	}`), 16384)

	assert.Equal(t, int64(16384), gjson.Get(body, "max_tokens").Int())
}

func TestBuildParamsToolsPreserved(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"messages": [{"role": "user", "content": "Calculate 2+2"}],
		"tools": [
			{"name": "calculator", "description": "Evaluate math", "input_schema": {"type": "object", "properties": {"expression": {"type": "string"}}, "required": ["expression"]}},
			{"name": "noop", "input_schema": {"type": "object"}}
		]
	}`), 16384)

	require.Equal(t, int64(2), gjson.Get(body, "tools.#").Int())
	assert.Equal(t, "function", gjson.Get(body, "tools.0.type").String())
	assert.Equal(t, "calculator", gjson.Get(body, "tools.0.function.name").String())
	assert.Equal(t, "Evaluate math", gjson.Get(body, "tools.0.function.description").String())
	assert.Equal(t, "string", gjson.Get(body, "tools.0.function.parameters.properties.expression.type").String())
	assert.Equal(t, "noop", gjson.Get(body, "tools.1.function.name").String())
	// Tools present without an explicit choice default to auto.
	assert.Equal(t, "auto", gjson.Get(body, "tool_choice").String())
}

func TestBuildParamsToolChoice(t *testing.T) {
	base := `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"messages": [{"role": "user", "content": "Hi"}],
		"tools": [{"name": "calculator", "input_schema": {"type": "object"}}],
		"tool_choice": %s
	}`

	t.Run("auto", func(t *testing.T) {
		body := paramsJSON(t, decodeRequest(t, fmt.Sprintf(base, `{"type":"auto"}`)), 16384)
		assert.Equal(t, "auto", gjson.Get(body, "tool_choice").String())
	})

	t.Run("any is forwarded verbatim", func(t *testing.T) {
		body := paramsJSON(t, decodeRequest(t, fmt.Sprintf(base, `{"type":"any"}`)), 16384)
		assert.Equal(t, "any", gjson.Get(body, "tool_choice").String())
	})

	t.Run("named tool", func(t *testing.T) {
		body := paramsJSON(t, decodeRequest(t, fmt.Sprintf(base, `{"type":"tool","name":"calculator"}`)), 16384)
		assert.Equal(t, "function", gjson.Get(body, "tool_choice.type").String())
		assert.Equal(t, "calculator", gjson.Get(body, "tool_choice.function.name").String())
	})
}

func TestBuildParamsSamplingAndStop(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"temperature": 0.5,
		"top_p": 0.9,
		"top_k": 40,
		"stop_sequences": ["END", "STOP"],
		"messages": [{"role": "user", "content": "Hi"}]
	}`), 16384)

	assert.Equal(t, 0.5, gjson.Get(body, "temperature").Float())
	assert.Equal(t, 0.9, gjson.Get(body, "top_p").Float())
	assert.Equal(t, int64(40), gjson.Get(body, "top_k").Int())
	assert.Equal(t, "END", gjson.Get(body, "stop.0").String())
	assert.Equal(t, "STOP", gjson.Get(body, "stop.1").String())
}

func TestBuildParamsStreamOptions(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"stream": true,
		"messages": [{"role": "user", "content": "Hi"}]
	}`), 16384)

	assert.True(t, gjson.Get(body, "stream_options.include_usage").Bool())
}

func TestBuildParamsAssistantToolUse(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"messages": [
			{"role": "user", "content": "Calculate 2+2"},
			{"role": "assistant", "content": [
				{"type": "text", "text": "Using the calculator."},
				{"type": "tool_use", "id": "t1", "name": "calculator", "input": {"expression": "2+2"}}
			]},
			{"role": "user", "content": [{"type": "tool_result", "tool_use_id": "t1", "content": "4"}]}
		]
	}`), 16384)

	assert.Equal(t, "assistant", gjson.Get(body, "messages.1.role").String())
	assert.Equal(t, "t1", gjson.Get(body, "messages.1.tool_calls.0.id").String())
	assert.Equal(t, "calculator", gjson.Get(body, "messages.1.tool_calls.0.function.name").String())
	assert.JSONEq(t, `{"expression":"2+2"}`, gjson.Get(body, "messages.1.tool_calls.0.function.arguments").String())
	assert.Contains(t, gjson.Get(body, "messages.2.content").String(), "Tool result for t1:")
}

func TestBuildParamsImageBlock(t *testing.T) {
	body := paramsJSON(t, decodeRequest(t, `{
		"model": "claude-3-sonnet-20240229",
		"max_tokens": 100,
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "what is this"},
			{"type": "image", "source": {"type": "base64", "media_type": "image/png", "data": "aGk="}}
		]}]
	}`), 16384)

	assert.Equal(t, "text", gjson.Get(body, "messages.0.content.0.type").String())
	assert.Equal(t, "image_url", gjson.Get(body, "messages.0.content.1.type").String())
	assert.Equal(t, "data:image/png;base64,aGk=", gjson.Get(body, "messages.0.content.1.image_url.url").String())
}
