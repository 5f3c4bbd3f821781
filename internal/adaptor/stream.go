package adaptor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/sirupsen/logrus"
)

// Anthropic SSE event and delta type tags.
const (
	eventTypeMessageStart      = "message_start"
	eventTypeContentBlockStart = "content_block_start"
	eventTypeContentBlockDelta = "content_block_delta"
	eventTypeContentBlockStop  = "content_block_stop"
	eventTypeMessageDelta      = "message_delta"
	eventTypeMessageStop       = "message_stop"
	eventTypePing              = "ping"

	blockTypeText    = "text"
	blockTypeToolUse = "tool_use"

	deltaTypeTextDelta      = "text_delta"
	deltaTypeInputJSONDelta = "input_json_delta"
)

// Frame is one fully framed SSE event, ready to write to the client.
type Frame []byte

// DoneFrame is the closing sentinel of every stream.
var DoneFrame = Frame("data: [DONE]\n\n")

// StreamTranslator converts a sequence of upstream chat-completion
// chunks into the Anthropic streaming event protocol. It is a plain
// state machine owned by a single goroutine: every method returns the
// frames to write and performs no I/O, so tests can drive it with a
// slice of captured chunks.
type StreamTranslator struct {
	model     string
	messageID string

	textSent        bool
	textBlockClosed bool
	toolActive      bool

	// lastToolIndex is the highest Anthropic block index assigned; tool
	// blocks start at 1 and only grow.
	lastToolIndex int

	currentUpstreamToolIndex int64
	haveUpstreamToolIndex    bool

	accumulatedText strings.Builder

	inputTokens  int64
	outputTokens int64

	terminated  bool
	droppedText int
}

// NewStreamTranslator builds a translator reporting the given model in
// message_start.
func NewStreamTranslator(model string) *StreamTranslator {
	return &StreamTranslator{
		model:     model,
		messageID: "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
	}
}

// Start emits the stream preamble: message_start, an open text block at
// index 0, and a ping. The text block is always opened, even when the
// upstream never produces text.
func (t *StreamTranslator) Start() []Frame {
	return []Frame{
		frame(eventTypeMessageStart, map[string]any{
			"type": eventTypeMessageStart,
			"message": map[string]any{
				"id":            t.messageID,
				"type":          "message",
				"role":          "assistant",
				"model":         t.model,
				"content":       []any{},
				"stop_reason":   nil,
				"stop_sequence": nil,
				"usage": map[string]any{
					"input_tokens":                0,
					"cache_creation_input_tokens": 0,
					"cache_read_input_tokens":     0,
					"output_tokens":               0,
				},
			},
		}),
		frame(eventTypeContentBlockStart, map[string]any{
			"type":          eventTypeContentBlockStart,
			"index":         0,
			"content_block": map[string]any{"type": blockTypeText, "text": ""},
		}),
		frame(eventTypePing, map[string]any{"type": eventTypePing}),
	}
}

// Next processes one upstream chunk. A chunk carrying text, tool calls
// and a finish reason is handled in that order. After the terminal
// transition all further chunks are ignored.
func (t *StreamTranslator) Next(chunk openai.ChatCompletionChunk) []Frame {
	if t.terminated {
		return nil
	}

	var frames []Frame

	if chunk.JSON.Usage.Valid() {
		t.inputTokens = chunk.Usage.PromptTokens
		t.outputTokens = chunk.Usage.CompletionTokens
	}

	if len(chunk.Choices) == 0 {
		return frames
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		frames = append(frames, t.handleText(choice.Delta.Content)...)
	}

	for _, call := range choice.Delta.ToolCalls {
		frames = append(frames, t.handleToolCall(call)...)
	}

	if choice.FinishReason != "" {
		frames = append(frames, t.terminate(MapFinishReason(choice.FinishReason))...)
	}

	return frames
}

func (t *StreamTranslator) handleText(text string) []Frame {
	if t.toolActive || t.textBlockClosed {
		// Text after tool blocks cannot be represented in the strict
		// block ordering; drop it but keep count.
		t.droppedText++
		logrus.WithFields(logrus.Fields{
			"message_id": t.messageID,
			"text":       text,
		}).Debug("dropping text delta after tool block")
		return nil
	}

	t.accumulatedText.WriteString(text)
	t.textSent = true
	return []Frame{frame(eventTypeContentBlockDelta, map[string]any{
		"type":  eventTypeContentBlockDelta,
		"index": 0,
		"delta": map[string]any{"type": deltaTypeTextDelta, "text": text},
	})}
}

func (t *StreamTranslator) handleToolCall(call openai.ChatCompletionChunkChoiceDeltaToolCall) []Frame {
	var frames []Frame

	if !t.toolActive {
		frames = append(frames, t.closeTextBlock()...)
	}

	idx := call.Index
	if !t.haveUpstreamToolIndex || t.currentUpstreamToolIndex != idx {
		t.lastToolIndex++
		id := call.ID
		if id == "" {
			id = newToolUseID()
		}
		frames = append(frames, frame(eventTypeContentBlockStart, map[string]any{
			"type":  eventTypeContentBlockStart,
			"index": t.lastToolIndex,
			"content_block": map[string]any{
				"type":  blockTypeToolUse,
				"id":    id,
				"name":  call.Function.Name,
				"input": map[string]any{},
			},
		}))
		t.toolActive = true
		t.currentUpstreamToolIndex = idx
		t.haveUpstreamToolIndex = true
	}

	// Argument fragments are forwarded untouched; they only become
	// valid JSON once the stream terminates.
	if args := call.Function.Arguments; args != "" {
		frames = append(frames, frame(eventTypeContentBlockDelta, map[string]any{
			"type":  eventTypeContentBlockDelta,
			"index": t.lastToolIndex,
			"delta": map[string]any{"type": deltaTypeInputJSONDelta, "partial_json": args},
		}))
	}

	return frames
}

// closeTextBlock closes block 0 ahead of the first tool block, flushing
// any buffered text that was never delivered as a delta.
func (t *StreamTranslator) closeTextBlock() []Frame {
	if t.textBlockClosed {
		return nil
	}

	var frames []Frame
	if t.accumulatedText.Len() > 0 && !t.textSent {
		frames = append(frames, frame(eventTypeContentBlockDelta, map[string]any{
			"type":  eventTypeContentBlockDelta,
			"index": 0,
			"delta": map[string]any{"type": deltaTypeTextDelta, "text": t.accumulatedText.String()},
		}))
	}
	frames = append(frames, frame(eventTypeContentBlockStop, map[string]any{
		"type":  eventTypeContentBlockStop,
		"index": 0,
	}))
	t.textBlockClosed = true
	return frames
}

// terminate emits the terminal event sequence exactly once.
func (t *StreamTranslator) terminate(stopReason string) []Frame {
	if t.terminated {
		return nil
	}
	t.terminated = true

	var frames []Frame
	for i := 1; i <= t.lastToolIndex; i++ {
		frames = append(frames, frame(eventTypeContentBlockStop, map[string]any{
			"type":  eventTypeContentBlockStop,
			"index": i,
		}))
	}
	frames = append(frames, t.closeTextBlock()...)

	frames = append(frames,
		frame(eventTypeMessageDelta, map[string]any{
			"type": eventTypeMessageDelta,
			"delta": map[string]any{
				"stop_reason":   stopReason,
				"stop_sequence": nil,
			},
			"usage": map[string]any{"output_tokens": t.outputTokens},
		}),
		frame(eventTypeMessageStop, map[string]any{"type": eventTypeMessageStop}),
		DoneFrame,
	)
	return frames
}

// Flush ends a stream whose upstream completed without ever sending a
// finish_reason. Unlike the finish path, buffered-but-unsent text is
// not flushed here.
func (t *StreamTranslator) Flush() []Frame {
	if t.terminated {
		return nil
	}
	t.textSent = true // suppress the accumulated-text flush
	return t.terminate(StopReasonEndTurn)
}

// Fail ends the stream after an upstream or translation error. The
// client sees a well-formed terminal sequence with stop_reason "error".
func (t *StreamTranslator) Fail() []Frame {
	if t.terminated {
		return nil
	}
	t.terminated = true
	return []Frame{
		frame(eventTypeMessageDelta, map[string]any{
			"type": eventTypeMessageDelta,
			"delta": map[string]any{
				"stop_reason":   StopReasonError,
				"stop_sequence": nil,
			},
			"usage": map[string]any{"output_tokens": 0},
		}),
		frame(eventTypeMessageStop, map[string]any{"type": eventTypeMessageStop}),
		DoneFrame,
	}
}

// Done reports whether the terminal sequence has been emitted.
func (t *StreamTranslator) Done() bool { return t.terminated }

// Usage returns the token counts last reported by the upstream.
func (t *StreamTranslator) Usage() (inputTokens, outputTokens int64) {
	return t.inputTokens, t.outputTokens
}

// DroppedText returns how many text deltas were dropped because they
// arrived after a tool block opened.
func (t *StreamTranslator) DroppedText() int { return t.droppedText }

func frame(event string, payload map[string]any) Frame {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("failed to encode stream event")
		data = []byte("{}")
	}
	return Frame(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}
