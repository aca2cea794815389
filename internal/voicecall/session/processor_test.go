package session

import (
	"context"
	"testing"

	"voice-bridge/internal/observability"

	"github.com/stretchr/testify/assert"
)

type bridgeCall struct {
	method  string
	role    string
	content string
	itemID  string
	payload string
}

type recordingBridge struct {
	calls []bridgeCall
}

func (b *recordingBridge) AppendLine(_ context.Context, role, content string) {
	b.calls = append(b.calls, bridgeCall{method: "AppendLine", role: role, content: content})
}

func (b *recordingBridge) RelayAudio(_ context.Context, itemID, payload string) {
	b.calls = append(b.calls, bridgeCall{method: "RelayAudio", itemID: itemID, payload: payload})
}

func (b *recordingBridge) TruncateActiveResponse(_ context.Context) {
	b.calls = append(b.calls, bridgeCall{method: "TruncateActiveResponse"})
}

func (b *recordingBridge) CompleteActiveResponse(_ context.Context) {
	b.calls = append(b.calls, bridgeCall{method: "CompleteActiveResponse"})
}

func (b *recordingBridge) EndCall(_ context.Context, reason string) {
	b.calls = append(b.calls, bridgeCall{method: "EndCall", content: reason})
}

func TestProcess_DispatchesByKind(t *testing.T) {
	tests := []struct {
		name     string
		event    ModelEvent
		expected []bridgeCall
	}{
		{
			name:     "user transcript becomes a user line",
			event:    ModelEvent{Kind: ModelEventUserTranscript, Text: "hello there"},
			expected: []bridgeCall{{method: "AppendLine", role: RoleUser, content: "hello there"}},
		},
		{
			name:     "assistant transcript becomes an assistant line",
			event:    ModelEvent{Kind: ModelEventAssistantTranscript, Text: "how can I help"},
			expected: []bridgeCall{{method: "AppendLine", role: RoleAssistant, content: "how can I help"}},
		},
		{
			name:     "audio delta is relayed",
			event:    ModelEvent{Kind: ModelEventAudioDelta, ItemID: "item_1", Payload: "b64audio"},
			expected: []bridgeCall{{method: "RelayAudio", itemID: "item_1", payload: "b64audio"}},
		},
		{
			name:     "audio delta without payload is dropped",
			event:    ModelEvent{Kind: ModelEventAudioDelta, ItemID: "item_1"},
			expected: nil,
		},
		{
			name:     "response completion clears the active response",
			event:    ModelEvent{Kind: ModelEventResponseCompleted, ItemID: "item_1"},
			expected: []bridgeCall{{method: "CompleteActiveResponse"}},
		},
		{
			name:     "speech start triggers barge-in",
			event:    ModelEvent{Kind: ModelEventSpeechStarted},
			expected: []bridgeCall{{method: "TruncateActiveResponse"}},
		},
		{
			name:     "model error is logged, not fatal",
			event:    ModelEvent{Kind: ModelEventError, Detail: `{"message":"boom"}`},
			expected: nil,
		},
		{
			name:     "unrecognized event is ignored",
			event:    ModelEvent{Kind: ModelEventIgnored, Detail: "session.updated"},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := &recordingBridge{}
			processor := NewEventProcessor(observability.NewLogger())

			processor.Process(context.Background(), tt.event, bridge)

			assert.Equal(t, tt.expected, bridge.calls)
		})
	}
}
