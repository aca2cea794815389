package twilio

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/voicecall/session"

	"github.com/stretchr/testify/assert"
)

func newDecodeStream() *MediaStream {
	// No socket needed, decode never touches it.
	return &MediaStream{
		logger: observability.NewLogger(),
		frames: make(chan session.Frame, frameBufferSize),
	}
}

func decodeJSON(t *testing.T, m *MediaStream, raw string) (session.Frame, bool) {
	t.Helper()
	var env mediaEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("failed to unmarshal test frame: %v", err)
	}
	return m.decode(context.Background(), env)
}

func TestDecode_StartFrame(t *testing.T) {
	m := newDecodeStream()

	frame, ok := decodeJSON(t, m, `{
		"event": "start",
		"streamSid": "MZ123",
		"start": {
			"streamSid": "MZ123",
			"callSid": "CA456",
			"customParameters": {"context": "order pickup", "from": "+15550001111"}
		}
	}`)

	assert.True(t, ok)
	assert.Equal(t, session.FrameStart, frame.Kind)
	assert.Equal(t, "MZ123", frame.StreamSID)
	assert.Equal(t, "CA456", frame.CallSID)
	assert.Equal(t, "order pickup", frame.CustomParameters["context"])
	assert.Equal(t, "+15550001111", frame.CustomParameters["from"])
	// Outbound writes now target this stream.
	assert.Equal(t, "MZ123", m.streamSID)
}

func TestDecode_MediaFrame(t *testing.T) {
	m := newDecodeStream()

	frame, ok := decodeJSON(t, m, `{
		"event": "media",
		"streamSid": "MZ123",
		"media": {"payload": "dGVzdA==", "timestamp": 1860}
	}`)

	assert.True(t, ok)
	assert.Equal(t, session.FrameMedia, frame.Kind)
	assert.Equal(t, "dGVzdA==", frame.Payload)
	assert.Equal(t, int64(1860), frame.Timestamp)
}

func TestDecode_MarkAndStopFrames(t *testing.T) {
	m := newDecodeStream()

	frame, ok := decodeJSON(t, m, `{"event": "mark", "streamSid": "MZ123", "mark": {"name": "chk-1"}}`)
	assert.True(t, ok)
	assert.Equal(t, session.FrameMark, frame.Kind)
	assert.Equal(t, "chk-1", frame.Mark)

	frame, ok = decodeJSON(t, m, `{"event": "stop", "streamSid": "MZ123"}`)
	assert.True(t, ok)
	assert.Equal(t, session.FrameStop, frame.Kind)
}

func TestDecode_DropsMalformedAndUnknownFrames(t *testing.T) {
	m := newDecodeStream()

	tests := []string{
		`{"event": "start"}`,
		`{"event": "media", "streamSid": "MZ123"}`,
		`{"event": "mark", "streamSid": "MZ123"}`,
		`{"event": "connected"}`,
		`{"event": "dtmf", "streamSid": "MZ123"}`,
	}
	for _, raw := range tests {
		_, ok := decodeJSON(t, m, raw)
		assert.False(t, ok, "frame should be dropped: %s", raw)
	}
}

func TestWaitForStart_DropsPreStartFrames(t *testing.T) {
	m := newDecodeStream()

	m.frames <- session.Frame{Kind: session.FrameMedia, Payload: "early"}
	m.frames <- session.Frame{Kind: session.FrameMark, Mark: "stray"}
	m.frames <- session.Frame{Kind: session.FrameStart, StreamSID: "MZ123", CallSID: "CA456"}

	start, err := m.WaitForStart(context.Background(), time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "CA456", start.CallSID)
}

func TestWaitForStart_TimesOut(t *testing.T) {
	m := newDecodeStream()

	_, err := m.WaitForStart(context.Background(), 20*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForStart_StreamClosed(t *testing.T) {
	m := newDecodeStream()
	close(m.frames)

	_, err := m.WaitForStart(context.Background(), time.Second)
	assert.Error(t, err)
}
