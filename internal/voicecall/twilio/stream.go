package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/voicecall/session"

	"github.com/gorilla/websocket"
)

// mediaEnvelope is the carrier's wire format for media-stream frames.
type mediaEnvelope struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

type startPayload struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type mediaPayload struct {
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type markPayload struct {
	Name string `json:"name"`
}

const frameBufferSize = 256

// MediaStream wraps one inbound carrier media-stream connection. One instance
// is exclusively owned by one call session.
type MediaStream struct {
	conn   *websocket.Conn
	logger *observability.Logger
	frames chan session.Frame

	writeMu   sync.Mutex
	streamSID string

	closeOnce sync.Once
	closeErr  error
}

var _ session.CarrierStream = (*MediaStream)(nil)

// NewMediaStream takes ownership of the connection and starts decoding frames.
func NewMediaStream(conn *websocket.Conn, logger *observability.Logger) *MediaStream {
	m := &MediaStream{
		conn:   conn,
		logger: logger,
		frames: make(chan session.Frame, frameBufferSize),
	}
	go m.readLoop()
	return m
}

// Frames surfaces decoded inbound frames. The channel closes when the carrier
// hangs up or the connection errors.
func (m *MediaStream) Frames() <-chan session.Frame {
	return m.frames
}

func (m *MediaStream) readLoop() {
	ctx := context.Background()
	defer close(m.frames)

	for {
		_, msg, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Info(ctx, "media stream closed by carrier")
			} else {
				m.logger.Debug(ctx, fmt.Sprintf("media stream read ended: %v", err))
			}
			return
		}

		var env mediaEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			// A single bad frame never tears the connection down.
			m.logger.Error(ctx, "failed to parse media frame, dropping", err)
			continue
		}

		frame, ok := m.decode(ctx, env)
		if !ok {
			continue
		}

		select {
		case m.frames <- frame:
		default:
			// Stale audio is worse than lost audio on a live call.
			m.logger.Warn(ctx, "frame buffer full, dropping frame")
		}
	}
}

func (m *MediaStream) decode(ctx context.Context, env mediaEnvelope) (session.Frame, bool) {
	switch env.Event {
	case "start":
		if env.Start == nil {
			m.logger.Warn(ctx, "start frame without start payload, dropping")
			return session.Frame{}, false
		}
		m.writeMu.Lock()
		m.streamSID = env.Start.StreamSid
		m.writeMu.Unlock()
		return session.Frame{
			Kind:             session.FrameStart,
			StreamSID:        env.Start.StreamSid,
			CallSID:          env.Start.CallSid,
			CustomParameters: env.Start.CustomParameters,
		}, true
	case "media":
		if env.Media == nil {
			m.logger.Warn(ctx, "media frame without media payload, dropping")
			return session.Frame{}, false
		}
		return session.Frame{
			Kind:      session.FrameMedia,
			StreamSID: env.StreamSid,
			Payload:   env.Media.Payload,
			Timestamp: env.Media.Timestamp,
		}, true
	case "mark":
		if env.Mark == nil {
			m.logger.Warn(ctx, "mark frame without mark payload, dropping")
			return session.Frame{}, false
		}
		return session.Frame{
			Kind:      session.FrameMark,
			StreamSID: env.StreamSid,
			Mark:      env.Mark.Name,
		}, true
	case "stop":
		return session.Frame{Kind: session.FrameStop, StreamSID: env.StreamSid}, true
	case "connected":
		// Sent once before start, nothing to do with it.
		return session.Frame{}, false
	default:
		m.logger.Debug(ctx, fmt.Sprintf("unknown carrier event %q, dropping", env.Event))
		return session.Frame{}, false
	}
}

// WaitForStart consumes frames until the carrier announces the stream. Frames
// arriving before start carry no routable session and are dropped.
func (m *MediaStream) WaitForStart(ctx context.Context, timeout time.Duration) (session.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return session.Frame{}, ctx.Err()
		case <-timer.C:
			return session.Frame{}, fmt.Errorf("timed out waiting for start frame")
		case frame, ok := <-m.frames:
			if !ok {
				return session.Frame{}, fmt.Errorf("media stream closed before start frame")
			}
			if frame.Kind == session.FrameStart {
				return frame, nil
			}
			m.logger.Warn(ctx, fmt.Sprintf("dropping %s frame received before start", frame.Kind))
		}
	}
}

// SendMedia relays one base64 audio payload to the carrier.
func (m *MediaStream) SendMedia(payload string) error {
	return m.write(mediaEnvelope{
		Event: "media",
		Media: &mediaPayload{Payload: payload},
	})
}

// SendMark asks the carrier to acknowledge once audio queued so far has been
// played back.
func (m *MediaStream) SendMark(name string) error {
	return m.write(mediaEnvelope{
		Event: "mark",
		Mark:  &markPayload{Name: name},
	})
}

// SendClear drops any audio the carrier has buffered but not yet played.
func (m *MediaStream) SendClear() error {
	return m.write(mediaEnvelope{Event: "clear"})
}

func (m *MediaStream) write(env mediaEnvelope) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	env.StreamSid = m.streamSID
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", env.Event, err)
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", env.Event, err)
	}
	return nil
}

// Close shuts the connection down. Closing twice is harmless.
func (m *MediaStream) Close() error {
	m.closeOnce.Do(func() {
		m.writeMu.Lock()
		_ = m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		m.closeErr = m.conn.Close()
	})
	return m.closeErr
}
