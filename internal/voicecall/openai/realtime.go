package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/voicecall/session"

	openairt "github.com/WqyJh/go-openai-realtime"
)

// Config holds the realtime session parameters for one call.
type Config struct {
	APIKey       string
	Model        string
	Voice        string
	Instructions string
}

// RealtimeConnection is the speech model leg of one call. Audio crosses it as
// base64 G.711 payloads in both directions, matching the carrier's encoding so
// the bridge never transcodes.
type RealtimeConnection struct {
	conn   *openairt.Conn
	logger *observability.Logger
	events chan session.ModelEvent

	closeOnce sync.Once
	closeErr  error
}

var _ session.ModelConnection = (*RealtimeConnection)(nil)

// Dial connects to the realtime endpoint and configures the session with the
// call's instructions, audio format and server-side turn detection.
func Dial(ctx context.Context, cfg Config, logger *observability.Logger) (*RealtimeConnection, error) {
	client := openairt.NewClient(cfg.APIKey)
	conn, err := client.Connect(ctx, openairt.WithModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to realtime endpoint: %w", err)
	}

	c := &RealtimeConnection{
		conn:   conn,
		logger: logger,
		events: make(chan session.ModelEvent, 64),
	}

	if err := c.configureSession(ctx, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *RealtimeConnection) configureSession(ctx context.Context, cfg Config) error {
	err := c.conn.SendMessage(ctx, &openairt.SessionUpdateEvent{
		Session: openairt.ClientSession{
			Modalities:        []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
			Instructions:      cfg.Instructions,
			Voice:             voiceFromName(cfg.Voice),
			InputAudioFormat:  openairt.AudioFormatG711Ulaw,
			OutputAudioFormat: openairt.AudioFormatG711Ulaw,
			InputAudioTranscription: &openairt.InputAudioTranscription{
				Model: "whisper-1",
			},
			TurnDetection: &openairt.ClientTurnDetection{
				Type: openairt.ClientTurnDetectionTypeServerVad,
				TurnDetectionParams: openairt.TurnDetectionParams{
					Threshold:         0.5,
					SilenceDurationMs: 500,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to configure realtime session: %w", err)
	}
	return nil
}

func voiceFromName(name string) openairt.Voice {
	switch strings.ToLower(name) {
	case "echo":
		return openairt.VoiceEcho
	case "shimmer":
		return openairt.VoiceShimmer
	default:
		return openairt.VoiceAlloy
	}
}

// Events surfaces decoded model events. The channel closes when the
// connection closes, by either side, or errors.
func (c *RealtimeConnection) Events() <-chan session.ModelEvent {
	return c.events
}

func (c *RealtimeConnection) readLoop() {
	ctx := context.Background()
	defer close(c.events)

	for {
		ev, err := c.conn.ReadMessage(ctx)
		if err != nil {
			c.logger.Debug(ctx, fmt.Sprintf("realtime read ended: %v", err))
			return
		}

		event, ok := translate(ev)
		if !ok {
			continue
		}
		select {
		case c.events <- event:
		default:
			c.logger.Warn(ctx, fmt.Sprintf("model event buffer full, dropping %s", event.Kind))
		}
	}
}

// translate maps the model's wire events onto the bridge's closed event set.
func translate(ev openairt.ServerEvent) (session.ModelEvent, bool) {
	switch e := ev.(type) {
	case openairt.ConversationItemInputAudioTranscriptionCompletedEvent:
		return session.ModelEvent{
			Kind:   session.ModelEventUserTranscript,
			ItemID: e.ItemID,
			Text:   strings.TrimSpace(e.Transcript),
		}, true
	case openairt.ResponseAudioTranscriptDoneEvent:
		return session.ModelEvent{
			Kind:   session.ModelEventAssistantTranscript,
			ItemID: e.ItemID,
			Text:   strings.TrimSpace(e.Transcript),
		}, true
	case openairt.ResponseAudioDeltaEvent:
		return session.ModelEvent{
			Kind:    session.ModelEventAudioDelta,
			ItemID:  e.ItemID,
			Payload: e.Delta,
		}, true
	case openairt.ResponseAudioDoneEvent:
		return session.ModelEvent{
			Kind:   session.ModelEventResponseCompleted,
			ItemID: e.ItemID,
		}, true
	case openairt.InputAudioBufferSpeechStartedEvent:
		return session.ModelEvent{Kind: session.ModelEventSpeechStarted}, true
	case openairt.ErrorEvent:
		detail, err := json.Marshal(e)
		if err != nil {
			detail = []byte("unserializable error event")
		}
		return session.ModelEvent{
			Kind:   session.ModelEventError,
			Detail: string(detail),
		}, true
	default:
		return session.ModelEvent{
			Kind:   session.ModelEventIgnored,
			Detail: string(ev.ServerEventType()),
		}, true
	}
}

// SendAudio appends one carrier audio payload to the model's input buffer.
// The payload is relayed base64-encoded exactly as the carrier produced it.
func (c *RealtimeConnection) SendAudio(ctx context.Context, payload string) error {
	return c.conn.SendMessage(ctx, &openairt.InputAudioBufferAppendEvent{
		Audio: payload,
	})
}

// Truncate cuts the in-flight response item short at the elapsed playback
// offset, so the model's conversation state only keeps what the caller heard.
func (c *RealtimeConnection) Truncate(ctx context.Context, itemID string, audioEndMs int64) error {
	return c.conn.SendMessage(ctx, &openairt.ConversationItemTruncateEvent{
		ItemID:       itemID,
		ContentIndex: 0,
		AudioEndMs:   int(audioEndMs),
	})
}

// CreateResponse asks the model to produce a response now.
func (c *RealtimeConnection) CreateResponse(ctx context.Context) error {
	return c.conn.SendMessage(ctx, &openairt.ResponseCreateEvent{})
}

// Close shuts the connection down. Closing twice is harmless.
func (c *RealtimeConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
