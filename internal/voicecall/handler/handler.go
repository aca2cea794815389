package handler

import (
	"context"
	"net/http"
	"time"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/store"
	"voice-bridge/internal/voicecall/session"

	"github.com/gorilla/websocket"
)

// CallReader is the slice of the store the handler reads transcripts from.
type CallReader interface {
	GetCallWithMessages(ctx context.Context, callSID string) (store.Call, error)
}

// CallOriginator places outbound calls through the carrier and returns the
// carrier-assigned call SID.
type CallOriginator interface {
	PlaceCall(ctx context.Context, toNumber, callContext string) (string, error)
}

// Config carries the per-deployment settings the call endpoints need.
type Config struct {
	StreamURL      string
	FromNumber     string
	Greeting       string
	Instructions   string
	OpenAIKey      string
	Model          string
	Voice          string
	GoodbyePhrases []string

	// PendingCallTTL bounds how long a placed outbound call may sit without
	// the carrier connecting a media stream back before its session is
	// discarded. Zero means the default.
	PendingCallTTL time.Duration
}

const defaultPendingCallTTL = 2 * time.Minute

type Handler struct {
	registry   *session.Registry
	sink       session.TranscriptSink
	originator CallOriginator
	calls      CallReader
	cfg        Config
	logger     *observability.Logger
}

func New(
	registry *session.Registry,
	sink session.TranscriptSink,
	originator CallOriginator,
	calls CallReader,
	cfg Config,
	logger *observability.Logger,
) Handler {
	if cfg.PendingCallTTL <= 0 {
		cfg.PendingCallTTL = defaultPendingCallTTL
	}
	return Handler{
		registry:   registry,
		sink:       sink,
		originator: originator,
		calls:      calls,
		cfg:        cfg,
		logger:     logger,
	}
}

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The carrier does not send a browser Origin header, so there is
		// nothing to validate here. Stream authenticity rides on the
		// unguessable stream URL.
		return true
	},
}
