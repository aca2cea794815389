package bootstrap

import (
	"context"
	"fmt"

	"voice-bridge/internal/config"
	"voice-bridge/internal/observability"
	"voice-bridge/internal/store"
	voiceCallHandler "voice-bridge/internal/voicecall/handler"
	"voice-bridge/internal/voicecall/session"
	"voice-bridge/internal/voicecall/transcript"
	"voice-bridge/internal/voicecall/twilio"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Call infrastructure
	Registry   *session.Registry
	Sink       *transcript.StoreSink
	Originator *twilio.Originator

	// Handlers
	VoiceCallHandler voiceCallHandler.Handler
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	connectionString := cfg.Database.ConnectionString()
	var err error
	deps.Store, err = store.New(connectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize call infrastructure
	deps.Registry = session.NewRegistry()
	deps.Sink = transcript.NewStoreSink(&deps.Store, logger)
	deps.Originator = twilio.NewOriginator(twilio.OriginatorConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
		StreamURL:  cfg.Twilio.StreamURL,
	}, logger)

	// Initialize voice call handler
	deps.VoiceCallHandler = voiceCallHandler.New(
		deps.Registry,
		deps.Sink,
		deps.Originator,
		&deps.Store,
		voiceCallHandler.Config{
			StreamURL:      cfg.Twilio.StreamURL,
			FromNumber:     cfg.Twilio.FromNumber,
			Greeting:       cfg.Agent.Greeting,
			Instructions:   cfg.Agent.Instructions,
			OpenAIKey:      cfg.OpenAI.APIKey,
			Model:          cfg.OpenAI.Model,
			Voice:          cfg.OpenAI.Voice,
			GoodbyePhrases: cfg.Agent.GoodbyePhrases,
		},
		logger,
	)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.Sink != nil {
		d.Sink.Close()
	}
}
