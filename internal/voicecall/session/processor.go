package session

import (
	"context"
	"fmt"

	"voice-bridge/internal/observability"
)

// EventProcessor classifies inbound model events and applies their effects
// through the Bridge capability interface. It holds no call state of its own.
type EventProcessor struct {
	logger *observability.Logger
}

func NewEventProcessor(logger *observability.Logger) *EventProcessor {
	return &EventProcessor{logger: logger}
}

// Process applies one model event. Unknown or malformed events are never
// fatal: they are logged at most and otherwise discarded.
func (p *EventProcessor) Process(ctx context.Context, ev ModelEvent, b Bridge) {
	switch ev.Kind {
	case ModelEventUserTranscript:
		b.AppendLine(ctx, RoleUser, ev.Text)
	case ModelEventAssistantTranscript:
		b.AppendLine(ctx, RoleAssistant, ev.Text)
	case ModelEventAudioDelta:
		if ev.Payload == "" {
			p.logger.Debug(ctx, "audio delta with empty payload, dropping")
			return
		}
		b.RelayAudio(ctx, ev.ItemID, ev.Payload)
	case ModelEventResponseCompleted:
		b.CompleteActiveResponse(ctx)
	case ModelEventSpeechStarted:
		b.TruncateActiveResponse(ctx)
	case ModelEventError:
		p.logger.Error(ctx, "speech model reported an error", fmt.Errorf("model error: %s", ev.Detail))
	case ModelEventIgnored:
		// Recognized-but-unhandled kinds carry their name in Detail.
		if ev.Detail != "" {
			p.logger.Debug(ctx, fmt.Sprintf("ignoring model event %s", ev.Detail))
		}
	default:
		p.logger.Debug(ctx, fmt.Sprintf("ignoring model event kind %d", ev.Kind))
	}
}
