package session

// FrameKind identifies one of the carrier's media-stream frame variants.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameStart
	FrameMedia
	FrameMark
	FrameStop
)

func (k FrameKind) String() string {
	switch k {
	case FrameStart:
		return "start"
	case FrameMedia:
		return "media"
	case FrameMark:
		return "mark"
	case FrameStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Frame is a decoded carrier media-stream frame. Payload stays base64 encoded,
// audio passes through the bridge unmodified.
type Frame struct {
	Kind             FrameKind
	StreamSID        string
	CallSID          string
	CustomParameters map[string]string
	Payload          string
	Timestamp        int64
	Mark             string
}

// ModelEventKind identifies one of the speech model's server events the bridge
// reacts to. Everything else the model sends maps to ModelEventIgnored.
type ModelEventKind int

const (
	ModelEventIgnored ModelEventKind = iota
	ModelEventUserTranscript
	ModelEventAssistantTranscript
	ModelEventAudioDelta
	ModelEventResponseCompleted
	ModelEventSpeechStarted
	ModelEventError
)

func (k ModelEventKind) String() string {
	switch k {
	case ModelEventUserTranscript:
		return "user_transcript"
	case ModelEventAssistantTranscript:
		return "assistant_transcript"
	case ModelEventAudioDelta:
		return "audio_delta"
	case ModelEventResponseCompleted:
		return "response_completed"
	case ModelEventSpeechStarted:
		return "speech_started"
	case ModelEventError:
		return "error"
	default:
		return "ignored"
	}
}

// ModelEvent is a decoded speech model event. Payload stays base64 encoded.
type ModelEvent struct {
	Kind    ModelEventKind
	ItemID  string
	Payload string
	Text    string
	Detail  string
}
