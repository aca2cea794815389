package session

import "context"

// CarrierStream is the carrier-side media socket owned by one CallSession.
type CarrierStream interface {
	// Frames surfaces decoded inbound frames. The channel closes when the
	// socket closes or errors.
	Frames() <-chan Frame
	SendMedia(payload string) error
	SendMark(name string) error
	SendClear() error
	Close() error
}

// ModelConnection is the speech-model socket owned by one CallSession.
type ModelConnection interface {
	// Events surfaces decoded inbound model events. The channel closes when
	// the socket closes or errors.
	Events() <-chan ModelEvent
	SendAudio(ctx context.Context, payload string) error
	Truncate(ctx context.Context, itemID string, audioEndMs int64) error
	CreateResponse(ctx context.Context) error
	Close() error
}

// TranscriptSink receives call lifecycle and message events. All methods are
// best-effort: implementations log failures and never block the audio path.
type TranscriptSink interface {
	StartCall(ctx context.Context, callSID, from, to, callContext string)
	AddMessage(ctx context.Context, callSID, role, content string)
	EndCall(ctx context.Context, callSID string)
}

// Bridge is the capability surface the event processor drives. CallSession is
// the production implementation; tests substitute a fake.
type Bridge interface {
	AppendLine(ctx context.Context, role, content string)
	RelayAudio(ctx context.Context, itemID, payload string)
	TruncateActiveResponse(ctx context.Context)
	CompleteActiveResponse(ctx context.Context)
	EndCall(ctx context.Context, reason string)
}
