package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voice-bridge/internal/observability"

	"github.com/google/uuid"
)

// ErrAlreadyBound is returned when a second media stream tries to claim a
// session whose sockets are already attached.
var ErrAlreadyBound = errors.New("session sockets already bound")

// Config describes one call before its sockets exist.
type Config struct {
	CallSID     string
	FromNumber  string
	ToNumber    string
	CallContext string
	Goodbye     GoodbyePolicy
}

// CallSession orchestrates one phone call end to end. It owns both sockets and
// is the only writer of its CallState: both socket event streams are merged
// into the single Run loop, so no state mutation is ever concurrent with
// another.
type CallSession struct {
	state     CallState
	goodbye   GoodbyePolicy
	carrier   CarrierStream
	model     ModelConnection
	sink      TranscriptSink
	registry  *Registry
	processor *EventProcessor
	logger    *observability.Logger

	bindMu sync.Mutex
	bound  bool

	endOnce sync.Once
	done    chan struct{}
}

var _ Bridge = (*CallSession)(nil)

func New(cfg Config, sink TranscriptSink, registry *Registry, logger *observability.Logger) *CallSession {
	return &CallSession{
		state: CallState{
			CallSID:     cfg.CallSID,
			FromNumber:  cfg.FromNumber,
			ToNumber:    cfg.ToNumber,
			CallContext: cfg.CallContext,
			Status:      StatusPending,
		},
		goodbye:   cfg.Goodbye,
		sink:      sink,
		registry:  registry,
		processor: NewEventProcessor(logger),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

func (s *CallSession) CallSID() string {
	return s.state.CallSID
}

func (s *CallSession) CallContext() string {
	return s.state.CallContext
}

// Bind attaches the two sockets, before Run. Only the first claim succeeds:
// a session that is already bound and running must never have its sockets
// swapped out from under its event loop, so a late duplicate stream gets
// ErrAlreadyBound and the caller drops its connection.
func (s *CallSession) Bind(carrier CarrierStream, model ModelConnection) error {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	if s.bound {
		return ErrAlreadyBound
	}
	s.bound = true
	s.carrier = carrier
	s.model = model
	return nil
}

// ExpireUnbound tears the session down if no media stream has claimed it yet,
// reporting whether it did. A session already bound is left alone. Expiry
// also consumes the claim, so a carrier connecting afterwards is rejected.
func (s *CallSession) ExpireUnbound(ctx context.Context) bool {
	s.bindMu.Lock()
	if s.bound {
		s.bindMu.Unlock()
		return false
	}
	s.bound = true
	s.bindMu.Unlock()
	s.EndCall(ctx, "no media stream connected")
	return true
}

// Run processes the carrier's start frame, then relays events from both legs
// until the call ends. It returns once the session has been torn down.
func (s *CallSession) Run(ctx context.Context, start Frame) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "call_sid", Value: s.state.CallSID},
	)

	s.handleCarrierFrame(ctx, start)

	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			s.EndCall(ctx, "context canceled")
			return ctx.Err()
		case frame, ok := <-s.carrier.Frames():
			if !ok {
				s.EndCall(ctx, "carrier stream closed")
				return nil
			}
			s.handleCarrierFrame(ctx, frame)
		case ev, ok := <-s.model.Events():
			if !ok {
				s.EndCall(ctx, "model connection closed")
				return nil
			}
			s.processor.Process(ctx, ev, s)
		}
	}
}

func (s *CallSession) handleCarrierFrame(ctx context.Context, frame Frame) {
	switch frame.Kind {
	case FrameStart:
		if s.state.Status != StatusPending {
			s.logger.Warn(ctx, fmt.Sprintf("duplicate start frame for stream %s, ignoring", frame.StreamSID))
			return
		}
		s.state.StreamSID = frame.StreamSID
		s.state.Status = StatusInProgress
		s.logger.Info(ctx, fmt.Sprintf("media stream started: %s", frame.StreamSID))
		s.sink.StartCall(ctx, s.state.CallSID, s.state.FromNumber, s.state.ToNumber, s.state.CallContext)
		// Ask the model to speak first so the caller is not greeted by silence.
		// A failed greeting request is not fatal: the call stays up and the
		// model still responds once the caller speaks.
		if err := s.model.CreateResponse(ctx); err != nil {
			s.logger.Error(ctx, "failed to request greeting response", err)
		}
	case FrameMedia:
		s.state.observeMediaTimestamp(frame.Timestamp)
		if err := s.model.SendAudio(ctx, frame.Payload); err != nil {
			s.logger.Error(ctx, "failed to forward audio to model", err)
			s.EndCall(ctx, "model send failed")
		}
	case FrameMark:
		s.state.ackMark(frame.Mark)
	case FrameStop:
		s.logger.Info(ctx, fmt.Sprintf("media stream stopped: %s", s.state.StreamSID))
		s.EndCall(ctx, "carrier stop")
	default:
		s.logger.Warn(ctx, "dropping carrier frame of unknown kind")
	}
}

// AppendLine records one completed transcript line, mirrors it to the sink and
// runs goodbye detection on it.
func (s *CallSession) AppendLine(ctx context.Context, role, content string) {
	if content == "" {
		return
	}
	s.state.appendLine(role, content)
	s.sink.AddMessage(ctx, s.state.CallSID, role, content)
	if s.goodbye.Match(content) {
		s.logger.Info(ctx, fmt.Sprintf("farewell detected in %s line, ending call", role))
		s.EndCall(ctx, "goodbye")
	}
}

// RelayAudio forwards one model audio chunk to the carrier. The first chunk of
// a response pins the response start against the carrier's media clock.
func (s *CallSession) RelayAudio(ctx context.Context, itemID, payload string) {
	if err := s.carrier.SendMedia(payload); err != nil {
		s.logger.Error(ctx, "failed to forward audio to carrier", err)
		s.EndCall(ctx, "carrier send failed")
		return
	}
	if s.state.ResponseStart == nil {
		s.state.beginResponse(itemID)
	} else if itemID != s.state.ActiveItemID {
		// The model moved on to a new response item without an explicit
		// completion event for the previous one.
		s.state.clearResponse()
		s.state.beginResponse(itemID)
	}
	mark := uuid.New().String()
	if err := s.carrier.SendMark(mark); err != nil {
		s.logger.Error(ctx, "failed to send playback mark", err)
		return
	}
	s.state.PendingMarks = append(s.state.PendingMarks, mark)
}

// TruncateActiveResponse executes barge-in: it tells the model how much of the
// in-flight response the caller actually heard and flushes audio the carrier
// has buffered but not yet played. A second speech start before a new response
// begins is a no-op.
func (s *CallSession) TruncateActiveResponse(ctx context.Context) {
	if s.state.ResponseStart == nil || s.state.ActiveItemID == "" {
		s.logger.Debug(ctx, "speech started with no active response, nothing to truncate")
		return
	}
	elapsed := s.state.LatestMediaTimestamp - *s.state.ResponseStart
	if elapsed < 0 {
		elapsed = 0
	}
	s.logger.Info(ctx, fmt.Sprintf("caller barge-in, truncating item %s at %dms", s.state.ActiveItemID, elapsed))
	if err := s.model.Truncate(ctx, s.state.ActiveItemID, elapsed); err != nil {
		s.logger.Error(ctx, "failed to send truncate to model", err)
	}
	if err := s.carrier.SendClear(); err != nil {
		s.logger.Error(ctx, "failed to send clear to carrier", err)
	}
	s.state.clearResponse()
}

// CompleteActiveResponse clears the response bookkeeping once the model has
// finished producing audio for it.
func (s *CallSession) CompleteActiveResponse(ctx context.Context) {
	if s.state.ResponseStart == nil {
		return
	}
	s.state.clearResponse()
}

// EndCall tears the session down. It is idempotent: concurrent or repeated
// triggers collapse to exactly one execution.
func (s *CallSession) EndCall(ctx context.Context, reason string) {
	s.endOnce.Do(func() {
		close(s.done)
		if s.model != nil {
			_ = s.model.Close()
		}
		if s.carrier != nil {
			_ = s.carrier.Close()
		}
		s.state.Status = StatusCompleted
		s.sink.EndCall(ctx, s.state.CallSID)
		s.registry.Remove(s.state.CallSID)
		s.logger.Info(ctx, fmt.Sprintf("call ended: %s", reason))
	})
}

// Done is closed once the session has been torn down.
func (s *CallSession) Done() <-chan struct{} {
	return s.done
}

// State returns a copy of the session's call state for inspection.
func (s *CallSession) State() CallState {
	snapshot := s.state
	snapshot.History = append([]Line(nil), s.state.History...)
	snapshot.PendingMarks = append([]string(nil), s.state.PendingMarks...)
	if s.state.ResponseStart != nil {
		ts := *s.state.ResponseStart
		snapshot.ResponseStart = &ts
	}
	return snapshot
}
