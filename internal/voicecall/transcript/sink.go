package transcript

import (
	"context"
	"fmt"
	"sync"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/store"
	"voice-bridge/internal/voicecall/session"
)

// CallStore is the slice of the store the sink needs.
type CallStore interface {
	CreateCall(ctx context.Context, params store.CreateCallParams) (store.Call, error)
	CreateCallMessage(ctx context.Context, callSID, role, content string) (store.CallMessage, error)
	CompleteCall(ctx context.Context, callSID string) error
}

const queueSize = 256

type opKind int

const (
	opStartCall opKind = iota
	opAddMessage
	opEndCall
)

type op struct {
	kind        opKind
	callSID     string
	fromNumber  string
	toNumber    string
	callContext string
	role        string
	content     string
}

// StoreSink persists call records and transcript lines through a single
// background worker. Writes are enqueued in arrival order and never block the
// caller: when the queue is full the operation is dropped and logged, because
// a stalled database must not stall live audio.
type StoreSink struct {
	store  CallStore
	logger *observability.Logger
	queue  chan op

	closeOnce sync.Once
	doneWG    sync.WaitGroup
}

var _ session.TranscriptSink = (*StoreSink)(nil)

func NewStoreSink(callStore CallStore, logger *observability.Logger) *StoreSink {
	s := &StoreSink{
		store:  callStore,
		logger: logger,
		queue:  make(chan op, queueSize),
	}
	s.doneWG.Add(1)
	go s.worker()
	return s
}

func (s *StoreSink) worker() {
	defer s.doneWG.Done()
	ctx := context.Background()

	for o := range s.queue {
		switch o.kind {
		case opStartCall:
			_, err := s.store.CreateCall(ctx, store.CreateCallParams{
				CallSID:     o.callSID,
				FromNumber:  o.fromNumber,
				ToNumber:    o.toNumber,
				CallContext: o.callContext,
			})
			if err != nil {
				s.logger.Error(ctx, fmt.Sprintf("failed to record call start for %s", o.callSID), err)
			}
		case opAddMessage:
			if _, err := s.store.CreateCallMessage(ctx, o.callSID, o.role, o.content); err != nil {
				s.logger.Error(ctx, fmt.Sprintf("failed to record transcript line for %s", o.callSID), err)
			}
		case opEndCall:
			if err := s.store.CompleteCall(ctx, o.callSID); err != nil {
				s.logger.Error(ctx, fmt.Sprintf("failed to record call end for %s", o.callSID), err)
			}
		}
	}
}

func (s *StoreSink) enqueue(ctx context.Context, o op) {
	select {
	case s.queue <- o:
	default:
		s.logger.Warn(ctx, fmt.Sprintf("transcript queue full, dropping write for call %s", o.callSID))
	}
}

// StartCall records the call as started.
func (s *StoreSink) StartCall(ctx context.Context, callSID, from, to, callContext string) {
	s.enqueue(ctx, op{
		kind:        opStartCall,
		callSID:     callSID,
		fromNumber:  from,
		toNumber:    to,
		callContext: callContext,
	})
}

// AddMessage records one transcript line. Lines for the same call are
// persisted in the order they were added.
func (s *StoreSink) AddMessage(ctx context.Context, callSID, role, content string) {
	s.enqueue(ctx, op{
		kind:    opAddMessage,
		callSID: callSID,
		role:    role,
		content: content,
	})
}

// EndCall records the call as completed.
func (s *StoreSink) EndCall(ctx context.Context, callSID string) {
	s.enqueue(ctx, op{kind: opEndCall, callSID: callSID})
}

// Close drains the queue and stops the worker. Only call it once no sessions
// are live.
func (s *StoreSink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		s.doneWG.Wait()
	})
}
