package transcript

import (
	"context"
	"errors"
	"sync"
	"testing"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/store"

	"github.com/stretchr/testify/assert"
)

type storeOp struct {
	kind    string
	callSID string
	role    string
	content string
}

type recordingStore struct {
	mu  sync.Mutex
	ops []storeOp

	createCallErr error
}

func (r *recordingStore) CreateCall(_ context.Context, params store.CreateCallParams) (store.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createCallErr != nil {
		return store.Call{}, r.createCallErr
	}
	r.ops = append(r.ops, storeOp{kind: "create_call", callSID: params.CallSID})
	return store.Call{CallSID: params.CallSID}, nil
}

func (r *recordingStore) CreateCallMessage(_ context.Context, callSID, role, content string) (store.CallMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, storeOp{kind: "create_message", callSID: callSID, role: role, content: content})
	return store.CallMessage{CallSID: callSID, Role: role, Content: content}, nil
}

func (r *recordingStore) CompleteCall(_ context.Context, callSID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, storeOp{kind: "complete_call", callSID: callSID})
	return nil
}

func TestStoreSink_PersistsInArrivalOrder(t *testing.T) {
	recorder := &recordingStore{}
	sink := NewStoreSink(recorder, observability.NewLogger())
	ctx := context.Background()

	sink.StartCall(ctx, "CA1", "+15550001111", "+15550002222", "support line")
	sink.AddMessage(ctx, "CA1", store.MessageRoleAssistant, "Hello, how can I help?")
	sink.AddMessage(ctx, "CA1", store.MessageRoleUser, "I have a billing question")
	sink.AddMessage(ctx, "CA1", store.MessageRoleAssistant, "Sure, go ahead")
	sink.EndCall(ctx, "CA1")

	// Close drains the queue before returning.
	sink.Close()

	assert.Equal(t, []storeOp{
		{kind: "create_call", callSID: "CA1"},
		{kind: "create_message", callSID: "CA1", role: store.MessageRoleAssistant, content: "Hello, how can I help?"},
		{kind: "create_message", callSID: "CA1", role: store.MessageRoleUser, content: "I have a billing question"},
		{kind: "create_message", callSID: "CA1", role: store.MessageRoleAssistant, content: "Sure, go ahead"},
		{kind: "complete_call", callSID: "CA1"},
	}, recorder.ops)
}

func TestStoreSink_StoreFailureDoesNotStopWorker(t *testing.T) {
	recorder := &recordingStore{createCallErr: errors.New("db down")}
	sink := NewStoreSink(recorder, observability.NewLogger())
	ctx := context.Background()

	sink.StartCall(ctx, "CA1", "+15550001111", "+15550002222", "")
	sink.AddMessage(ctx, "CA1", store.MessageRoleUser, "still here")
	sink.Close()

	// The failed call-start write is skipped, later writes still land.
	assert.Equal(t, []storeOp{
		{kind: "create_message", callSID: "CA1", role: store.MessageRoleUser, content: "still here"},
	}, recorder.ops)
}

func TestStoreSink_CloseIsIdempotent(t *testing.T) {
	sink := NewStoreSink(&recordingStore{}, observability.NewLogger())
	sink.Close()
	sink.Close()
}
