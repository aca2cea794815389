package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"voice-bridge/internal/observability"
	"voice-bridge/internal/store"
	"voice-bridge/internal/voicecall/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeCallReader struct {
	call store.Call
	err  error
}

func (f *fakeCallReader) GetCallWithMessages(_ context.Context, _ string) (store.Call, error) {
	return f.call, f.err
}

type noopSink struct{}

func (noopSink) StartCall(context.Context, string, string, string, string) {}
func (noopSink) AddMessage(context.Context, string, string, string)        {}
func (noopSink) EndCall(context.Context, string)                           {}

type placedCall struct {
	toNumber    string
	callContext string
}

type fakeOriginator struct {
	calls   []placedCall
	callSID string
	err     error
}

func (f *fakeOriginator) PlaceCall(_ context.Context, toNumber, callContext string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, placedCall{toNumber: toNumber, callContext: callContext})
	return f.callSID, nil
}

func newTestHandler(calls CallReader, originator CallOriginator) (Handler, *session.Registry) {
	registry := session.NewRegistry()
	h := New(
		registry,
		noopSink{},
		originator,
		calls,
		Config{
			StreamURL:  "wss://example.com/api/phone/media-stream",
			FromNumber: "+15550002222",
			Greeting:   "One moment please.",
		},
		observability.NewLogger(),
	)
	return h, registry
}

func newTestRouter(h Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/phone/incoming", h.HandleIncomingCall)
	router.POST("/api/phone/calls", h.HandlePlaceCall)
	router.GET("/api/phone/calls/:call_sid", h.HandleGetCall)
	return router
}

func TestHandleIncomingCall_RespondsWithStreamTwiML(t *testing.T) {
	h, _ := newTestHandler(&fakeCallReader{}, &fakeOriginator{})
	router := newTestRouter(h)

	form := url.Values{"From": {"+15550001111"}, "CallSid": {"CA123"}}
	req := httptest.NewRequest(http.MethodPost, "/api/phone/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<Connect>")
	assert.Contains(t, w.Body.String(), `url="wss://example.com/api/phone/media-stream"`)
	assert.Contains(t, w.Body.String(), "<Say>One moment please.</Say>")
	assert.Contains(t, w.Body.String(), `value="+15550001111"`)
}

func TestHandleGetCall_ReturnsCallWithTranscript(t *testing.T) {
	reader := &fakeCallReader{
		call: store.Call{
			CallSID: "CA123",
			Status:  store.CallStatusCompleted,
			Messages: []store.CallMessage{
				{CallSID: "CA123", Role: store.MessageRoleAssistant, Content: "Hello"},
				{CallSID: "CA123", Role: store.MessageRoleUser, Content: "Hi"},
			},
		},
	}
	h, _ := newTestHandler(reader, &fakeOriginator{})
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/phone/calls/CA123", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"call_sid":"CA123"`)
	assert.Contains(t, w.Body.String(), `"content":"Hello"`)
}

func TestHandleGetCall_NotFound(t *testing.T) {
	h, _ := newTestHandler(&fakeCallReader{err: store.ErrNotFound}, &fakeOriginator{})
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/phone/calls/CA999", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlePlaceCall_RegistersSession(t *testing.T) {
	originator := &fakeOriginator{callSID: "CA789"}
	h, registry := newTestHandler(&fakeCallReader{}, originator)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/phone/calls",
		strings.NewReader(`{"to_number": "+15550003333", "context": "order pickup"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"call_sid":"CA789"`)
	assert.Equal(t, []placedCall{{toNumber: "+15550003333", callContext: "order pickup"}}, originator.calls)

	// The session is pre-registered so the carrier's start frame attaches
	// to it when the media stream connects.
	sess, ok := registry.Lookup("CA789")
	assert.True(t, ok)
	assert.Equal(t, "order pickup", sess.CallContext())
}

func TestHandlePlaceCall_OriginationFailure(t *testing.T) {
	originator := &fakeOriginator{err: errors.New("carrier rejected call")}
	h, registry := newTestHandler(&fakeCallReader{}, originator)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/phone/calls",
		strings.NewReader(`{"to_number": "+15550003333"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, registry.Len())
}

func TestHandlePlaceCall_MissingToNumber(t *testing.T) {
	h, registry := newTestHandler(&fakeCallReader{}, &fakeOriginator{callSID: "CA789"})
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/phone/calls", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, registry.Len())
}

func TestHandlePlaceCall_UnclaimedSessionExpires(t *testing.T) {
	h, registry := newTestHandler(&fakeCallReader{}, &fakeOriginator{callSID: "CA789"})
	h.cfg.PendingCallTTL = 20 * time.Millisecond
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/phone/calls",
		strings.NewReader(`{"to_number": "+15550003333"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	// The carrier never connects a media stream back, so the session is
	// discarded once the TTL elapses.
	assert.Eventually(t, func() bool {
		return registry.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInstructionsFor_FoldsInCallContext(t *testing.T) {
	h, _ := newTestHandler(&fakeCallReader{}, &fakeOriginator{})
	h.cfg.Instructions = "You are a phone assistant."

	assert.Equal(t, "You are a phone assistant.", h.instructionsFor(""))
	withContext := h.instructionsFor("caller ordered pizza")
	assert.Contains(t, withContext, "You are a phone assistant.")
	assert.Contains(t, withContext, "caller ordered pizza")
}
