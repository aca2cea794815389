package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"voice-bridge/internal/apierrors"
	"voice-bridge/internal/store"
	"voice-bridge/internal/voicecall/openai"
	"voice-bridge/internal/voicecall/session"
	"voice-bridge/internal/voicecall/twilio"

	"github.com/gin-gonic/gin"
)

const startFrameTimeout = 10 * time.Second

// HandleIncomingCall answers the carrier's webhook for an inbound call with
// TwiML that connects the call to the media-stream endpoint.
func (h *Handler) HandleIncomingCall(c *gin.Context) {
	ctx := c.Request.Context()

	from := c.PostForm("From")
	doc, err := twilio.StreamTwiML(h.cfg.StreamURL, h.cfg.Greeting, map[string]string{"from": from})
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	h.logger.Info(ctx, fmt.Sprintf("answering inbound call from %s", from))
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, doc)
}

// HandleMediaStream accepts the carrier's media-stream WebSocket and runs one
// call session over it. Outbound calls already have a session registered under
// their call SID; inbound calls get one created from the start frame.
func (h *Handler) HandleMediaStream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}

	stream := twilio.NewMediaStream(conn, h.logger)
	defer stream.Close()

	start, err := stream.WaitForStart(ctx, startFrameTimeout)
	if err != nil {
		h.logger.Error(ctx, "no start frame on media stream", err)
		return
	}
	if start.CallSID == "" {
		h.logger.Error(ctx, "start frame missing call SID", nil)
		return
	}

	sess, ok := h.registry.Lookup(start.CallSID)
	if !ok {
		sess = session.New(session.Config{
			CallSID:     start.CallSID,
			FromNumber:  start.CustomParameters["from"],
			ToNumber:    h.cfg.FromNumber,
			CallContext: start.CustomParameters["context"],
			Goodbye:     session.NewGoodbyePolicy(h.cfg.GoodbyePhrases),
		}, h.sink, h.registry, h.logger)
		if err := h.registry.Register(start.CallSID, sess); err != nil {
			h.logger.Error(ctx, fmt.Sprintf("second media stream for call %s, rejecting", start.CallSID), err)
			return
		}
	}

	model, err := openai.Dial(ctx, openai.Config{
		APIKey:       h.cfg.OpenAIKey,
		Model:        h.cfg.Model,
		Voice:        h.cfg.Voice,
		Instructions: h.instructionsFor(sess.CallContext()),
	}, h.logger)
	if err != nil {
		h.logger.Error(ctx, "failed to connect to speech model", err)
		h.registry.Remove(start.CallSID)
		return
	}

	if err := sess.Bind(stream, model); err != nil {
		// The session is already live on another stream. Drop this
		// connection and leave the running session untouched.
		h.logger.Error(ctx, fmt.Sprintf("media stream for already-bound call %s, rejecting", start.CallSID), err)
		_ = model.Close()
		return
	}
	if err := sess.Run(ctx, start); err != nil {
		h.logger.Error(ctx, "call session ended with error", err)
	}
}

// instructionsFor folds the per-call context into the base agent instructions.
func (h *Handler) instructionsFor(callContext string) string {
	if callContext == "" {
		return h.cfg.Instructions
	}
	return fmt.Sprintf("%s\n\nContext for this call: %s", h.cfg.Instructions, callContext)
}

type placeCallRequest struct {
	ToNumber string `json:"to_number" binding:"required"`
	Context  string `json:"context"`
}

type placeCallResponse struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
}

// HandlePlaceCall starts an outbound call and registers its session ahead of
// the carrier connecting the media stream back to us.
func (h *Handler) HandlePlaceCall(c *gin.Context) {
	ctx := c.Request.Context()

	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "INVALID_REQUEST", "to_number is required")
		return
	}

	callSID, err := h.originator.PlaceCall(ctx, req.ToNumber, req.Context)
	if err != nil {
		apierrors.ServiceUnavailable(c, "CARRIER_UNAVAILABLE", "failed to place call", err)
		return
	}

	sess := session.New(session.Config{
		CallSID:     callSID,
		FromNumber:  h.cfg.FromNumber,
		ToNumber:    req.ToNumber,
		CallContext: req.Context,
		Goodbye:     session.NewGoodbyePolicy(h.cfg.GoodbyePhrases),
	}, h.sink, h.registry, h.logger)
	if err := h.registry.Register(callSID, sess); err != nil {
		// The carrier never reuses a live call SID, so this cannot happen
		// outside of a carrier fault.
		apierrors.Conflict(c, "CALL_EXISTS", "call already in progress")
		return
	}
	h.expirePendingSession(sess)

	c.JSON(http.StatusAccepted, placeCallResponse{CallSID: callSID, Status: "initiated"})
}

// expirePendingSession discards a pre-registered outbound session if the
// carrier never connects a media stream back: unanswered, busy and rejected
// calls would otherwise pin their registry entry forever.
func (h *Handler) expirePendingSession(sess *session.CallSession) {
	go func() {
		timer := time.NewTimer(h.cfg.PendingCallTTL)
		defer timer.Stop()

		select {
		case <-sess.Done():
		case <-timer.C:
			ctx := context.Background()
			if sess.ExpireUnbound(ctx) {
				h.logger.Warn(ctx, fmt.Sprintf("call %s never connected a media stream, discarding session", sess.CallSID()))
			}
		}
	}()
}

// HandleGetCall returns a call record with its ordered transcript.
func (h *Handler) HandleGetCall(c *gin.Context) {
	ctx := c.Request.Context()
	callSID := c.Param("call_sid")

	call, err := h.calls.GetCallWithMessages(ctx, callSID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierrors.NotFound(c, "call not found")
			return
		}
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, call)
}
