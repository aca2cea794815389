package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Call is the durable record of one phone call bridged to the speech model.
type Call struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	CallSID     string       `db:"call_sid" json:"call_sid"`
	FromNumber  string       `db:"from_number" json:"from_number"`
	ToNumber    string       `db:"to_number" json:"to_number"`
	CallContext string       `db:"call_context" json:"call_context"`
	Status      string       `db:"status" json:"status"`
	StartedAt   time.Time    `db:"started_at" json:"started_at"`
	EndedAt     sql.NullTime `db:"ended_at" json:"-"`

	// Loaded separately, not from the calls table
	Messages []CallMessage `db:"-" json:"messages,omitempty"`
}

// CallMessage is one line of the call transcript.
type CallMessage struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CallSID   string    `db:"call_sid" json:"call_sid"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const MessageRoleUser = "user"
const MessageRoleAssistant = "assistant"

const CallStatusInProgress = "in_progress"
const CallStatusCompleted = "completed"

// CreateCallParams represents parameters for recording a started call
type CreateCallParams struct {
	CallSID     string
	FromNumber  string
	ToNumber    string
	CallContext string
}

const sqlCreateCall = `
INSERT INTO calls (call_sid, from_number, to_number, call_context, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, call_sid, from_number, to_number, call_context, status, started_at, ended_at`

func (s *Store) CreateCall(ctx context.Context, params CreateCallParams) (Call, error) {
	var call Call
	err := s.db.GetContext(ctx, &call, sqlCreateCall,
		params.CallSID,
		params.FromNumber,
		params.ToNumber,
		params.CallContext,
		CallStatusInProgress)
	if err != nil {
		s.logger.Error(ctx, "failed to create call", err)
		return Call{}, fmt.Errorf("failed to create call: %w", err)
	}
	return call, nil
}

const sqlCompleteCall = `
UPDATE calls SET status = $1, ended_at = NOW() WHERE call_sid = $2 AND ended_at IS NULL`

func (s *Store) CompleteCall(ctx context.Context, callSID string) error {
	_, err := s.db.ExecContext(ctx, sqlCompleteCall, CallStatusCompleted, callSID)
	if err != nil {
		s.logger.Error(ctx, "failed to complete call", err)
		return fmt.Errorf("failed to complete call: %w", err)
	}
	return nil
}

const sqlGetCallBySID = `
SELECT * FROM calls WHERE call_sid = $1`

func (s *Store) GetCallBySID(ctx context.Context, callSID string) (Call, error) {
	var call Call
	err := s.db.GetContext(ctx, &call, sqlGetCallBySID, callSID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get call by SID", err)
		return Call{}, fmt.Errorf("failed to get call by SID: %w", err)
	}
	return call, nil
}

const sqlCreateCallMessage = `
INSERT INTO call_messages (call_sid, role, content)
VALUES ($1, $2, $3)
RETURNING id, call_sid, role, content, created_at`

func (s *Store) CreateCallMessage(ctx context.Context, callSID, role, content string) (CallMessage, error) {
	var message CallMessage
	err := s.db.GetContext(ctx, &message, sqlCreateCallMessage, callSID, role, content)
	if err != nil {
		s.logger.Error(ctx, "failed to create call message", err)
		return CallMessage{}, fmt.Errorf("failed to create call message: %w", err)
	}
	return message, nil
}

const sqlGetMessagesByCallSID = `
SELECT * FROM call_messages WHERE call_sid = $1 ORDER BY created_at ASC, id ASC`

func (s *Store) GetMessagesByCallSID(ctx context.Context, callSID string) ([]CallMessage, error) {
	var messages []CallMessage
	err := s.db.SelectContext(ctx, &messages, sqlGetMessagesByCallSID, callSID)
	if err != nil {
		s.logger.Error(ctx, "failed to get messages by call SID", err)
		return nil, fmt.Errorf("failed to get messages by call SID: %w", err)
	}
	return messages, nil
}

// GetCallWithMessages loads a call and its ordered transcript.
func (s *Store) GetCallWithMessages(ctx context.Context, callSID string) (Call, error) {
	call, err := s.GetCallBySID(ctx, callSID)
	if err != nil {
		return Call{}, err
	}
	messages, err := s.GetMessagesByCallSID(ctx, callSID)
	if err != nil {
		return Call{}, err
	}
	call.Messages = messages
	return call, nil
}
