package session

// Status is the call lifecycle phase. Transitions are one-way:
// pending -> in_progress -> completed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

const RoleUser = "user"
const RoleAssistant = "assistant"

// Line is one entry of the conversation history.
type Line struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallState holds everything one CallSession tracks for its call. It is
// exclusively owned by the session's event loop and never shared.
type CallState struct {
	CallSID     string
	FromNumber  string
	ToNumber    string
	CallContext string

	// History is append-only, never reordered or mutated in place.
	History []Line

	StreamSID string

	// LatestMediaTimestamp is the carrier's playback clock in milliseconds,
	// the only clock shared between the two legs.
	LatestMediaTimestamp int64

	// ResponseStart is set when the first audio chunk of a model response is
	// relayed to the carrier and cleared when that response is truncated or a
	// new one begins. ActiveItemID is valid exactly while ResponseStart is set.
	ResponseStart *int64
	ActiveItemID  string

	// PendingMarks are playback checkpoints sent to the carrier that have not
	// been acknowledged yet.
	PendingMarks []string

	Status Status
}

func (s *CallState) appendLine(role, content string) {
	s.History = append(s.History, Line{Role: role, Content: content})
}

func (s *CallState) observeMediaTimestamp(ts int64) {
	if ts > s.LatestMediaTimestamp {
		s.LatestMediaTimestamp = ts
	}
}

func (s *CallState) beginResponse(itemID string) {
	ts := s.LatestMediaTimestamp
	s.ResponseStart = &ts
	s.ActiveItemID = itemID
}

func (s *CallState) clearResponse() {
	s.ResponseStart = nil
	s.ActiveItemID = ""
	s.PendingMarks = nil
}

func (s *CallState) ackMark(name string) {
	for i, m := range s.PendingMarks {
		if m == name {
			s.PendingMarks = append(s.PendingMarks[:i], s.PendingMarks[i+1:]...)
			return
		}
	}
}
