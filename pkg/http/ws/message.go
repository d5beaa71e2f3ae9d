package ws

import (
	"encoding/json"
	"fmt"
)

// MessageType constants for the session stream protocol.
const (
	// Client -> Server
	TypeRequestState = "request_state"
	TypePing         = "ping"

	// Server -> Client
	TypeSessionState        = "session_state"
	TypeSessionTick         = "session_tick"
	TypeSessionExpired      = "session_expired"
	TypeSessionSubmitted    = "session_submitted"
	TypeSessionAbandoned    = "session_abandoned"
	TypeSessionSubmitFailed = "session_submit_failed"
	TypeError               = "error"
	TypePong                = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(typ string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Message{Type: typ, Payload: raw}, nil
}

// Server Messages (outgoing)

type SessionTickPayload struct {
	QuizID           string `json:"quiz_id"`
	AttemptID        string `json:"attempt_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type SessionResultPayload struct {
	QuizID    string `json:"quiz_id"`
	AttemptID string `json:"attempt_id"`
	Score     *int   `json:"score,omitempty"`
	TimeSpent string `json:"time_spent,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
