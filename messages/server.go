package messages

import (
	"github.com/bytedance/sonic"
)

// Error codes
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeSessionFailed    = "SESSION_FAILED"
	ErrCodeSessionLimit     = "SESSION_LIMIT"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
)

// Message types
const (
	TypeStatus     = "status"
	TypeTranscript = "transcript"
	TypeSpeaking   = "speaking"
	TypeError      = "error"
)

// ServerMessage represents a message sent to the browser front-end
type ServerMessage struct {
	Type      string `json:"type"` // "status", "transcript", "speaking", "error"
	SessionID string `json:"sessionId,omitempty"`
	Payload   any    `json:"payload"`
}

// StatusPayload contains live session status updates
type StatusPayload struct {
	Status  string `json:"status"` // "connecting", "listening", "speaking", "error", "closed", "pong"
	Message string `json:"message,omitempty"`
}

// TranscriptEntry is one finalized utterance
type TranscriptEntry struct {
	Speaker string `json:"speaker"` // "user" or "model"
	Text    string `json:"text"`
}

// TranscriptPayload carries the items flushed at the end of a turn
type TranscriptPayload struct {
	Items []TranscriptEntry `json:"items"`
}

// SpeakingPayload names the card being narrated; empty means nothing plays
type SpeakingPayload struct {
	ID string `json:"id"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Message: message,
		},
	}
}

// NewTranscriptMessage creates a transcript message
func NewTranscriptMessage(sessionID string, items []TranscriptEntry) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTranscript,
		SessionID: sessionID,
		Payload:   TranscriptPayload{Items: items},
	}
}

// NewSpeakingMessage creates a one-shot playback message
func NewSpeakingMessage(id string) *ServerMessage {
	return &ServerMessage{
		Type:    TypeSpeaking,
		Payload: SpeakingPayload{ID: id},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// Encode serializes a message for a websocket text frame
func Encode(msg *ServerMessage) ([]byte, error) {
	return sonic.ConfigStd.Marshal(msg)
}
