package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Client message types
const (
	TypeControl = "control"
	TypeSpeak   = "speak"
)

// Control actions
const (
	ActionOpenLive  = "open_live"
	ActionCloseLive = "close_live"
	ActionPing      = "ping"
)

// ClientMessage represents a message from the browser front-end
type ClientMessage struct {
	Type    string          `json:"type"` // "control", "speak"
	Payload json.RawMessage `json:"payload"`
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"` // "open_live", "close_live", "ping"
}

// SpeakPayload asks for one-shot narration of a card; sending the same id
// again while it plays stops it
type SpeakPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DecodeClientMessage parses one websocket text frame
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("invalid message: missing type")
	}
	return &msg, nil
}

// DecodeControl parses a control payload
func DecodeControl(raw json.RawMessage) (*ControlPayload, error) {
	var p ControlPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid control payload: %w", err)
	}
	return &p, nil
}

// DecodeSpeak parses a speak payload; id and text are both required
func DecodeSpeak(raw json.RawMessage) (*SpeakPayload, error) {
	var p SpeakPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid speak payload: %w", err)
	}
	if p.ID == "" || p.Text == "" {
		return nil, errors.New("invalid speak payload: id and text are required")
	}
	return &p, nil
}
