package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Client → backend
	TypeFrame MessageType = "frame"

	// Backend → client
	TypeVerdict MessageType = "verdict"
	TypeError   MessageType = "error"

	// Dashboard events
	TypeStatus  MessageType = "status"
	TypeToast   MessageType = "toast"
	TypeVibrate MessageType = "vibrate"

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into v.
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// FrameData carries one encoded still frame.
type FrameData struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"` // "jpeg"
	Data   string `json:"data"`   // base64
}

// Bytes decodes the frame payload.
func (f *FrameData) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// VerdictData answers a FrameData with the same ID.
type VerdictData struct {
	FrameID string `json:"frame_id"`
	Verdict
}

// ErrorData reports a failure to process a frame.
type ErrorData struct {
	FrameID string `json:"frame_id,omitempty"`
	Message string `json:"message"`
}

// ToastData is a transient user-visible notification.
type ToastData struct {
	Level   string `json:"level"` // info, warning, error
	Title   string `json:"title"`
	Message string `json:"message"`
}

// VibrateData asks a client to pulse its haptic output.
type VibrateData struct {
	DurationMs int64 `json:"duration_ms"`
}

// NewFrameMessage wraps raw JPEG data in a frame message.
func NewFrameMessage(id string, width, height int, jpegData []byte) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		ID:     id,
		Width:  width,
		Height: height,
		Format: "jpeg",
		Data:   base64.StdEncoding.EncodeToString(jpegData),
	})
}

// NewVerdictMessage creates a verdict reply for a frame.
func NewVerdictMessage(frameID string, v Verdict) (*Message, error) {
	return NewMessage(TypeVerdict, VerdictData{FrameID: frameID, Verdict: v})
}

// NewErrorMessage creates an error reply for a frame.
func NewErrorMessage(frameID string, err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{FrameID: frameID, Message: err.Error()})
}
