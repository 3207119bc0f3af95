// Package hub fans messages out to dashboard websocket clients.
//
// One Hub goroutine owns the client set; producers hand it messages
// through Broadcast and never block on a slow browser.
package hub

// MessageType selects the websocket frame type a message is written as.
type MessageType int

const (
	JSONMessage   MessageType = iota // text frame, pre-encoded JSON
	BinaryMessage                    // binary frame, e.g. a camera JPEG
)

// Message is one queued write.
type Message struct {
	Type MessageType
	Data []byte
}

func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
