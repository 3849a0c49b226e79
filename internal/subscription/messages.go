package subscription

import (
	"encoding/json"
	"time"
)

// Client actions carried by upstream text frames.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Server frame types carried downstream.
const (
	TypeConnected    = "connected"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
	TypeError        = "error"
	TypeEvent        = "event"
)

// ClientFrame is the upstream control message: an action plus the topic
// patterns it applies to.
type ClientFrame struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
}

// ParseClientFrame deserializes an upstream text frame.
func ParseClientFrame(data []byte) (*ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// ServerFrame is every downstream message: control acknowledgements,
// errors, and published events alike.
type ServerFrame struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitempty"`
}

// JSON serializes the frame.
func (f *ServerFrame) JSON() ([]byte, error) {
	return json.Marshal(f)
}

func eventFrame(topic string, data interface{}, now time.Time) ServerFrame {
	return ServerFrame{Type: TypeEvent, Topic: topic, Data: data, Timestamp: now}
}

func errorFrame(message string, now time.Time) ServerFrame {
	return ServerFrame{Type: TypeError, Data: map[string]interface{}{"message": message}, Timestamp: now}
}
