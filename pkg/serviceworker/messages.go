package serviceworker

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	MessageSkipWaiting MessageType = "SKIP_WAITING"
	MessageNavigate    MessageType = "NAVIGATE"

	// BackgroundSyncTag is the tag the worker registers for replaying
	// queued actions.
	BackgroundSyncTag = "background-sync"
)

// Message travels between the page and the worker.
type Message struct {
	Type MessageType `json:"type"`
	URL  string      `json:"url,omitempty"`
}

func SkipWaiting() Message {
	return Message{Type: MessageSkipWaiting}
}

func Navigate(url string) Message {
	return Message{Type: MessageNavigate, URL: url}
}

// ParseMessage decodes and validates a channel message.
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	switch msg.Type {
	case MessageSkipWaiting:
	case MessageNavigate:
		if msg.URL == "" {
			return Message{}, fmt.Errorf("navigate message requires url")
		}
	default:
		return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return msg, nil
}

// IsReplayTag reports whether a background sync event should replay the
// offline queue.
func IsReplayTag(tag string) bool {
	return tag == BackgroundSyncTag
}
