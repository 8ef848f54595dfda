package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageEvent is the canonical shape of one chat-message notification
// after its envelope data has been decoded. Derived per event, never
// stored.
type MessageEvent struct {
	ThreadID          string
	MessageID         string
	MessageType       string
	SenderDisplayName string
	Body              string
}

// messageData is the subset of a chat-message envelope's data this bridge
// reads. messageBody arrives in several shapes, so it stays raw here.
type messageData struct {
	ThreadID          string          `json:"threadId"`
	MessageID         string          `json:"messageId"`
	MessageType       string          `json:"messageType"`
	SenderDisplayName string          `json:"senderDisplayName"`
	MessageBody       json.RawMessage `json:"messageBody"`
	Message           json.RawMessage `json:"message"`
	Body              json.RawMessage `json:"body"`
}

// DecodeMessageEvent decodes a chat-message envelope into a MessageEvent.
// The body may be empty when the notification carried none of the known
// shapes; callers fall back to a transport lookup in that case.
func DecodeMessageEvent(env Envelope) (MessageEvent, error) {
	if len(env.Data) == 0 {
		return MessageEvent{}, fmt.Errorf("event %s has no data", env.ID)
	}
	var data messageData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return MessageEvent{}, fmt.Errorf("decode event %s data: %w", env.ID, err)
	}
	body, _ := extractBody(data)
	return MessageEvent{
		ThreadID:          data.ThreadID,
		MessageID:         data.MessageID,
		MessageType:       data.MessageType,
		SenderDisplayName: data.SenderDisplayName,
		Body:              body,
	}, nil
}

// extractBody probes the known body fields in order and returns the first
// readable text. Implemented as a chain of fallible extractors; the first
// success wins.
func extractBody(data messageData) (string, bool) {
	for _, raw := range []json.RawMessage{data.MessageBody, data.Message, data.Body} {
		if text, ok := textFromRaw(raw); ok {
			return text, true
		}
	}
	return "", false
}

// nestedBodyFields is the probe order inside an object-shaped body.
var nestedBodyFields = []string{"message", "content", "plainText", "text"}

// textFromRaw resolves one candidate body value: a JSON string is used
// directly, an object is probed for its known text fields, and any other
// non-null scalar is stringified.
func textFromRaw(raw json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, true
	}

	if trimmed[0] == '{' {
		var asObject map[string]json.RawMessage
		if err := json.Unmarshal(raw, &asObject); err != nil {
			return "", false
		}
		for _, field := range nestedBodyFields {
			nested, ok := asObject[field]
			if !ok {
				continue
			}
			var text string
			if err := json.Unmarshal(nested, &text); err == nil {
				return text, true
			}
		}
		return "", false
	}

	if trimmed[0] == '[' {
		return "", false
	}

	// Non-string scalar: keep its literal representation.
	return trimmed, true
}
