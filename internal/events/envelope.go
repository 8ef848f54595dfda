package events

import (
	"encoding/json"
	"strings"
)

// Provider event types delivered to the webhook endpoint.
const (
	TypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	TypeChatMessageReceived    = "Microsoft.Communication.ChatMessageReceived"
	TypeChatMessageEdited      = "Microsoft.Communication.ChatMessageEdited"
	TypeChatThreadCreated      = "Microsoft.Communication.ChatThreadCreatedWithUser"
)

// Bridge event types published to / consumed from the event topic.
const (
	TypeAiUserMessage       = "Mesh.AiChat.UserMessage"
	TypeAiAssistantResponse = "Mesh.AiChat.AssistantResponse"
)

// Header values the provider sets on validation handshake deliveries.
const (
	HeaderEventType              = "aeg-event-type"
	headerSubscriptionValidation = "SubscriptionValidation"
	headerUnsubscribeValidation  = "UnsubscribeValidation"
)

// Envelope is one externally delivered notification. Data stays opaque
// until a consumer inspects it.
type Envelope struct {
	ID          string          `json:"id"`
	EventType   string          `json:"eventType"`
	Type        string          `json:"type"`
	Subject     string          `json:"subject"`
	Data        json.RawMessage `json:"data"`
	DataVersion string          `json:"dataVersion"`
}

// Kind folds the two wire spellings of the event type: the event-grid
// schema uses eventType, the cloud-events schema uses type.
func (e Envelope) Kind() string {
	if strings.TrimSpace(e.EventType) != "" {
		return e.EventType
	}
	return e.Type
}

// Normalize converts an arbitrary inbound payload into an ordered list of
// envelopes. Parse failures, null, and scalar payloads normalize to an
// empty list; arrays preserve element count and order even when some
// elements are not objects; a single object becomes a one-element list.
func Normalize(payload []byte) []Envelope {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(payload, &items); err != nil {
			return nil
		}
		// Elements decode independently so one bad element cannot sink
		// the batch; an undecodable element stays a zero envelope and is
		// later dropped as an unhandled kind.
		batch := make([]Envelope, len(items))
		for i, item := range items {
			_ = json.Unmarshal(item, &batch[i])
		}
		return batch
	case '{':
		var single Envelope
		if err := json.Unmarshal(payload, &single); err != nil {
			return nil
		}
		return []Envelope{single}
	default:
		return nil
	}
}

type validationData struct {
	ValidationCode string `json:"validationCode"`
}

// ExtractValidationCode detects a subscription validation handshake and
// returns its code. Detection is by the provider header when present,
// otherwise by the reserved validation event type on the payload itself.
// The bool reports whether a handshake was detected at all; a detected
// handshake may still carry an empty code, which callers reject.
func ExtractValidationCode(payload []byte, headerEventType string) (string, bool) {
	header := strings.TrimSpace(headerEventType)
	if header == headerSubscriptionValidation || header == headerUnsubscribeValidation {
		envelopes := Normalize(payload)
		if len(envelopes) == 0 {
			return "", true
		}
		return decodeValidationCode(envelopes[0].Data), true
	}

	envelopes := Normalize(payload)
	if len(envelopes) == 0 {
		return "", false
	}
	first := envelopes[0]
	if first.Kind() != TypeSubscriptionValidation {
		return "", false
	}
	return decodeValidationCode(first.Data), true
}

func decodeValidationCode(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var vd validationData
	if err := json.Unmarshal(data, &vd); err != nil {
		return ""
	}
	return vd.ValidationCode
}
