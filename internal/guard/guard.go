// Package guard filters inbound chat events that must not trigger a reply:
// messages the bot authored itself and non-text message types. Without it
// every bot reply would re-enter the webhook and loop forever.
package guard

import (
	"strings"

	"github.com/meshchat/bridge/internal/events"
)

// Guard is a pure keep/drop predicate over normalized message events.
type Guard struct {
	BotDisplayName string
	BotPrefix      string
}

// New creates a guard for the configured bot identity markers.
func New(botDisplayName, botPrefix string) Guard {
	return Guard{BotDisplayName: botDisplayName, BotPrefix: botPrefix}
}

// ShouldDrop reports whether the event must be dropped, with a short reason
// for the log line.
func (g Guard) ShouldDrop(event events.MessageEvent) (bool, string) {
	if g.BotDisplayName != "" && event.SenderDisplayName == g.BotDisplayName {
		return true, "self sender"
	}
	if g.BotPrefix != "" && strings.HasPrefix(strings.TrimSpace(event.Body), g.BotPrefix) {
		return true, "bot prefix"
	}
	if event.MessageType != "" && !strings.EqualFold(event.MessageType, "text") {
		return true, "non-text message type"
	}
	return false, ""
}
