// Package webhook processes notification batches after the HTTP handler has
// acknowledged them. Failures are contained per event so one bad envelope
// never blocks the rest of a batch.
package webhook

import (
	"context"
	"log/slog"

	"github.com/meshchat/bridge/internal/events"
	"github.com/meshchat/bridge/internal/guard"
	"github.com/meshchat/bridge/internal/identity"
	"github.com/meshchat/bridge/internal/transport"
)

// Replier produces the assistant's reply for one user message. An empty
// string means no reply should be sent.
type Replier interface {
	Reply(ctx context.Context, userContent string) string
}

// ChatSender is the slice of the chat client the processor uses.
type ChatSender interface {
	SendMessage(ctx context.Context, token, threadID, content, senderDisplayName string) (string, error)
	GetMessage(ctx context.Context, token, threadID, messageID string) (transport.MessageContent, error)
}

// Processor routes normalized envelopes to their handlers.
type Processor struct {
	log      *slog.Logger
	guard    guard.Guard
	replier  Replier
	identity *identity.Cache
	chat     ChatSender

	botDisplayName string
	botPrefix      string
}

func NewProcessor(log *slog.Logger, g guard.Guard, replier Replier, cache *identity.Cache, chat ChatSender, botDisplayName, botPrefix string) *Processor {
	return &Processor{
		log:            log.With(slog.String("component", "webhook")),
		guard:          g,
		replier:        replier,
		identity:       cache,
		chat:           chat,
		botDisplayName: botDisplayName,
		botPrefix:      botPrefix,
	}
}

// ProcessEnvelopes walks the batch in order. Chat message events drive the
// reply pipeline; edits and thread creations are acknowledged as noops.
// The caller has already acknowledged the batch, so failures here are
// contained per event and never escape, panics included.
func (p *Processor) ProcessEnvelopes(ctx context.Context, envelopes []events.Envelope) {
	for _, env := range envelopes {
		p.processOne(ctx, env)
	}
}

func (p *Processor) processOne(ctx context.Context, env events.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic while processing event",
				slog.String("event_type", env.Kind()),
				slog.String("id", env.ID),
				slog.Any("panic", r))
		}
	}()

	switch env.Kind() {
	case events.TypeChatMessageReceived:
		p.handleChatMessage(ctx, env)
	case events.TypeChatMessageEdited:
		p.log.Info("chat message edited (noop)", slog.String("id", env.ID))
	case events.TypeChatThreadCreated:
		p.log.Info("chat thread created (noop)", slog.String("id", env.ID))
	default:
		p.log.Debug("unhandled event", slog.String("event_type", env.Kind()), slog.String("id", env.ID))
	}
}

func (p *Processor) handleChatMessage(ctx context.Context, env events.Envelope) {
	event, err := events.DecodeMessageEvent(env)
	if err != nil {
		p.log.Warn("undecodable chat message event", slog.String("id", env.ID), slog.Any("error", err))
		return
	}

	if event.Body == "" && event.MessageID != "" {
		if body, ok := p.fetchBodyFromThread(ctx, event.ThreadID, event.MessageID); ok {
			p.log.Info("resolved message body via thread lookup",
				slog.String("thread_id", event.ThreadID),
				slog.String("message_id", event.MessageID))
			event.Body = body
		}
	}
	if event.ThreadID == "" || event.Body == "" {
		p.log.Warn("missing thread id or message body",
			slog.String("thread_id", event.ThreadID),
			slog.String("id", env.ID))
		return
	}

	if drop, reason := p.guard.ShouldDrop(event); drop {
		p.log.Info("skipping message",
			slog.String("reason", reason),
			slog.String("sender", event.SenderDisplayName),
			slog.String("id", env.ID))
		return
	}

	reply := p.replier.Reply(ctx, event.Body)
	if reply == "" {
		p.log.Warn("no reply generated", slog.String("id", env.ID))
		return
	}

	bot, err := p.identity.Get(ctx)
	if err != nil {
		p.log.Error("failed to acquire bot identity", slog.Any("error", err))
		return
	}
	p.log.Info("sending bot reply", slog.String("thread_id", event.ThreadID), slog.String("user_id", bot.UserID))
	if _, err := p.chat.SendMessage(ctx, bot.Token, event.ThreadID, p.botPrefix+" "+reply, p.botDisplayName); err != nil {
		p.log.Error("failed to post bot reply",
			slog.String("thread_id", event.ThreadID),
			slog.Any("error", err))
		return
	}
	p.log.Info("posted bot reply", slog.String("thread_id", event.ThreadID), slog.String("user_id", bot.UserID))
}

// fetchBodyFromThread reads the message back from the transport when the
// notification carried no usable body.
func (p *Processor) fetchBodyFromThread(ctx context.Context, threadID, messageID string) (string, bool) {
	if threadID == "" || messageID == "" {
		return "", false
	}
	bot, err := p.identity.Get(ctx)
	if err != nil {
		p.log.Warn("thread lookup skipped, no bot identity", slog.Any("error", err))
		return "", false
	}
	msg, err := p.chat.GetMessage(ctx, bot.Token, threadID, messageID)
	if err != nil {
		p.log.Warn("failed to fetch message body from thread",
			slog.String("thread_id", threadID),
			slog.String("message_id", messageID),
			slog.Any("error", err))
		return "", false
	}
	return msg.FirstText()
}
