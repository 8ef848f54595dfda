package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meshchat/bridge/internal/events"
)

// Notifier processes a webhook batch after it has been acknowledged.
type Notifier interface {
	ProcessEnvelopes(ctx context.Context, envelopes []events.Envelope)
}

// WebhookHandler receives provider notifications for the chat transport.
// Validation handshakes are answered synchronously; everything else is
// acknowledged with 202 and processed in the background.
type WebhookHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, notifier Notifier) *WebhookHandler {
	return &WebhookHandler{
		notifier: notifier,
		logger:   log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Receive)
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	headerEventType := c.Request().Header.Get(events.HeaderEventType)
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	if code, detected := events.ExtractValidationCode(payload, headerEventType); detected {
		if code == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing validation code"})
		}
		h.logger.Info("responding to subscription validation",
			slog.String("aeg_event_type", headerEventType))
		return c.JSON(http.StatusOK, map[string]string{"validationResponse": code})
	}

	envelopes := events.Normalize(payload)
	if len(envelopes) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"status": "ignored",
			"reason": "no events parsed",
		})
	}

	kinds := make([]string, len(envelopes))
	for i, env := range envelopes {
		kinds[i] = env.Kind()
	}
	h.logger.Info("notifications received",
		slog.String("aeg_event_type", headerEventType),
		slog.Int("count", len(envelopes)),
		slog.Any("event_types", kinds))

	// Ack quickly; the batch is processed after the response is written.
	go h.notifier.ProcessEnvelopes(context.WithoutCancel(c.Request().Context()), envelopes)

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
