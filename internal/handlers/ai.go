package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/meshchat/bridge/internal/bridge"
	"github.com/meshchat/bridge/internal/events"
)

// Deliverer sends an assistant reply into the receiver's ai thread.
type Deliverer interface {
	DeliverAssistantResponse(ctx context.Context, userID, messageText string) error
}

// UserMessagePublisher forwards inbound user messages to the AI pipeline.
type UserMessagePublisher interface {
	PublishUserMessage(ctx context.Context, msg bridge.UserMessage) error
}

// AIHandler bridges the AI pipeline in both directions: /ai/messages
// publishes user messages to the event topic, /ai/respond receives
// assistant responses and delivers them to chat threads.
type AIHandler struct {
	publisher UserMessagePublisher
	deliverer Deliverer
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewAIHandler(log *slog.Logger, publisher UserMessagePublisher, deliverer Deliverer) *AIHandler {
	return &AIHandler{
		publisher: publisher,
		deliverer: deliverer,
		validate:  validator.New(),
		logger:    log.With(slog.String("handler", "ai")),
	}
}

func (h *AIHandler) Register(e *echo.Echo) {
	e.POST("/ai/messages", h.PublishMessage)
	e.POST("/ai/respond", h.Respond)
}

type publishMessageRequest struct {
	SenderUserID string `json:"senderUserId" validate:"required"`
	MessageText  string `json:"messageText" validate:"required"`
	PhoneNumber  string `json:"phoneNumber"`
}

func (h *AIHandler) PublishMessage(c echo.Context) error {
	var req publishMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "senderUserId and messageText are required"})
	}

	err := h.publisher.PublishUserMessage(c.Request().Context(), bridge.UserMessage{
		SenderUserID: req.SenderUserID,
		MessageText:  req.MessageText,
		PhoneNumber:  req.PhoneNumber,
	})
	if err != nil {
		h.logger.Error("failed to publish user message", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

type assistantResponseData struct {
	ReceiverUserID string          `json:"receiverUserId"`
	MessageText    string          `json:"messageText"`
	AdaptiveCard   json.RawMessage `json:"adaptiveCard"`
}

func (h *AIHandler) Respond(c echo.Context) error {
	var batch []events.Envelope
	if err := c.Bind(&batch); err != nil || len(batch) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No events provided"})
	}

	for _, env := range batch {
		if env.Kind() != events.TypeSubscriptionValidation {
			continue
		}
		var data struct {
			ValidationCode string `json:"validationCode"`
		}
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &data)
		}
		if data.ValidationCode == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing validation code"})
		}
		return c.JSON(http.StatusOK, map[string]string{"validationResponse": data.ValidationCode})
	}

	processed := 0
	failures := 0
	for _, env := range batch {
		if env.Kind() != events.TypeAiAssistantResponse {
			continue
		}
		processed++
		var data assistantResponseData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				h.logger.Warn("undecodable assistant response event", slog.String("id", env.ID), slog.Any("error", err))
				failures++
				continue
			}
		}
		if data.ReceiverUserID == "" || (data.MessageText == "" && len(data.AdaptiveCard) == 0) {
			h.logger.Warn("assistant response event missing receiver or payload", slog.String("id", env.ID))
			failures++
			continue
		}
		// Adaptive cards are accepted on the wire, only the text is delivered.
		if err := h.deliverer.DeliverAssistantResponse(c.Request().Context(), data.ReceiverUserID, data.MessageText); err != nil {
			h.logger.Error("failed to deliver assistant response",
				slog.String("id", env.ID),
				slog.String("receiver", data.ReceiverUserID),
				slog.Any("error", err))
			failures++
		}
	}

	if failures > 0 {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error":    "One or more AI response events failed",
			"failures": failures,
		})
	}
	return c.JSON(http.StatusOK, map[string]int{"processed": processed})
}
