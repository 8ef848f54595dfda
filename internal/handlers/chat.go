package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/meshchat/bridge/internal/directory"
	"github.com/meshchat/bridge/internal/orchestrator"
)

// ChatHandler exposes thread creation and per-thread chat credentials.
type ChatHandler struct {
	orch     *orchestrator.Orchestrator
	validate *validator.Validate
	logger   *slog.Logger
}

func NewChatHandler(log *slog.Logger, orch *orchestrator.Orchestrator) *ChatHandler {
	return &ChatHandler{
		orch:     orch,
		validate: validator.New(),
		logger:   log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.POST("/chat/config", h.Config)
	e.POST("/threads", h.CreateThread)
}

type chatConfigRequest struct {
	UserID   string `json:"userId" validate:"required"`
	ThreadID string `json:"threadId" validate:"required"`
}

func (h *ChatHandler) Config(c echo.Context) error {
	var req chatConfigRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId and threadId are required"})
	}

	config, err := h.orch.ChatCredentialsForThread(c.Request().Context(), req.UserID, req.ThreadID)
	if err != nil {
		h.logger.Warn("chat config rejected",
			slog.String("user_id", req.UserID),
			slog.String("thread_id", req.ThreadID),
			slog.Any("error", err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]orchestrator.Credentials{"config": config})
}

type createThreadRequest struct {
	InitiatorID string `json:"initiatorId" validate:"required"`
	PeerID      string `json:"peerId"`
	Mode        string `json:"mode" validate:"required,oneof=user ai"`
}

func (h *ChatHandler) CreateThread(c echo.Context) error {
	var req createThreadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "initiatorId and mode are required"})
	}

	ctx := c.Request().Context()
	var (
		thread directory.Thread
		err    error
	)
	if req.Mode == string(directory.ModeAI) {
		thread, err = h.orch.StartAiConversation(ctx, req.InitiatorID)
	} else {
		thread, err = h.orch.StartUserConversation(ctx, req.InitiatorID, req.PeerID)
	}
	if err != nil {
		h.logger.Warn("thread creation rejected",
			slog.String("initiator_id", req.InitiatorID),
			slog.String("mode", req.Mode),
			slog.Any("error", err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	config, err := h.orch.ChatCredentialsForThread(ctx, req.InitiatorID, thread.ID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"thread": thread,
		"config": config,
	})
}
