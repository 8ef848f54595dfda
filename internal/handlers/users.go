package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meshchat/bridge/internal/directory"
	"github.com/meshchat/bridge/internal/orchestrator"
)

// UsersHandler serves the roster and per-user thread listings.
type UsersHandler struct {
	store  *directory.Store
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

func NewUsersHandler(log *slog.Logger, store *directory.Store, orch *orchestrator.Orchestrator) *UsersHandler {
	return &UsersHandler{
		store:  store,
		orch:   orch,
		logger: log.With(slog.String("handler", "users")),
	}
}

func (h *UsersHandler) Register(e *echo.Echo) {
	e.GET("/users", h.List)
	e.GET("/users/:userId/threads", h.ListThreads)
}

func (h *UsersHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := h.store.ListHumanUsers(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	assistant, err := h.orch.Assistant(ctx)
	if err != nil {
		h.logger.Error("failed to resolve assistant profile", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"users":     users,
		"assistant": assistant,
	})
}

func (h *UsersHandler) ListThreads(c echo.Context) error {
	threads, err := h.store.ListThreadsForUser(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string][]directory.Thread{"threads": threads})
}
