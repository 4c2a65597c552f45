package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/gateway/internal/domain"
)

// GetHistory returns a session with its messages.
func (h *Handler) GetHistory(c echo.Context) error {
	session, err := h.service.GetHistory(c.Request().Context(), c.QueryParam("sessionId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// ListSessions returns the most recently updated sessions.
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	return c.JSON(http.StatusOK, sessions)
}

// DeleteSession removes a session.
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.service.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

type clearRequest struct {
	SessionID string `json:"sessionId"`
}

// ClearSession removes the messages of a session.
func (h *Handler) ClearSession(c echo.Context) error {
	var req clearRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.service.ClearSession(c.Request().Context(), req.SessionID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message":   "Session cleared successfully",
		"sessionId": req.SessionID,
	})
}
