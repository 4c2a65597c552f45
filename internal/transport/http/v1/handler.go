// Package v1 provides the client-facing chat API handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the API routes with the echo server.
// chatMW is applied to the routes that reach the upstream.
func (h *Handler) RegisterRoutes(e *echo.Echo, chatMW ...echo.MiddlewareFunc) {
	// Chat API
	e.POST("/api/chat", h.Chat, chatMW...)
	e.POST("/api/chat/complete", h.Complete, chatMW...)

	// Session API
	e.GET("/api/chat/history", h.GetHistory)
	e.GET("/api/chat/sessions", h.ListSessions)
	e.DELETE("/api/chat/history/:id", h.DeleteSession)
	e.POST("/api/chat/clear", h.ClearSession)

	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)
	e.GET("/status", h.Status)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Ready reports whether the store is reachable.
func (h *Handler) Ready(c echo.Context) error {
	if err := h.service.Ready(c.Request().Context()); err != nil {
		log.Warn().Err(err).Msg("readiness check failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// Status returns the upstream configuration and breaker state.
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Status())
}

type errorBody struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindSessionNotFound:
		return http.StatusNotFound
	case domain.KindUpstreamRateLimited:
		return http.StatusTooManyRequests
	case domain.KindUpstreamAuth, domain.KindUpstreamProtocol:
		return http.StatusBadGateway
	case domain.KindUpstreamUnavailable, domain.KindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error":{"kind","message"}}. Internal details
// of persistence and unclassified errors are logged, not returned.
func writeError(c echo.Context, err error) error {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	message := string(kind)
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", string(kind)).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

// WriteRateLimited renders the response for a request refused by the chat
// rate limiter.
func WriteRateLimited(c echo.Context) error {
	return c.JSON(http.StatusTooManyRequests, errorResponse{Error: errorBody{
		Kind:    domain.KindUpstreamRateLimited,
		Message: "too many requests, please try again later",
	}})
}

func badRequest(c echo.Context, message string) error {
	return writeError(c, domain.NewError(domain.KindInvalidInput, message, nil))
}
