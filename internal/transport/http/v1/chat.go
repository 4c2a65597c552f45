package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// Chat streams a completion as server-sent events. Errors that happen
// before the first event are plain JSON responses; after that every
// failure arrives as a terminal error event.
func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	stream, err := h.service.StreamCompletion(ctx, req.Message, req.SessionID)
	if err != nil {
		return writeError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for ev := range stream.Events() {
		frame, err := ev.Frame()
		if err != nil {
			log.Error().Err(err).Str("session_id", stream.SessionID()).Msg("failed to encode stream event")
			continue
		}
		if _, err := res.Write(frame); err != nil {
			log.Debug().Err(err).Str("session_id", stream.SessionID()).Msg("client went away")
			break
		}
		res.Flush()
	}

	outcome := stream.Wait()
	log.Info().Str("session_id", stream.SessionID()).Str("outcome", string(outcome)).Msg("chat stream finished")
	return nil
}

// Complete returns a whole completion in one JSON response.
func (h *Handler) Complete(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.service.GetCompletion(c.Request().Context(), req.Message, req.SessionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
