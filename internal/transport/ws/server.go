// Package ws provides the websocket chat endpoint.
//
// Client frames:
//
//	{"type":"chat","message":"hello","sessionId":"..."}
//	{"type":"cancel"}
//
// Server frames are stream event bodies, one per websocket message:
//
//	{"content":"Hel"}
//	{"done":true,"sessionId":"..."}
//	{"error":"upstream_unavailable"}
package ws

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/service"
)

const (
	FrameChat   = "chat"
	FrameCancel = "cancel"

	maxMessageSize = 64 * 1024
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	sendBuffer     = 64
)

// ClientFrame is a message sent by a websocket client.
type ClientFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Server handles websocket connections.
type Server struct {
	svc      *service.Service
	upgrader websocket.Upgrader
}

// NewServer creates a new websocket server. Connections are accepted from
// the given origins, from any origin when the list contains "*", and from
// clients that send no Origin header.
func NewServer(svc *service.Service, allowedOrigins []string) *Server {
	return &Server{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// connection is one websocket client. It runs at most one stream at a time.
type connection struct {
	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active *service.Stream
}

// HandleEcho upgrades the request and serves the connection until it closes.
func (s *Server) HandleEcho(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade websocket")
		return nil
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	conn := &connection{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	ws.SetReadLimit(maxMessageSize)

	go s.writePump(conn)
	s.readPump(conn)
	return nil
}

// readPump reads client frames until the connection fails.
func (s *Server) readPump(conn *connection) {
	defer func() {
		conn.cancel()
		conn.ws.Close()
	}()

	conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		s.handleFrame(conn, data)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (s *Server) writePump(conn *connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case message := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				conn.cancel()
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.cancel()
				return
			}

		case <-conn.ctx.Done():
			conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleFrame dispatches a client frame.
func (s *Server) handleFrame(conn *connection, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		conn.write(domain.ErrorEvent(domain.KindInvalidInput))
		return
	}

	switch frame.Type {
	case FrameChat:
		s.handleChat(conn, frame)
	case FrameCancel:
		conn.mu.Lock()
		active := conn.active
		conn.mu.Unlock()
		if active != nil {
			active.Cancel()
		}
	default:
		conn.write(domain.ErrorEvent(domain.KindInvalidInput))
	}
}

// handleChat starts a stream and forwards its events to the client.
func (s *Server) handleChat(conn *connection, frame ClientFrame) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.active != nil {
		conn.write(domain.ErrorEvent(domain.KindInvalidInput))
		return
	}

	stream, err := s.svc.StreamCompletion(conn.ctx, frame.Message, frame.SessionID)
	if err != nil {
		log.Debug().Err(err).Msg("websocket chat rejected")
		conn.write(domain.ErrorEvent(domain.KindOf(err)))
		return
	}
	conn.active = stream

	go func() {
		for ev := range stream.Events() {
			// The client may start its next turn as soon as it reads the
			// terminal event.
			if ev.Terminal() {
				conn.finish(stream)
			}
			if !conn.write(ev) {
				break
			}
		}
		conn.finish(stream)
		outcome := stream.Wait()
		log.Info().Str("session_id", stream.SessionID()).Str("outcome", string(outcome)).Msg("websocket stream finished")
	}()
}

// finish clears the active stream if it is still st.
func (c *connection) finish(st *service.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == st {
		c.active = nil
	}
}

// write queues an event for the client. It reports false once the
// connection is gone.
func (c *connection) write(ev domain.StreamEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode stream event")
		return true
	}
	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	}
}
