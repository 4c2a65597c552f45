package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/gateway/internal/domain"
	"github.com/xiaot623/gogo/gateway/internal/transport/ws"
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Stream one reply from a running gateway",
	Long: `Send a message over the websocket API and print the reply as it
streams. Press Ctrl-C to cancel the reply; the partial text is kept in
the session history.

Example:
  gateway chat "What is a circuit breaker?"
  gateway chat --session 0b6c... "Tell me more"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		sessionID, _ := cmd.Flags().GetString("session")
		return runChat(cmd.Context(), addr, sessionID, strings.Join(args, " "))
	},
}

func init() {
	chatCmd.Flags().String("addr", "ws://localhost:8080/api/chat/ws", "gateway websocket URL")
	chatCmd.Flags().String("session", "", "session id to continue")
}

func runChat(ctx context.Context, addr, sessionID, message string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ws.ClientFrame{Type: ws.FrameChat, Message: message, SessionID: sessionID}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- readReply(conn)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if err := conn.WriteJSON(ws.ClientFrame{Type: ws.FrameCancel}); err != nil {
			return fmt.Errorf("send cancel: %w", err)
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		fmt.Fprintln(os.Stderr, "\n[cancelled]")
		return nil
	}
}

// readReply prints content events until the stream ends.
func readReply(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var ev domain.StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}

		switch ev.Type {
		case domain.EventTypeContent:
			fmt.Print(ev.Content)
		case domain.EventTypeDone:
			fmt.Println()
			fmt.Fprintf(os.Stderr, "session: %s\n", ev.SessionID)
			return nil
		case domain.EventTypeError:
			fmt.Println()
			return fmt.Errorf("gateway error: %s", ev.Error)
		}
	}
}
