package domain

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// EventPrefix marks every stream event line on the wire.
const EventPrefix = "data: "

// EventType discriminates stream events.
type EventType string

const (
	EventTypeContent EventType = "content"
	EventTypeDone    EventType = "done"
	EventTypeError   EventType = "error"
)

// StreamEvent is one unit of the client-facing streaming protocol.
//
// On the wire exactly one of "content", "done" or "error" is present:
//
//	{"content":"Hel"}
//	{"done":true,"sessionId":"0b6c..."}
//	{"error":"upstream_unavailable"}
type StreamEvent struct {
	Type      EventType
	Content   string
	SessionID string
	Error     Kind
}

// ContentEvent creates a content-chunk event carrying a delta.
func ContentEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventTypeContent, Content: delta}
}

// DoneEvent creates the completion event for a session.
func DoneEvent(sessionID string) StreamEvent {
	return StreamEvent{Type: EventTypeDone, SessionID: sessionID}
}

// ErrorEvent creates a terminal error event.
func ErrorEvent(kind Kind) StreamEvent {
	return StreamEvent{Type: EventTypeError, Error: kind}
}

// Terminal reports whether the event ends a stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventTypeDone || e.Type == EventTypeError
}

type wireContent struct {
	Content string `json:"content"`
}

type wireDone struct {
	Done      bool   `json:"done"`
	SessionID string `json:"sessionId"`
}

type wireError struct {
	Error Kind `json:"error"`
}

type wireEvent struct {
	Content   *string `json:"content"`
	Done      bool    `json:"done"`
	SessionID string  `json:"sessionId"`
	Error     *Kind   `json:"error"`
}

// MarshalJSON encodes the event in its wire form.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventTypeContent:
		return json.Marshal(wireContent{Content: e.Content})
	case EventTypeDone:
		return json.Marshal(wireDone{Done: true, SessionID: e.SessionID})
	case EventTypeError:
		return json.Marshal(wireError{Error: e.Error})
	}
	return nil, fmt.Errorf("unknown stream event type %q", e.Type)
}

// UnmarshalJSON decodes the wire form of an event.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Content != nil:
		*e = ContentEvent(*w.Content)
	case w.Done:
		*e = DoneEvent(w.SessionID)
	case w.Error != nil:
		*e = ErrorEvent(*w.Error)
	default:
		return fmt.Errorf("stream event has none of content, done, error: %s", data)
	}
	return nil
}

// Frame renders the event as a single prefixed line followed by a blank line.
func (e StreamEvent) Frame() ([]byte, error) {
	body, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(EventPrefix)+len(body)+2)
	frame = append(frame, EventPrefix...)
	frame = append(frame, body...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
