package server

import (
	"chatline/contract"
	"chatline/domain"
	"chatline/domain/event"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds inbound frames; chat payloads are small.
	maxFrameSize = 32 * 1024
)

var _ contract.EventSink = (*Client)(nil)

// serverFrame is the wire shape of everything the server pushes: events and
// acks alike.
type serverFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	AckID string `json:"ackId,omitempty"`
	OK    *bool  `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// Client owns one websocket connection. The write pump is the only goroutine
// writing to the socket; everyone else goes through the buffered send channel,
// so a slow reader backs up its own channel and nothing more.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(log *slog.Logger, conn *websocket.Conn, sendBuffer int) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		log:    log,
		closed: make(chan struct{}),
	}
}

// Consume serializes a domain event into a wire frame and enqueues it. A full
// send buffer or a closed connection returns an error so the router can count
// the drop; it never blocks fan-out.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	frame, err := json.Marshal(serverFrame{Event: e.EventName(), Data: eventPayload(e)})
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.send <- frame:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// Ack reports the outcome of a client frame that carried an ackId.
func (c *Client) Ack(ackID string, data any, errCode string) {
	ok := errCode == ""
	frame, err := json.Marshal(serverFrame{
		Event: "ack",
		AckID: ackID,
		OK:    &ok,
		Data:  data,
		Error: errCode,
	})
	if err != nil {
		c.log.Error("Failed to marshal ack", "error", err)
		return
	}
	if err := c.enqueue(frame); err != nil {
		c.log.Debug("Ack dropped", "ackId", ackID, "error", err)
	}
}

// Close tears the connection down; safe to call from any goroutine and more
// than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// WritePump drains the send channel onto the socket and keeps the connection
// alive with pings. It exits when the client closes or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed, closing connection", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// eventPayload maps a domain event to the JSON body clients expect.
func eventPayload(e event.DomainEvent) any {
	switch evt := e.(type) {
	case event.MessageEvent:
		return toMessageDTO(evt.Message)
	case event.TypingEvent:
		return map[string]any{"senderId": evt.SenderID, "isTyping": evt.IsTyping}
	case event.MessageReadEvent:
		return map[string]any{"messageId": evt.MessageID.String()}
	case event.GroupDeletedEvent:
		return map[string]any{"groupId": evt.GroupID}
	default:
		return nil
	}
}

type messageDTO struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId,omitempty"`
	GroupID    string    `json:"groupId,omitempty"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toMessageDTO(m domain.Message) messageDTO {
	return messageDTO{
		ID:         m.ID.String(),
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		GroupID:    m.GroupID,
		Content:    m.Content,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}
