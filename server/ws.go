package server

import (
	"chatline/apperrors"
	"chatline/auth"
	"chatline/contract"
	"chatline/domain"
	"chatline/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnectionMetrics is the slice of the metrics collector the gateway needs.
type ConnectionMetrics interface {
	ConnOpened()
	ConnClosed()
}

// clientFrame is what clients send: an event name, a payload, and an optional
// ack correlation id.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId,omitempty"`
}

// Gateway upgrades authenticated HTTP requests to websocket connections and
// bridges their frames to the dispatch and membership services. Authentication
// happens before the upgrade: an invalid token never gets a socket.
type Gateway struct {
	registry   contract.Registry
	messages   services.IMessageService
	groups     services.IGroupService
	tokens     *auth.TokenManager
	metrics    ConnectionMetrics
	log        *slog.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

func NewGateway(
	log *slog.Logger,
	registry contract.Registry,
	messages services.IMessageService,
	groups services.IGroupService,
	tokens *auth.TokenManager,
	metrics ConnectionMetrics,
	sendBuffer int,
) *Gateway {
	return &Gateway{
		registry:   registry,
		messages:   messages,
		groups:     groups,
		tokens:     tokens,
		metrics:    metrics,
		log:        log.With("component", "Gateway"),
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		http.Error(w, `{"error":"NOT_AUTHENTICATED"}`, http.StatusUnauthorized)
		return
	}
	claims, err := g.tokens.Validate(token)
	if err != nil {
		http.Error(w, `{"error":"NOT_AUTHENTICATED"}`, http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("Upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	client := NewClient(g.log.With("connId", connID), conn, g.sendBuffer)
	g.registry.Register(connID, claims.UserID, client)
	if g.metrics != nil {
		g.metrics.ConnOpened()
	}
	g.log.Info("Connection established", "connId", connID, "userId", claims.UserID)

	go client.WritePump()
	g.readPump(r.Context(), connID, claims.UserID, conn, client)
}

// readPump processes inbound frames strictly in arrival order. Graceful and
// abrupt disconnects end here identically: the session is unregistered so
// fan-out never targets a dead connection.
func (g *Gateway) readPump(ctx context.Context, connID, userID string, conn *websocket.Conn, client *Client) {
	defer func() {
		g.registry.Unregister(connID)
		client.Close()
		if g.metrics != nil {
			g.metrics.ConnClosed()
		}
		g.log.Info("Connection closed", "connId", connID, "userId", userID)
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debug("Unexpected close", "connId", connID, "error", err)
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			client.Ack("", nil, apperrors.Code(apperrors.ErrInvalidInput))
			continue
		}
		g.handleFrame(ctx, connID, userID, client, frame)
	}
}

func (g *Gateway) handleFrame(ctx context.Context, connID, userID string, client *Client, frame clientFrame) {
	data, err := g.dispatch(ctx, connID, userID, frame)
	if frame.AckID == "" {
		if err != nil {
			g.log.Debug("Frame rejected without ack", "event", frame.Event, "error", err)
		}
		return
	}
	if err != nil {
		client.Ack(frame.AckID, nil, apperrors.Code(err))
		return
	}
	client.Ack(frame.AckID, data, "")
}

func (g *Gateway) dispatch(ctx context.Context, connID, userID string, frame clientFrame) (any, error) {
	switch frame.Event {
	case "join":
		return nil, g.handleJoin(connID, userID, frame.Data)
	case "join-group":
		return nil, g.handleJoinGroup(ctx, connID, userID, frame.Data)
	case "send-message":
		return g.handleSendMessage(ctx, userID, frame.Data)
	case "send-group-message":
		return g.handleSendGroupMessage(ctx, userID, frame.Data)
	case "typing":
		return nil, g.handleTyping(userID, frame.Data)
	case "mark-as-read":
		return nil, g.handleMarkAsRead(ctx, userID, frame.Data)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", apperrors.ErrInvalidInput, frame.Event)
	}
}

// handleJoin subscribes the connection to a personal room. A connection may
// only claim its own identity's room.
func (g *Gateway) handleJoin(connID, userID string, data json.RawMessage) error {
	var requested string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &requested); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
	}
	if requested != "" && requested != userID {
		return fmt.Errorf("%w: cannot join another user's room", apperrors.ErrForbidden)
	}
	return g.registry.Join(connID, domain.PersonalRoom(userID))
}

func (g *Gateway) handleJoinGroup(ctx context.Context, connID, userID string, data json.RawMessage) error {
	var groupID string
	if err := json.Unmarshal(data, &groupID); err != nil || groupID == "" {
		return fmt.Errorf("%w: groupId is required", apperrors.ErrInvalidInput)
	}
	// Only members may subscribe to a group room.
	if err := g.groups.AuthorizeSend(ctx, groupID, userID); err != nil {
		return err
	}
	return g.registry.Join(connID, domain.GroupRoom(groupID))
}

func (g *Gateway) handleSendMessage(ctx context.Context, userID string, data json.RawMessage) (any, error) {
	var payload struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	message, err := g.messages.SendDirect(ctx, userID, payload.ReceiverID, payload.Content)
	if err != nil {
		return nil, err
	}
	return toMessageDTO(message), nil
}

func (g *Gateway) handleSendGroupMessage(ctx context.Context, userID string, data json.RawMessage) (any, error) {
	var payload struct {
		GroupID string `json:"groupId"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	message, err := g.messages.SendGroup(ctx, userID, payload.GroupID, payload.Content)
	if err != nil {
		return nil, err
	}
	return toMessageDTO(message), nil
}

func (g *Gateway) handleTyping(userID string, data json.RawMessage) error {
	var payload struct {
		ReceiverID string `json:"receiverId"`
		IsTyping   bool   `json:"isTyping"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	// Typing never fails; a missing receiver is a silent no-op.
	g.messages.Typing(userID, payload.ReceiverID, payload.IsTyping)
	return nil
}

func (g *Gateway) handleMarkAsRead(ctx context.Context, userID string, data json.RawMessage) error {
	var payload struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	messageID, err := uuid.Parse(payload.MessageID)
	if err != nil {
		return fmt.Errorf("%w: invalid messageId", apperrors.ErrInvalidInput)
	}
	return g.messages.MarkRead(ctx, userID, messageID)
}
