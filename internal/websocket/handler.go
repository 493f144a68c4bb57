package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"support-chat/internal/domain"
	"support-chat/internal/presence"
	"support-chat/internal/realtime"
	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"
	"support-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests to websocket connections. The identity
// middleware has already resolved who is connecting; the connection is bound
// to that actor's channels for its lifetime.
type Handler struct {
	hub        *Hub
	channels   realtime.ChannelService
	authorizer *ChannelAuthorizer
	log        *logger.Logger
}

func NewHandler(hub *Hub, channels realtime.ChannelService, authorizer *ChannelAuthorizer, log *logger.Logger) *Handler {
	return &Handler{hub: hub, channels: channels, authorizer: authorizer, log: log}
}

// clientCommand is the inbound frame protocol. Clients subscribe to channels
// and announce typing state; everything else flows outbound.
type clientCommand struct {
	Action   string `json:"action"`
	Channel  string `json:"channel,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

func (h *Handler) Connect(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := services.IdentityFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	isAdmin := services.IsAdminFromContext(ctx)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, id.ActorID(), isAdmin)
	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(connCtx)

	// Every connection follows its own conversation; admins also follow the
	// feed so the console list stays current.
	scope := id.Scope()
	h.hub.Subscribe(client, scope.Key())
	h.hub.Subscribe(client, presence.ChannelName(scope))
	if isAdmin {
		h.hub.Subscribe(client, realtime.FeedChannelName)
	}

	h.readLoop(connCtx, conn, client, id, isAdmin)
	h.hub.Unregister(client)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, id domain.Identity, isAdmin bool) {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var cmd clientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			continue
		}
		h.handleCommand(ctx, client, id, isAdmin, cmd)
	}
}

func (h *Handler) handleCommand(ctx context.Context, client *Client, id domain.Identity, isAdmin bool, cmd clientCommand) {
	switch cmd.Action {
	case "subscribe":
		if h.authorizer.CanSubscribe(id, isAdmin, cmd.Channel) {
			h.hub.Subscribe(client, cmd.Channel)
		}
	case "unsubscribe":
		h.hub.Unsubscribe(client, cmd.Channel)
	case "typing":
		h.track(ctx, id, cmd.IsTyping)
	}
}

// track publishes the actor's typing state into its conversation's typing
// topic. Subscribers receive the hydrated presence set via the bridge.
func (h *Handler) track(ctx context.Context, id domain.Identity, isTyping bool) {
	ch := h.channels.Channel(presence.ChannelName(id.Scope()))
	err := ch.Track(ctx, realtime.PresenceState{
		ActorID:   id.ActorID(),
		IsTyping:  isTyping,
		LastTyped: time.Now(),
	})
	if err != nil {
		h.log.Warnf("typing track for %s failed: %v", id.ActorID(), err)
	}
}
