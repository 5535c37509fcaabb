package ws

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/presence"
	"nhooyr.io/websocket"
)

// RoomAccess resolves the member a user acts as inside a room.
type RoomAccess interface {
	ResolveMember(ctx context.Context, userID string, kind domain.ParentKind, roomID string) (*domain.Member, error)
}

// MessageAppender persists a message sent over the socket.
type MessageAppender interface {
	Append(ctx context.Context, parentID, authorMemberID, content string, fileURL *string) (*domain.Message, error)
}

type Config struct {
	SendBuffer     int
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// Gateway owns the socket side: it routes inbound events to the services
// and fans room events out through the presence hub.
type Gateway struct {
	hub      *presence.Hub
	access   RoomAccess
	messages map[domain.ParentKind]MessageAppender
	cfg      Config
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewGateway(hub *presence.Hub, access RoomAccess, cfg Config, log zerolog.Logger) *Gateway {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 40
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		hub:      hub,
		access:   access,
		messages: make(map[domain.ParentKind]MessageAppender),
		cfg:      cfg,
		log:      log.With().Str("component", "ws").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// HandleMessages registers the store used for send-message in rooms of kind.
func (g *Gateway) HandleMessages(kind domain.ParentKind, store MessageAppender) {
	g.messages[kind] = store
}

// Close ends every open connection.
func (g *Gateway) Close() {
	g.cancel()
}

// broadcast sends data to a hub room and closes connections that cannot
// keep up.
func (g *Gateway) broadcast(roomID string, data []byte, exceptConnIDs ...string) {
	g.closeSlow(g.hub.Broadcast(roomID, data, exceptConnIDs...))
}

// DeliverRemote hands a payload relayed from another instance to the local
// connections in the room.
func (g *Gateway) DeliverRemote(roomID string, data []byte) {
	g.closeSlow(g.hub.Deliver(roomID, data))
}

func (g *Gateway) closeSlow(sinks []presence.Sink) {
	for _, sink := range sinks {
		if c, ok := sink.(*Client); ok {
			g.log.Warn().Str("conn", c.id).Str("user", c.identity.UserID).Msg("send buffer full, closing connection")
			c.Close(websocket.StatusPolicyViolation, "slow consumer")
		}
	}
}

// errorPayload maps err to its wire code and the generic description for
// it. The wrapped error text stays in the log.
func (g *Gateway) errorPayload(err error) ErrorPayload {
	switch {
	case errors.Is(err, presence.ErrNotInRoom), errors.Is(err, presence.ErrUnknownConnection):
		return ErrorPayload{Code: domain.CodeInvalidState, Message: "join the room first"}
	}
	code := domain.Code(err)
	if code == domain.CodeInternal {
		g.log.Error().Err(err).Msg("socket event failed")
	} else {
		g.log.Debug().Err(err).Str("code", code).Msg("socket event rejected")
	}
	return ErrorPayload{Code: code, Message: domain.PublicMessage(code)}
}
