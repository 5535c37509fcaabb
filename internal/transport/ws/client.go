package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/metrics"
	"github.com/vedran77/huddle/internal/presence"
	"github.com/vedran77/huddle/internal/transport/http/middleware"
	"github.com/vedran77/huddle/pkg/validator"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 16 * 1024
	handlerTimeout = 10 * time.Second
)

// Client represents a single WebSocket connection.
type Client struct {
	id       string
	gw       *Gateway
	conn     *websocket.Conn
	identity middleware.Identity
	limiter  *rate.Limiter
	log      zerolog.Logger

	// rooms caches the member resolved on join, keyed by hub room id.
	rooms map[string]*domain.Member
	mu    sync.Mutex

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(gw *Gateway, conn *websocket.Conn, identity middleware.Identity) *Client {
	id := uuid.NewString()
	conn.SetReadLimit(maxMessageSize)
	return &Client{
		id:       id,
		gw:       gw,
		conn:     conn,
		identity: identity,
		limiter:  rate.NewLimiter(rate.Limit(gw.cfg.RateLimit), gw.cfg.RateBurst),
		log:      gw.log.With().Str("conn", id).Str("user", identity.UserID).Logger(),
		rooms:    make(map[string]*domain.Member),
		send:     make(chan []byte, gw.cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.identity.UserID }

// Send queues data without blocking. It fails once the buffer is full or the
// connection is closing.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump and closes the socket. Safe to call more than
// once and from any goroutine.
func (c *Client) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		go c.conn.Close(code, reason)
	})
}

func (c *Client) member(roomID string) *domain.Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

// ReadPump reads events until the socket closes, then removes the
// connection from every room before returning.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.disconnect()
		c.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debug().Msg("client disconnected")
			} else {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.RateLimitHits.Inc()
			c.sendError(ErrorPayload{Code: CodeRateLimited, Message: "Too many events, slow down"})
			continue
		}

		var event Event
		if typ != websocket.MessageText || json.Unmarshal(data, &event) != nil {
			c.sendError(ErrorPayload{Code: domain.CodeInvalidArgument, Message: "events must be JSON text frames"})
			continue
		}
		metrics.SocketEvents.WithLabelValues(eventLabel(event.Type)).Inc()

		evtCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
		c.handleEvent(evtCtx, &event)
		cancel()
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("write error")
				c.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("ping error")
				c.Close(websocket.StatusGoingAway, "ping failed")
				return
			}

		case <-ctx.Done():
			c.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event. Failures are reported to
// the client as error events; the connection stays open.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	var err error
	switch event.Type {
	case EventTypeJoinRoom:
		err = c.joinRoom(ctx, event.Kind, event.RoomID)
	case EventTypeLeaveRoom:
		err = c.leaveRoom(event.Kind, event.RoomID)
	case EventTypeStartTyping:
		err = c.startTyping(event.Kind, event.RoomID)
	case EventTypeSendMessage:
		err = c.sendMessage(ctx, event)
	case EventTypePing:
		c.sendEvent(EventTypePong, "", "", struct{}{})
	default:
		err = fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidArgument, event.Type)
	}
	if err != nil {
		c.sendError(c.gw.errorPayload(err))
	}
}

func roomKey(kind domain.ParentKind, roomID string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: kind must be channel or conversation", domain.ErrInvalidArgument)
	}
	if roomID == "" {
		return "", fmt.Errorf("%w: room_id is required", domain.ErrInvalidArgument)
	}
	return domain.RoomID(kind, roomID), nil
}

func (c *Client) joinRoom(ctx context.Context, kind domain.ParentKind, roomID string) error {
	key, err := roomKey(kind, roomID)
	if err != nil {
		return err
	}
	member, err := c.gw.access.ResolveMember(ctx, c.identity.UserID, kind, roomID)
	if err != nil {
		return err
	}

	userAlreadyPresent := c.gw.hub.UserInRoom(key, c.identity.UserID)
	added, err := c.gw.hub.Join(c.id, key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.rooms[key] = member
	c.mu.Unlock()

	if !added {
		return nil
	}
	c.log.Debug().Str("room", key).Msg("joined room")

	if !userAlreadyPresent {
		data, err := encodeEvent(EventTypeUserJoined, kind, roomID, PresencePayload{
			UserID: c.identity.UserID, MemberID: member.ID, Username: c.identity.Name,
		})
		if err == nil {
			c.gw.broadcast(key, data, c.id)
		}
	}

	// Let the newcomer see who is already typing.
	for _, u := range c.gw.hub.TypingUsers(key) {
		c.sendEvent(EventTypeTyping, kind, roomID, TypingPayload{UserID: u.UserID, Username: u.Username})
	}
	return nil
}

func (c *Client) leaveRoom(kind domain.ParentKind, roomID string) error {
	key, err := roomKey(kind, roomID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	member := c.rooms[key]
	delete(c.rooms, key)
	c.mu.Unlock()

	if !c.gw.hub.Leave(c.id, key) {
		return nil
	}
	c.announceLeft(key, member)
	return nil
}

func (c *Client) startTyping(kind domain.ParentKind, roomID string) error {
	key, err := roomKey(kind, roomID)
	if err != nil {
		return err
	}
	started, err := c.gw.hub.StartTyping(c.id, key, presence.TypingUser{
		UserID:   c.identity.UserID,
		Username: c.identity.Name,
	})
	if err != nil {
		return err
	}
	if !started {
		return nil
	}

	data, err := encodeEvent(EventTypeTyping, kind, roomID, TypingPayload{UserID: c.identity.UserID, Username: c.identity.Name})
	if err != nil {
		return err
	}
	c.gw.broadcast(key, data, c.id)
	return nil
}

func (c *Client) sendMessage(ctx context.Context, event *Event) error {
	key, err := roomKey(event.Kind, event.RoomID)
	if err != nil {
		return err
	}
	member := c.member(key)
	if member == nil {
		return fmt.Errorf("%w: join the room first", domain.ErrInvalidState)
	}
	store, ok := c.gw.messages[event.Kind]
	if !ok {
		return fmt.Errorf("%w: messages are not accepted in %s rooms", domain.ErrInvalidArgument, event.Kind)
	}

	var p SendMessagePayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("%w: invalid send-message payload", domain.ErrInvalidArgument)
	}
	if errs := validator.Struct(p); errs.HasErrors() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, errs.Error())
	}

	// The store broadcasts the stored message to the room, sender included.
	_, err = store.Append(ctx, event.RoomID, member.ID, p.Content, p.FileURL)
	return err
}

// disconnect removes the connection from the hub and tells each room it
// was in, unless the user still has another connection there.
func (c *Client) disconnect() {
	rooms := c.gw.hub.Disconnect(c.id)
	metrics.SocketConnections.Dec()

	c.mu.Lock()
	members := c.rooms
	c.rooms = make(map[string]*domain.Member)
	c.mu.Unlock()

	for _, key := range rooms {
		c.announceLeft(key, members[key])
	}
	c.log.Debug().Int("rooms", len(rooms)).Msg("connection closed")
}

func (c *Client) announceLeft(key string, member *domain.Member) {
	if c.gw.hub.UserInRoom(key, c.identity.UserID) {
		return
	}
	kind, roomID, ok := domain.ParseRoomID(key)
	if !ok {
		return
	}
	p := PresencePayload{UserID: c.identity.UserID, Username: c.identity.Name}
	if member != nil {
		p.MemberID = member.ID
	}
	data, err := encodeEvent(EventTypeUserLeft, kind, roomID, p)
	if err != nil {
		return
	}
	c.gw.broadcast(key, data)
}

func (c *Client) sendEvent(eventType string, kind domain.ParentKind, roomID string, payload any) {
	data, err := encodeEvent(eventType, kind, roomID, payload)
	if err != nil {
		c.log.Error().Err(err).Str("type", eventType).Msg("encoding event")
		return
	}
	c.Send(data)
}

func (c *Client) sendError(p ErrorPayload) {
	c.sendEvent(EventTypeError, "", "", p)
}
