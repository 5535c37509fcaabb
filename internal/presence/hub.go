// Package presence tracks which connections sit in which rooms and who is
// typing where. It holds no durable state; everything is rebuilt as clients
// reconnect.
package presence

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/metrics"
)

const DefaultTypingTimeout = 3 * time.Second

var (
	ErrUnknownConnection = errors.New("connection is not registered")
	ErrNotInRoom         = errors.New("connection has not joined the room")
)

// Sink is one live connection as the hub sees it. Send must not block; it
// reports false when the payload could not be queued.
type Sink interface {
	ID() string
	UserID() string
	Send(data []byte) bool
}

// Forwarder carries room broadcasts to other instances.
type Forwarder interface {
	Forward(roomID string, data []byte)
}

type TypingUser struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Timer is the part of *time.Timer the hub uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. It matches time.AfterFunc so tests can
// substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type connState struct {
	sink  Sink
	rooms map[string]struct{}
}

type typingEntry struct {
	user   TypingUser
	connID string
	timer  Timer
	gen    uint64
}

// removal is a typing entry taken out under the lock; the stop hook runs
// once the lock is released.
type removal struct {
	roomID string
	user   TypingUser
}

type Hub struct {
	mu     sync.Mutex
	conns  map[string]*connState
	rooms  map[string]map[string]Sink
	typing map[string]map[string]*typingEntry
	gen    uint64

	typingTimeout   time.Duration
	afterFunc       AfterFunc
	onTypingStopped func(roomID string, user TypingUser)
	forwarder       Forwarder
	log             zerolog.Logger
}

type Option func(*Hub)

func WithTypingTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.typingTimeout = d
		}
	}
}

func WithAfterFunc(f AfterFunc) Option {
	return func(h *Hub) { h.afterFunc = f }
}

func WithLogger(log zerolog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		conns:         make(map[string]*connState),
		rooms:         make(map[string]map[string]Sink),
		typing:        make(map[string]map[string]*typingEntry),
		typingTimeout: DefaultTypingTimeout,
		afterFunc:     realAfterFunc,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnTypingStopped registers the hook called whenever a typing entry goes
// away, whether by expiry, explicit stop, leave or disconnect.
func (h *Hub) OnTypingStopped(fn func(roomID string, user TypingUser)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTypingStopped = fn
}

func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forwarder = f
}

func (h *Hub) TypingTimeout() time.Duration {
	return h.typingTimeout
}

func (h *Hub) Register(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[sink.ID()]; ok {
		return
	}
	h.conns[sink.ID()] = &connState{sink: sink, rooms: make(map[string]struct{})}
}

// Join adds the connection to the room. It reports whether the connection
// was newly added.
func (h *Hub) Join(connID, roomID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if _, ok := conn.rooms[roomID]; ok {
		return false, nil
	}
	conn.rooms[roomID] = struct{}{}
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[string]Sink)
		h.rooms[roomID] = members
	}
	members[connID] = conn.sink
	return true, nil
}

// Leave removes the connection from the room along with any typing entry it
// owns there. It reports whether the connection was in the room.
func (h *Hub) Leave(connID, roomID string) bool {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	if _, ok := conn.rooms[roomID]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(conn.rooms, roomID)
	h.removeMemberLocked(connID, roomID)
	removed := h.dropOwnedTypingLocked(connID, roomID)
	hook := h.onTypingStopped
	h.mu.Unlock()

	h.fireStopped(hook, removed)
	return true
}

// Disconnect forgets the connection entirely. When it returns, the
// connection is in no room and owns no typing entry. The rooms it was in
// are returned sorted.
func (h *Hub) Disconnect(connID string) []string {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	delete(h.conns, connID)

	rooms := make([]string, 0, len(conn.rooms))
	var removed []removal
	for roomID := range conn.rooms {
		rooms = append(rooms, roomID)
		h.removeMemberLocked(connID, roomID)
		removed = append(removed, h.dropOwnedTypingLocked(connID, roomID)...)
	}
	hook := h.onTypingStopped
	h.mu.Unlock()

	h.fireStopped(hook, removed)
	sort.Strings(rooms)
	return rooms
}

// StartTyping marks user as typing in the room on behalf of connID. It
// returns true when the user was not typing before; a repeat call only
// pushes the expiry back.
func (h *Hub) StartTyping(connID, roomID string, user TypingUser) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if _, ok := conn.rooms[roomID]; !ok {
		return false, ErrNotInRoom
	}

	users := h.typing[roomID]
	if users == nil {
		users = make(map[string]*typingEntry)
		h.typing[roomID] = users
	}

	h.gen++
	gen := h.gen
	timer := h.afterFunc(h.typingTimeout, func() { h.expire(roomID, user.UserID, gen) })

	if entry, ok := users[user.UserID]; ok {
		entry.timer.Stop()
		entry.timer = timer
		entry.gen = gen
		entry.connID = connID
		entry.user = user
		return false, nil
	}

	users[user.UserID] = &typingEntry{user: user, connID: connID, timer: timer, gen: gen}
	metrics.TypingActive.Inc()
	return true, nil
}

// StopTyping clears the user's typing entry in the room, if any.
func (h *Hub) StopTyping(roomID, userID string) {
	h.mu.Lock()
	entry := h.typing[roomID][userID]
	if entry == nil {
		h.mu.Unlock()
		return
	}
	entry.timer.Stop()
	h.deleteTypingLocked(roomID, userID)
	hook := h.onTypingStopped
	h.mu.Unlock()

	h.fireStopped(hook, []removal{{roomID: roomID, user: entry.user}})
}

// expire runs from the entry's timer. A timer that was superseded by a
// refresh carries an old generation and does nothing.
func (h *Hub) expire(roomID, userID string, gen uint64) {
	h.mu.Lock()
	entry := h.typing[roomID][userID]
	if entry == nil || entry.gen != gen {
		h.mu.Unlock()
		return
	}
	h.deleteTypingLocked(roomID, userID)
	hook := h.onTypingStopped
	h.mu.Unlock()

	h.log.Debug().Str("room", roomID).Str("user", userID).Msg("typing expired")
	h.fireStopped(hook, []removal{{roomID: roomID, user: entry.user}})
}

// Broadcast delivers data to every local connection in the room except the
// listed connection ids, then forwards it to other instances. It returns the
// local sinks whose buffers were full.
func (h *Hub) Broadcast(roomID string, data []byte, exceptConnIDs ...string) []Sink {
	failed := h.Deliver(roomID, data, exceptConnIDs...)

	h.mu.Lock()
	fwd := h.forwarder
	h.mu.Unlock()
	if fwd != nil {
		fwd.Forward(roomID, data)
	}
	return failed
}

// Deliver is the local-only half of Broadcast, used for payloads relayed in
// from other instances.
func (h *Hub) Deliver(roomID string, data []byte, exceptConnIDs ...string) []Sink {
	h.mu.Lock()
	targets := make([]Sink, 0, len(h.rooms[roomID]))
	for connID, sink := range h.rooms[roomID] {
		if slices.Contains(exceptConnIDs, connID) {
			continue
		}
		targets = append(targets, sink)
	}
	h.mu.Unlock()

	var failed []Sink
	for _, sink := range targets {
		if !sink.Send(data) {
			metrics.DroppedDeliveries.Inc()
			failed = append(failed, sink)
		}
	}
	return failed
}

// TypingUsers lists who is typing in the room, ordered by user id.
func (h *Hub) TypingUsers(roomID string) []TypingUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make([]TypingUser, 0, len(h.typing[roomID]))
	for _, entry := range h.typing[roomID] {
		users = append(users, entry.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// Members lists the connection ids in the room, sorted.
func (h *Hub) Members(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms lists the rooms a connection has joined, sorted.
func (h *Hub) Rooms(connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(conn.rooms))
	for id := range conn.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

// UserInRoom reports whether any local connection of userID is in the room.
func (h *Hub) UserInRoom(roomID, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sink := range h.rooms[roomID] {
		if sink.UserID() == userID {
			return true
		}
	}
	return false
}

func (h *Hub) removeMemberLocked(connID, roomID string) {
	members := h.rooms[roomID]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) dropOwnedTypingLocked(connID, roomID string) []removal {
	var removed []removal
	for userID, entry := range h.typing[roomID] {
		if entry.connID != connID {
			continue
		}
		entry.timer.Stop()
		h.deleteTypingLocked(roomID, userID)
		removed = append(removed, removal{roomID: roomID, user: entry.user})
	}
	return removed
}

func (h *Hub) deleteTypingLocked(roomID, userID string) {
	users := h.typing[roomID]
	if _, ok := users[userID]; !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(h.typing, roomID)
	}
	metrics.TypingActive.Dec()
}

func (h *Hub) fireStopped(hook func(string, TypingUser), removed []removal) {
	if hook == nil {
		return
	}
	for _, r := range removed {
		hook(r.roomID, r.user)
	}
}
