package domain

import (
	"slices"
	"strings"
	"time"
)

// ParentKind tells which entity a message hangs off.
type ParentKind string

const (
	ParentChannel      ParentKind = "channel"
	ParentConversation ParentKind = "conversation"
)

func (k ParentKind) Valid() bool {
	return k == ParentChannel || k == ParentConversation
}

// Message is shared by channel messages and direct messages; ParentID is the
// channel id or the conversation id depending on Kind.
type Message struct {
	ID             string     `json:"id"`
	Kind           ParentKind `json:"kind"`
	ParentID       string     `json:"parent_id"`
	AuthorMemberID string     `json:"author_member_id"`
	Content        string     `json:"content"`
	FileURL        *string    `json:"file_url,omitempty"`
	Reactions      []string   `json:"reactions"`
	Deleted        bool       `json:"deleted"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	// Version is the compare-and-swap token bumped on every stored mutation.
	Version int64 `json:"-"`
}

// Edited distinguishes an edited message from an untouched one.
func (m *Message) Edited() bool {
	return m.UpdatedAt.After(m.CreatedAt)
}

// HasReaction reports whether emoji is in the reaction set.
func (m *Message) HasReaction(emoji string) bool {
	return slices.Contains(m.Reactions, emoji)
}

// Clone returns a copy that does not share the reaction slice.
func (m *Message) Clone() *Message {
	c := *m
	c.Reactions = slices.Clone(m.Reactions)
	if c.Reactions == nil {
		c.Reactions = []string{}
	}
	return &c
}

// Redacted is the copy of m that leaves the service: a deleted message keeps
// its content in storage but is sent without content or file.
func (m *Message) Redacted() *Message {
	if !m.Deleted {
		return m
	}
	c := m.Clone()
	c.Content = ""
	c.FileURL = nil
	return c
}

// RoomID is the presence-hub key for a message parent. Kinds are kept apart
// so a channel and a conversation can never share a room.
func RoomID(kind ParentKind, parentID string) string {
	return string(kind) + ":" + parentID
}

// ParseRoomID splits a presence-hub key back into kind and parent id.
func ParseRoomID(roomID string) (ParentKind, string, bool) {
	kind, parentID, ok := strings.Cut(roomID, ":")
	if !ok || !ParentKind(kind).Valid() || parentID == "" {
		return "", "", false
	}
	return ParentKind(kind), parentID, true
}
