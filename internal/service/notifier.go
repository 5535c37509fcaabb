package service

import "github.com/vedran77/huddle/internal/domain"

// Notifier broadcasts real-time events to connected clients. Every call gets
// the full stored message.
type Notifier interface {
	NotifyMessage(msg *domain.Message)
	NotifyMessageUpdated(msg *domain.Message)
	NotifyMessageDeleted(msg *domain.Message)
	NotifyReaction(msg *domain.Message)
}

// TypingClearer drops a user's typing indicator in a room.
type TypingClearer interface {
	StopTyping(roomID, userID string)
}
