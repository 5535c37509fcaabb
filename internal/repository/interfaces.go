//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_repository.go -package=mocks
package repository

import (
	"context"

	"github.com/vedran77/huddle/internal/domain"
)

// Lookups return (nil, nil) when the row does not exist.

// MembershipRepository is read-only: members and users are owned by the
// server-management side of the product.
type MembershipRepository interface {
	FindMember(ctx context.Context, userID, serverID string) (*domain.Member, error)
	GetMemberByID(ctx context.Context, memberID string) (*domain.Member, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

type ChannelRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Channel, error)
}

type ConversationRepository interface {
	// Create fails with domain.ErrConflict when the ordered member pair
	// already exists.
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	GetByMembers(ctx context.Context, memberOneID, memberTwoID string) (*domain.Conversation, error)
	ListByMember(ctx context.Context, memberID string) ([]domain.Conversation, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, kind domain.ParentKind, id string) (*domain.Message, error)
	// List returns up to limit messages older than the before cursor, in
	// chronological order. An empty cursor starts from the newest message.
	List(ctx context.Context, kind domain.ParentKind, parentID, before string, limit int) ([]domain.Message, error)
	// Update stores msg only if the stored version still equals
	// expectedVersion, failing with domain.ErrConflict otherwise. On success
	// msg.Version is set to the new stored version.
	Update(ctx context.Context, msg *domain.Message, expectedVersion int64) error
}
