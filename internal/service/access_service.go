package service

import (
	"context"
	"fmt"

	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/repository"
)

// AccessService answers which member a user acts as inside a room.
type AccessService struct {
	memberRepo  repository.MembershipRepository
	channelRepo repository.ChannelRepository
	convRepo    repository.ConversationRepository
}

func NewAccessService(
	memberRepo repository.MembershipRepository,
	channelRepo repository.ChannelRepository,
	convRepo repository.ConversationRepository,
) *AccessService {
	return &AccessService{
		memberRepo:  memberRepo,
		channelRepo: channelRepo,
		convRepo:    convRepo,
	}
}

// ResolveMember returns the user's member for the room. A channel grants
// access to every member of its server; a conversation only to its two
// participants.
func (s *AccessService) ResolveMember(ctx context.Context, userID string, kind domain.ParentKind, roomID string) (*domain.Member, error) {
	switch kind {
	case domain.ParentChannel:
		return s.channelMember(ctx, userID, roomID)
	case domain.ParentConversation:
		return s.conversationMember(ctx, userID, roomID)
	default:
		return nil, fmt.Errorf("%w: unknown room kind %q", domain.ErrInvalidArgument, kind)
	}
}

func (s *AccessService) channelMember(ctx context.Context, userID, channelID string) (*domain.Member, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("loading channel: %w", err)
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: channel %s", domain.ErrNotFound, channelID)
	}

	member, err := s.memberRepo.FindMember(ctx, userID, ch.ServerID)
	if err != nil {
		return nil, fmt.Errorf("finding member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("%w: not a member of server %s", domain.ErrPermissionDenied, ch.ServerID)
	}
	return member, nil
}

func (s *AccessService) conversationMember(ctx context.Context, userID, conversationID string) (*domain.Member, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}

	for _, memberID := range []string{conv.MemberOneID, conv.MemberTwoID} {
		m, err := s.memberRepo.GetMemberByID(ctx, memberID)
		if err != nil {
			return nil, fmt.Errorf("loading member: %w", err)
		}
		if m != nil && m.UserID == userID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: not a participant of conversation %s", domain.ErrPermissionDenied, conversationID)
}
