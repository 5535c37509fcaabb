package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/metrics"
	"github.com/vedran77/huddle/internal/repository"
)

// ConversationService maps an unordered pair of members to their single
// conversation, creating it on first use.
type ConversationService struct {
	convRepo   repository.ConversationRepository
	memberRepo repository.MembershipRepository
	now        func() time.Time
}

func NewConversationService(convRepo repository.ConversationRepository, memberRepo repository.MembershipRepository) *ConversationService {
	return &ConversationService{
		convRepo:   convRepo,
		memberRepo: memberRepo,
		now:        time.Now,
	}
}

// Resolve returns the conversation between a and b regardless of argument
// order. Concurrent first calls for the same pair all get the same row.
func (s *ConversationService) Resolve(ctx context.Context, memberA, memberB string) (*domain.Conversation, error) {
	if memberA == "" || memberB == "" {
		return nil, fmt.Errorf("%w: both member ids are required", domain.ErrInvalidArgument)
	}
	if memberA == memberB {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", domain.ErrInvalidArgument)
	}

	for _, id := range []string{memberA, memberB} {
		m, err := s.memberRepo.GetMemberByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading member: %w", err)
		}
		if m == nil {
			return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, id)
		}
	}

	lo, hi := domain.CanonicalPair(memberA, memberB)

	existing, err := s.convRepo.GetByMembers(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("finding conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	conv := &domain.Conversation{
		ID:          uuid.NewString(),
		MemberOneID: lo,
		MemberTwoID: hi,
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}
	err = s.convRepo.Create(ctx, conv)
	if errors.Is(err, domain.ErrConflict) {
		// Lost the race: the winner's row is the conversation.
		existing, err := s.convRepo.GetByMembers(ctx, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("finding conversation: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("conversation %s/%s conflicted but is missing", lo, hi)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	metrics.ConversationsCreated.Inc()
	return conv, nil
}

// ResolveWithProfiles resolves the conversation and attaches both members
// with their user profiles.
func (s *ConversationService) ResolveWithProfiles(ctx context.Context, memberA, memberB string) (*domain.Conversation, error) {
	conv, err := s.Resolve(ctx, memberA, memberB)
	if err != nil {
		return nil, err
	}
	if err := s.expand(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetOrCreateForUser opens the conversation between the caller's member in
// serverID and otherMemberID, which must belong to the same server.
func (s *ConversationService) GetOrCreateForUser(ctx context.Context, userID, serverID, otherMemberID string) (*domain.Conversation, error) {
	me, err := s.memberRepo.FindMember(ctx, userID, serverID)
	if err != nil {
		return nil, fmt.Errorf("finding member: %w", err)
	}
	if me == nil {
		return nil, fmt.Errorf("%w: not a member of server %s", domain.ErrPermissionDenied, serverID)
	}

	other, err := s.memberRepo.GetMemberByID(ctx, otherMemberID)
	if err != nil {
		return nil, fmt.Errorf("loading member: %w", err)
	}
	if other == nil || other.ServerID != serverID {
		return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, otherMemberID)
	}

	return s.ResolveWithProfiles(ctx, me.ID, other.ID)
}

// ListForUser lists the caller's conversations in serverID, newest first.
func (s *ConversationService) ListForUser(ctx context.Context, userID, serverID string) ([]domain.Conversation, error) {
	me, err := s.memberRepo.FindMember(ctx, userID, serverID)
	if err != nil {
		return nil, fmt.Errorf("finding member: %w", err)
	}
	if me == nil {
		return nil, fmt.Errorf("%w: not a member of server %s", domain.ErrPermissionDenied, serverID)
	}
	return s.ListForMember(ctx, me.ID)
}

func (s *ConversationService) ListForMember(ctx context.Context, memberID string) ([]domain.Conversation, error) {
	convs, err := s.convRepo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		return []domain.Conversation{}, nil
	}
	for i := range convs {
		if err := s.expand(ctx, &convs[i]); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *ConversationService) expand(ctx context.Context, conv *domain.Conversation) error {
	one, err := s.memberWithProfile(ctx, conv.MemberOneID)
	if err != nil {
		return err
	}
	two, err := s.memberWithProfile(ctx, conv.MemberTwoID)
	if err != nil {
		return err
	}
	conv.MemberOne, conv.MemberTwo = one, two
	return nil
}

func (s *ConversationService) memberWithProfile(ctx context.Context, memberID string) (*domain.Member, error) {
	m, err := s.memberRepo.GetMemberByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("loading member: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, memberID)
	}
	user, err := s.memberRepo.GetUser(ctx, m.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	m.User = user
	return m, nil
}
