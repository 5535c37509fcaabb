package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/mocks"
	"go.uber.org/mock/gomock"
)

func Test_Resolve_Is_Symmetric(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := NewConversationService(f.convs, f.members)

	ab, err := svc.Resolve(ctx, "m-bob", "m-alice")
	req.NoError(err)
	ba, err := svc.Resolve(ctx, "m-alice", "m-bob")
	req.NoError(err)

	req.Equal(ab.ID, ba.ID)
	req.Equal("m-alice", ab.MemberOneID)
	req.Equal("m-bob", ab.MemberTwoID)
}

func Test_Resolve_Rejects_Bad_Pairs(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := NewConversationService(f.convs, f.members)

	_, err := svc.Resolve(ctx, "m-alice", "m-alice")
	req.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = svc.Resolve(ctx, "", "m-alice")
	req.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = svc.Resolve(ctx, "m-alice", "m-ghost")
	req.ErrorIs(err, domain.ErrNotFound)
}

func Test_Concurrent_Resolve_Yields_One_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := NewConversationService(f.convs, f.members)

	const callers = 10
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "m-alice", "m-bob"
			if i%2 == 0 {
				a, b = b, a
			}
			conv, err := svc.Resolve(ctx, a, b)
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		req.NoError(errs[i])
		req.Equal(ids[0], ids[i])
	}
	convs, err := f.convs.ListByMember(ctx, "m-alice")
	req.NoError(err)
	req.Len(convs, 1)
}

func Test_Resolve_Rereads_After_Losing_Create_Race(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	convRepo := mocks.NewMockConversationRepository(ctrl)
	memberRepo := mocks.NewMockMembershipRepository(ctrl)
	svc := NewConversationService(convRepo, memberRepo)
	winner := &domain.Conversation{ID: "c-winner", MemberOneID: "a", MemberTwoID: "b"}

	memberRepo.EXPECT().GetMemberByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string) (*domain.Member, error) {
			return &domain.Member{ID: id}, nil
		}).Times(2)
	gomock.InOrder(
		convRepo.EXPECT().GetByMembers(gomock.Any(), "a", "b").Return(nil, nil),
		convRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(domain.ErrConflict),
		convRepo.EXPECT().GetByMembers(gomock.Any(), "a", "b").Return(winner, nil),
	)

	conv, err := svc.Resolve(context.Background(), "b", "a")
	req.NoError(err)
	req.Equal("c-winner", conv.ID)
}

func Test_GetOrCreateForUser_Attaches_Profiles(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := NewConversationService(f.convs, f.members)

	conv, err := svc.GetOrCreateForUser(ctx, "u-bob", "s1", "m-alice")
	req.NoError(err)
	req.NotNil(conv.MemberOne)
	req.NotNil(conv.MemberTwo)
	req.Equal("Alice", conv.MemberOne.User.Name)
	req.Equal("Bob", conv.MemberTwo.User.Name)
	req.Equal("m-alice", conv.Other("m-bob").ID)

	// The other member must belong to the same server
	_, err = svc.GetOrCreateForUser(ctx, "u-bob", "s1", "m-other-mod")
	req.ErrorIs(err, domain.ErrNotFound)
	// And the caller must be a member of it
	_, err = svc.GetOrCreateForUser(ctx, "u-other-mod", "s1", "m-alice")
	req.ErrorIs(err, domain.ErrPermissionDenied)
}

func Test_ListForUser(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := NewConversationService(f.convs, f.members)

	_, err := svc.Resolve(ctx, "m-alice", "m-bob")
	req.NoError(err)
	_, err = svc.Resolve(ctx, "m-alice", "m-mod")
	req.NoError(err)

	convs, err := svc.ListForUser(ctx, "u-alice", "s1")
	req.NoError(err)
	req.Len(convs, 2)
	for _, c := range convs {
		req.True(c.HasMember("m-alice"))
		req.NotNil(c.Other("m-alice").User)
	}

	none, err := svc.ListForMember(ctx, "m-admin")
	req.NoError(err)
	req.NotNil(none)
	req.Empty(none)
}
