package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/mocks"
	"go.uber.org/mock/gomock"
)

func Test_ResolveMember_Channel(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	memberRepo := mocks.NewMockMembershipRepository(ctrl)
	channelRepo := mocks.NewMockChannelRepository(ctrl)
	convRepo := mocks.NewMockConversationRepository(ctrl)
	svc := NewAccessService(memberRepo, channelRepo, convRepo)

	channelRepo.EXPECT().GetByID(gomock.Any(), "ch1").Return(&domain.Channel{ID: "ch1", ServerID: "s1"}, nil).Times(2)
	channelRepo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, nil)
	memberRepo.EXPECT().FindMember(gomock.Any(), "u1", "s1").Return(&domain.Member{ID: "m1", UserID: "u1", ServerID: "s1"}, nil)
	memberRepo.EXPECT().FindMember(gomock.Any(), "u2", "s1").Return(nil, nil)

	member, err := svc.ResolveMember(ctx, "u1", domain.ParentChannel, "ch1")
	req.NoError(err)
	req.Equal("m1", member.ID)

	_, err = svc.ResolveMember(ctx, "u2", domain.ParentChannel, "ch1")
	req.ErrorIs(err, domain.ErrPermissionDenied)

	_, err = svc.ResolveMember(ctx, "u1", domain.ParentChannel, "missing")
	req.ErrorIs(err, domain.ErrNotFound)

	_, err = svc.ResolveMember(ctx, "u1", domain.ParentKind("server"), "x")
	req.ErrorIs(err, domain.ErrInvalidArgument)
}

func Test_ResolveMember_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAccessService(f.members, f.channels, f.convs)
	conv, err := NewConversationService(f.convs, f.members).Resolve(ctx, "m-alice", "m-bob")
	req.NoError(err)

	bob, err := svc.ResolveMember(ctx, "u-bob", domain.ParentConversation, conv.ID)
	req.NoError(err)
	req.Equal("m-bob", bob.ID)

	_, err = svc.ResolveMember(ctx, "u-admin", domain.ParentConversation, conv.ID)
	req.ErrorIs(err, domain.ErrPermissionDenied)
	_, err = svc.ResolveMember(ctx, "u-bob", domain.ParentConversation, "nope")
	req.ErrorIs(err, domain.ErrNotFound)
}
