package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/mocks"
	"go.uber.org/mock/gomock"
)

func newChannelMessages(f *fixture) (*MessageService, *recordingNotifier, *recordingTyping) {
	svc := NewMessageService(domain.ParentChannel, f.messages, f.members)
	n := &recordingNotifier{}
	typing := &recordingTyping{}
	svc.SetNotifier(n)
	svc.SetTypingClearer(typing)
	return svc, n, typing
}

func Test_Append_Rejects_Empty_Message_Without_File(t *testing.T) {
	ctrl := gomock.NewController(t)
	messageRepo := mocks.NewMockMessageRepository(ctrl)
	memberRepo := mocks.NewMockMembershipRepository(ctrl)
	svc := NewMessageService(domain.ParentChannel, messageRepo, memberRepo)
	empty := "  "

	for _, fileURL := range []*string{nil, &empty} {
		_, err := svc.Append(context.Background(), "ch", "m1", " \n\t", fileURL)
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	}
}

func Test_Append_Stores_Message_Clears_Typing_And_Notifies(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, notifier, typing := newChannelMessages(f)

	// When Alice sends a message
	msg, err := svc.Append(ctx, "ch-general", "m-alice", "hello", nil)
	req.NoError(err)

	// Then it is stored untouched and announced
	req.NotEmpty(msg.ID)
	req.Equal(domain.ParentChannel, msg.Kind)
	req.Equal(msg.CreatedAt, msg.UpdatedAt)
	req.False(msg.Edited())
	req.False(msg.Deleted)
	req.Equal([]string{}, msg.Reactions)
	req.Equal([]string{"channel:ch-general/u-alice"}, typing.cleared)
	req.Equal([]string{"message"}, notifier.Events())

	stored, err := svc.Get(ctx, msg.ID)
	req.NoError(err)
	req.Equal("hello", stored.Content)
}

func Test_Append_File_Only_And_Unknown_Author(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, _, _ := newChannelMessages(f)
	url := "https://files.example.com/cat.png"

	msg, err := svc.Append(ctx, "ch-general", "m-alice", "", &url)
	req.NoError(err)
	req.Equal(url, *msg.FileURL)

	_, err = svc.Append(ctx, "ch-general", "m-ghost", "hi", nil)
	req.ErrorIs(err, domain.ErrNotFound)
}

func Test_Edit_Marks_Message_Edited_Even_Within_Same_Instant(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, notifier, _ := newChannelMessages(f)
	svc.now = frozenClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	msg, err := svc.Append(ctx, "ch-general", "m-alice", "helo", nil)
	req.NoError(err)

	edited, err := svc.Edit(ctx, msg.ID, "m-alice", "hello")
	req.NoError(err)
	req.Equal("hello", edited.Content)
	req.True(edited.UpdatedAt.After(edited.CreatedAt))
	req.True(edited.Edited())
	req.Equal([]string{"message", "updated"}, notifier.Events())
}

func Test_Edit_Permissions_And_State(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, _, _ := newChannelMessages(f)

	msg, err := svc.Append(ctx, "ch-general", "m-alice", "hi", nil)
	req.NoError(err)

	_, err = svc.Edit(ctx, msg.ID, "m-bob", "hijacked")
	req.ErrorIs(err, domain.ErrPermissionDenied)
	_, err = svc.Edit(ctx, msg.ID, "m-alice", "   ")
	req.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = svc.Edit(ctx, "missing", "m-alice", "x")
	req.ErrorIs(err, domain.ErrNotFound)

	// Given the message is deleted
	_, err = svc.SoftDelete(ctx, msg.ID, f.member(t, "m-alice"))
	req.NoError(err)

	// Then editing fails with InvalidState for author and stranger alike
	_, err = svc.Edit(ctx, msg.ID, "m-alice", "again")
	req.ErrorIs(err, domain.ErrInvalidState)
	_, err = svc.Edit(ctx, msg.ID, "m-bob", "again")
	req.ErrorIs(err, domain.ErrInvalidState)
}

func Test_SoftDelete_Permissions(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		allowed   bool
	}{
		{name: "author", requester: "m-alice", allowed: true},
		{name: "admin of author's server", requester: "m-admin", allowed: true},
		{name: "moderator of author's server", requester: "m-mod", allowed: true},
		{name: "guest", requester: "m-bob", allowed: false},
		{name: "moderator of another server", requester: "m-other-mod", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			f := newFixture(t)
			svc, notifier, _ := newChannelMessages(f)

			msg, err := svc.Append(ctx, "ch-general", "m-alice", "secret", nil)
			req.NoError(err)

			deleted, err := svc.SoftDelete(ctx, msg.ID, f.member(t, tt.requester))
			if !tt.allowed {
				req.ErrorIs(err, domain.ErrPermissionDenied)
				stored, err := svc.Get(ctx, msg.ID)
				req.NoError(err)
				req.False(stored.Deleted)
				return
			}
			req.NoError(err)
			req.True(deleted.Deleted)
			req.Equal("secret", deleted.Content)
			req.False(deleted.Edited())
			req.Equal([]string{"message", "deleted"}, notifier.Events())
		})
	}
}

func Test_SoftDelete_Twice_Is_A_Quiet_NoOp(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, notifier, _ := newChannelMessages(f)
	alice := f.member(t, "m-alice")

	msg, err := svc.Append(ctx, "ch-general", "m-alice", "bye", nil)
	req.NoError(err)
	first, err := svc.SoftDelete(ctx, msg.ID, alice)
	req.NoError(err)

	second, err := svc.SoftDelete(ctx, msg.ID, alice)
	req.NoError(err)
	req.True(second.Deleted)
	req.Equal(first.Version, second.Version)
	req.Equal([]string{"message", "deleted"}, notifier.Events())

	// Permission is still checked on the no-op path
	_, err = svc.SoftDelete(ctx, msg.ID, f.member(t, "m-bob"))
	req.ErrorIs(err, domain.ErrPermissionDenied)
}

func Test_ToggleReaction_Twice_Restores_Set(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, notifier, _ := newChannelMessages(f)

	msg, err := svc.Append(ctx, "ch-general", "m-alice", "ship it", nil)
	req.NoError(err)

	// When the same emoji is toggled twice
	added, err := svc.ToggleReaction(ctx, msg.ID, " 👍 ")
	req.NoError(err)
	req.True(added.Added)
	req.Equal([]string{"👍"}, added.Message.Reactions)

	removed, err := svc.ToggleReaction(ctx, msg.ID, "👍")
	req.NoError(err)
	req.False(removed.Added)

	// Then the set is back to where it started and the message is not edited
	req.Equal([]string{}, removed.Message.Reactions)
	req.False(removed.Message.Edited())
	req.Equal([]string{"message", "reaction", "reaction"}, notifier.Events())
}

func Test_ToggleReaction_Errors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, _, _ := newChannelMessages(f)

	msg, err := svc.Append(ctx, "ch-general", "m-alice", "hi", nil)
	req.NoError(err)

	_, err = svc.ToggleReaction(ctx, msg.ID, "")
	req.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = svc.ToggleReaction(ctx, msg.ID, "🔥🔥🔥🔥🔥🔥🔥🔥🔥🔥🔥")
	req.ErrorIs(err, domain.ErrInvalidArgument)
	_, err = svc.ToggleReaction(ctx, "missing", "🔥")
	req.ErrorIs(err, domain.ErrNotFound)

	_, err = svc.SoftDelete(ctx, msg.ID, f.member(t, "m-alice"))
	req.NoError(err)
	_, err = svc.ToggleReaction(ctx, msg.ID, "🔥")
	req.ErrorIs(err, domain.ErrInvalidState)
}

func Test_Concurrent_Toggles_Of_Distinct_Emoji_All_Land(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, _, _ := newChannelMessages(f)

	msg, err := svc.Append(ctx, "ch-general", "m-alice", "vote", nil)
	req.NoError(err)

	emojis := []string{"👍", "🎉", "🚀", "👀"}
	var wg sync.WaitGroup
	errs := make([]error, len(emojis))
	for i, e := range emojis {
		wg.Add(1)
		go func(i int, e string) {
			defer wg.Done()
			_, errs[i] = svc.ToggleReaction(ctx, msg.ID, e)
		}(i, e)
	}
	wg.Wait()

	for _, err := range errs {
		req.NoError(err)
	}
	stored, err := svc.Get(ctx, msg.ID)
	req.NoError(err)
	req.ElementsMatch(emojis, stored.Reactions)
	req.Equal(int64(1+len(emojis)), stored.Version)
}

func Test_Busy_Message_Takes_Every_Toggle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, _, _ := newChannelMessages(f)

	// Given a message many members react to at once
	msg, err := svc.Append(ctx, "ch-general", "m-alice", "lunch?", nil)
	req.NoError(err)

	const callers = 48
	var wg sync.WaitGroup
	errs := make([]error, callers)
	want := make([]string, callers)
	for i := 0; i < callers; i++ {
		want[i] = fmt.Sprintf("e%d", i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ToggleReaction(ctx, msg.ID, want[i])
		}(i)
	}
	wg.Wait()

	// Then no call gives up and every emoji is stored
	for i, err := range errs {
		req.NoError(err, "toggle %d", i)
	}
	stored, err := svc.Get(ctx, msg.ID)
	req.NoError(err)
	req.ElementsMatch(want, stored.Reactions)
	req.Equal(int64(1+callers), stored.Version)
	req.Empty(svc.locks.held)
}

func Test_Mutation_Gives_Up_After_Repeated_Conflicts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messageRepo := mocks.NewMockMessageRepository(ctrl)
	memberRepo := mocks.NewMockMembershipRepository(ctrl)
	svc := NewMessageService(domain.ParentConversation, messageRepo, memberRepo)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	stored := &domain.Message{ID: "m1", Kind: domain.ParentConversation, Reactions: []string{}, Version: 7}

	// Given every write loses the race
	messageRepo.EXPECT().GetByID(gomock.Any(), domain.ParentConversation, "m1").
		DoAndReturn(func(context.Context, domain.ParentKind, string) (*domain.Message, error) {
			return stored.Clone(), nil
		}).Times(maxMutationAttempts)
	messageRepo.EXPECT().Update(gomock.Any(), gomock.Any(), int64(7)).
		Return(fmt.Errorf("%w: stale", domain.ErrConflict)).Times(maxMutationAttempts)

	// When toggling a reaction
	_, err := svc.ToggleReaction(context.Background(), "m1", "👍")

	// Then the conflict surfaces and nothing is announced
	req.ErrorIs(err, domain.ErrConflict)
	req.Empty(notifier.Events())
}

func Test_Mutation_Retries_On_Conflict(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messageRepo := mocks.NewMockMessageRepository(ctrl)
	memberRepo := mocks.NewMockMembershipRepository(ctrl)
	svc := NewMessageService(domain.ParentChannel, messageRepo, memberRepo)

	first := &domain.Message{ID: "m1", Kind: domain.ParentChannel, Reactions: []string{}, Version: 1}
	second := &domain.Message{ID: "m1", Kind: domain.ParentChannel, Reactions: []string{"🎉"}, Version: 2}

	gomock.InOrder(
		messageRepo.EXPECT().GetByID(gomock.Any(), domain.ParentChannel, "m1").Return(first, nil),
		messageRepo.EXPECT().Update(gomock.Any(), gomock.Any(), int64(1)).Return(domain.ErrConflict),
		messageRepo.EXPECT().GetByID(gomock.Any(), domain.ParentChannel, "m1").Return(second, nil),
		messageRepo.EXPECT().Update(gomock.Any(), gomock.Any(), int64(2)).
			DoAndReturn(func(_ context.Context, msg *domain.Message, v int64) error {
				msg.Version = v + 1
				return nil
			}),
	)

	res, err := svc.ToggleReaction(context.Background(), "m1", "👍")
	req.NoError(err)
	req.Equal([]string{"🎉", "👍"}, res.Message.Reactions)
	req.Equal(int64(3), res.Message.Version)
}

func Test_List_Pages_Oldest_First(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc, _, _ := newChannelMessages(f)

	var ids []string
	for i := 0; i < 5; i++ {
		msg, err := svc.Append(ctx, "ch-general", "m-alice", fmt.Sprintf("msg %d", i), nil)
		req.NoError(err)
		ids = append(ids, msg.ID)
	}
	_, err := svc.SoftDelete(ctx, ids[4], f.member(t, "m-alice"))
	req.NoError(err)

	page, err := svc.List(ctx, "ch-general", "", 3)
	req.NoError(err)
	req.True(page.HasMore)
	req.Len(page.Messages, 3)
	req.Equal(ids[2], page.Messages[0].ID)
	req.Equal(ids[2], page.NextCursor)
	req.True(page.Messages[2].Deleted)

	rest, err := svc.List(ctx, "ch-general", page.NextCursor, 3)
	req.NoError(err)
	req.False(rest.HasMore)
	req.Len(rest.Messages, 2)
	req.Equal(ids[0], rest.Messages[0].ID)

	empty, err := svc.List(ctx, "nowhere", "", 0)
	req.NoError(err)
	req.NotNil(empty.Messages)
	req.Empty(empty.Messages)
}
