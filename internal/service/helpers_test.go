package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/repository/badgerdb"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	last   *domain.Message
}

func (n *recordingNotifier) record(event string, msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.last = msg
}

func (n *recordingNotifier) NotifyMessage(msg *domain.Message)        { n.record("message", msg) }
func (n *recordingNotifier) NotifyMessageUpdated(msg *domain.Message) { n.record("updated", msg) }
func (n *recordingNotifier) NotifyMessageDeleted(msg *domain.Message) { n.record("deleted", msg) }
func (n *recordingNotifier) NotifyReaction(msg *domain.Message)       { n.record("reaction", msg) }

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type recordingTyping struct {
	cleared []string
}

func (r *recordingTyping) StopTyping(roomID, userID string) {
	r.cleared = append(r.cleared, roomID+"/"+userID)
}

// fixture is a badger-backed world with one server holding an admin, a
// moderator and two guests, plus a second server with its own moderator.
type fixture struct {
	db       *badger.DB
	members  *badgerdb.MemberRepo
	channels *badgerdb.ChannelRepo
	convs    *badgerdb.ConversationRepo
	messages *badgerdb.MessageRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	req := require.New(t)
	ctx := context.Background()

	db, err := badgerdb.Open(t.TempDir())
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:       db,
		members:  badgerdb.NewMemberRepo(db),
		channels: badgerdb.NewChannelRepo(db),
		convs:    badgerdb.NewConversationRepo(db),
		messages: badgerdb.NewMessageRepo(db),
	}

	for _, u := range []domain.User{
		{ID: "u-admin", Name: "Ada"},
		{ID: "u-mod", Name: "Mo"},
		{ID: "u-alice", Name: "Alice"},
		{ID: "u-bob", Name: "Bob"},
		{ID: "u-other-mod", Name: "Olga"},
	} {
		req.NoError(f.members.SaveUser(ctx, &u))
	}
	for _, m := range []domain.Member{
		{ID: "m-admin", UserID: "u-admin", ServerID: "s1", Role: domain.RoleAdmin},
		{ID: "m-mod", UserID: "u-mod", ServerID: "s1", Role: domain.RoleModerator},
		{ID: "m-alice", UserID: "u-alice", ServerID: "s1", Role: domain.RoleGuest},
		{ID: "m-bob", UserID: "u-bob", ServerID: "s1", Role: domain.RoleGuest},
		{ID: "m-other-mod", UserID: "u-other-mod", ServerID: "s2", Role: domain.RoleModerator},
	} {
		req.NoError(f.members.SaveMember(ctx, &m))
	}
	req.NoError(f.channels.Save(ctx, &domain.Channel{ID: "ch-general", Name: "general", ServerID: "s1"}))
	return f
}

func (f *fixture) member(t *testing.T, id string) *domain.Member {
	t.Helper()
	m, err := f.members.GetMemberByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func frozenClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
