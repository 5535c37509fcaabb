package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/metrics"
	"github.com/vedran77/huddle/internal/repository"
	"github.com/vedran77/huddle/pkg/validator"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100

	// maxMutationAttempts bounds the read-modify-write loop on a contended
	// message before the conflict is returned to the caller.
	maxMutationAttempts = 5

	// retryBackoff is the base pause before retrying a conflicting write.
	retryBackoff = 2 * time.Millisecond
)

// MessageService is the message store for one parent kind. Channel messages
// and direct messages get separate instances over the same repository.
type MessageService struct {
	kind        domain.ParentKind
	messageRepo repository.MessageRepository
	memberRepo  repository.MembershipRepository
	notifier    Notifier
	typing      TypingClearer
	pageLimit   int
	now         func() time.Time
	locks       *messageLocks
}

func NewMessageService(
	kind domain.ParentKind,
	messageRepo repository.MessageRepository,
	memberRepo repository.MembershipRepository,
) *MessageService {
	return &MessageService{
		kind:        kind,
		messageRepo: messageRepo,
		memberRepo:  memberRepo,
		pageLimit:   DefaultPageLimit,
		now:         time.Now,
		locks:       &messageLocks{held: make(map[string]*messageLock)},
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetTypingClearer wires the presence hub so a sent message ends the
// author's typing indicator.
func (s *MessageService) SetTypingClearer(t TypingClearer) {
	s.typing = t
}

// SetPageLimit changes the page size used when List is called without one.
func (s *MessageService) SetPageLimit(limit int) {
	if limit > 0 && limit <= MaxPageLimit {
		s.pageLimit = limit
	}
}

func (s *MessageService) Kind() domain.ParentKind {
	return s.kind
}

type MessagePage struct {
	Messages   []domain.Message `json:"messages"`
	HasMore    bool             `json:"has_more"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type ReactionResult struct {
	Message *domain.Message
	Added   bool
}

func (s *MessageService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *MessageService) Append(ctx context.Context, parentID, authorMemberID, content string, fileURL *string) (*domain.Message, error) {
	if parentID == "" {
		return nil, fmt.Errorf("%w: parent id is required", domain.ErrInvalidArgument)
	}
	if fileURL != nil && strings.TrimSpace(*fileURL) == "" {
		fileURL = nil
	}
	if strings.TrimSpace(content) == "" && fileURL == nil {
		return nil, fmt.Errorf("%w: message needs content or a file", domain.ErrInvalidArgument)
	}

	author, err := s.memberRepo.GetMemberByID(ctx, authorMemberID)
	if err != nil {
		return nil, fmt.Errorf("loading author: %w", err)
	}
	if author == nil {
		return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, authorMemberID)
	}

	now := s.timestamp()
	msg := &domain.Message{
		ID:             ulid.Make().String(),
		Kind:           s.kind,
		ParentID:       parentID,
		AuthorMemberID: author.ID,
		Content:        content,
		FileURL:        fileURL,
		Reactions:      []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	metrics.MessagesPosted.WithLabelValues(string(s.kind)).Inc()

	if s.typing != nil {
		s.typing.StopTyping(domain.RoomID(s.kind, parentID), author.UserID)
	}
	if s.notifier != nil {
		s.notifier.NotifyMessage(msg)
	}

	return msg, nil
}

func (s *MessageService) Get(ctx context.Context, messageID string) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, s.kind, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}
	return msg, nil
}

// List returns the page of messages older than before, oldest first.
// Deleted messages are included so clients can render a placeholder.
func (s *MessageService) List(ctx context.Context, parentID, before string, limit int) (*MessagePage, error) {
	if limit <= 0 {
		limit = s.pageLimit
	}
	limit = min(limit, MaxPageLimit)

	// Fetch one extra to know whether an older page exists.
	messages, err := s.messageRepo.List(ctx, s.kind, parentID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	page := &MessagePage{Messages: messages, HasMore: hasMore}
	if hasMore {
		page.NextCursor = messages[0].ID
	}
	return page, nil
}

func (s *MessageService) Edit(ctx context.Context, messageID, authorMemberID, newContent string) (*domain.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, fmt.Errorf("%w: content is required", domain.ErrInvalidArgument)
	}

	updated, _, err := s.mutate(ctx, messageID, func(msg *domain.Message) (bool, error) {
		if msg.Deleted {
			return false, fmt.Errorf("%w: message %s is deleted", domain.ErrInvalidState, msg.ID)
		}
		if msg.AuthorMemberID != authorMemberID {
			return false, fmt.Errorf("%w: only the author can edit", domain.ErrPermissionDenied)
		}
		now := s.timestamp()
		if !now.After(msg.CreatedAt) {
			now = msg.CreatedAt.Add(time.Microsecond)
		}
		msg.Content = newContent
		msg.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.MessageMutations.WithLabelValues(string(s.kind), "edit").Inc()
	if s.notifier != nil {
		s.notifier.NotifyMessageUpdated(updated)
	}
	return updated, nil
}

// SoftDelete flags the message as deleted and keeps its content. Deleting an
// already deleted message returns it unchanged.
func (s *MessageService) SoftDelete(ctx context.Context, messageID string, requester *domain.Member) (*domain.Message, error) {
	if requester == nil {
		return nil, fmt.Errorf("%w: requester is required", domain.ErrPermissionDenied)
	}

	var author *domain.Member
	updated, changed, err := s.mutate(ctx, messageID, func(msg *domain.Message) (bool, error) {
		if author == nil || author.ID != msg.AuthorMemberID {
			a, err := s.memberRepo.GetMemberByID(ctx, msg.AuthorMemberID)
			if err != nil {
				return false, fmt.Errorf("loading author: %w", err)
			}
			author = a
		}
		if !canDelete(requester, msg, author) {
			return false, fmt.Errorf("%w: cannot delete message %s", domain.ErrPermissionDenied, msg.ID)
		}
		if msg.Deleted {
			return false, nil
		}
		msg.Deleted = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		metrics.MessageMutations.WithLabelValues(string(s.kind), "delete").Inc()
		if s.notifier != nil {
			s.notifier.NotifyMessageDeleted(updated)
		}
	}
	return updated, nil
}

func canDelete(requester *domain.Member, msg *domain.Message, author *domain.Member) bool {
	if requester.ID == msg.AuthorMemberID {
		return true
	}
	return requester.CanModerate() && author != nil && author.ServerID == requester.ServerID
}

// ToggleReaction adds emoji to the message's reaction set, or removes it if
// already present. The set is shared by all members.
func (s *MessageService) ToggleReaction(ctx context.Context, messageID, emoji string) (*ReactionResult, error) {
	normalized, err := validator.NormalizeEmoji(emoji)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	var added bool
	updated, _, err := s.mutate(ctx, messageID, func(msg *domain.Message) (bool, error) {
		if msg.Deleted {
			return false, fmt.Errorf("%w: message %s is deleted", domain.ErrInvalidState, msg.ID)
		}
		if msg.HasReaction(normalized) {
			msg.Reactions = lo.Without(msg.Reactions, normalized)
			added = false
		} else {
			msg.Reactions = append(msg.Reactions, normalized)
			added = true
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.MessageMutations.WithLabelValues(string(s.kind), "reaction").Inc()
	if s.notifier != nil {
		s.notifier.NotifyReaction(updated)
	}
	return &ReactionResult{Message: updated, Added: added}, nil
}

// mutate runs apply against the latest stored message and writes the result
// only if nobody else wrote in between, retrying on conflict. apply returns
// false to leave the message untouched.
//
// Mutations of one message are serialized in-process first, so the version
// check only has to settle races with other instances.
func (s *MessageService) mutate(ctx context.Context, messageID string, apply func(*domain.Message) (bool, error)) (*domain.Message, bool, error) {
	unlock := s.locks.lock(messageID)
	defer unlock()

	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, false, err
			}
		}
		current, err := s.messageRepo.GetByID(ctx, s.kind, messageID)
		if err != nil {
			return nil, false, fmt.Errorf("loading message: %w", err)
		}
		if current == nil {
			return nil, false, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
		}

		next := current.Clone()
		changed, err := apply(next)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return current, false, nil
		}

		err = s.messageRepo.Update(ctx, next, current.Version)
		if errors.Is(err, domain.ErrConflict) {
			metrics.MutationRetries.WithLabelValues(string(s.kind)).Inc()
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("updating message: %w", err)
		}
		return next, true, nil
	}
	return nil, false, fmt.Errorf("%w: message %s kept changing, gave up after %d attempts",
		domain.ErrConflict, messageID, maxMutationAttempts)
}

// sleepBackoff waits a jittered, linearly growing pause before retry attempt.
func sleepBackoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt)*retryBackoff + time.Duration(rand.Int63n(int64(retryBackoff)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// messageLocks hands out one mutex per message id and forgets it once no
// caller holds or waits on it.
type messageLocks struct {
	mu   sync.Mutex
	held map[string]*messageLock
}

type messageLock struct {
	mu   sync.Mutex
	refs int
}

func (l *messageLocks) lock(id string) func() {
	l.mu.Lock()
	ml, ok := l.held[id]
	if !ok {
		ml = &messageLock{}
		l.held[id] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.mu.Lock()
	return func() {
		ml.mu.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.held, id)
		}
		l.mu.Unlock()
	}
}
