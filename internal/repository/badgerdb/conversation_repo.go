package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedran77/huddle/internal/domain"
)

type ConversationRepo struct {
	db *badger.DB
}

func NewConversationRepo(db *badger.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create writes the record and its pair key in one transaction. Two racing
// creates for the same pair both read the pair key, so badger rejects the
// later commit.
func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	stored := *conv
	stored.MemberOne, stored.MemberTwo = nil, nil

	err := r.db.Update(func(txn *badger.Txn) error {
		pairKey := conversationPairKey(stored.MemberOneID, stored.MemberTwoID)
		_, err := txn.Get(pairKey)
		if err == nil {
			return fmt.Errorf("%w: conversation %s/%s exists", domain.ErrConflict, stored.MemberOneID, stored.MemberTwoID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, pairKey, stored.ID); err != nil {
			return err
		}
		if err := setJSON(txn, conversationKey(stored.ID), &stored); err != nil {
			return err
		}
		for _, memberID := range []string{stored.MemberOneID, stored.MemberTwoID} {
			key := append(conversationMemberPrefix(memberID), stored.ID...)
			if err := txn.Set(key, nil); err != nil {
				return err
			}
		}
		return nil
	})
	return mapConflict(err)
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var c domain.Conversation
		found, err := getJSON(txn, conversationKey(id), &c)
		if found {
			conv = &c
		}
		return err
	})
	return conv, err
}

func (r *ConversationRepo) GetByMembers(ctx context.Context, memberOneID, memberTwoID string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var id string
		found, err := getJSON(txn, conversationPairKey(memberOneID, memberTwoID), &id)
		if err != nil || !found {
			return err
		}
		var c domain.Conversation
		found, err = getJSON(txn, conversationKey(id), &c)
		if found {
			conv = &c
		}
		return err
	})
	return conv, err
}

// ListByMember returns the member's conversations, newest first.
func (r *ConversationRepo) ListByMember(ctx context.Context, memberID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := conversationMemberPrefix(memberID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			var c domain.Conversation
			found, err := getJSON(txn, conversationKey(id), &c)
			if err != nil {
				return err
			}
			if found {
				convs = append(convs, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].CreatedAt.After(convs[j].CreatedAt)
	})
	return convs, nil
}
