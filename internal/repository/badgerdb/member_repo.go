package badgerdb

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedran77/huddle/internal/domain"
)

// MemberRepo serves membership lookups. The Save methods exist for fixtures
// and tests; membership is otherwise owned outside this service.
type MemberRepo struct {
	db *badger.DB
}

func NewMemberRepo(db *badger.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

func (r *MemberRepo) FindMember(ctx context.Context, userID, serverID string) (*domain.Member, error) {
	var member *domain.Member
	err := r.db.View(func(txn *badger.Txn) error {
		var memberID string
		found, err := getJSON(txn, memberByUserKey(userID, serverID), &memberID)
		if err != nil || !found {
			return err
		}
		var m domain.Member
		found, err = getJSON(txn, memberKey(memberID), &m)
		if found {
			member = &m
		}
		return err
	})
	return member, err
}

func (r *MemberRepo) GetMemberByID(ctx context.Context, memberID string) (*domain.Member, error) {
	var member *domain.Member
	err := r.db.View(func(txn *badger.Txn) error {
		var m domain.Member
		found, err := getJSON(txn, memberKey(memberID), &m)
		if found {
			member = &m
		}
		return err
	})
	return member, err
}

func (r *MemberRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user *domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		var u domain.User
		found, err := getJSON(txn, userKey(userID), &u)
		if found {
			user = &u
		}
		return err
	})
	return user, err
}

func (r *MemberRepo) SaveUser(ctx context.Context, user *domain.User) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, userKey(user.ID), user)
	})
}

func (r *MemberRepo) SaveMember(ctx context.Context, member *domain.Member) error {
	stored := *member
	stored.User = nil
	return r.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, memberKey(stored.ID), &stored); err != nil {
			return err
		}
		return setJSON(txn, memberByUserKey(stored.UserID, stored.ServerID), stored.ID)
	})
}
