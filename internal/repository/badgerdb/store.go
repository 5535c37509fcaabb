// Package badgerdb implements the repository interfaces on an embedded
// BadgerDB. It backs local development and the storage-level tests; keys are
// laid out so that prefix scans give chronological order.
package badgerdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/repository"
)

// Open opens (or creates) a database at path with badger's own logging
// limited to errors.
func Open(path string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", path, err)
	}
	return db, nil
}

func userKey(id string) []byte { return []byte("user:" + id) }

func memberKey(id string) []byte { return []byte("member:" + id) }

func memberByUserKey(userID, serverID string) []byte {
	return []byte(fmt.Sprintf("member:us:%s:%s", userID, serverID))
}

func channelKey(id string) []byte { return []byte("channel:" + id) }

func conversationKey(id string) []byte { return []byte("conv:" + id) }

func conversationPairKey(memberOneID, memberTwoID string) []byte {
	return []byte(fmt.Sprintf("conv:pair:%s:%s", memberOneID, memberTwoID))
}

func conversationMemberPrefix(memberID string) []byte {
	return []byte(fmt.Sprintf("conv:member:%s:", memberID))
}

func messageKey(kind domain.ParentKind, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s", kind, id))
}

// messageIndexPrefix prefixes the per-parent index. Message ids are ULIDs, so
// the index sorts by creation time.
func messageIndexPrefix(kind domain.ParentKind, parentID string) []byte {
	return []byte(fmt.Sprintf("msgidx:%s:%s:", kind, parentID))
}

// getJSON loads key into v. found is false when the key does not exist.
func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// mapConflict turns badger's optimistic-transaction conflict into the domain
// error callers retry on.
func mapConflict(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

var (
	_ repository.MembershipRepository   = (*MemberRepo)(nil)
	_ repository.ChannelRepository      = (*ChannelRepo)(nil)
	_ repository.ConversationRepository = (*ConversationRepo)(nil)
	_ repository.MessageRepository      = (*MessageRepo)(nil)
)
