package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedran77/huddle/internal/domain"
)

type MessageRepo struct {
	db *badger.DB
}

func NewMessageRepo(db *badger.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// diskMessage is the stored shape; unlike domain.Message it keeps the version.
type diskMessage struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	ParentID       string    `json:"parent_id"`
	AuthorMemberID string    `json:"author_member_id"`
	Content        string    `json:"content"`
	FileURL        *string   `json:"file_url,omitempty"`
	Reactions      []string  `json:"reactions"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int64     `json:"version"`
}

func toDiskMessage(m *domain.Message) diskMessage {
	return diskMessage{
		ID:             m.ID,
		Kind:           string(m.Kind),
		ParentID:       m.ParentID,
		AuthorMemberID: m.AuthorMemberID,
		Content:        m.Content,
		FileURL:        m.FileURL,
		Reactions:      slices.Clone(m.Reactions),
		Deleted:        m.Deleted,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		Version:        m.Version,
	}
}

func fromDiskMessage(d diskMessage) domain.Message {
	reactions := d.Reactions
	if reactions == nil {
		reactions = []string{}
	}
	return domain.Message{
		ID:             d.ID,
		Kind:           domain.ParentKind(d.Kind),
		ParentID:       d.ParentID,
		AuthorMemberID: d.AuthorMemberID,
		Content:        d.Content,
		FileURL:        d.FileURL,
		Reactions:      reactions,
		Deleted:        d.Deleted,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		Version:        d.Version,
	}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	if msg.Version == 0 {
		msg.Version = 1
	}
	rec := toDiskMessage(msg)
	err := r.db.Update(func(txn *badger.Txn) error {
		key := messageKey(msg.Kind, msg.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: message %s exists", domain.ErrConflict, msg.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, key, rec); err != nil {
			return err
		}
		idx := append(messageIndexPrefix(msg.Kind, msg.ParentID), msg.ID...)
		return txn.Set(idx, nil)
	})
	return mapConflict(err)
}

func (r *MessageRepo) GetByID(ctx context.Context, kind domain.ParentKind, id string) (*domain.Message, error) {
	var msg *domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var rec diskMessage
		found, err := getJSON(txn, messageKey(kind, id), &rec)
		if found {
			m := fromDiskMessage(rec)
			msg = &m
		}
		return err
	})
	return msg, err
}

// List walks the parent's index backwards from the cursor and returns the
// page in chronological order.
func (r *MessageRepo) List(ctx context.Context, kind domain.ParentKind, parentID, before string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := messageIndexPrefix(kind, parentID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(slices.Clone(prefix), 0xFF)
		if before != "" {
			seek = append(slices.Clone(prefix), before...)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			if id == before {
				continue
			}
			var rec diskMessage
			found, err := getJSON(txn, messageKey(kind, id), &rec)
			if err != nil {
				return err
			}
			if found {
				messages = append(messages, fromDiskMessage(rec))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func (r *MessageRepo) Update(ctx context.Context, msg *domain.Message, expectedVersion int64) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		key := messageKey(msg.Kind, msg.ID)
		var current diskMessage
		found, err := getJSON(txn, key, &current)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: message %s", domain.ErrNotFound, msg.ID)
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("%w: message %s at version %d, expected %d",
				domain.ErrConflict, msg.ID, current.Version, expectedVersion)
		}
		rec := toDiskMessage(msg)
		rec.Version = expectedVersion + 1
		return setJSON(txn, key, rec)
	})
	if err = mapConflict(err); err != nil {
		return err
	}
	msg.Version = expectedVersion + 1
	return nil
}
