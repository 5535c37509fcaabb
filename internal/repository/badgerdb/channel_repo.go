package badgerdb

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedran77/huddle/internal/domain"
)

type ChannelRepo struct {
	db *badger.DB
}

func NewChannelRepo(db *badger.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

func (r *ChannelRepo) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	var channel *domain.Channel
	err := r.db.View(func(txn *badger.Txn) error {
		var ch domain.Channel
		found, err := getJSON(txn, channelKey(id), &ch)
		if found {
			channel = &ch
		}
		return err
	})
	return channel, err
}

func (r *ChannelRepo) Save(ctx context.Context, channel *domain.Channel) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, channelKey(channel.ID), channel)
	})
}
