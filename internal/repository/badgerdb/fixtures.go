package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/vedran77/huddle/internal/domain"
)

// Fixtures is the membership data a local instance needs before anyone can
// join a room: users, their server memberships and the channels.
type Fixtures struct {
	Users    []domain.User    `json:"users"`
	Members  []domain.Member  `json:"members"`
	Channels []domain.Channel `json:"channels"`
}

// LoadFixtures reads a JSON fixtures file and upserts its contents.
func LoadFixtures(ctx context.Context, db *badger.DB, path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	var fx Fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decoding fixtures %s: %w", path, err)
	}

	members := NewMemberRepo(db)
	channels := NewChannelRepo(db)
	for i := range fx.Users {
		if err := members.SaveUser(ctx, &fx.Users[i]); err != nil {
			return nil, err
		}
	}
	for i := range fx.Members {
		if err := members.SaveMember(ctx, &fx.Members[i]); err != nil {
			return nil, err
		}
	}
	for i := range fx.Channels {
		if err := channels.Save(ctx, &fx.Channels[i]); err != nil {
			return nil, err
		}
	}
	return &fx, nil
}
