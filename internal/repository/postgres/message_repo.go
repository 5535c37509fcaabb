package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/huddle/internal/domain"
)

// messageTable names the table and parent column for each parent kind.
type messageTable struct {
	name      string
	parentCol string
}

var messageTables = map[domain.ParentKind]messageTable{
	domain.ParentChannel:      {name: "messages", parentCol: "channel_id"},
	domain.ParentConversation: {name: "direct_messages", parentCol: "conversation_id"},
}

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func tableFor(kind domain.ParentKind) (messageTable, error) {
	t, ok := messageTables[kind]
	if !ok {
		return messageTable{}, fmt.Errorf("%w: unknown parent kind %q", domain.ErrInvalidArgument, kind)
	}
	return t, nil
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	t, err := tableFor(msg.Kind)
	if err != nil {
		return err
	}
	if msg.Version == 0 {
		msg.Version = 1
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, %s, member_id, content, file_url, reactions, deleted, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, t.name, t.parentCol)
	_, err = r.pool.Exec(ctx, query,
		msg.ID, msg.ParentID, msg.AuthorMemberID, msg.Content, msg.FileURL,
		reactionsOrEmpty(msg.Reactions), msg.Deleted, msg.Version, msg.CreatedAt, msg.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

func (r *MessageRepo) GetByID(ctx context.Context, kind domain.ParentKind, id string) (*domain.Message, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, %s, member_id, content, file_url, reactions, deleted, version, created_at, updated_at
		FROM %s
		WHERE id = $1`, t.parentCol, t.name)

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id), kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// List pages by id; message ids are ULIDs so id order is creation order.
func (r *MessageRepo) List(ctx context.Context, kind domain.ParentKind, parentID, before string, limit int) ([]domain.Message, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var query string
	var args []any
	if before != "" {
		query = fmt.Sprintf(`
			SELECT id, %s, member_id, content, file_url, reactions, deleted, version, created_at, updated_at
			FROM %s
			WHERE %s = $1 AND id < $2
			ORDER BY id DESC
			LIMIT %d`, t.parentCol, t.name, t.parentCol, limit)
		args = []any{parentID, before}
	} else {
		query = fmt.Sprintf(`
			SELECT id, %s, member_id, content, file_url, reactions, deleted, version, created_at, updated_at
			FROM %s
			WHERE %s = $1
			ORDER BY id DESC
			LIMIT %d`, t.parentCol, t.name, t.parentCol, limit)
		args = []any{parentID}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows, kind)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first.
	slices.Reverse(messages)
	return messages, nil
}

func (r *MessageRepo) Update(ctx context.Context, msg *domain.Message, expectedVersion int64) error {
	t, err := tableFor(msg.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $1, file_url = $2, reactions = $3, deleted = $4, updated_at = $5, version = version + 1
		WHERE id = $6 AND version = $7`, t.name)

	tag, err := r.pool.Exec(ctx, query,
		msg.Content, msg.FileURL, reactionsOrEmpty(msg.Reactions), msg.Deleted, msg.UpdatedAt,
		msg.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.GetByID(ctx, msg.Kind, msg.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: message %s", domain.ErrNotFound, msg.ID)
		}
		return fmt.Errorf("%w: message %s at version %d, expected %d",
			domain.ErrConflict, msg.ID, existing.Version, expectedVersion)
	}
	msg.Version = expectedVersion + 1
	return nil
}

func scanMessage(row pgx.Row, kind domain.ParentKind) (*domain.Message, error) {
	msg := domain.Message{Kind: kind}
	err := row.Scan(
		&msg.ID, &msg.ParentID, &msg.AuthorMemberID, &msg.Content, &msg.FileURL,
		&msg.Reactions, &msg.Deleted, &msg.Version, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if msg.Reactions == nil {
		msg.Reactions = []string{}
	}
	return &msg, nil
}

func reactionsOrEmpty(reactions []string) []string {
	if reactions == nil {
		return []string{}
	}
	return reactions
}
