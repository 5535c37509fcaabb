package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/huddle/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// Create relies on UNIQUE(member_one_id, member_two_id); a racing insert for
// the same pair comes back as domain.ErrConflict.
func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (id, member_one_id, member_two_id, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, conv.ID, conv.MemberOneID, conv.MemberTwoID, conv.CreatedAt)
	return mapUniqueViolation(err)
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `
		SELECT id, member_one_id, member_two_id, created_at
		FROM conversations
		WHERE id = $1`
	return scanConversation(r.pool.QueryRow(ctx, query, id))
}

func (r *ConversationRepo) GetByMembers(ctx context.Context, memberOneID, memberTwoID string) (*domain.Conversation, error) {
	query := `
		SELECT id, member_one_id, member_two_id, created_at
		FROM conversations
		WHERE member_one_id = $1 AND member_two_id = $2`
	return scanConversation(r.pool.QueryRow(ctx, query, memberOneID, memberTwoID))
}

func (r *ConversationRepo) ListByMember(ctx context.Context, memberID string) ([]domain.Conversation, error) {
	query := `
		SELECT id, member_one_id, member_two_id, created_at
		FROM conversations
		WHERE member_one_id = $1 OR member_two_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.MemberOneID, &c.MemberTwoID, &c.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.MemberOneID, &c.MemberTwoID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
