package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/huddle/internal/domain"
)

type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

func (r *MemberRepo) FindMember(ctx context.Context, userID, serverID string) (*domain.Member, error) {
	query := `
		SELECT id, user_id, server_id, role, created_at
		FROM members
		WHERE user_id = $1 AND server_id = $2`
	return r.scanMember(r.pool.QueryRow(ctx, query, userID, serverID))
}

func (r *MemberRepo) GetMemberByID(ctx context.Context, memberID string) (*domain.Member, error) {
	query := `
		SELECT id, user_id, server_id, role, created_at
		FROM members
		WHERE id = $1`
	return r.scanMember(r.pool.QueryRow(ctx, query, memberID))
}

func (r *MemberRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT id, name, email, image_url, created_at FROM users WHERE id = $1`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Name, &u.Email, &u.ImageURL, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *MemberRepo) scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	err := row.Scan(&m.ID, &m.UserID, &m.ServerID, &m.Role, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
