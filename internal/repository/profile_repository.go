package repository

import (
	"context"
	"errors"

	"support-chat/internal/domain"
	chat_errors "support-chat/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type PostgresProfileRepository struct {
	db Querier
}

func NewProfileRepository(db Querier) ProfileRepository {
	return &PostgresProfileRepository{db: db}
}

func (r *PostgresProfileRepository) Create(ctx context.Context, p *domain.Profile, passwordHash string) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO profiles (email, username, name, password_hash, is_admin)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING id`,
		p.Email, p.Username, p.Name, passwordHash, p.IsAdmin)
	if err := row.Scan(&p.ID); err != nil {
		if isUniqueViolation(err) {
			return chat_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresProfileRepository) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, COALESCE(username, ''), name, is_admin
		FROM profiles WHERE id = $1`, id)

	var p domain.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.Username, &p.Name, &p.IsAdmin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, chat_errors.ErrNotFound
		}
		return domain.Profile{}, err
	}
	return p, nil
}

func (r *PostgresProfileRepository) GetByEmail(ctx context.Context, email string) (domain.Profile, string, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, COALESCE(username, ''), name, is_admin, password_hash
		FROM profiles WHERE email = $1`, email)

	var p domain.Profile
	var hash string
	if err := row.Scan(&p.ID, &p.Email, &p.Username, &p.Name, &p.IsAdmin, &hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, "", chat_errors.ErrNotFound
		}
		return domain.Profile{}, "", err
	}
	return p, hash, nil
}
