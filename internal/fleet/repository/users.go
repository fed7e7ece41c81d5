package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-track/internal/fleet/model"
	"fleet-track/internal/fleet/service"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindUserByID(ctx context.Context, id string) (model.User, error) {
	const query = `
		SELECT id, name, email, password_hash, role
		FROM users WHERE id = $1
	`

	var (
		user model.User
		role string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("user %s: %w", id, service.ErrNotFound)
		}
		return model.User{}, fmt.Errorf("find user %s: %w", id, err)
	}

	// unknown roles are rejected at load, not passed through
	user.Role, err = model.ParseRole(role)
	if err != nil {
		return model.User{}, fmt.Errorf("user %s: %w", id, err)
	}
	return user, nil
}
