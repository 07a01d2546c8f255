package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/tournament-settlement/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresUserRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.User, error) {
	query := `SELECT id, nickname, email, role, payment_account_id, created_at FROM users WHERE id = $1`
	u := &models.User{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Nickname, &u.Email, &u.Role, &u.PaymentAccountID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
