package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/store"
)

// PostgresUserStore implements the store.UserStore interface using PostgreSQL.
// The task service only ever reads users; writes belong to the account system.
type PostgresUserStore struct {
	db store.DBTX
}

// NewPostgresUserStore creates a new PostgresUserStore.
func NewPostgresUserStore(db store.DBTX) *PostgresUserStore {
	return &PostgresUserStore{
		db: db,
	}
}

// GetByID retrieves a user by its unique ID.
func (s *PostgresUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT id, email, email_notifications FROM users WHERE id = $1`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.EmailNotifications,
	)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrUserNotFound
		}
		return nil, MapError(err)
	}

	return &user, nil
}
