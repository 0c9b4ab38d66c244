package repo

import (
	"context"
	"database/sql"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

type StoreRepo interface {
	// FindByUsername returns the store regardless of active/deleted state so
	// callers can distinguish missing from unavailable; nil when absent.
	FindByUsername(ctx context.Context, username string) (*domain.Store, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Store, error)
}

type storeRepo struct {
	db *sql.DB
}

func NewStoreRepo(db *sql.DB) StoreRepo {
	return &storeRepo{db: db}
}

const storeColumns = `id, user_id, username, display_name, is_active, created_at, updated_at, deleted_at`

func (r *storeRepo) FindByUsername(ctx context.Context, username string) (*domain.Store, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE username = $1`, username)
	return scanStore(row)
}

func (r *storeRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = $1`, id)
	return scanStore(row)
}

func scanStore(row *sql.Row) (*domain.Store, error) {
	var s domain.Store
	var deletedAt sql.NullTime
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Username,
		&s.DisplayName,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.Time
	}
	return &s, nil
}
