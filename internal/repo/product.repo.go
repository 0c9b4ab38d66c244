package repo

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

type ProductRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	// ReserveStock atomically checks availability and decrements stock. It is
	// a single conditional UPDATE, never a read-then-write pair; concurrent
	// reservations on the same product cannot oversell. Returns
	// InsufficientStock (with the available quantity) or NotFound.
	ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error

	// ReleaseStock increments stock back after a cancellation or a failed
	// multi-item reservation. Saturating: it never errors, even if the
	// product has since been deleted.
	ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error

	// UpdateStock is the owner-facing set/increment/decrement mutation.
	UpdateStock(ctx context.Context, productID uuid.UUID, quantity int, op domain.StockOperation) (*domain.Product, error)
}

type productRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) ProductRepo {
	return &productRepo{db: db}
}

const productColumns = `id, store_id, name, COALESCE(image, ''), price, stock_quantity, is_active, created_at, updated_at, deleted_at`

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *productRepo) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2,
		    updated_at = now()
		WHERE id = $1
		  AND stock_quantity >= $2
		  AND is_active
		  AND deleted_at IS NULL
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// The conditional update missed; find out why for the caller.
	p, err := r.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if !p.Sellable() {
		return domain.NotFound("product not found")
	}
	return domain.Conflict(
		fmt.Sprintf("insufficient stock for %s", p.Name),
		map[string]any{"available": p.StockQuantity},
	)
}

func (r *productRepo) ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2,
		    updated_at = now()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

func (r *productRepo) UpdateStock(ctx context.Context, productID uuid.UUID, quantity int, op domain.StockOperation) (*domain.Product, error) {
	var query string
	switch op {
	case domain.StockIncrement:
		query = `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	case domain.StockDecrement:
		query = `UPDATE products SET stock_quantity = GREATEST(0, stock_quantity - $2), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	default:
		query = `UPDATE products SET stock_quantity = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	}

	res, err := r.db.ExecContext(ctx, query, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}
	if affected == 0 {
		return nil, domain.NotFound("product not found")
	}
	return r.FindByID(ctx, productID)
}

func scanProduct(row *sql.Row) (*domain.Product, error) {
	var p domain.Product
	var deletedAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.StoreID,
		&p.Name,
		&p.Image,
		&p.Price,
		&p.StockQuantity,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("product not found")
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return &p, nil
}
