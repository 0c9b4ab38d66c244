package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// OrderSummary is the flat row shape returned by list queries; no lazy
// relationship loading happens anywhere.
type OrderSummary struct {
	ID            uuid.UUID            `json:"id"`
	OrderNumber   string               `json:"order_number"`
	StoreID       uuid.UUID            `json:"store_id"`
	StoreName     string               `json:"store_name"`
	CustomerName  string               `json:"customer_name"`
	Total         string               `json:"total"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	CreatedAt     string               `json:"created_at"`
}

// OrderFilter narrows ListByUser.
type OrderFilter struct {
	StoreID       uuid.UUID
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Page          int
	Limit         int
}

type OrderRepo interface {
	// Create inserts the order row inside the caller's transaction. A
	// duplicate order number surfaces as a Conflict so the caller can retry
	// generation.
	Create(ctx context.Context, tx DBTX, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
	// UpdatePaymentStatus mirrors the payment record's status onto the order
	// row, inside the caller's transaction so the mirror cannot diverge from
	// the settled payment. It never touches the fulfillment status.
	UpdatePaymentStatus(ctx context.Context, tx DBTX, id uuid.UUID, status domain.PaymentStatus) error
	ListByUser(ctx context.Context, userID uuid.UUID, filter OrderFilter) ([]OrderSummary, int, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, store_id, order_number, customer_name,
	COALESCE(customer_email, ''), customer_phone, COALESCE(delivery_address, ''),
	COALESCE(notes, ''), items, subtotal, discount, shipping_fee, platform_fee,
	total, status, payment_status, created_at, updated_at, deleted_at`

func (r *orderRepo) Create(ctx context.Context, tx DBTX, order *domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal line items: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, store_id, order_number, customer_name, customer_email,
			customer_phone, delivery_address, notes, items, subtotal, discount,
			shipping_fee, platform_fee, total, status, payment_status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''),
			$9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		order.ID, order.StoreID, order.OrderNumber, order.CustomerName,
		order.CustomerEmail, order.CustomerPhone, order.DeliveryAddress,
		order.Notes, items, order.Subtotal, order.Discount, order.ShippingFee,
		order.PlatformFee, order.Total, order.Status, order.PaymentStatus,
		order.CreatedAt, order.UpdatedAt,
	)
	if IsUniqueViolation(err, "orders_order_number_key") {
		return domain.Conflict("order number already taken", nil)
	}
	return err
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanOrder(row)
}

func (r *orderRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1 AND deleted_at IS NULL`, orderNumber)
	return scanOrder(row)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *orderRepo) UpdatePaymentStatus(ctx context.Context, tx DBTX, id uuid.UUID, status domain.PaymentStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *orderRepo) ListByUser(ctx context.Context, userID uuid.UUID, filter OrderFilter) ([]OrderSummary, int, error) {
	where := `s.user_id = $1 AND o.deleted_at IS NULL`
	args := []any{userID}

	if filter.StoreID != uuid.Nil {
		args = append(args, filter.StoreID)
		where += fmt.Sprintf(" AND o.store_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND o.status = $%d", len(args))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		where += fmt.Sprintf(" AND o.payment_status = $%d", len(args))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM orders o JOIN stores s ON o.store_id = s.id WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	query := fmt.Sprintf(`
		SELECT o.id, o.order_number, o.store_id, s.display_name,
		       o.customer_name, o.total::text, o.status, o.payment_status,
		       o.created_at::text
		FROM orders o
		JOIN stores s ON o.store_id = s.id
		WHERE %s
		ORDER BY o.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []OrderSummary
	for rows.Next() {
		var s OrderSummary
		if err := rows.Scan(
			&s.ID, &s.OrderNumber, &s.StoreID, &s.StoreName,
			&s.CustomerName, &s.Total, &s.Status, &s.PaymentStatus, &s.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var o domain.Order
	var items []byte
	var deletedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.StoreID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail,
		&o.CustomerPhone, &o.DeliveryAddress, &o.Notes, &items, &o.Subtotal,
		&o.Discount, &o.ShippingFee, &o.PlatformFee, &o.Total, &o.Status,
		&o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		o.DeletedAt = &deletedAt.Time
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode line items for order %s: %w", o.ID, err)
	}
	for _, li := range o.Items {
		if err := li.Validate(); err != nil {
			return nil, fmt.Errorf("invalid line item in order %s: %w", o.ID, err)
		}
	}
	return &o, nil
}
