package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

type PaymentRepo interface {
	// Create inserts the payment row inside the caller's transaction (the
	// same one that inserts the order).
	Create(ctx context.Context, tx DBTX, payment *domain.Payment) error
	FindByReference(ctx context.Context, reference string) (*domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)

	// Settle applies a reconciliation outcome with a single conditional
	// update, inside the caller's transaction (the same one that mirrors the
	// status onto the order). Only payments still pending can move; terminal
	// statuses are first-writer-wins and never overwritten. The gateway
	// reference is set-once, paid_at only on entry into paid. Returns whether
	// this call won the update.
	Settle(ctx context.Context, tx DBTX, id uuid.UUID, status domain.PaymentStatus, gatewayReference, paymentMethod string) (bool, error)

	// UpdateChannel stores freshly provisioned collection-channel details
	// (used at creation when the row predates the gateway response, and on
	// reinitialize). The payment reference itself is immutable.
	UpdateChannel(ctx context.Context, id uuid.UUID, ch ChannelDetails) error

	// FindStuckPending returns payments still pending that were created
	// before the cutoff, for the reconciliation worker to re-check.
	FindStuckPending(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error)
}

// ChannelDetails is the persisted slice of a gateway provisioning response.
type ChannelDetails struct {
	GatewayReference string
	CheckoutURL      string
	AccountNumber    string
	AccountName      string
	BankName         string
	ExpiresAt        *time.Time
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, order_id, amount, currency, status,
	COALESCE(payment_method, ''), payment_reference, COALESCE(gateway_reference, ''),
	COALESCE(checkout_url, ''), COALESCE(account_number, ''),
	COALESCE(account_name, ''), COALESCE(bank_name, ''), paid_at, expires_at,
	created_at, updated_at`

func (r *paymentRepo) Create(ctx context.Context, tx DBTX, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, amount, currency, status, payment_method,
			payment_reference, gateway_reference, checkout_url, account_number,
			account_name, bank_name, paid_at, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''),
			NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
			$13, $14, $15, $16)
	`,
		p.ID, p.OrderID, p.Amount, p.Currency, p.Status, p.PaymentMethod,
		p.PaymentReference, p.GatewayReference, p.CheckoutURL, p.AccountNumber,
		p.AccountName, p.BankName, p.PaidAt, p.ExpiresAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *paymentRepo) FindByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_reference = $1`, reference)
	return scanPayment(row)
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	return scanPayment(row)
}

func (r *paymentRepo) Settle(ctx context.Context, tx DBTX, id uuid.UUID, status domain.PaymentStatus, gatewayReference, paymentMethod string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    gateway_reference = COALESCE(gateway_reference, NULLIF($3, '')),
		    payment_method = COALESCE(NULLIF($4, ''), payment_method),
		    paid_at = CASE WHEN $2 = 'paid' THEN now() ELSE paid_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		  AND status <> $2
	`, id, status, gatewayReference, paymentMethod)
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}
	return affected == 1, nil
}

func (r *paymentRepo) UpdateChannel(ctx context.Context, id uuid.UUID, ch ChannelDetails) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET gateway_reference = COALESCE(gateway_reference, NULLIF($2, '')),
		    checkout_url = NULLIF($3, ''),
		    account_number = NULLIF($4, ''),
		    account_name = NULLIF($5, ''),
		    bank_name = NULLIF($6, ''),
		    expires_at = COALESCE($7, expires_at),
		    updated_at = now()
		WHERE id = $1
	`, id, ch.GatewayReference, ch.CheckoutURL, ch.AccountNumber, ch.AccountName, ch.BankName, ch.ExpiresAt)
	return err
}

func (r *paymentRepo) FindStuckPending(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = $1
		  AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, domain.PaymentPending, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPaymentRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(row *sql.Row) (*domain.Payment, error) {
	p, err := scanPaymentFrom(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	return p, err
}

func scanPaymentRows(rows *sql.Rows) (*domain.Payment, error) {
	return scanPaymentFrom(rows.Scan)
}

func scanPaymentFrom(scan func(dest ...any) error) (*domain.Payment, error) {
	var p domain.Payment
	var paidAt, expiresAt sql.NullTime
	err := scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.Status, &p.PaymentMethod,
		&p.PaymentReference, &p.GatewayReference, &p.CheckoutURL,
		&p.AccountNumber, &p.AccountName, &p.BankName, &paidAt, &expiresAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	if expiresAt.Valid {
		p.ExpiresAt = &expiresAt.Time
	}
	return &p, nil
}
