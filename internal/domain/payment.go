package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentExpired  PaymentStatus = "expired"
	PaymentRefunded PaymentStatus = "refunded"
)

// Terminal reports whether s is a final payment state. Terminal states are
// mutually exclusive and first-writer-wins: reconciliation may only move a
// payment out of pending, never between terminal states.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentPaid, PaymentFailed, PaymentExpired, PaymentRefunded:
		return true
	}
	return false
}

// PaymentStatusFromGateway maps a raw gateway outcome onto the local status
// vocabulary. Unknown outcomes are treated as still pending.
func PaymentStatusFromGateway(outcome string) PaymentStatus {
	switch outcome {
	case "PAID", "OVERPAID", "paid", "overpaid":
		return PaymentPaid
	case "FAILED", "failed":
		return PaymentFailed
	case "EXPIRED", "expired":
		return PaymentExpired
	default:
		// PENDING, PARTIALLY_PAID and anything unrecognized
		return PaymentPending
	}
}

// Payment is the one-to-one collection record for an order.
// PaymentReference is generated locally before any gateway call and is the
// idempotency key for everything downstream; GatewayReference is assigned by
// the gateway at most once and may arrive after the row is created.
type Payment struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	Status           PaymentStatus
	PaymentMethod    string
	PaymentReference string
	GatewayReference string
	CheckoutURL      string
	AccountNumber    string
	AccountName      string
	BankName         string
	PaidAt           *time.Time
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsPaid reports whether the payment has been confirmed by the gateway.
func (p *Payment) IsPaid() bool { return p.Status == PaymentPaid }
