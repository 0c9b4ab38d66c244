// Package gateway abstracts the third-party payment collection provider. The
// client performs no retries of its own; retry and timeout policy belong to
// the callers.
package gateway

import (
	"context"
	"time"
)

// ProvisionRequest asks the provider for a collection channel (a dedicated
// virtual account or a checkout link) for one payment reference.
type ProvisionRequest struct {
	Amount        string // decimal string, 2dp
	Currency      string
	Reference     string // locally generated, immutable idempotency key
	Description   string
	CustomerName  string
	CustomerEmail string
}

// Channel is the provisioned collection channel.
type Channel struct {
	GatewayReference string
	CheckoutURL      string
	AccountNumber    string
	AccountName      string
	BankName         string
	ExpiresAt        *time.Time
}

// StatusResult is the provider's view of a payment when polled.
type StatusResult struct {
	// Status is the provider's raw vocabulary (PAID, OVERPAID,
	// PARTIALLY_PAID, PENDING, FAILED, EXPIRED).
	Status           string
	GatewayReference string
	PaymentMethod    string
	// AmountPaid is the amount the provider saw, as a decimal string. Empty
	// when the provider omits it.
	AmountPaid string
}

// ResolvedAccount is the result of a payout-account lookup.
type ResolvedAccount struct {
	AccountName   string
	AccountNumber string
	BankCode      string
}

type Gateway interface {
	ProvisionChannel(ctx context.Context, req ProvisionRequest) (*Channel, error)
	QueryStatus(ctx context.Context, reference string) (*StatusResult, error)
	ValidateAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error)
}
