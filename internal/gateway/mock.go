package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Mock is the deterministic in-memory gateway used when no credentials are
// configured (local development) and in tests. Channels are provisioned with
// fixed bank details and statuses stay PENDING until a test or the simulator
// flips them with SetStatus.
type Mock struct {
	mu       sync.RWMutex
	statuses map[string]string
	expiry   time.Duration
}

func NewMock(expiry time.Duration) *Mock {
	return &Mock{
		statuses: make(map[string]string),
		expiry:   expiry,
	}
}

func (m *Mock) ProvisionChannel(ctx context.Context, req ProvisionRequest) (*Channel, error) {
	m.mu.Lock()
	// Provisioning is idempotent per reference.
	if _, exists := m.statuses[req.Reference]; !exists {
		m.statuses[req.Reference] = "PENDING"
	}
	m.mu.Unlock()

	log.Printf("gateway(mock): provisioned channel for %s", req.Reference)

	expires := time.Now().Add(m.expiry)
	return &Channel{
		GatewayReference: "MOCK-" + req.Reference,
		AccountNumber:    "1234567890",
		AccountName:      fmt.Sprintf("STOREFRONT-%s", req.CustomerName),
		BankName:         "Wema Bank",
		ExpiresAt:        &expires,
	}, nil
}

func (m *Mock) QueryStatus(ctx context.Context, reference string) (*StatusResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[reference]
	if !exists {
		// References this gateway never provisioned read as pending.
		return &StatusResult{Status: "PENDING"}, nil
	}
	return &StatusResult{
		Status:           status,
		GatewayReference: "MOCK-" + reference,
		PaymentMethod:    "bank_transfer",
	}, nil
}

func (m *Mock) ValidateAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	names := []string{"JOHN DOE", "JANE SMITH", "ADEBAYO EMMANUEL", "CHIOMA OKONKWO", "IBRAHIM MUSA"}
	idx := 0
	if n := len(accountNumber); n > 0 {
		idx = int(accountNumber[n-1]-'0') % len(names)
		if idx < 0 {
			idx = 0
		}
	}
	return &ResolvedAccount{
		AccountName:   names[idx],
		AccountNumber: accountNumber,
		BankCode:      bankCode,
	}, nil
}

// SetStatus flips the provider-side outcome of a reference, standing in for a
// real customer paying (or the channel expiring).
func (m *Mock) SetStatus(reference, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[reference] = status
}
