package domain

import (
	"time"

	"github.com/google/uuid"
)

// Store is a tenant storefront. Products and orders belong to exactly one
// store; the store's owning user is the only principal allowed to manage them.
type Store struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Username    string
	DisplayName string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Available reports whether the store can accept public traffic. Soft-deleted
// and deactivated stores are indistinguishable from missing ones to customers.
func (s *Store) Available() bool {
	return s != nil && s.IsActive && s.DeletedAt == nil
}
