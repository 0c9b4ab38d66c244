package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	Name          string
	Image         string
	Price         decimal.Decimal
	StockQuantity int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Sellable reports whether the product may appear on an order.
func (p *Product) Sellable() bool {
	return p != nil && p.IsActive && p.DeletedAt == nil
}

// StockOperation names the three owner-facing stock mutations.
type StockOperation string

const (
	StockSet       StockOperation = "set"
	StockIncrement StockOperation = "increment"
	StockDecrement StockOperation = "decrement"
)
