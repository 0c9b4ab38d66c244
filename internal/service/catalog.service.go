package service

import (
	"context"

	"storefront/internal/domain"
	"storefront/internal/repo"

	"github.com/google/uuid"
)

type CatalogService interface {
	// UpdateStock is the owner-facing set/increment/decrement mutation. It is
	// independent of order reservations, which go through ReserveStock.
	UpdateStock(ctx context.Context, productID, userID uuid.UUID, quantity int, op domain.StockOperation) (*domain.Product, error)
}

type catalogService struct {
	stores   repo.StoreRepo
	products repo.ProductRepo
}

func NewCatalogService(stores repo.StoreRepo, products repo.ProductRepo) CatalogService {
	return &catalogService{stores: stores, products: products}
}

func (s *catalogService) UpdateStock(ctx context.Context, productID, userID uuid.UUID, quantity int, op domain.StockOperation) (*domain.Product, error) {
	switch op {
	case domain.StockSet, domain.StockIncrement, domain.StockDecrement:
	default:
		return nil, domain.InvalidInput("operation must be set, increment or decrement")
	}
	if quantity < 0 {
		return nil, domain.InvalidInput("quantity must not be negative")
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	store, err := s.stores.FindByID(ctx, product.StoreID)
	if err != nil {
		return nil, domain.Internal("look up store", err)
	}
	if store == nil || store.UserID != userID {
		return nil, domain.Forbidden("you don't have access to this product")
	}

	return s.products.UpdateStock(ctx, productID, quantity, op)
}
