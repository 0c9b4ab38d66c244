package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/repo"

	"github.com/google/uuid"
)

// The fakes below mirror the SQL repositories' semantics in memory so the
// services can be exercised without a database.

type fakeStores struct {
	mu     sync.Mutex
	byName map[string]*domain.Store
	byID   map[uuid.UUID]*domain.Store
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		byName: make(map[string]*domain.Store),
		byID:   make(map[uuid.UUID]*domain.Store),
	}
}

func (f *fakeStores) add(s *domain.Store) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byName[s.Username] = s
	f.byID[s.ID] = s
}

func (f *fakeStores) FindByUsername(ctx context.Context, username string) (*domain.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byName[username], nil
}

func (f *fakeStores) FindByID(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

type fakeProducts struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{products: make(map[uuid.UUID]*domain.Product)}
}

func (f *fakeProducts) add(p *domain.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
}

func (f *fakeProducts) stock(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].StockQuantity
}

func (f *fakeProducts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, domain.NotFound("product not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok || !p.Sellable() {
		return domain.NotFound("product not found")
	}
	if p.StockQuantity < quantity {
		return domain.Conflict(
			fmt.Sprintf("insufficient stock for %s", p.Name),
			map[string]any{"available": p.StockQuantity},
		)
	}
	p.StockQuantity -= quantity
	return nil
}

func (f *fakeProducts) ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.products[productID]; ok {
		p.StockQuantity += quantity
	}
	return nil
}

func (f *fakeProducts) UpdateStock(ctx context.Context, productID uuid.UUID, quantity int, op domain.StockOperation) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return nil, domain.NotFound("product not found")
	}
	switch op {
	case domain.StockIncrement:
		p.StockQuantity += quantity
	case domain.StockDecrement:
		p.StockQuantity -= quantity
		if p.StockQuantity < 0 {
			p.StockQuantity = 0
		}
	default:
		p.StockQuantity = quantity
	}
	cp := *p
	return &cp, nil
}

type fakeOrders struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*domain.Order
	byNumber map[string]uuid.UUID
	stores   *fakeStores
}

func newFakeOrders(stores *fakeStores) *fakeOrders {
	return &fakeOrders{
		orders:   make(map[uuid.UUID]*domain.Order),
		byNumber: make(map[string]uuid.UUID),
		stores:   stores,
	}
}

func (f *fakeOrders) Create(ctx context.Context, tx repo.DBTX, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.byNumber[order.OrderNumber]; taken {
		return domain.Conflict("order number already taken", nil)
	}
	cp := *order
	f.orders[order.ID] = &cp
	f.byNumber[order.OrderNumber] = order.ID
	return nil
}

func (f *fakeOrders) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	f.mu.Lock()
	id, ok := f.byNumber[orderNumber]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return f.FindByID(ctx, id)
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok {
		o.Status = status
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (f *fakeOrders) UpdatePaymentStatus(ctx context.Context, tx repo.DBTX, id uuid.UUID, status domain.PaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok {
		o.PaymentStatus = status
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (f *fakeOrders) ListByUser(ctx context.Context, userID uuid.UUID, filter repo.OrderFilter) ([]repo.OrderSummary, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repo.OrderSummary
	for _, o := range f.orders {
		store := f.stores.byID[o.StoreID]
		if store == nil || store.UserID != userID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, repo.OrderSummary{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			StoreID:       o.StoreID,
			StoreName:     store.DisplayName,
			CustomerName:  o.CustomerName,
			Total:         o.Total.StringFixed(2),
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
		})
	}
	return out, len(out), nil
}

type fakePayments struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*domain.Payment
	byReference map[string]uuid.UUID
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		byID:        make(map[uuid.UUID]*domain.Payment),
		byReference: make(map[string]uuid.UUID),
	}
}

func (f *fakePayments) add(p *domain.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.byID[p.ID] = &cp
	f.byReference[p.PaymentReference] = p.ID
}

func (f *fakePayments) Create(ctx context.Context, tx repo.DBTX, p *domain.Payment) error {
	f.add(p)
	return nil
}

func (f *fakePayments) FindByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byReference[reference]
	if !ok {
		return nil, nil
	}
	cp := *f.byID[id]
	return &cp, nil
}

func (f *fakePayments) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePayments) Settle(ctx context.Context, tx repo.DBTX, id uuid.UUID, status domain.PaymentStatus, gatewayReference, paymentMethod string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || p.Status != domain.PaymentPending || p.Status == status {
		return false, nil
	}
	p.Status = status
	if p.GatewayReference == "" {
		p.GatewayReference = gatewayReference
	}
	if paymentMethod != "" {
		p.PaymentMethod = paymentMethod
	}
	if status == domain.PaymentPaid {
		now := time.Now().UTC()
		p.PaidAt = &now
	}
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakePayments) UpdateChannel(ctx context.Context, id uuid.UUID, ch repo.ChannelDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil
	}
	if p.GatewayReference == "" {
		p.GatewayReference = ch.GatewayReference
	}
	p.CheckoutURL = ch.CheckoutURL
	p.AccountNumber = ch.AccountNumber
	p.AccountName = ch.AccountName
	p.BankName = ch.BankName
	if ch.ExpiresAt != nil {
		p.ExpiresAt = ch.ExpiresAt
	}
	return nil
}

func (f *fakePayments) FindStuckPending(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Payment
	for _, p := range f.byID {
		if p.Status == domain.PaymentPending && p.CreatedAt.Before(before) {
			out = append(out, *p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeTxRunner snapshots the order and payment fakes before running the
// function and restores them when it fails, matching rollback semantics.
// Setting err simulates a transaction that fails before any write lands.
type fakeTxRunner struct {
	err      error
	orders   *fakeOrders
	payments *fakePayments
}

func (f *fakeTxRunner) RunInTx(ctx context.Context, fn func(tx repo.DBTX) error) error {
	if f.err != nil {
		return f.err
	}
	var restoreOrders, restorePayments func()
	if f.orders != nil {
		restoreOrders = f.orders.snapshot()
	}
	if f.payments != nil {
		restorePayments = f.payments.snapshot()
	}
	if err := fn(nil); err != nil {
		if restoreOrders != nil {
			restoreOrders()
		}
		if restorePayments != nil {
			restorePayments()
		}
		return err
	}
	return nil
}

func (f *fakeOrders) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	orders := make(map[uuid.UUID]*domain.Order, len(f.orders))
	for id, o := range f.orders {
		cp := *o
		orders[id] = &cp
	}
	byNumber := make(map[string]uuid.UUID, len(f.byNumber))
	for n, id := range f.byNumber {
		byNumber[n] = id
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.orders = orders
		f.byNumber = byNumber
	}
}

func (f *fakePayments) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID := make(map[uuid.UUID]*domain.Payment, len(f.byID))
	for id, p := range f.byID {
		cp := *p
		byID[id] = &cp
	}
	byReference := make(map[string]uuid.UUID, len(f.byReference))
	for r, id := range f.byReference {
		byReference[r] = id
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.byID = byID
		f.byReference = byReference
	}
}

type fakeGateway struct {
	mu            sync.Mutex
	statuses      map[string]string
	provisionErr  error
	queryErr      error
	provisionHits int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]string)}
}

func (g *fakeGateway) ProvisionChannel(ctx context.Context, req gateway.ProvisionRequest) (*gateway.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.provisionHits++
	if g.provisionErr != nil {
		return nil, g.provisionErr
	}
	if _, ok := g.statuses[req.Reference]; !ok {
		g.statuses[req.Reference] = "PENDING"
	}
	expires := time.Now().UTC().Add(time.Hour)
	return &gateway.Channel{
		GatewayReference: "GW-" + req.Reference,
		AccountNumber:    "1234567890",
		AccountName:      "STOREFRONT-" + req.CustomerName,
		BankName:         "Wema Bank",
		ExpiresAt:        &expires,
	}, nil
}

func (g *fakeGateway) QueryStatus(ctx context.Context, reference string) (*gateway.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	status, ok := g.statuses[reference]
	if !ok {
		status = "PENDING"
	}
	return &gateway.StatusResult{
		Status:           status,
		GatewayReference: "GW-" + reference,
		PaymentMethod:    "bank_transfer",
	}, nil
}

func (g *fakeGateway) ValidateAccount(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error) {
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	return &gateway.ResolvedAccount{
		AccountName:   "JOHN DOE",
		AccountNumber: accountNumber,
		BankCode:      bankCode,
	}, nil
}

func (g *fakeGateway) setStatus(reference, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[reference] = status
}

type countingNotifier struct {
	mu              sync.Mutex
	orderCreated    int
	paymentReceived int
}

func (n *countingNotifier) OrderCreated(ctx context.Context, order *domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orderCreated++
}

func (n *countingNotifier) PaymentReceived(ctx context.Context, order *domain.Order, payment *domain.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paymentReceived++
}

func (n *countingNotifier) paymentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.paymentReceived
}

var errGatewayDown = errors.New("gateway unreachable")
