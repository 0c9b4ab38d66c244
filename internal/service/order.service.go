package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/notify"
	"storefront/internal/pricing"
	"storefront/internal/repo"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// orderNumberAttempts bounds the retry loop on order-number collisions.
const orderNumberAttempts = 5

type CreateOrderItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type CreateOrderInput struct {
	StoreUsername   string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	DeliveryAddress string
	Notes           string
	Discount        decimal.Decimal
	ShippingFee     decimal.Decimal
	Items           []CreateOrderItem
}

type CreateOrderResult struct {
	Order   *domain.Order
	Payment *domain.Payment
	// PaymentInitialized is false when the gateway could not provision a
	// collection channel. The order is persisted anyway (stock is already
	// committed); the caller retries via ReinitializePayment.
	PaymentInitialized bool
}

type OrderDetails struct {
	Order   *domain.Order
	Payment *domain.Payment
}

type TrackingInfo struct {
	Order  *domain.Order
	Events []domain.TrackingEvent
}

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error)
	GetOrderDetails(ctx context.Context, orderID, userID uuid.UUID) (*OrderDetails, error)
	ListOrders(ctx context.Context, userID uuid.UUID, filter repo.OrderFilter) ([]repo.OrderSummary, int, error)
	UpdateStatus(ctx context.Context, orderID, userID uuid.UUID, newStatus domain.OrderStatus) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID, userID uuid.UUID) error
	TrackOrder(ctx context.Context, orderNumber string) (*TrackingInfo, error)
}

type orderService struct {
	txr      repo.TxRunner
	stores   repo.StoreRepo
	products repo.ProductRepo
	orders   repo.OrderRepo
	payments repo.PaymentRepo
	gw       gateway.Gateway
	notifier notify.Notifier

	feePct         decimal.Decimal
	gatewayTimeout time.Duration
	paymentExpiry  time.Duration

	// newOrderNumber is swappable so collision handling can be exercised
	// deterministically.
	newOrderNumber func() string
}

func NewOrderService(
	txr repo.TxRunner,
	stores repo.StoreRepo,
	products repo.ProductRepo,
	orders repo.OrderRepo,
	payments repo.PaymentRepo,
	gw gateway.Gateway,
	notifier notify.Notifier,
	cfg config.Config,
) OrderService {
	return &orderService{
		txr:            txr,
		stores:         stores,
		products:       products,
		orders:         orders,
		payments:       payments,
		gw:             gw,
		notifier:       notifier,
		feePct:         cfg.FeePercentage,
		gatewayTimeout: cfg.Gateway.Timeout,
		paymentExpiry:  cfg.PaymentExpiry,
		newOrderNumber: generateOrderNumber,
	}
}

type reservation struct {
	productID uuid.UUID
	quantity  int
}

func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if len(in.Items) == 0 {
		return nil, domain.InvalidInput("order must contain at least one item")
	}
	if in.Discount.IsNegative() || in.ShippingFee.IsNegative() {
		return nil, domain.InvalidInput("discount and shipping fee must not be negative")
	}

	store, err := s.stores.FindByUsername(ctx, in.StoreUsername)
	if err != nil {
		return nil, domain.Internal("look up store", err)
	}
	if !store.Available() {
		return nil, domain.NotFound("store not found")
	}

	// Reserve stock item by item. Reservations are individually atomic and
	// committed; on any failure the earlier ones are compensated before the
	// original error propagates.
	var reserved []reservation
	var items []domain.LineItem
	for _, req := range in.Items {
		if req.Quantity <= 0 {
			s.releaseAll(ctx, reserved)
			return nil, domain.InvalidInput("item quantity must be positive")
		}

		product, err := s.products.FindByID(ctx, req.ProductID)
		if err != nil {
			s.releaseAll(ctx, reserved)
			return nil, err
		}
		// A product from another store is indistinguishable from a missing
		// one; anything else would allow cross-store product injection.
		if product.StoreID != store.ID || !product.Sellable() {
			s.releaseAll(ctx, reserved)
			return nil, domain.NotFound(fmt.Sprintf("product not found: %s", req.ProductID))
		}

		if err := s.products.ReserveStock(ctx, product.ID, req.Quantity); err != nil {
			s.releaseAll(ctx, reserved)
			return nil, err
		}
		reserved = append(reserved, reservation{productID: product.ID, quantity: req.Quantity})

		qty := decimal.NewFromInt(int64(req.Quantity))
		items = append(items, domain.LineItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.Image,
			UnitPrice:    product.Price,
			Quantity:     req.Quantity,
			Subtotal:     product.Price.Mul(qty),
		})
	}

	lines := make([]pricing.Line, len(items))
	for i, it := range items {
		lines[i] = pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	totals, err := pricing.ComputeTotals(lines, in.Discount, in.ShippingFee, s.feePct)
	if err != nil {
		s.releaseAll(ctx, reserved)
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.New(),
		StoreID:         store.ID,
		CustomerName:    in.CustomerName,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		DeliveryAddress: in.DeliveryAddress,
		Notes:           in.Notes,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Discount:        in.Discount,
		ShippingFee:     in.ShippingFee,
		PlatformFee:     totals.PlatformFee,
		Total:           totals.Total,
		Status:          domain.OrderPending,
		PaymentStatus:   domain.PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	payment := &domain.Payment{
		ID:       uuid.New(),
		OrderID:  order.ID,
		Amount:   totals.Total,
		Currency: "NGN",
		Status:   domain.PaymentPending,
		// The reference exists before the gateway call so gateway-side
		// retries stay correlated with this payment.
		PaymentReference: paymentReference(order.ID),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Provision the collection channel. A gateway failure does not unwind
	// the order: stock should not bounce back and forth on transient gateway
	// errors, so the order is persisted pending and the channel retried via
	// reinitialize.
	initialized := true
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	channel, err := s.gw.ProvisionChannel(gctx, gateway.ProvisionRequest{
		Amount:        totals.Total.StringFixed(2),
		Currency:      payment.Currency,
		Reference:     payment.PaymentReference,
		Description:   fmt.Sprintf("Payment for order %s", order.ID),
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
	})
	cancel()
	if err != nil {
		initialized = false
		log.Printf("order: payment initialization failed for %s: %v", payment.PaymentReference, err)
	} else {
		payment.GatewayReference = channel.GatewayReference
		payment.CheckoutURL = channel.CheckoutURL
		payment.AccountNumber = channel.AccountNumber
		payment.AccountName = channel.AccountName
		payment.BankName = channel.BankName
		if channel.ExpiresAt != nil {
			payment.ExpiresAt = channel.ExpiresAt
		} else {
			expires := now.Add(s.paymentExpiry)
			payment.ExpiresAt = &expires
		}
	}

	if err := s.persistOrder(ctx, order, payment); err != nil {
		// The rows rolled back but the reservations are separate committed
		// updates; compensate them explicitly.
		s.releaseAll(ctx, reserved)
		return nil, err
	}

	s.notifier.OrderCreated(ctx, order)

	return &CreateOrderResult{
		Order:              order,
		Payment:            payment,
		PaymentInitialized: initialized,
	}, nil
}

// persistOrder writes the order+payment pair in one transaction, retrying
// order-number generation on unique-constraint collisions.
func (s *orderService) persistOrder(ctx context.Context, order *domain.Order, payment *domain.Payment) error {
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = s.newOrderNumber()
		err = s.txr.RunInTx(ctx, func(tx repo.DBTX) error {
			if err := s.orders.Create(ctx, tx, order); err != nil {
				return err
			}
			return s.payments.Create(ctx, tx, payment)
		})
		if err == nil {
			return nil
		}
		if domain.KindOf(err) != domain.KindConflict {
			return domain.Internal("persist order", err)
		}
	}
	return domain.Conflict("order number space exhausted", nil)
}

func (s *orderService) GetOrderDetails(ctx context.Context, orderID, userID uuid.UUID) (*OrderDetails, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, domain.Internal("look up payment", err)
	}
	return &OrderDetails{Order: order, Payment: payment}, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID uuid.UUID, filter repo.OrderFilter) ([]repo.OrderSummary, int, error) {
	return s.orders.ListByUser(ctx, userID, filter)
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID, userID uuid.UUID, newStatus domain.OrderStatus) (*domain.Order, error) {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if !domain.ValidOrderStatus(newStatus) {
		return nil, domain.InvalidInput(fmt.Sprintf("unknown status %q", newStatus))
	}
	if !domain.CanTransition(order.Status, newStatus) {
		return nil, domain.InvalidTransition(
			fmt.Sprintf("cannot transition from %s to %s", order.Status, newStatus))
	}

	// Cancellation via the status endpoint still compensates stock.
	if newStatus == domain.OrderCancelled {
		if err := s.cancel(ctx, order); err != nil {
			return nil, err
		}
	} else if err := s.orders.UpdateStatus(ctx, order.ID, newStatus); err != nil {
		return nil, domain.Internal("update order status", err)
	}

	order.Status = newStatus
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) error {
	order, err := s.ownedOrder(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if !order.IsCancellable() {
		return domain.InvalidTransition("order cannot be cancelled")
	}
	return s.cancel(ctx, order)
}

// cancel releases every line item's reservation, then flips the status. The
// releases are best-effort: a failed one is logged and skipped so the
// cancellation still completes.
func (s *orderService) cancel(ctx context.Context, order *domain.Order) error {
	for _, item := range order.Items {
		if err := s.products.ReleaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			log.Printf("order: release stock for product %s on cancel of %s: %v",
				item.ProductID, order.OrderNumber, err)
		}
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderCancelled); err != nil {
		return domain.Internal("cancel order", err)
	}
	return nil
}

func (s *orderService) TrackOrder(ctx context.Context, orderNumber string) (*TrackingInfo, error) {
	order, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, domain.Internal("look up order", err)
	}
	if order == nil {
		return nil, domain.NotFound("order not found")
	}
	return &TrackingInfo{Order: order, Events: trackingEvents(order)}, nil
}

// trackingEvents derives the public timeline from the current status: every
// pipeline stage up to and including the current one, or pending+cancelled
// for cancelled orders.
func trackingEvents(order *domain.Order) []domain.TrackingEvent {
	events := []domain.TrackingEvent{{Status: domain.OrderPending, Timestamp: order.CreatedAt}}
	if order.Status == domain.OrderPending {
		return events
	}
	if order.Status == domain.OrderCancelled {
		return append(events, domain.TrackingEvent{Status: domain.OrderCancelled, Timestamp: order.UpdatedAt})
	}

	pipeline := []domain.OrderStatus{
		domain.OrderConfirmed, domain.OrderProcessing, domain.OrderShipped,
		domain.OrderDelivered, domain.OrderFulfilled,
	}
	for _, st := range pipeline {
		events = append(events, domain.TrackingEvent{Status: st, Timestamp: order.UpdatedAt})
		if st == order.Status {
			break
		}
	}
	return events
}

func (s *orderService) ownedOrder(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, domain.Internal("look up order", err)
	}
	if order == nil {
		return nil, domain.NotFound("order not found")
	}

	store, err := s.stores.FindByID(ctx, order.StoreID)
	if err != nil {
		return nil, domain.Internal("look up store", err)
	}
	if store == nil || store.UserID != userID {
		return nil, domain.Forbidden("you don't have access to this order")
	}
	return order, nil
}

func (s *orderService) releaseAll(ctx context.Context, reserved []reservation) {
	for _, r := range reserved {
		if err := s.products.ReleaseStock(ctx, r.productID, r.quantity); err != nil {
			log.Printf("order: compensating release for product %s failed: %v", r.productID, err)
		}
	}
}

// generateOrderNumber produces ORD-YYYYMMDD-NNNNN. The 5-digit suffix can
// collide; callers retry on the unique constraint.
func generateOrderNumber() string {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		// crypto/rand only fails when the platform source is broken.
		n = big.NewInt(time.Now().UnixNano() % 90000)
	}
	return fmt.Sprintf("ORD-%s-%05d", time.Now().UTC().Format("20060102"), n.Int64()+10000)
}

// paymentReference produces PAY-{first 8 of the order id}-{8 random hex}.
func paymentReference(orderID uuid.UUID) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("PAY-%s-%08x", orderID.String()[:8], time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("PAY-%s-%s", orderID.String()[:8], hex.EncodeToString(buf))
}
