package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/repo"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) orderWithPayment(t *testing.T) (*domain.Order, *domain.Payment) {
	t.Helper()
	p := f.addProduct("Widget", "1000", 10)
	result := f.createOrder(t, CreateOrderItem{ProductID: p.ID, Quantity: 1})
	return result.Order, result.Payment
}

func TestReconcilePaid(t *testing.T) {
	f := newFixture()
	order, payment := f.orderWithPayment(t)
	ctx := context.Background()

	err := f.paymentSvc.Reconcile(ctx, payment.PaymentReference, "PAID", "GW-123", "bank_transfer", payment.Amount.StringFixed(2))
	require.NoError(t, err)

	stored, err := f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	assert.Equal(t, "bank_transfer", stored.PaymentMethod)

	mirrored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, mirrored.PaymentStatus)
	assert.Equal(t, domain.OrderPending, mirrored.Status, "fulfillment status untouched")

	assert.Equal(t, 1, f.notifier.paymentCount())
}

// Replayed deliveries of the same outcome must change nothing and must not
// renotify.
func TestReconcileIdempotent(t *testing.T) {
	f := newFixture()
	_, payment := f.orderWithPayment(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.paymentSvc.Reconcile(ctx, payment.PaymentReference, "PAID", "GW-123", "", ""))
	}

	stored, err := f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.Status)
	assert.Equal(t, 1, f.notifier.paymentCount(), "exactly one notification")
}

// Once a terminal status lands, a conflicting outcome must not overwrite it.
func TestReconcileFirstWriterWins(t *testing.T) {
	f := newFixture()
	order, payment := f.orderWithPayment(t)
	ctx := context.Background()

	require.NoError(t, f.paymentSvc.Reconcile(ctx, payment.PaymentReference, "PAID", "GW-123", "", ""))
	require.NoError(t, f.paymentSvc.Reconcile(ctx, payment.PaymentReference, "FAILED", "GW-999", "", ""))

	stored, err := f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.Status)
	assert.Equal(t, "GW-123", stored.GatewayReference, "gateway reference is set-once")

	mirrored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, mirrored.PaymentStatus)
}

func TestReconcileExpired(t *testing.T) {
	f := newFixture()
	order, payment := f.orderWithPayment(t)
	ctx := context.Background()

	require.NoError(t, f.paymentSvc.Reconcile(ctx, payment.PaymentReference, "EXPIRED", "", "", ""))

	stored, err := f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentExpired, stored.Status)
	assert.Nil(t, stored.PaidAt)
	assert.Equal(t, 0, f.notifier.paymentCount())

	mirrored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentExpired, mirrored.PaymentStatus)
}

// A pending outcome (e.g. PARTIALLY_PAID) is a no-op on a pending payment.
func TestReconcilePendingOutcomeNoOp(t *testing.T) {
	f := newFixture()
	_, payment := f.orderWithPayment(t)
	ctx := context.Background()

	require.NoError(t, f.paymentSvc.Reconcile(ctx, payment.PaymentReference, "PARTIALLY_PAID", "", "", ""))

	stored, err := f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.Status)
}

func TestReconcileUnknownReference(t *testing.T) {
	f := newFixture()

	err := f.paymentSvc.Reconcile(context.Background(), "PAY-deadbeef-00000000", "PAID", "", "", "")
	require.NoError(t, err, "unknown references are dropped, not errors")
	assert.Equal(t, 0, f.notifier.paymentCount())
}

// flakyMirrorOrders fails the next n payment-status mirror writes.
type flakyMirrorOrders struct {
	*fakeOrders
	failures int
}

func (f *flakyMirrorOrders) UpdatePaymentStatus(ctx context.Context, tx repo.DBTX, id uuid.UUID, status domain.PaymentStatus) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("write timeout")
	}
	return f.fakeOrders.UpdatePaymentStatus(ctx, tx, id, status)
}

// A failed mirror write must roll the settle back so a redelivery of the same
// outcome applies both writes; the order and payment rows never diverge.
func TestReconcileMirrorFailureRetriedOnRedelivery(t *testing.T) {
	f := newFixture()
	order, payment := f.orderWithPayment(t)
	ctx := context.Background()

	flaky := &flakyMirrorOrders{fakeOrders: f.orders, failures: 1}
	cfg := config.Config{
		Gateway:       config.GatewayConfig{Timeout: time.Second},
		PaymentExpiry: time.Hour,
	}
	svc := NewPaymentService(f.tx, f.payments, flaky, f.gw, f.notifier, cfg)

	err := svc.Reconcile(ctx, payment.PaymentReference, "PAID", "GW-123", "", "")
	require.Error(t, err, "the delivery fails so the gateway redelivers")

	stored, err := f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.Status, "settle rolled back with the mirror")
	assert.Equal(t, 0, f.notifier.paymentCount())

	require.NoError(t, svc.Reconcile(ctx, payment.PaymentReference, "PAID", "GW-123", "", ""))

	stored, err = f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.Status)

	mirrored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, mirrored.PaymentStatus)
	assert.Equal(t, 1, f.notifier.paymentCount())

	result, err := svc.VerifyPayment(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.True(t, result.Verified)
}

// A reported amount that disagrees with the expected one is logged, never
// blocking: the provider's outcome still settles.
func TestReconcileAmountMismatchStillSettles(t *testing.T) {
	f := newFixture()
	order, payment := f.orderWithPayment(t)
	ctx := context.Background()

	require.NoError(t, f.paymentSvc.Reconcile(ctx, payment.PaymentReference, "PAID", "GW-123", "", "1"))

	stored, err := f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.Status)

	mirrored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, mirrored.PaymentStatus)
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture()
	_, payment := f.orderWithPayment(t)
	ctx := context.Background()

	result, err := f.paymentSvc.VerifyPayment(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, domain.PaymentPending, result.Payment.Status)

	f.gw.setStatus(payment.PaymentReference, "PAID")
	result, err = f.paymentSvc.VerifyPayment(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Equal(t, domain.PaymentPaid, result.Payment.Status)
	assert.Equal(t, 1, f.notifier.paymentCount())
}

func TestVerifyPaymentGatewayDown(t *testing.T) {
	f := newFixture()
	_, payment := f.orderWithPayment(t)
	f.gw.queryErr = errGatewayDown

	_, err := f.paymentSvc.VerifyPayment(context.Background(), payment.PaymentReference)
	require.Error(t, err)
	assert.Equal(t, domain.KindGatewayError, domain.KindOf(err))

	f.gw.queryErr = nil
	stored, err := f.payments.FindByReference(context.Background(), payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.Status, "payment unchanged")
}

func TestVerifyPaymentUnknownReference(t *testing.T) {
	f := newFixture()

	_, err := f.paymentSvc.VerifyPayment(context.Background(), "PAY-deadbeef-00000000")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

// Reinitialize provisions a fresh channel under the same payment reference.
func TestReinitializePayment(t *testing.T) {
	f := newFixture()
	f.gw.provisionErr = errGatewayDown
	p := f.addProduct("Widget", "1000", 10)
	result := f.createOrder(t, CreateOrderItem{ProductID: p.ID, Quantity: 1})
	require.False(t, result.PaymentInitialized)

	f.gw.provisionErr = nil
	payment, err := f.paymentSvc.ReinitializePayment(context.Background(), result.Payment.PaymentReference)
	require.NoError(t, err)

	assert.Equal(t, result.Payment.PaymentReference, payment.PaymentReference, "reference never changes")
	assert.NotEmpty(t, payment.AccountNumber)
	assert.NotEmpty(t, payment.GatewayReference)
	assert.NotNil(t, payment.ExpiresAt)
}

func TestReinitializePaymentAlreadyPaid(t *testing.T) {
	f := newFixture()
	_, payment := f.orderWithPayment(t)
	ctx := context.Background()

	require.NoError(t, f.paymentSvc.Reconcile(ctx, payment.PaymentReference, "PAID", "GW-123", "", ""))

	_, err := f.paymentSvc.ReinitializePayment(ctx, payment.PaymentReference)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestGetPaymentDetails(t *testing.T) {
	f := newFixture()
	_, payment := f.orderWithPayment(t)

	stored, err := f.paymentSvc.GetPaymentDetails(context.Background(), payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, stored.ID)

	_, err = f.paymentSvc.GetPaymentDetails(context.Background(), "PAY-deadbeef-00000000")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestResolveBankAccount(t *testing.T) {
	f := newFixture()

	account, err := f.paymentSvc.ResolveBankAccount(context.Background(), "0123456789", "035")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", account.AccountNumber)
	assert.NotEmpty(t, account.AccountName)

	_, err = f.paymentSvc.ResolveBankAccount(context.Background(), "", "035")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	f.gw.queryErr = errGatewayDown
	_, err = f.paymentSvc.ResolveBankAccount(context.Background(), "0123456789", "035")
	assert.Equal(t, domain.KindGatewayError, domain.KindOf(err))
}

func TestReconcilerUsesSameIdempotentPath(t *testing.T) {
	// The worker feeds gateway outcomes through Reconcile; simulate one sweep
	// by reconciling the stuck payment the way the worker would.
	f := newFixture()
	_, payment := f.orderWithPayment(t)
	ctx := context.Background()

	f.gw.setStatus(payment.PaymentReference, "PAID")
	status, err := f.gw.QueryStatus(ctx, payment.PaymentReference)
	require.NoError(t, err)
	require.NoError(t, f.paymentSvc.Reconcile(ctx, payment.PaymentReference, status.Status, status.GatewayReference, status.PaymentMethod, status.AmountPaid))

	stored, err := f.payments.FindByReference(ctx, payment.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.Status)
}
