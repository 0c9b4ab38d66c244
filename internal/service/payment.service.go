package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/gateway"
	"storefront/internal/notify"
	"storefront/internal/repo"

	"github.com/shopspring/decimal"
)

// VerifyResult is returned by on-demand verification.
type VerifyResult struct {
	Verified bool
	Payment  *domain.Payment
}

type PaymentService interface {
	// Reconcile applies a provider-reported outcome to the payment identified
	// by reference. It is idempotent: replays and concurrent deliveries of the
	// same outcome converge to one state change and at most one notification.
	// An unknown reference is logged and ignored, never an error. amountPaid
	// is informational; a mismatch against the expected amount is logged but
	// does not block settlement.
	Reconcile(ctx context.Context, reference, outcome, gatewayReference, paymentMethod, amountPaid string) error

	// VerifyPayment polls the gateway for the current status and reconciles it.
	VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error)

	// ReinitializePayment provisions a fresh collection channel for a pending
	// payment that lost its channel (gateway outage at creation, expiry). The
	// payment reference never changes.
	ReinitializePayment(ctx context.Context, reference string) (*domain.Payment, error)

	GetPaymentDetails(ctx context.Context, reference string) (*domain.Payment, error)
	ResolveBankAccount(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error)
}

type paymentService struct {
	txr      repo.TxRunner
	payments repo.PaymentRepo
	orders   repo.OrderRepo
	gw       gateway.Gateway
	notifier notify.Notifier

	gatewayTimeout time.Duration
	paymentExpiry  time.Duration
}

func NewPaymentService(
	txr repo.TxRunner,
	payments repo.PaymentRepo,
	orders repo.OrderRepo,
	gw gateway.Gateway,
	notifier notify.Notifier,
	cfg config.Config,
) PaymentService {
	return &paymentService{
		txr:            txr,
		payments:       payments,
		orders:         orders,
		gw:             gw,
		notifier:       notifier,
		gatewayTimeout: cfg.Gateway.Timeout,
		paymentExpiry:  cfg.PaymentExpiry,
	}
}

func (s *paymentService) Reconcile(ctx context.Context, reference, outcome, gatewayReference, paymentMethod, amountPaid string) error {
	payment, err := s.payments.FindByReference(ctx, reference)
	if err != nil {
		return domain.Internal("look up payment", err)
	}
	if payment == nil {
		// Webhooks for references we never issued (other environments, test
		// deliveries) are acknowledged and dropped.
		log.Printf("payment: reconcile for unknown reference %s ignored", reference)
		return nil
	}

	newStatus := domain.PaymentStatusFromGateway(outcome)
	if payment.Status == newStatus {
		return nil
	}

	if amountPaid != "" {
		if reported, err := decimal.NewFromString(amountPaid); err == nil && !reported.Equal(payment.Amount) {
			log.Printf("payment: %s reported amount %s, expected %s", reference, reported, payment.Amount)
		}
	}

	// The settle and the order mirror commit together. A mirror failure rolls
	// the settle back, so the payment stays pending and the next delivery of
	// the same outcome retries the whole pair.
	var won bool
	err = s.txr.RunInTx(ctx, func(tx repo.DBTX) error {
		w, serr := s.payments.Settle(ctx, tx, payment.ID, newStatus, gatewayReference, paymentMethod)
		if serr != nil {
			return serr
		}
		won = w
		if !won {
			// A concurrent delivery got there first, or the payment already
			// sits in a terminal status. Nothing left to apply.
			return nil
		}
		return s.orders.UpdatePaymentStatus(ctx, tx, payment.OrderID, newStatus)
	})
	if err != nil {
		return domain.Internal("settle payment", err)
	}
	if !won {
		return nil
	}

	if newStatus == domain.PaymentPaid {
		payment.Status = newStatus
		order, err := s.orders.FindByID(ctx, payment.OrderID)
		if err != nil || order == nil {
			log.Printf("payment: order %s missing for paid notification: %v", payment.OrderID, err)
			return nil
		}
		s.notifier.PaymentReceived(ctx, order, payment)
	}
	return nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error) {
	payment, err := s.payments.FindByReference(ctx, reference)
	if err != nil {
		return nil, domain.Internal("look up payment", err)
	}
	if payment == nil {
		return nil, domain.NotFound("payment not found")
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	result, err := s.gw.QueryStatus(gctx, reference)
	if err != nil {
		return nil, domain.GatewayError("payment verification unavailable", err)
	}

	if err := s.Reconcile(ctx, reference, result.Status, result.GatewayReference, result.PaymentMethod, result.AmountPaid); err != nil {
		return nil, err
	}

	payment, err = s.payments.FindByReference(ctx, reference)
	if err != nil || payment == nil {
		return nil, domain.Internal("reload payment", err)
	}
	return &VerifyResult{Verified: payment.IsPaid(), Payment: payment}, nil
}

func (s *paymentService) ReinitializePayment(ctx context.Context, reference string) (*domain.Payment, error) {
	payment, err := s.payments.FindByReference(ctx, reference)
	if err != nil {
		return nil, domain.Internal("look up payment", err)
	}
	if payment == nil {
		return nil, domain.NotFound("payment not found")
	}
	if payment.IsPaid() {
		return nil, domain.Conflict("payment already completed", nil)
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil || order == nil {
		return nil, domain.Internal("look up order for payment", err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	channel, err := s.gw.ProvisionChannel(gctx, gateway.ProvisionRequest{
		Amount:        payment.Amount.StringFixed(2),
		Currency:      payment.Currency,
		Reference:     payment.PaymentReference,
		Description:   fmt.Sprintf("Payment for order %s", order.ID),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
	})
	if err != nil {
		return nil, domain.GatewayError("payment initialization failed", err)
	}

	details := repo.ChannelDetails{
		GatewayReference: channel.GatewayReference,
		CheckoutURL:      channel.CheckoutURL,
		AccountNumber:    channel.AccountNumber,
		AccountName:      channel.AccountName,
		BankName:         channel.BankName,
		ExpiresAt:        channel.ExpiresAt,
	}
	if details.ExpiresAt == nil {
		expires := time.Now().UTC().Add(s.paymentExpiry)
		details.ExpiresAt = &expires
	}
	if err := s.payments.UpdateChannel(ctx, payment.ID, details); err != nil {
		return nil, domain.Internal("store payment channel", err)
	}

	if payment.GatewayReference == "" {
		payment.GatewayReference = details.GatewayReference
	}
	payment.CheckoutURL = details.CheckoutURL
	payment.AccountNumber = details.AccountNumber
	payment.AccountName = details.AccountName
	payment.BankName = details.BankName
	payment.ExpiresAt = details.ExpiresAt
	return payment, nil
}

func (s *paymentService) GetPaymentDetails(ctx context.Context, reference string) (*domain.Payment, error) {
	payment, err := s.payments.FindByReference(ctx, reference)
	if err != nil {
		return nil, domain.Internal("look up payment", err)
	}
	if payment == nil {
		return nil, domain.NotFound("payment not found")
	}
	return payment, nil
}

func (s *paymentService) ResolveBankAccount(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error) {
	if accountNumber == "" || bankCode == "" {
		return nil, domain.InvalidInput("account number and bank code are required")
	}
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	account, err := s.gw.ValidateAccount(gctx, accountNumber, bankCode)
	if err != nil {
		return nil, domain.GatewayError("account resolution failed", err)
	}
	return account, nil
}
