// Package notify sends best-effort customer/store notifications. Sends are
// fire-and-forget: a failure here must never fail the operation that
// triggered it.
package notify

import (
	"context"
	"log"

	"storefront/internal/domain"
)

type Notifier interface {
	OrderCreated(ctx context.Context, order *domain.Order)
	PaymentReceived(ctx context.Context, order *domain.Order, payment *domain.Payment)
}

// LogNotifier is the default transport: it just logs. Real email/SMS delivery
// lives behind this interface in an external collaborator.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) OrderCreated(ctx context.Context, order *domain.Order) {
	log.Printf("notify: order created %s for %s", order.OrderNumber, order.CustomerName)
}

func (n *LogNotifier) PaymentReceived(ctx context.Context, order *domain.Order, payment *domain.Payment) {
	log.Printf("notify: payment received %s for order %s", payment.PaymentReference, order.OrderNumber)
}
