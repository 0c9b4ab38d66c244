// Package worker hosts the background reconciliation loop that sweeps
// payments stuck in pending and re-checks them against the gateway. It is the
// safety net for missed webhooks.
package worker

import (
	"context"
	"log"
	"time"

	"storefront/internal/gateway"
	"storefront/internal/repo"
	"storefront/internal/service"
)

// sweepBatchSize bounds how many stuck payments one tick re-checks.
const sweepBatchSize = 50

type Reconciler struct {
	payments repo.PaymentRepo
	gw       gateway.Gateway
	svc      service.PaymentService

	interval time.Duration
	// minAge keeps freshly created payments out of the sweep; the customer
	// usually needs a few minutes to pay.
	minAge time.Duration
}

func NewReconciler(payments repo.PaymentRepo, gw gateway.Gateway, svc service.PaymentService, interval time.Duration) *Reconciler {
	return &Reconciler{
		payments: payments,
		gw:       gw,
		svc:      svc,
		interval: interval,
		minAge:   5 * time.Minute,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Reconciler) Run(ctx context.Context) {
	log.Printf("reconciler: started, interval=%s", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.minAge)
	stuck, err := r.payments.FindStuckPending(ctx, cutoff, sweepBatchSize)
	if err != nil {
		log.Printf("reconciler: list stuck payments: %v", err)
		return
	}
	if len(stuck) == 0 {
		return
	}
	log.Printf("reconciler: re-checking %d pending payment(s)", len(stuck))

	for _, p := range stuck {
		if ctx.Err() != nil {
			return
		}
		result, err := r.gw.QueryStatus(ctx, p.PaymentReference)
		if err != nil {
			// One unreachable query must not starve the rest of the batch.
			log.Printf("reconciler: query %s: %v", p.PaymentReference, err)
			continue
		}
		if err := r.svc.Reconcile(ctx, p.PaymentReference, result.Status, result.GatewayReference, result.PaymentMethod, result.AmountPaid); err != nil {
			log.Printf("reconciler: reconcile %s: %v", p.PaymentReference, err)
		}
	}
}
