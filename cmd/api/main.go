package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/gateway"
	"storefront/internal/notify"
	"storefront/internal/repo"
	"storefront/internal/server"
	"storefront/internal/service"
	"storefront/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.DB)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	storeRepo := repo.NewStoreRepo(db)
	productRepo := repo.NewProductRepo(db)
	orderRepo := repo.NewOrderRepo(db)
	paymentRepo := repo.NewPaymentRepo(db)
	txRunner := repo.NewTxRunner(db)

	var gw gateway.Gateway
	if cfg.Gateway.Configured() {
		gw = gateway.NewMonnify(cfg.Gateway)
		log.Println("gateway: using live client")
	} else {
		gw = gateway.NewMock(cfg.PaymentExpiry)
		log.Println("gateway: no credentials configured, using mock")
	}

	notifier := notify.NewLogNotifier()

	orderService := service.NewOrderService(txRunner, storeRepo, productRepo, orderRepo, paymentRepo, gw, notifier, cfg)
	paymentService := service.NewPaymentService(txRunner, paymentRepo, orderRepo, gw, notifier, cfg)
	catalogService := service.NewCatalogService(storeRepo, productRepo)

	reconciler := worker.NewReconciler(paymentRepo, gw, paymentService, cfg.ReconcileInterval)
	go reconciler.Run(ctx)

	srv := server.New(db, orderService, paymentService, catalogService, cfg)
	log.Printf("listening on :%s", cfg.Port)
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
