// Package server wires the HTTP API. Handlers stay thin: decode, call the
// service, map the domain error kind onto a status code.
package server

import (
	"database/sql"
	"errors"
	"net/http"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Server struct {
	router   *gin.Engine
	db       *sql.DB
	orders   service.OrderService
	payments service.PaymentService
	catalog  service.CatalogService
	cfg      config.Config
}

func New(db *sql.DB, orders service.OrderService, payments service.PaymentService, catalog service.CatalogService, cfg config.Config) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "X-User-ID"},
	}))

	s := &Server{
		router:   router,
		db:       db,
		orders:   orders,
		payments: payments,
		catalog:  catalog,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		api.GET("/health", s.healthCheck)

		api.POST("/stores/:username/orders", s.createOrder)
		api.GET("/orders", s.listOrders)
		api.GET("/orders/:id", s.getOrder)
		api.PATCH("/orders/:id/status", s.updateOrderStatus)
		api.POST("/orders/:id/cancel", s.cancelOrder)
		api.GET("/track/:orderNumber", s.trackOrder)

		api.PATCH("/products/:id/stock", s.updateProductStock)

		api.GET("/payments/:reference", s.getPayment)
		api.GET("/payments/:reference/verify", s.verifyPayment)
		api.POST("/payments/:reference/reinitialize", s.reinitializePayment)
		api.POST("/banks/resolve", s.resolveBankAccount)

		api.POST("/webhooks/gateway", s.gatewayWebhook)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	health := database.Health(s.db)
	status := http.StatusOK
	if health["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// respondError maps a domain error kind onto an HTTP status. Internal causes
// are never leaked to clients.
func respondError(c *gin.Context, err error) {
	var de *domain.Error
	status := http.StatusInternalServerError
	body := gin.H{"error": "internal server error"}

	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindForbidden:
			status = http.StatusForbidden
		case domain.KindInvalidInput, domain.KindConflict, domain.KindInvalidTransition:
			status = http.StatusBadRequest
		case domain.KindGatewayError:
			status = http.StatusBadGateway
		case domain.KindInternal:
			status = http.StatusInternalServerError
		}
		if de.Kind != domain.KindInternal {
			body = gin.H{"error": de.Message}
			if len(de.Details) > 0 {
				body["details"] = de.Details
			}
		}
	}
	c.JSON(status, body)
}
