package server

import (
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/repo"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createOrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required"`
}

type createOrderRequest struct {
	CustomerName    string                   `json:"customer_name" binding:"required"`
	CustomerEmail   string                   `json:"customer_email"`
	CustomerPhone   string                   `json:"customer_phone" binding:"required"`
	DeliveryAddress string                   `json:"delivery_address"`
	Notes           string                   `json:"notes"`
	Discount        decimal.Decimal          `json:"discount"`
	ShippingFee     decimal.Decimal          `json:"shipping_fee"`
	Items           []createOrderItemRequest `json:"items" binding:"required"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	in := service.CreateOrderInput{
		StoreUsername:   c.Param("username"),
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		Discount:        req.Discount,
		ShippingFee:     req.ShippingFee,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, service.CreateOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	result, err := s.orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order":               result.Order,
		"payment":             result.Payment,
		"payment_initialized": result.PaymentInitialized,
	})
}

func (s *Server) listOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var filter repo.OrderFilter
	if v := c.Query("store_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid store_id"})
			return
		}
		filter.StoreID = id
	}
	filter.Status = domain.OrderStatus(c.Query("status"))
	filter.PaymentStatus = domain.PaymentStatus(c.Query("payment_status"))
	filter.Page = intQuery(c, "page", 1)
	filter.Limit = intQuery(c, "limit", 20)

	orders, total, err := s.orders.ListOrders(c.Request.Context(), userID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

func (s *Server) getOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	details, err := s.orders.GetOrderDetails(c.Request.Context(), orderID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": details.Order, "payment": details.Payment})
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := s.orders.UpdateStatus(c.Request.Context(), orderID, userID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) cancelOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := s.orders.CancelOrder(c.Request.Context(), orderID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "order cancelled"})
}

func (s *Server) trackOrder(c *gin.Context) {
	info, err := s.orders.TrackOrder(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_number":   info.Order.OrderNumber,
		"status":         info.Order.Status,
		"payment_status": info.Order.PaymentStatus,
		"items":          info.Order.Items,
		"total":          info.Order.Total,
		"events":         info.Events,
	})
}

func (s *Server) getPayment(c *gin.Context) {
	payment, err := s.payments.GetPaymentDetails(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func (s *Server) verifyPayment(c *gin.Context) {
	result, err := s.payments.VerifyPayment(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verified": result.Verified,
		"status":   result.Payment.Status,
		"payment":  result.Payment,
	})
}

func (s *Server) reinitializePayment(c *gin.Context) {
	payment, err := s.payments.ReinitializePayment(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

type updateStockRequest struct {
	Quantity  int                   `json:"quantity"`
	Operation domain.StockOperation `json:"operation" binding:"required"`
}

func (s *Server) updateProductStock(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req updateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	product, err := s.catalog.UpdateStock(c.Request.Context(), productID, userID, req.Quantity, req.Operation)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id":     product.ID,
		"stock_quantity": product.StockQuantity,
	})
}

type resolveBankRequest struct {
	AccountNumber string `json:"account_number" binding:"required"`
	BankCode      string `json:"bank_code" binding:"required"`
}

func (s *Server) resolveBankAccount(c *gin.Context) {
	var req resolveBankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	account, err := s.payments.ResolveBankAccount(c.Request.Context(), req.AccountNumber, req.BankCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_name":   account.AccountName,
		"account_number": account.AccountNumber,
		"bank_code":      account.BankCode,
	})
}

// currentUser reads the already-authenticated user id set by the upstream
// auth proxy. Missing or malformed ids end the request with 401.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
