package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"storefront/internal/config"

	"github.com/go-resty/resty/v2"
)

// monnifyClient talks to a Monnify-compatible collection API. Tokens are
// short-lived (5 minutes); we refresh at 4 to stay ahead of expiry.
type monnifyClient struct {
	http         *resty.Client
	apiKey       string
	secretKey    string
	contractCode string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewMonnify builds the production gateway client.
func NewMonnify(cfg config.GatewayConfig) Gateway {
	return &monnifyClient{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout),
		apiKey:       cfg.APIKey,
		secretKey:    cfg.SecretKey,
		contractCode: cfg.ContractCode,
	}
}

type apiEnvelope struct {
	RequestSuccessful bool           `json:"requestSuccessful"`
	ResponseMessage   string         `json:"responseMessage"`
	ResponseBody      map[string]any `json:"responseBody"`
}

func (c *monnifyClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	var out apiEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.apiKey, c.secretKey).
		SetResult(&out).
		Post("/api/v1/auth/login")
	if err != nil {
		return "", fmt.Errorf("gateway auth: %w", err)
	}
	if resp.IsError() || !out.RequestSuccessful {
		return "", fmt.Errorf("gateway auth failed: %s", resp.Status())
	}

	token, _ := out.ResponseBody["accessToken"].(string)
	if token == "" {
		return "", fmt.Errorf("gateway auth: empty access token")
	}
	c.accessToken = token
	c.tokenExpiry = time.Now().Add(4 * time.Minute)
	return token, nil
}

func (c *monnifyClient) request(ctx context.Context, method, endpoint string, body any) (*apiEnvelope, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var out apiEnvelope
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("gateway %s %s: %w", method, endpoint, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gateway %s %s: %s", method, endpoint, resp.Status())
	}
	return &out, nil
}

func (c *monnifyClient) ProvisionChannel(ctx context.Context, req ProvisionRequest) (*Channel, error) {
	init, err := c.request(ctx, resty.MethodPost,
		"/api/v1/merchant/transactions/init-transaction",
		map[string]any{
			"amount":             req.Amount,
			"customerName":       req.CustomerName,
			"customerEmail":      orDefault(req.CustomerEmail, "customer@example.com"),
			"paymentReference":   req.Reference,
			"paymentDescription": req.Description,
			"currencyCode":       req.Currency,
			"contractCode":       c.contractCode,
			"paymentMethods":     []string{"ACCOUNT_TRANSFER"},
		})
	if err != nil {
		return nil, err
	}
	if !init.RequestSuccessful {
		return nil, fmt.Errorf("gateway init transaction rejected: %s", init.ResponseMessage)
	}
	gatewayRef, _ := init.ResponseBody["transactionReference"].(string)

	transfer, err := c.request(ctx, resty.MethodPost,
		"/api/v1/merchant/bank-transfer/init-payment",
		map[string]any{"transactionReference": gatewayRef})
	if err != nil || !transfer.RequestSuccessful {
		// Some contracts return a checkout URL on the init response instead
		// of a dedicated account; fall back to it.
		checkoutURL, _ := init.ResponseBody["checkoutUrl"].(string)
		log.Printf("gateway: bank transfer init unavailable for %s, falling back to checkout url", req.Reference)
		return &Channel{
			GatewayReference: gatewayRef,
			CheckoutURL:      checkoutURL,
		}, nil
	}

	body := transfer.ResponseBody
	ch := &Channel{
		GatewayReference: gatewayRef,
		AccountNumber:    stringField(body, "accountNumber"),
		AccountName:      stringField(body, "accountName"),
		BankName:         stringField(body, "bankName"),
	}
	if raw := stringField(body, "expiresOn"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			ch.ExpiresAt = &t
		}
	}
	return ch, nil
}

func (c *monnifyClient) QueryStatus(ctx context.Context, reference string) (*StatusResult, error) {
	out, err := c.request(ctx, resty.MethodGet,
		fmt.Sprintf("/api/v2/merchant/transactions/query?paymentReference=%s", reference), nil)
	if err != nil {
		return nil, err
	}
	if !out.RequestSuccessful {
		return &StatusResult{Status: "PENDING"}, nil
	}
	return &StatusResult{
		Status:           stringField(out.ResponseBody, "paymentStatus"),
		GatewayReference: stringField(out.ResponseBody, "transactionReference"),
		PaymentMethod:    stringField(out.ResponseBody, "paymentMethod"),
		AmountPaid:       numberField(out.ResponseBody, "amountPaid"),
	}, nil
}

func (c *monnifyClient) ValidateAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	out, err := c.request(ctx, resty.MethodGet,
		fmt.Sprintf("/api/v1/disbursements/account/validate?accountNumber=%s&bankCode=%s", accountNumber, bankCode), nil)
	if err != nil {
		return nil, err
	}
	if !out.RequestSuccessful {
		return nil, fmt.Errorf("gateway account validation rejected: %s", out.ResponseMessage)
	}
	return &ResolvedAccount{
		AccountName:   stringField(out.ResponseBody, "accountName"),
		AccountNumber: stringField(out.ResponseBody, "accountNumber"),
		BankCode:      bankCode,
	}, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// numberField renders a numeric field as a decimal string. The query API
// returns amounts as JSON numbers, not strings.
func numberField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	}
	return ""
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
