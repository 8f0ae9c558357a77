package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mealicious/storefront-api/pkg/config"
	"github.com/mealicious/storefront-api/pkg/logger"
)

const ordersPath = "/v1/orders"

var (
	errKeyIDRequired     = errors.New("razorpay key id is required")
	errKeySecretRequired = errors.New("razorpay key secret is required")
	errLoggerRequired    = errors.New("razorpay logger is required")
)

// CreateOrderRequest is the body accepted by the Orders API.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order mirrors the subset of the gateway order returned on creation.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// APIError is returned when the gateway answers with a non-2xx status.
type APIError struct {
	StatusCode  int
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("razorpay: status %d", e.StatusCode)
	}
	return fmt.Sprintf("razorpay: status %d: %s (%s)", e.StatusCode, e.Description, e.Code)
}

// Client wraps the Razorpay REST API with basic auth and a bounded timeout.
type Client struct {
	http    *resty.Client
	keyID   string
	timeout time.Duration
	logger  *logger.Logger
}

// NewClient initializes the gateway client from config.
func NewClient(cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout()).
		SetBasicAuth(keyID, keySecret).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		keyID:   keyID,
		timeout: cfg.Timeout(),
		logger:  logg,
	}, nil
}

// KeyID returns the public key id handed to checkout clients.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// CreateOrder registers a payable order with the gateway.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, fmt.Errorf("currency is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logCtx := c.logger.WithFields(ctx, map[string]any{
		"operation":    "create_order",
		"amount_minor": req.Amount,
		"currency":     req.Currency,
		"receipt":      req.Receipt,
	})

	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(ordersPath)
	if err != nil {
		c.logger.Error(logCtx, "razorpay request failed", err)
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}

	if resp.IsError() {
		apiErr := decodeAPIError(resp)
		c.logger.Error(logCtx, "razorpay create order rejected", apiErr)
		return nil, apiErr
	}

	var order Order
	if err := json.Unmarshal(resp.Body(), &order); err != nil {
		return nil, fmt.Errorf("decode razorpay order: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("razorpay order missing id")
	}

	c.logger.Info(c.logger.WithFields(logCtx, map[string]any{
		"gateway_order_id": order.ID,
		"duration_ms":      time.Since(started).Milliseconds(),
	}), "razorpay order created")
	return &order, nil
}

func decodeAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	var envelope struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Description = envelope.Error.Description
	}
	if apiErr.Description == "" {
		apiErr.Description = http.StatusText(resp.StatusCode())
	}
	return apiErr
}
