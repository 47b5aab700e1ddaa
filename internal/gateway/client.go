package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the client has no key pair.
var ErrNotConfigured = errors.New("gateway credentials not configured")

// OrderRequest describes a gateway-side order. Amount is in minor units (paise, cents).
type OrderRequest struct {
	AmountMinorUnits int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Receipt          string            `json:"receipt"`
	Notes            map[string]string `json:"notes,omitempty"`
}

// Order is the gateway's view of a created order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway mints checkout orders. The public key is handed to the client for checkout.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	PublicKey() string
}

// Client talks to a Razorpay-compatible orders API.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewClient builds a Client whose requests never outlive timeout.
func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether both halves of the key pair are present.
func (c *Client) Configured() bool {
	return c != nil && c.keyID != "" && c.keySecret != ""
}

// PublicKey returns the key id exposed to checkout.
func (c *Client) PublicKey() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder registers a new order with the gateway.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway order marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gateway order request build: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway order request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gateway order read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Description != "" {
			return nil, fmt.Errorf("gateway order failed: status %d: %s", resp.StatusCode, apiErr.Error.Description)
		}
		return nil, fmt.Errorf("gateway order failed: status %d", resp.StatusCode)
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("gateway order unmarshal: %w", err)
	}
	if order.ID == "" {
		return nil, errors.New("gateway order: empty order id")
	}

	return &order, nil
}
