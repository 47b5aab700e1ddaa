package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)

		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(59000), req.AmountMinorUnits)
		assert.Equal(t, "INR", req.Currency)
		assert.Equal(t, "receipt_1", req.Receipt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":59000,"currency":"INR","receipt":"receipt_1","status":"created"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/v1/", "rzp_test_key", "secret", time.Second)
	order, err := client.CreateOrder(context.Background(), OrderRequest{
		AmountMinorUnits: 59000,
		Currency:         "INR",
		Receipt:          "receipt_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(59000), order.Amount)
	assert.Equal(t, "rzp_test_key", client.PublicKey())
}

func TestClientCreateOrderNotConfigured(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", "", time.Second)

	_, err := client.CreateOrder(context.Background(), OrderRequest{AmountMinorUnits: 100, Currency: "INR"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, client.Configured())
}

func TestClientCreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", "s", time.Second)
	_, err := client.CreateOrder(context.Background(), OrderRequest{AmountMinorUnits: 1, Currency: "INR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")
}

func TestClientCreateOrderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", "s", 50*time.Millisecond)
	_, err := client.CreateOrder(context.Background(), OrderRequest{AmountMinorUnits: 100, Currency: "INR"})
	require.Error(t, err)
}
