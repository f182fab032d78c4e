package mollie

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RamonvdW/nhb-apps-sub010/internal/cpsp"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cred = cpsp.Credentials{ReceiverID: 1, APIKey: "test_key"}

func TestCreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer test_key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"currency": "EUR", "value": "10.00"}, body["amount"])
		assert.Equal(t, "Order 1000001", body["description"])
		assert.Equal(t, "https://shop.example.org/webhook", body["webhookUrl"])

		_, _ = w.Write([]byte(`{"id":"tr_WDqYK6vllg","status":"open",
			"_links":{"checkout":{"href":"https://pay.example.org/tr_WDqYK6vllg"}}}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL).CreateCheckout(context.Background(), cred, cpsp.CheckoutRequest{
		Amount:      decimal.NewFromInt(10),
		Description: "Order 1000001",
		WebhookURL:  "https://shop.example.org/webhook",
		ReturnURL:   "https://shop.example.org/orders/1000001",
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_WDqYK6vllg", got.ExternalID)
	assert.Equal(t, "https://pay.example.org/tr_WDqYK6vllg", got.CheckoutURL)
	assert.Equal(t, cpsp.StatusOpen, got.Status)
}

func TestGetPaymentAndRefunds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payments/tr_1":
			_, _ = w.Write([]byte(`{"id":"tr_1","status":"paid","amount":{"currency":"EUR","value":"15.00"},
				"details":{"consumerName":"J. Archer"}}`))
		case "/payments/tr_1/refunds":
			_, _ = w.Write([]byte(`{"_embedded":{"refunds":[{"id":"re_1","status":"refunded","amount":{"currency":"EUR","value":"5.00"}}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := New(srv.URL)
	ctx := context.Background()

	p, err := c.GetPayment(ctx, cred, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, cpsp.StatusPaid, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "J. Archer", p.PayerName)

	refunds, err := c.ListRefunds(ctx, cred, "tr_1")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "re_1", refunds[0].ID)
	assert.True(t, refunds[0].Amount.Equal(decimal.NewFromInt(5)))

	_, err = c.GetPayment(ctx, cred, "tr_gone")
	assert.ErrorIs(t, err, cpsp.ErrUnknownPayment)
}

func TestAPIErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":401,"title":"Unauthorized Request","detail":"Missing authentication"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetPayment(context.Background(), cred, "tr_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing authentication")
}
