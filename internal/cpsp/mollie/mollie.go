// Package mollie talks to a hosted-checkout REST API in the shape of the
// Mollie v2 payments API.
package mollie

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/cpsp"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.mollie.com/v2"

type Client struct {
	baseURL  string
	currency string
	client   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: "EUR",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type link struct {
	Href string `json:"href"`
}

type paymentResponse struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Amount         amount  `json:"amount"`
	AmountRefunded *amount `json:"amountRefunded"`
	Details        struct {
		ConsumerName string `json:"consumerName"`
		CardHolder   string `json:"cardHolder"`
	} `json:"details"`
	Links struct {
		Checkout *link `json:"checkout"`
	} `json:"_links"`
}

type refundsResponse struct {
	Embedded struct {
		Refunds []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Amount amount `json:"amount"`
		} `json:"refunds"`
	} `json:"_embedded"`
}

type apiError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *Client) CreateCheckout(ctx context.Context, cred cpsp.Credentials, req cpsp.CheckoutRequest) (*cpsp.Checkout, error) {
	body := map[string]any{
		"amount":      amount{Currency: c.currency, Value: req.Amount.StringFixed(2)},
		"description": req.Description,
		"redirectUrl": req.ReturnURL,
		"metadata":    map[string]string{"reference": req.Reference},
	}
	if req.WebhookURL != "" {
		body["webhookUrl"] = req.WebhookURL
	}

	var resp paymentResponse
	if err := c.do(ctx, cred, http.MethodPost, "/payments", body, &resp); err != nil {
		return nil, err
	}
	out := &cpsp.Checkout{ExternalID: resp.ID, Status: cpsp.Status(resp.Status)}
	if resp.Links.Checkout != nil {
		out.CheckoutURL = resp.Links.Checkout.Href
	}
	if out.ExternalID == "" {
		return nil, errors.New("checkout response without payment id")
	}
	return out, nil
}

func (c *Client) GetPayment(ctx context.Context, cred cpsp.Credentials, externalID string) (*cpsp.Payment, error) {
	var resp paymentResponse
	if err := c.do(ctx, cred, http.MethodGet, "/payments/"+url.PathEscape(externalID), nil, &resp); err != nil {
		return nil, err
	}
	value, err := decimal.NewFromString(resp.Amount.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "payment %s amount", externalID)
	}
	payer := resp.Details.ConsumerName
	if payer == "" {
		payer = resp.Details.CardHolder
	}
	return &cpsp.Payment{
		ExternalID: resp.ID,
		Status:     cpsp.Status(resp.Status),
		Amount:     value,
		PayerName:  payer,
	}, nil
}

func (c *Client) ListRefunds(ctx context.Context, cred cpsp.Credentials, externalID string) ([]cpsp.Refund, error) {
	var resp refundsResponse
	if err := c.do(ctx, cred, http.MethodGet, "/payments/"+url.PathEscape(externalID)+"/refunds", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]cpsp.Refund, 0, len(resp.Embedded.Refunds))
	for _, r := range resp.Embedded.Refunds {
		value, err := decimal.NewFromString(r.Amount.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "refund %s amount", r.ID)
		}
		out = append(out, cpsp.Refund{ID: r.ID, Amount: value, Status: r.Status})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, cred cpsp.Credentials, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrap(cpsp.ErrUnknownPayment, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Detail != "" {
			return errors.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, apiErr.Title, apiErr.Detail)
		}
		return errors.Errorf("%s %s: http %d", method, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
