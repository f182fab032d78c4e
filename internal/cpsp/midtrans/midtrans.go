// Package midtrans adapts the Midtrans Snap checkout and Core API status
// endpoints to cpsp.Client.
package midtrans

import (
	"context"
	"net/http"
	"strings"

	"github.com/RamonvdW/nhb-apps-sub010/internal/cpsp"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type statusAPI interface {
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// Client builds SDK clients per call, since every receiver has its own
// server key.
type Client struct {
	newSnap func(serverKey string) snapAPI
	newCore func(serverKey string) statusAPI
}

func New(production bool) *Client {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	return &Client{
		newSnap: func(key string) snapAPI {
			var c snap.Client
			c.New(key, env)
			return &c
		},
		newCore: func(key string) statusAPI {
			var c coreapi.Client
			c.New(key, env)
			return &c
		},
	}
}

// CreateCheckout uses an order reference as external id, because that is
// what the status endpoint is queried with.
func (c *Client) CreateCheckout(_ context.Context, cred cpsp.Credentials, req cpsp.CheckoutRequest) (*cpsp.Checkout, error) {
	ref := req.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	ref = ref + "-" + uuid.NewString()[:8]

	sreq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  ref,
			// whole units only; rounding up never leaves the order short
			GrossAmt: req.Amount.RoundCeil(0).IntPart(),
		},
	}
	if req.ReturnURL != "" {
		sreq.Callbacks = &snap.Callbacks{Finish: req.ReturnURL}
	}

	resp, merr := c.newSnap(cred.APIKey).CreateTransaction(sreq)
	if merr != nil {
		return nil, errors.Wrap(merr, "snap create transaction")
	}
	return &cpsp.Checkout{
		ExternalID:  ref,
		CheckoutURL: resp.RedirectURL,
		Status:      cpsp.StatusOpen,
	}, nil
}

func (c *Client) GetPayment(_ context.Context, cred cpsp.Credentials, externalID string) (*cpsp.Payment, error) {
	resp, err := c.check(cred, externalID)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(resp.GrossAmount)
	if err != nil {
		return nil, errors.Wrapf(err, "payment %s amount", externalID)
	}
	return &cpsp.Payment{
		ExternalID: externalID,
		Status:     MapStatus(resp.TransactionStatus, resp.FraudStatus),
		Amount:     amount,
	}, nil
}

func (c *Client) ListRefunds(_ context.Context, cred cpsp.Credentials, externalID string) ([]cpsp.Refund, error) {
	resp, err := c.check(cred, externalID)
	if err != nil {
		return nil, err
	}
	var out []cpsp.Refund
	for _, r := range resp.Refunds {
		amount, err := decimal.NewFromString(r.RefundAmount)
		if err != nil {
			return nil, errors.Wrapf(err, "refund %s amount", r.RefundKey)
		}
		out = append(out, cpsp.Refund{ID: r.RefundKey, Amount: amount, Status: "refunded"})
	}
	return out, nil
}

func (c *Client) check(cred cpsp.Credentials, externalID string) (*coreapi.TransactionStatusResponse, error) {
	resp, merr := c.newCore(cred.APIKey).CheckTransaction(externalID)
	if merr != nil {
		if merr.StatusCode == http.StatusNotFound {
			return nil, errors.Wrap(cpsp.ErrUnknownPayment, externalID)
		}
		return nil, errors.Wrap(merr, "check transaction")
	}
	if resp.StatusCode == "404" {
		return nil, errors.Wrap(cpsp.ErrUnknownPayment, externalID)
	}
	return resp, nil
}

// MapStatus translates a Midtrans transaction status to the common
// taxonomy. A capture only counts as paid once the fraud check accepted it.
func MapStatus(status, fraud string) cpsp.Status {
	switch strings.ToLower(status) {
	case "settlement":
		return cpsp.StatusPaid
	case "capture":
		if fraud == "" || strings.EqualFold(fraud, "accept") {
			return cpsp.StatusPaid
		}
		return cpsp.StatusPending
	case "pending", "authorize":
		return cpsp.StatusPending
	case "expire":
		return cpsp.StatusExpired
	case "cancel":
		return cpsp.StatusCanceled
	case "deny", "failure":
		return cpsp.StatusFailed
	case "refund", "partial_refund":
		return cpsp.StatusPaid
	}
	return cpsp.StatusOpen
}
