// Package cpsp abstracts the card/payment service provider. Every call is
// made with the credentials of the receiving party.
package cpsp

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownPayment = errors.New("unknown payment")
	ErrNoCredentials  = errors.New("receiver has no payment credentials")
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the provider will not change the status again.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusCanceled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

type Credentials struct {
	ReceiverID int64
	APIKey     string
}

type CheckoutRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Description string
	WebhookURL  string
	ReturnURL   string
}

type Checkout struct {
	ExternalID  string
	CheckoutURL string
	Status      Status
}

type Payment struct {
	ExternalID string
	Status     Status
	Amount     decimal.Decimal
	PayerName  string
}

type Refund struct {
	ID     string
	Amount decimal.Decimal
	Status string
}

type Client interface {
	CreateCheckout(ctx context.Context, cred Credentials, req CheckoutRequest) (*Checkout, error)
	GetPayment(ctx context.Context, cred Credentials, externalID string) (*Payment, error)
	ListRefunds(ctx context.Context, cred Credentials, externalID string) ([]Refund, error)
}
