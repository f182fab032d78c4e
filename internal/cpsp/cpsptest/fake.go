// Package cpsptest provides a scripted in-memory CPSP for tests.
package cpsptest

import (
	"context"
	"strconv"
	"sync"

	"github.com/RamonvdW/nhb-apps-sub010/internal/cpsp"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Fake struct {
	mu       sync.Mutex
	next     int
	payments map[string]*cpsp.Payment
	refunds  map[string][]cpsp.Refund

	// Err, when set, is returned by every call.
	Err       error
	Checkouts []cpsp.CheckoutRequest
	Keys      []string
	Gets      int
}

func New() *Fake {
	return &Fake{payments: map[string]*cpsp.Payment{}, refunds: map[string][]cpsp.Refund{}}
}

func (f *Fake) CreateCheckout(_ context.Context, cred cpsp.Credentials, req cpsp.CheckoutRequest) (*cpsp.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.next++
	id := "tr_" + strconv.Itoa(f.next)
	f.payments[id] = &cpsp.Payment{ExternalID: id, Status: cpsp.StatusOpen, Amount: req.Amount}
	f.Checkouts = append(f.Checkouts, req)
	f.Keys = append(f.Keys, cred.APIKey)
	return &cpsp.Checkout{ExternalID: id, CheckoutURL: "https://pay.example.org/" + id, Status: cpsp.StatusOpen}, nil
}

func (f *Fake) GetPayment(_ context.Context, _ cpsp.Credentials, externalID string) (*cpsp.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.payments[externalID]
	if !ok {
		return nil, errors.Wrap(cpsp.ErrUnknownPayment, externalID)
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) ListRefunds(_ context.Context, _ cpsp.Credentials, externalID string) ([]cpsp.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]cpsp.Refund(nil), f.refunds[externalID]...), nil
}

// SetStatus moves a payment to status, as the buyer or provider would.
func (f *Fake) SetStatus(externalID string, status cpsp.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[externalID]; ok {
		p.Status = status
		p.PayerName = "Test Payer"
	}
}

// SetAmount changes what the provider reports as paid, for payments that
// settle for less (or more) than the checkout asked.
func (f *Fake) SetAmount(externalID string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[externalID]; ok {
		p.Amount = amount
	}
}

func (f *Fake) AddRefund(externalID, refundID string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds[externalID] = append(f.refunds[externalID], cpsp.Refund{ID: refundID, Amount: amount, Status: "refunded"})
}
