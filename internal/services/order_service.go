package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/payments"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingUserID = errors.New("missing user id")
	ErrNotOwner      = errors.New("order belongs to another buyer")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// WorkerNames are the names both workers record their counters under.
var WorkerNames = []string{string(models.QueueOrders), string(models.QueuePayments)}

// OrderService reads orders and submits order mutations on behalf of the
// HTTP layer. Writes only ever go through the mutation log.
type OrderService struct {
	Store     store.Store
	Mutations *mutations.Log
	ReturnURL string
	Epsilon   decimal.Decimal
	Log       logrus.FieldLogger
}

type OrderView struct {
	Order        *models.Order
	Payment      payments.Result
	Session      *models.PaymentSession
	Transactions []*models.Transaction
}

func (s OrderService) GetOrder(ctx context.Context, number int64) (*OrderView, error) {
	var v OrderView
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrderByNumber(ctx, number)
		if err != nil {
			return err
		}
		txs, err := tx.OrderTransactions(ctx, o.ID)
		if err != nil {
			return err
		}
		v = OrderView{Order: o, Transactions: txs, Payment: payments.Reconcile(o.Total, txs, s.epsilon())}
		if o.PaymentSessionID != nil {
			if v.Session, err = tx.GetPaymentSession(ctx, *o.PaymentSessionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s OrderService) ListOrders(ctx context.Context, buyerID int64) ([]*models.Order, error) {
	if buyerID <= 0 {
		return nil, ErrMissingUserID
	}
	var out []*models.Order
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListOrdersByBuyer(ctx, buyerID)
		return err
	})
	return out, err
}

// owned loads the order and checks that buyerID placed it.
func (s OrderService) owned(ctx context.Context, buyerID, number int64) (*OrderView, error) {
	if buyerID <= 0 {
		return nil, ErrMissingUserID
	}
	v, err := s.GetOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	if v.Order.BuyerID != buyerID {
		return nil, ErrNotOwner
	}
	return v, nil
}

// StartPayment asks for a checkout of what is still due and returns the
// order as it is afterwards. The checkout URL shows up on the session once
// the payment worker created it.
func (s OrderService) StartPayment(ctx context.Context, buyerID, number int64, fast bool) (*OrderView, error) {
	v, err := s.owned(ctx, buyerID, number)
	if err != nil {
		return nil, err
	}
	returnURL := ""
	if s.ReturnURL != "" {
		returnURL = strings.TrimRight(s.ReturnURL, "/") + "/" + strconv.FormatInt(number, 10)
	}
	if err := s.Mutations.StartPayment(ctx, v.Order.ID, returnURL, fast); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, number)
}

func (s OrderService) Cancel(ctx context.Context, buyerID, number int64, reason string, fast bool) (*OrderView, error) {
	v, err := s.owned(ctx, buyerID, number)
	if err != nil {
		return nil, err
	}
	if err := s.Mutations.CancelOrder(ctx, v.Order.ID, reason, fast); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, number)
}

// RecordManualPayment is the back-office entry for money that did not go
// through the CPSP.
func (s OrderService) RecordManualPayment(ctx context.Context, number int64, reference string, amount decimal.Decimal, refund bool, note string, fast bool) (*OrderView, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	v, err := s.GetOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := s.Mutations.ManualPayment(ctx, v.Order.ID, reference, amount, refund, note, fast); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, number)
}

var paymentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// SanitizePaymentID trims the identifier a provider posted and reports
// whether it only holds allowed characters.
func SanitizePaymentID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	return id, paymentIDPattern.MatchString(id)
}

// PaymentWebhook queues a refresh when id belongs to a session some order
// still references. It reports whether anything was queued; callers answer
// the provider the same way either way.
func (s OrderService) PaymentWebhook(ctx context.Context, raw string) (bool, error) {
	log := s.logger()
	id, ok := SanitizePaymentID(raw)
	if !ok {
		log.WithField("length", len(raw)).Warn("webhook with malformed payment id")
		return false, nil
	}

	var known bool
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.ActiveSessionByExternalID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		known = err == nil
		return err
	})
	if err != nil {
		return false, err
	}
	if !known {
		log.WithField("payment", id).Info("webhook for unknown payment ignored")
		return false, nil
	}
	if err := s.Mutations.RefreshPayment(ctx, id, true); err != nil {
		return false, err
	}
	return true, nil
}

func (s OrderService) WorkerStates(ctx context.Context) ([]*models.WorkerState, error) {
	var out []*models.WorkerState
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		for _, name := range WorkerNames {
			st, err := tx.GetWorkerState(ctx, name)
			if err != nil {
				return err
			}
			out = append(out, st)
		}
		return nil
	})
	return out, err
}

func (s OrderService) epsilon() decimal.Decimal {
	if s.Epsilon.IsPositive() {
		return s.Epsilon
	}
	return payments.DefaultEpsilon
}

func (s OrderService) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
