// Package orders applies the order-queue mutations: cart edits, checkout
// and the order status machine.
package orders

import (
	"context"
	"strconv"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/payments"
	"github.com/RamonvdW/nhb-apps-sub010/internal/pricing"
	"github.com/RamonvdW/nhb-apps-sub010/internal/products"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Processor struct {
	Products *products.Registry
	Combo    products.Combo
	Pricing  pricing.Service
	Epsilon  decimal.Decimal
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func (p *Processor) Apply(ctx context.Context, tx store.Tx, m *models.Mutation, out *mutations.Outbox) error {
	log := p.Log.WithFields(logrus.Fields{"mutation": m.ID, "kind": m.Kind})
	switch pl := m.Payload.(type) {
	case *models.CartAdd:
		return p.cartAdd(ctx, tx, log, pl)
	case *models.CartRemove:
		return p.cartRemove(ctx, tx, log, pl)
	case *models.CartTransport:
		return p.cartTransport(ctx, tx, log, pl)
	case *models.CartCheckout:
		return p.checkout(ctx, tx, log, pl)
	case *models.StartPayment:
		return p.startPayment(ctx, tx, log, pl, out)
	case *models.PaymentStarted:
		return p.paymentStarted(ctx, tx, log, pl)
	case *models.PaymentResolved:
		return p.paymentResolved(ctx, tx, log, pl)
	case *models.ManualPayment:
		return p.manualPayment(ctx, tx, log, pl)
	case *models.CancelOrder:
		return p.cancel(ctx, tx, log, pl)
	}
	return errors.Wrapf(models.ErrUnknownKind, "order worker cannot apply %s", m.Kind)
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) epsilon() decimal.Decimal {
	if p.Epsilon.IsPositive() {
		return p.Epsilon
	}
	return payments.DefaultEpsilon
}

// loadOrder returns nil without error when the order is gone; the caller
// treats that as a stale request.
func loadOrder(ctx context.Context, tx store.Tx, log logrus.FieldLogger, id int64) (*models.Order, error) {
	o, err := tx.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.WithField("order", id).Warn("order not found")
		return nil, nil
	}
	return o, err
}

func (p *Processor) reconcile(ctx context.Context, tx store.Tx, o *models.Order) (payments.Result, error) {
	txs, err := tx.OrderTransactions(ctx, o.ID)
	if err != nil {
		return payments.Result{}, err
	}
	return payments.Reconcile(o.Total, txs, p.epsilon()), nil
}

// markPaid moves o to PAID, turns reservations into sales and notifies the
// buyer and, when something must be shipped or handed out, the back office.
func (p *Processor) markPaid(ctx context.Context, tx store.Tx, o *models.Order, res payments.Result) error {
	if !models.CanTransition(o.Status, models.OrderPaid) {
		return errors.Errorf("order %d: no transition %s -> paid", o.Number, o.Status)
	}
	o.Status = models.OrderPaid
	o.AppendLog(p.now(), "paid: received %s of %s", res.Received.StringFixed(2), res.Total.StringFixed(2))

	for _, l := range o.Lines {
		prod, err := p.Products.For(l.Kind)
		if err != nil {
			return err
		}
		if err := prod.MarkFulfilled(ctx, tx, l.ProductRef); err != nil && !errors.Is(err, store.ErrNotFound) {
			return errors.Wrapf(err, "mark line %d fulfilled", l.ID)
		}
	}

	if err := p.notify(ctx, tx, models.NotifyOrderPaid, o); err != nil {
		return err
	}
	if pricing.NeedsFulfillment(o.Lines) {
		return p.notify(ctx, tx, models.NotifyFulfillmentRequest, o)
	}
	return nil
}

func (p *Processor) notify(ctx context.Context, tx store.Tx, kind models.NotificationKind, o *models.Order) error {
	return tx.QueueNotification(ctx, &models.Notification{
		Kind:    kind,
		UserID:  o.BuyerID,
		OrderID: o.ID,
		Payload: map[string]string{
			"number": strconv.FormatInt(o.Number, 10),
			"total":  o.Total.StringFixed(2),
			"status": string(o.Status),
		},
	})
}
