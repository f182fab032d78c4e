package orders

import (
	"context"
	"fmt"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// startPayment asks the payment worker for a checkout covering what is
// still due. A FAILED order first goes back to NEW.
func (p *Processor) startPayment(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.StartPayment, out *mutations.Outbox) error {
	o, err := loadOrder(ctx, tx, log, pl.OrderID)
	if o == nil || err != nil {
		return err
	}
	log = log.WithField("order", o.Number)

	if o.Status == models.OrderFailed {
		o.Status = models.OrderNew
		o.AppendLog(p.now(), "payment retry requested")
	}
	if o.Status != models.OrderNew || o.PaymentSessionID != nil {
		log.WithField("status", o.Status).Warn("payment start ignored")
		return nil
	}

	res, err := p.reconcile(ctx, tx, o)
	if err != nil {
		return err
	}
	if res.FullyPaid {
		if err := p.markPaid(ctx, tx, o, res); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, o)
	}

	if _, _, err := out.Enqueue(ctx, tx, &models.PaymentStart{
		OrderID:     o.ID,
		Amount:      res.Due,
		Description: fmt.Sprintf("Order %d", o.Number),
		ReturnURL:   pl.ReturnURL,
	}); err != nil {
		return err
	}
	o.AppendLog(p.now(), "payment of %s requested", res.Due.StringFixed(2))
	log.Info("payment start requested")
	return tx.SaveOrder(ctx, o)
}

func (p *Processor) paymentStarted(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.PaymentStarted) error {
	o, err := loadOrder(ctx, tx, log, pl.OrderID)
	if o == nil || err != nil {
		return err
	}
	log = log.WithField("order", o.Number)

	s, err := tx.GetPaymentSession(ctx, pl.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		log.WithField("session", pl.SessionID).Warn("payment session not found")
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status != models.OrderNew || o.PaymentSessionID != nil {
		log.WithFields(logrus.Fields{"status": o.Status, "payment": s.ExternalID}).Warn("payment session started too late")
		return nil
	}

	o.PaymentSessionID = &s.ID
	o.Status = models.OrderAwaitingPayment
	o.AppendLog(p.now(), "awaiting payment %s", s.ExternalID)
	log.WithField("payment", s.ExternalID).Info("awaiting payment")
	return tx.SaveOrder(ctx, o)
}

// paymentResolved attaches the session's transactions whenever the order
// still references the session, so late payments stay visible. Only an
// order awaiting payment changes status.
func (p *Processor) paymentResolved(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.PaymentResolved) error {
	o, err := loadOrder(ctx, tx, log, pl.OrderID)
	if o == nil || err != nil {
		return err
	}
	log = log.WithField("order", o.Number)

	s, err := tx.GetPaymentSession(ctx, pl.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		log.WithField("session", pl.SessionID).Warn("payment session not found")
		return nil
	}
	if err != nil {
		return err
	}
	log = log.WithField("payment", s.ExternalID)
	if !o.HasSession(s.ID) {
		log.WithField("status", o.Status).Warn("payment result for inactive session ignored")
		return nil
	}

	attached, err := p.attachSession(ctx, tx, o, s)
	if err != nil {
		return err
	}

	switch o.Status {
	case models.OrderAwaitingPayment:
		if pl.Success {
			res, err := p.reconcile(ctx, tx, o)
			if err != nil {
				return err
			}
			if res.FullyPaid {
				if err := p.markPaid(ctx, tx, o, res); err != nil {
					return err
				}
				log.Info("order paid")
				break
			}
			o.AppendLog(p.now(), "payment %s short: received %s of %s",
				s.ExternalID, res.Received.StringFixed(2), res.Total.StringFixed(2))
			log.WithField("received", res.Received).Warn("payment does not cover order")
		} else {
			o.AppendLog(p.now(), "payment %s failed (%s)", s.ExternalID, s.ExternalStatus)
			log.WithField("status", s.ExternalStatus).Info("payment failed")
		}
		o.Status = models.OrderFailed
		o.PaymentSessionID = nil

	case models.OrderPaid, models.OrderCancelled:
		if attached == 0 {
			log.WithField("status", o.Status).Info("payment result for closed order, nothing new")
			return nil
		}
		o.AppendLog(p.now(), "late result of payment %s recorded, status stays %s", s.ExternalID, o.Status)
		log.WithField("status", o.Status).Warn("late payment recorded on closed order")

	default:
		log.WithField("status", o.Status).Warn("payment result ignored")
		if attached == 0 {
			return nil
		}
	}
	return tx.SaveOrder(ctx, o)
}

func (p *Processor) attachSession(ctx context.Context, tx store.Tx, o *models.Order, s *models.PaymentSession) (int, error) {
	txs, err := tx.TransactionsForPayment(ctx, s.ExternalID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range txs {
		ok, err := tx.AttachTransaction(ctx, o.ID, t.ID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
			o.AppendLog(p.now(), "%s %s of %s attached", t.Source, t.Kind, t.Amount.StringFixed(2))
		}
	}
	return n, nil
}

// manualPayment records money received or returned outside the CPSP. On a
// closed order it only adds to the audit trail.
func (p *Processor) manualPayment(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.ManualPayment) error {
	o, err := loadOrder(ctx, tx, log, pl.OrderID)
	if o == nil || err != nil {
		return err
	}
	log = log.WithField("order", o.Number)
	if !pl.Amount.IsPositive() {
		log.WithField("amount", pl.Amount).Warn("manual payment without positive amount")
		return nil
	}

	t := &models.Transaction{
		ExternalID: fmt.Sprintf("manual-%d-%s", o.ID, pl.Reference),
		Kind:       models.TxPayment,
		Source:     models.SourceManual,
		Amount:     pl.Amount,
		Note:       pl.Note,
	}
	if pl.Refund {
		t.Kind = models.TxRefund
	}
	if _, err := tx.InsertTransaction(ctx, t); err != nil {
		return err
	}
	attached, err := tx.AttachTransaction(ctx, o.ID, t.ID)
	if err != nil {
		return err
	}
	if !attached {
		log.WithField("reference", pl.Reference).Info("manual transaction already attached")
		return nil
	}
	o.AppendLog(p.now(), "manual %s of %s recorded", t.Kind, t.Amount.StringFixed(2))

	if o.Status.Payable() && t.Kind == models.TxPayment {
		res, err := p.reconcile(ctx, tx, o)
		if err != nil {
			return err
		}
		if res.FullyPaid {
			if err := p.markPaid(ctx, tx, o, res); err != nil {
				return err
			}
			log.Info("order paid manually")
		}
	}
	return tx.SaveOrder(ctx, o)
}

// cancel releases every reservation of the order. The payment session stays
// referenced so a late payment result can still be recorded.
func (p *Processor) cancel(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.CancelOrder) error {
	o, err := loadOrder(ctx, tx, log, pl.OrderID)
	if o == nil || err != nil {
		return err
	}
	log = log.WithField("order", o.Number)

	switch o.Status {
	case models.OrderCancelled:
		log.Info("order already cancelled")
		return nil
	case models.OrderNew, models.OrderAwaitingPayment:
	default:
		log.WithField("status", o.Status).Warn("order cannot be cancelled")
		return nil
	}

	for _, l := range o.Lines {
		prod, err := p.Products.For(l.Kind)
		if err != nil {
			return err
		}
		if err := prod.Release(ctx, tx, l.ProductRef); err != nil && !errors.Is(err, store.ErrNotFound) {
			return errors.Wrapf(err, "release line %d", l.ID)
		}
	}

	o.Status = models.OrderCancelled
	if pl.Reason != "" {
		o.AppendLog(p.now(), "cancelled: %s", pl.Reason)
	} else {
		o.AppendLog(p.now(), "cancelled")
	}
	if err := p.notify(ctx, tx, models.NotifyOrderCancelled, o); err != nil {
		return err
	}
	log.Info("order cancelled")
	return tx.SaveOrder(ctx, o)
}
