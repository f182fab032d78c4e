package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/cpsp"
	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Processor applies payment-queue mutations.
type Processor struct {
	CPSP       cpsp.Client
	Resolver   *cpsp.Resolver
	WebhookURL string
	Log        logrus.FieldLogger
	Now        func() time.Time
}

func (p *Processor) Apply(ctx context.Context, tx store.Tx, m *models.Mutation, out *mutations.Outbox) error {
	log := p.Log.WithFields(logrus.Fields{"mutation": m.ID, "kind": m.Kind})
	switch pl := m.Payload.(type) {
	case *models.PaymentStart:
		return p.start(ctx, tx, log, pl, out)
	case *models.PaymentRefresh:
		return p.refresh(ctx, tx, log, pl, out)
	}
	return errors.Wrapf(models.ErrUnknownKind, "payment worker cannot apply %s", m.Kind)
}

func (p *Processor) start(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.PaymentStart, out *mutations.Outbox) error {
	log = log.WithField("order", pl.OrderID)
	order, err := tx.GetOrder(ctx, pl.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("payment start for missing order")
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status != models.OrderNew || order.PaymentSessionID != nil {
		log.WithField("status", order.Status).Warn("payment start for order not awaiting a session")
		return nil
	}

	cred, err := p.Resolver.Credentials(ctx, tx, order.ReceiverID)
	if err != nil {
		return err
	}
	co, err := p.CPSP.CreateCheckout(ctx, cred, cpsp.CheckoutRequest{
		Reference:   fmt.Sprintf("ORDER-%d", order.Number),
		Amount:      pl.Amount,
		Description: pl.Description,
		WebhookURL:  p.WebhookURL,
		ReturnURL:   pl.ReturnURL,
	})
	if err != nil {
		p.Resolver.Forget(order.ReceiverID)
		return errors.Wrap(err, "create checkout")
	}

	s := &models.PaymentSession{
		OrderID:        order.ID,
		ReceiverID:     order.ReceiverID,
		ExternalID:     co.ExternalID,
		CheckoutURL:    co.CheckoutURL,
		ExternalStatus: string(co.Status),
		Amount:         pl.Amount,
	}
	s.AppendLog(p.now(), "checkout %s created for %s, status %s", co.ExternalID, pl.Amount.StringFixed(2), co.Status)
	if err := tx.CreatePaymentSession(ctx, s); err != nil {
		return err
	}
	if _, _, err := out.Enqueue(ctx, tx, &models.PaymentStarted{OrderID: order.ID, SessionID: s.ID}); err != nil {
		return err
	}
	log.WithField("payment", co.ExternalID).Info("payment session started")
	return nil
}

func (p *Processor) refresh(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.PaymentRefresh, out *mutations.Outbox) error {
	log = log.WithField("payment", pl.ExternalID)
	s, err := tx.GetPaymentSessionByExternalID(ctx, pl.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("refresh for unknown payment")
		return nil
	}
	if err != nil {
		return err
	}

	cred, err := p.Resolver.Credentials(ctx, tx, s.ReceiverID)
	if err != nil {
		return err
	}
	pay, err := p.CPSP.GetPayment(ctx, cred, pl.ExternalID)
	if errors.Is(err, cpsp.ErrUnknownPayment) {
		log.Warn("provider does not know payment")
		s.AppendLog(p.now(), "provider does not know this payment")
		return tx.SavePaymentSession(ctx, s)
	}
	if err != nil {
		p.Resolver.Forget(s.ReceiverID)
		return errors.Wrap(err, "get payment")
	}

	if pay.Status == cpsp.StatusPaid {
		if err := p.recordTransactions(ctx, tx, cred, s, pay); err != nil {
			return err
		}
	}

	if string(pay.Status) != s.ExternalStatus {
		s.AppendLog(p.now(), "status %s -> %s", s.ExternalStatus, pay.Status)
		s.ExternalStatus = string(pay.Status)
	}
	if err := tx.SavePaymentSession(ctx, s); err != nil {
		return err
	}

	if !pay.Status.Terminal() {
		log.WithField("status", pay.Status).Debug("payment not final yet")
		return nil
	}
	_, created, err := out.Enqueue(ctx, tx, &models.PaymentResolved{
		OrderID:   s.OrderID,
		SessionID: s.ID,
		Success:   pay.Status == cpsp.StatusPaid,
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"status": pay.Status, "created": created}).Info("payment resolved")
	return nil
}

// recordTransactions stores the payment and its refunds. External ids make
// repeated refreshes harmless.
func (p *Processor) recordTransactions(ctx context.Context, tx store.Tx, cred cpsp.Credentials, s *models.PaymentSession, pay *cpsp.Payment) error {
	t := &models.Transaction{
		ExternalID: pay.ExternalID,
		PaymentID:  pay.ExternalID,
		Kind:       models.TxPayment,
		Source:     models.SourceCPSP,
		Amount:     pay.Amount,
		PayerName:  pay.PayerName,
	}
	created, err := tx.InsertTransaction(ctx, t)
	if err != nil {
		return err
	}
	if created {
		s.AppendLog(p.now(), "payment of %s received", pay.Amount.StringFixed(2))
	}

	refunds, err := p.CPSP.ListRefunds(ctx, cred, pay.ExternalID)
	if err != nil {
		return errors.Wrap(err, "list refunds")
	}
	for _, r := range refunds {
		if r.Status == "failed" || r.Status == "canceled" {
			continue
		}
		rt := &models.Transaction{
			ExternalID: r.ID,
			PaymentID:  pay.ExternalID,
			Kind:       models.TxRefund,
			Source:     models.SourceCPSP,
			Amount:     r.Amount,
		}
		created, err := tx.InsertTransaction(ctx, rt)
		if err != nil {
			return err
		}
		if created {
			s.AppendLog(p.now(), "refund %s of %s", r.ID, r.Amount.StringFixed(2))
		}
	}
	return nil
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
