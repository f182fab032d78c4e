package orders

import (
	"context"

	"github.com/RamonvdW/nhb-apps-sub010/internal/cart"
	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/products"
	"github.com/RamonvdW/nhb-apps-sub010/internal/sequence"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func (p *Processor) cartAdd(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.CartAdd) error {
	log = log.WithFields(logrus.Fields{"user": pl.UserID, "product": pl.ProductRef})
	prod, err := p.Products.For(pl.ProductKind)
	if err != nil {
		log.WithError(err).Warn("cannot add product")
		return nil
	}
	q, err := prod.Describe(ctx, tx, pl.ProductRef)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("product not found")
		return nil
	}
	if err != nil {
		return err
	}
	if q.Price.IsNegative() {
		log.WithField("price", q.Price).Warn("product has a negative price")
		return nil
	}

	c, err := tx.GetCart(ctx, pl.UserID)
	if errors.Is(err, store.ErrNotFound) {
		c = &models.Cart{UserID: pl.UserID, Transport: models.TransportNone}
		err = tx.CreateCart(ctx, c)
	}
	if err != nil {
		return err
	}

	if err := prod.Reserve(ctx, tx, pl.ProductRef); err != nil {
		if errors.Is(err, products.ErrSoldOut) {
			log.Warn("product sold out, not added")
			return nil
		}
		return err
	}

	line := &models.LineItem{
		Kind:        pl.ProductKind,
		ProductRef:  pl.ProductRef,
		ReceiverID:  q.ReceiverID,
		Description: q.Description,
		Price:       q.Price,
		TaxRate:     q.TaxRate,
		Fulfillment: q.Fulfillment,
	}
	if err := tx.AddCartLine(ctx, c.ID, line); err != nil {
		return err
	}
	c.Lines = append(c.Lines, line)
	log.WithField("line", line.ID).Info("added to cart")
	return p.saveCart(ctx, tx, c)
}

func (p *Processor) cartRemove(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.CartRemove) error {
	log = log.WithFields(logrus.Fields{"user": pl.UserID, "line": pl.LineID})
	c, err := tx.GetCart(ctx, pl.UserID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("cart not found")
		return nil
	}
	if err != nil {
		return err
	}

	line, idx := c.Line(pl.LineID)
	if line == nil {
		log.Info("line already removed")
		return nil
	}
	prod, err := p.Products.For(line.Kind)
	if err != nil {
		return err
	}
	if err := prod.Release(ctx, tx, line.ProductRef); err != nil && !errors.Is(err, store.ErrNotFound) {
		return errors.Wrap(err, "release reservation")
	}
	if err := tx.DeleteCartLine(ctx, c.ID, line.ID); err != nil {
		return err
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	log.Info("removed from cart")
	return p.saveCart(ctx, tx, c)
}

func (p *Processor) cartTransport(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.CartTransport) error {
	log = log.WithField("user", pl.UserID)
	if !pl.Transport.Valid() {
		log.WithField("transport", pl.Transport).Warn("unknown transport choice")
		return nil
	}
	c, err := tx.GetCart(ctx, pl.UserID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("cart not found")
		return nil
	}
	if err != nil {
		return err
	}
	c.Transport = pl.Transport
	return p.saveCart(ctx, tx, c)
}

// saveCart recomputes automatic discounts and totals before storing.
func (p *Processor) saveCart(ctx context.Context, tx store.Tx, c *models.Cart) error {
	p.Combo.Apply(c.Lines)
	cart.Recompute(p.Pricing, c)
	return tx.SaveCart(ctx, c)
}

// checkout turns the cart into one order per receiving party. Orders with
// nothing to pay are PAID straight away.
func (p *Processor) checkout(ctx context.Context, tx store.Tx, log logrus.FieldLogger, pl *models.CartCheckout) error {
	log = log.WithField("user", pl.UserID)
	c, err := tx.GetCart(ctx, pl.UserID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("cart not found")
		return nil
	}
	if err != nil {
		return err
	}
	if len(c.Lines) == 0 {
		log.Info("checkout of empty cart ignored")
		return nil
	}

	now := p.now()
	for _, g := range cart.Partition(c.Lines) {
		number, err := sequence.NextTx(ctx, tx)
		if err != nil {
			return err
		}
		o := &models.Order{
			Number:     number,
			BuyerID:    c.UserID,
			ReceiverID: g.ReceiverID,
			Transport:  c.Transport,
			Totals:     cart.Compute(p.Pricing, c.Transport, g.Lines),
			Status:     models.OrderNew,
		}
		o.AppendLog(now, "created with %d lines, total %s", len(g.Lines), o.Total.StringFixed(2))
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.MoveLinesToOrder(ctx, o.ID, cart.LineIDs(g.Lines)); err != nil {
			return err
		}
		o.Lines = g.Lines

		if err := p.notify(ctx, tx, models.NotifyOrderConfirmation, o); err != nil {
			return err
		}
		if o.Total.LessThanOrEqual(p.epsilon()) {
			res, err := p.reconcile(ctx, tx, o)
			if err != nil {
				return err
			}
			if err := p.markPaid(ctx, tx, o, res); err != nil {
				return err
			}
		}
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"order":  o.Number,
			"total":  o.Total.StringFixed(2),
			"status": o.Status,
		}).Info("order created")
	}

	c.Lines = nil
	return p.saveCart(ctx, tx, c)
}
