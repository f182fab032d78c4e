package mutations

import (
	"context"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// One call per mutation kind. With fast unset the call waits a bounded time
// for the worker; callers re-read state afterwards either way.

func (l *Log) AddToCart(ctx context.Context, userID int64, kind models.ProductKind, ref int64, fast bool) error {
	_, err := l.Submit(ctx, &models.CartAdd{UserID: userID, ProductKind: kind, ProductRef: ref}, fast)
	return err
}

func (l *Log) RemoveFromCart(ctx context.Context, userID, lineID int64, fast bool) error {
	_, err := l.Submit(ctx, &models.CartRemove{UserID: userID, LineID: lineID}, fast)
	return err
}

func (l *Log) ChooseTransport(ctx context.Context, userID int64, t models.Transport, fast bool) error {
	_, err := l.Submit(ctx, &models.CartTransport{UserID: userID, Transport: t}, fast)
	return err
}

func (l *Log) Checkout(ctx context.Context, userID int64, fast bool) error {
	_, err := l.Submit(ctx, &models.CartCheckout{UserID: userID}, fast)
	return err
}

func (l *Log) StartPayment(ctx context.Context, orderID int64, returnURL string, fast bool) error {
	_, err := l.Submit(ctx, &models.StartPayment{OrderID: orderID, ReturnURL: returnURL}, fast)
	return err
}

// ManualPayment records a payment (or refund) received outside the CPSP. An
// empty reference gets a fresh one, so only callers that pass their own
// reference get retry collapsing.
func (l *Log) ManualPayment(ctx context.Context, orderID int64, reference string, amount decimal.Decimal, refund bool, note string, fast bool) error {
	if reference == "" {
		reference = uuid.NewString()
	}
	_, err := l.Submit(ctx, &models.ManualPayment{
		OrderID:   orderID,
		Reference: reference,
		Amount:    amount,
		Refund:    refund,
		Note:      note,
	}, fast)
	return err
}

func (l *Log) CancelOrder(ctx context.Context, orderID int64, reason string, fast bool) error {
	_, err := l.Submit(ctx, &models.CancelOrder{OrderID: orderID, Reason: reason}, fast)
	return err
}

func (l *Log) RefreshPayment(ctx context.Context, externalID string, fast bool) error {
	_, err := l.Submit(ctx, &models.PaymentRefresh{ExternalID: externalID}, fast)
	return err
}
