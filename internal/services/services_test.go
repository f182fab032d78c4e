package services

import (
	"context"
	"testing"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store/memstore"
	"github.com/RamonvdW/nhb-apps-sub010/internal/wake"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (OrderService, CartService, *memstore.Store, *models.Order) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	st := memstore.New()
	log := &mutations.Log{Store: st, Wake: wake.NewLocal(), Log: logger}

	ctx := context.Background()
	o := &models.Order{Number: 1000001, BuyerID: 5, ReceiverID: 1, Status: models.OrderAwaitingPayment}
	o.Total = decimal.NewFromInt(20)
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		s := &models.PaymentSession{OrderID: o.ID, ReceiverID: 1, ExternalID: "tr_WDqYK6vllg"}
		if err := tx.CreatePaymentSession(ctx, s); err != nil {
			return err
		}
		o.PaymentSessionID = &s.ID
		return tx.SaveOrder(ctx, o)
	}))

	orders := OrderService{Store: st, Mutations: log, ReturnURL: "https://shop.example.org/orders/", Log: logger}
	carts := CartService{Store: st, Mutations: log}
	return orders, carts, st, o
}

func TestSanitizePaymentID(t *testing.T) {
	for raw, ok := range map[string]bool{
		"tr_WDqYK6vllg":      true,
		" tr_1 ":             true,
		"ORDER-1000001-ab12": true,
		"":                   false,
		"tr_1;drop":          false,
		"../../etc":          false,
		"tr 1":               false,
	} {
		_, got := SanitizePaymentID(raw)
		assert.Equal(t, ok, got, raw)
	}
}

func TestWebhookQueuesRefreshForActiveSession(t *testing.T) {
	orders, _, st, _ := setup(t)
	queued, err := orders.PaymentWebhook(context.Background(), "tr_WDqYK6vllg")
	require.NoError(t, err)
	assert.True(t, queued)

	muts := st.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, models.KindPaymentRefresh, muts[0].Kind)
	assert.Equal(t, models.QueuePayments, muts[0].Queue)

	// a burst of deliveries collapses on the pending row
	_, err = orders.PaymentWebhook(context.Background(), "tr_WDqYK6vllg")
	require.NoError(t, err)
	assert.Len(t, st.Mutations(), 1)
}

func TestWebhookIgnoresUnknownAndMalformedIDs(t *testing.T) {
	orders, _, st, o := setup(t)
	for _, id := range []string{"tr_unknown", "tr_1;drop table", ""} {
		queued, err := orders.PaymentWebhook(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, queued, id)
	}

	// a session no order references any more is not active
	ctx := context.Background()
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		o.PaymentSessionID = nil
		o.Status = models.OrderFailed
		return tx.SaveOrder(ctx, o)
	}))
	queued, err := orders.PaymentWebhook(ctx, "tr_WDqYK6vllg")
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Empty(t, st.Mutations())
}

func TestGetOrderIncludesSessionAndPayment(t *testing.T) {
	orders, _, _, o := setup(t)
	v, err := orders.GetOrder(context.Background(), o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID, v.Order.ID)
	require.NotNil(t, v.Session)
	assert.Equal(t, "tr_WDqYK6vllg", v.Session.ExternalID)
	assert.True(t, v.Payment.Due.Equal(decimal.NewFromInt(20)))

	_, err = orders.GetOrder(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOrderActionsCheckOwner(t *testing.T) {
	orders, _, st, o := setup(t)
	ctx := context.Background()

	_, err := orders.Cancel(ctx, 6, o.Number, "", true)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = orders.StartPayment(ctx, 0, o.Number, true)
	assert.ErrorIs(t, err, ErrMissingUserID)
	assert.Empty(t, st.Mutations())

	_, err = orders.StartPayment(ctx, 5, o.Number, true)
	require.NoError(t, err)
	muts := st.Mutations()
	require.Len(t, muts, 1)
	p := muts[0].Payload.(*models.StartPayment)
	assert.Equal(t, o.ID, p.OrderID)
	assert.Equal(t, "https://shop.example.org/orders/1000001", p.ReturnURL)
}

func TestManualPaymentNeedsPositiveAmount(t *testing.T) {
	orders, _, st, o := setup(t)
	_, err := orders.RecordManualPayment(context.Background(), o.Number, "bank-7", decimal.Zero, false, "", true)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = orders.RecordManualPayment(context.Background(), o.Number, "bank-7", decimal.NewFromInt(20), false, "wire", true)
	require.NoError(t, err)
	muts := st.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, models.KindManualPayment, muts[0].Kind)
}

func TestCartServiceQueuesWithoutWaiting(t *testing.T) {
	_, carts, st, _ := setup(t)
	ctx := context.Background()

	c, err := carts.GetCart(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)

	_, err = carts.Add(ctx, 9, models.KindWebshop, 3, true)
	require.NoError(t, err)
	_, err = carts.ChooseTransport(ctx, 9, "drone", true)
	assert.ErrorIs(t, err, ErrInvalidTransport)
	require.NoError(t, carts.Checkout(ctx, 9, true))
	assert.ErrorIs(t, carts.Checkout(ctx, 0, true), ErrMissingUserID)

	var kinds []models.MutationKind
	for _, m := range st.Mutations() {
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []models.MutationKind{models.KindCartAdd, models.KindCartCheckout}, kinds)
}

func TestWorkerStates(t *testing.T) {
	orders, _, _, _ := setup(t)
	states, err := orders.WorkerStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "orders", states[0].Name)
	assert.Equal(t, "payments", states[1].Name)
}
