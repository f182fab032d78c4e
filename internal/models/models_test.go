package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderNew, OrderAwaitingPayment, true},
		{OrderNew, OrderPaid, true},
		{OrderAwaitingPayment, OrderPaid, true},
		{OrderAwaitingPayment, OrderFailed, true},
		{OrderFailed, OrderNew, true},
		{OrderNew, OrderCancelled, true},
		{OrderAwaitingPayment, OrderCancelled, true},
		{OrderFailed, OrderCancelled, false},
		{OrderPaid, OrderNew, false},
		{OrderPaid, OrderCancelled, false},
		{OrderCancelled, OrderNew, false},
		{OrderAwaitingPayment, OrderNew, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestKindQueues(t *testing.T) {
	for _, k := range AllKinds() {
		switch k {
		case KindPaymentStart, KindPaymentRefresh:
			assert.Equal(t, QueuePayments, k.Queue(), k)
		default:
			assert.Equal(t, QueueOrders, k.Queue(), k)
		}
	}
}

func TestDedupKeyIgnoresNonReferenceFields(t *testing.T) {
	a := CancelOrder{OrderID: 7, Reason: "double click"}
	b := CancelOrder{OrderID: 7}
	assert.Equal(t, DedupKey(a), DedupKey(b))
	assert.NotEqual(t, DedupKey(a), DedupKey(CancelOrder{OrderID: 8}))

	ok := PaymentResolved{OrderID: 1, SessionID: 2, Success: true}
	fail := PaymentResolved{OrderID: 1, SessionID: 2, Success: false}
	assert.NotEqual(t, DedupKey(ok), DedupKey(fail))
}

func TestDecodePayload(t *testing.T) {
	in := ManualPayment{OrderID: 3, Reference: "r1", Amount: decimal.RequireFromString("15.00"), Note: "bank"}
	raw, err := EncodePayload(in)
	require.NoError(t, err)

	p, err := DecodePayload(KindManualPayment, raw)
	require.NoError(t, err)
	out, ok := p.(*ManualPayment)
	require.True(t, ok)
	assert.Equal(t, int64(3), out.OrderID)
	assert.True(t, in.Amount.Equal(out.Amount))

	_, err = DecodePayload("bogus", raw)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestOrderAppendLog(t *testing.T) {
	var o Order
	o.AppendLog(testTime, "created with %d lines", 2)
	o.AppendLog(testTime, "paid")
	assert.Equal(t, "[2026-03-01T10:00:00Z] created with 2 lines\n[2026-03-01T10:00:00Z] paid\n", o.Log)
}
