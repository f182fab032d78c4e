// Package payments holds the reconciliation rules and the effects of the
// payment queue, which is the only place that talks to the CPSP.
package payments

import (
	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultEpsilon absorbs rounding differences when comparing money.
var DefaultEpsilon = decimal.RequireFromString("0.001")

type Result struct {
	Received  decimal.Decimal
	Total     decimal.Decimal
	Due       decimal.Decimal
	FullyPaid bool
}

// Reconcile sums payments minus refunds and compares that with total. It
// never changes anything; the order worker acts on the answer.
func Reconcile(total decimal.Decimal, txs []*models.Transaction, epsilon decimal.Decimal) Result {
	received := decimal.Zero
	for _, t := range txs {
		switch t.Kind {
		case models.TxPayment:
			received = received.Add(t.Amount)
		case models.TxRefund:
			received = received.Sub(t.Amount)
		}
	}
	due := total.Sub(received)
	if due.IsNegative() {
		due = decimal.Zero
	}
	return Result{
		Received:  received,
		Total:     total,
		Due:       due,
		FullyPaid: received.GreaterThanOrEqual(total.Sub(epsilon)),
	}
}

// CompareAmount compares two amounts with epsilon tolerance.
func CompareAmount(a, b, epsilon decimal.Decimal) int {
	d := a.Sub(b)
	if d.Abs().LessThanOrEqual(epsilon) {
		return 0
	}
	return d.Sign()
}

// Negligible reports whether an amount is too small to collect.
func Negligible(amount, epsilon decimal.Decimal) bool {
	return amount.LessThanOrEqual(epsilon)
}
