package models

type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderAwaitingPayment OrderStatus = "awaiting_payment"
	OrderPaid            OrderStatus = "paid"
	OrderFailed          OrderStatus = "failed"
	OrderCancelled       OrderStatus = "cancelled"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderNew:             {OrderAwaitingPayment, OrderPaid, OrderFailed, OrderCancelled},
	OrderAwaitingPayment: {OrderPaid, OrderFailed, OrderCancelled},
	OrderFailed:          {OrderNew, OrderPaid},
}

// CanTransition reports whether the order state machine allows from -> to.
// PAID and CANCELLED have no outgoing edges.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled
}

// Payable reports whether money received may move the order to PAID.
func (s OrderStatus) Payable() bool {
	return s == OrderNew || s == OrderAwaitingPayment || s == OrderFailed
}
