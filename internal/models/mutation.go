package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Queue string

const (
	QueueOrders   Queue = "orders"
	QueuePayments Queue = "payments"
)

type MutationKind string

const (
	KindCartAdd         MutationKind = "cart_add"
	KindCartRemove      MutationKind = "cart_remove"
	KindCartTransport   MutationKind = "cart_transport"
	KindCartCheckout    MutationKind = "cart_checkout"
	KindStartPayment    MutationKind = "order_start_payment"
	KindPaymentStarted  MutationKind = "order_payment_started"
	KindPaymentResolved MutationKind = "order_payment_resolved"
	KindManualPayment   MutationKind = "order_manual_payment"
	KindCancelOrder     MutationKind = "order_cancel"
	KindPaymentStart    MutationKind = "payment_start"
	KindPaymentRefresh  MutationKind = "payment_refresh"
)

var ErrUnknownKind = errors.New("unknown mutation kind")

// AllKinds lists every mutation kind; handlers are checked against it.
func AllKinds() []MutationKind {
	return []MutationKind{
		KindCartAdd, KindCartRemove, KindCartTransport, KindCartCheckout,
		KindStartPayment, KindPaymentStarted, KindPaymentResolved,
		KindManualPayment, KindCancelOrder,
		KindPaymentStart, KindPaymentRefresh,
	}
}

func (k MutationKind) Queue() Queue {
	switch k {
	case KindPaymentStart, KindPaymentRefresh:
		return QueuePayments
	}
	return QueueOrders
}

type Mutation struct {
	ID          int64
	Kind        MutationKind
	Queue       Queue
	DedupKey    string
	Payload     Payload
	Processed   bool
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Payload is implemented only by the payload types of this package.
type Payload interface {
	Kind() MutationKind
	refs() string
}

// DedupKey identifies a logical request; pending mutations with the same key
// collapse onto one row.
func DedupKey(p Payload) string {
	return string(p.Kind()) + ":" + p.refs()
}

func NewMutation(p Payload) *Mutation {
	return &Mutation{
		Kind:     p.Kind(),
		Queue:    p.Kind().Queue(),
		DedupKey: DedupKey(p),
		Payload:  p,
	}
}

func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePayload(kind MutationKind, raw []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindCartAdd:
		p = &CartAdd{}
	case KindCartRemove:
		p = &CartRemove{}
	case KindCartTransport:
		p = &CartTransport{}
	case KindCartCheckout:
		p = &CartCheckout{}
	case KindStartPayment:
		p = &StartPayment{}
	case KindPaymentStarted:
		p = &PaymentStarted{}
	case KindPaymentResolved:
		p = &PaymentResolved{}
	case KindManualPayment:
		p = &ManualPayment{}
	case KindCancelOrder:
		p = &CancelOrder{}
	case KindPaymentStart:
		p = &PaymentStart{}
	case KindPaymentRefresh:
		p = &PaymentRefresh{}
	default:
		return nil, errors.Wrap(ErrUnknownKind, string(kind))
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, errors.Wrapf(err, "decode %s payload", kind)
	}
	return p, nil
}

func ids(v ...int64) string {
	out := ""
	for i, id := range v {
		if i > 0 {
			out += ","
		}
		out += strconv.FormatInt(id, 10)
	}
	return out
}

type CartAdd struct {
	UserID      int64       `json:"user_id"`
	ProductKind ProductKind `json:"product_kind"`
	ProductRef  int64       `json:"product_ref"`
}

func (CartAdd) Kind() MutationKind { return KindCartAdd }
func (p CartAdd) refs() string {
	return ids(p.UserID) + ":" + string(p.ProductKind) + ":" + ids(p.ProductRef)
}

type CartRemove struct {
	UserID int64 `json:"user_id"`
	LineID int64 `json:"line_id"`
}

func (CartRemove) Kind() MutationKind { return KindCartRemove }
func (p CartRemove) refs() string      { return ids(p.UserID, p.LineID) }

type CartTransport struct {
	UserID    int64     `json:"user_id"`
	Transport Transport `json:"transport"`
}

func (CartTransport) Kind() MutationKind { return KindCartTransport }
func (p CartTransport) refs() string      { return ids(p.UserID) + ":" + string(p.Transport) }

type CartCheckout struct {
	UserID int64 `json:"user_id"`
}

func (CartCheckout) Kind() MutationKind { return KindCartCheckout }
func (p CartCheckout) refs() string      { return ids(p.UserID) }

type StartPayment struct {
	OrderID   int64  `json:"order_id"`
	ReturnURL string `json:"return_url"`
}

func (StartPayment) Kind() MutationKind { return KindStartPayment }
func (p StartPayment) refs() string      { return ids(p.OrderID) }

type PaymentStarted struct {
	OrderID   int64 `json:"order_id"`
	SessionID int64 `json:"session_id"`
}

func (PaymentStarted) Kind() MutationKind { return KindPaymentStarted }
func (p PaymentStarted) refs() string      { return ids(p.OrderID, p.SessionID) }

type PaymentResolved struct {
	OrderID   int64 `json:"order_id"`
	SessionID int64 `json:"session_id"`
	Success   bool  `json:"success"`
}

func (PaymentResolved) Kind() MutationKind { return KindPaymentResolved }
func (p PaymentResolved) refs() string {
	return fmt.Sprintf("%s:%t", ids(p.OrderID, p.SessionID), p.Success)
}

// ManualPayment records money received or refunded outside the CPSP.
// Reference is chosen by the producer so retried submissions collapse.
type ManualPayment struct {
	OrderID   int64           `json:"order_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Refund    bool            `json:"refund"`
	Note      string          `json:"note,omitempty"`
}

func (ManualPayment) Kind() MutationKind { return KindManualPayment }
func (p ManualPayment) refs() string      { return ids(p.OrderID) + ":" + p.Reference }

type CancelOrder struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

func (CancelOrder) Kind() MutationKind { return KindCancelOrder }
func (p CancelOrder) refs() string      { return ids(p.OrderID) }

type PaymentStart struct {
	OrderID     int64           `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ReturnURL   string          `json:"return_url"`
}

func (PaymentStart) Kind() MutationKind { return KindPaymentStart }
func (p PaymentStart) refs() string      { return ids(p.OrderID) }

type PaymentRefresh struct {
	ExternalID string `json:"external_id"`
}

func (PaymentRefresh) Kind() MutationKind { return KindPaymentRefresh }
func (p PaymentRefresh) refs() string      { return p.ExternalID }
