package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ProductKind string

const (
	KindCompetitionEntry  ProductKind = "competition_entry"
	KindEventRegistration ProductKind = "event_registration"
	KindWebshop           ProductKind = "webshop"
)

type Transport string

const (
	TransportNone   Transport = "none"
	TransportPickup Transport = "pickup"
	TransportPost   Transport = "post"
)

func (t Transport) Valid() bool {
	switch t {
	case TransportNone, TransportPickup, TransportPost:
		return true
	}
	return false
}

// LineItem belongs to a cart until checkout moves it to an order.
type LineItem struct {
	ID          int64
	Kind        ProductKind
	ProductRef  int64
	ReceiverID  int64
	Description string
	Price       decimal.Decimal
	Discount    decimal.Decimal
	TaxRate     decimal.Decimal
	Fulfillment bool
	CreatedAt   time.Time
}

func (l *LineItem) Net() decimal.Decimal {
	return l.Price.Sub(l.Discount)
}

type TaxBucket struct {
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

type Totals struct {
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          []TaxBucket
	Total        decimal.Decimal
}

type Cart struct {
	ID        int64
	UserID    int64
	Transport Transport
	Lines     []*LineItem
	Totals
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Cart) Line(id int64) (*LineItem, int) {
	for i, l := range c.Lines {
		if l.ID == id {
			return l, i
		}
	}
	return nil, -1
}

type Order struct {
	ID               int64
	Number           int64
	BuyerID          int64
	ReceiverID       int64
	Transport        Transport
	Lines            []*LineItem
	Totals
	Status           OrderStatus
	Log              string
	PaymentSessionID *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AppendLog adds one timestamped line to the order's audit trail.
func (o *Order) AppendLog(now time.Time, format string, args ...any) {
	o.Log += fmt.Sprintf("[%s] %s\n", now.UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

func (o *Order) HasSession(sessionID int64) bool {
	return o.PaymentSessionID != nil && *o.PaymentSessionID == sessionID
}

type PaymentSession struct {
	ID             int64
	OrderID        int64
	ReceiverID     int64
	ExternalID     string
	CheckoutURL    string
	ExternalStatus string
	Amount         decimal.Decimal
	Log            string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *PaymentSession) AppendLog(now time.Time, format string, args ...any) {
	s.Log += fmt.Sprintf("[%s] %s\n", now.UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

type TransactionKind string

const (
	TxPayment TransactionKind = "payment"
	TxRefund  TransactionKind = "refund"
)

type TransactionSource string

const (
	SourceCPSP   TransactionSource = "cpsp"
	SourceManual TransactionSource = "manual"
)

// Transaction is immutable once stored. ExternalID is unique across all
// transactions; PaymentID holds the CPSP payment it belongs to, if any.
type Transaction struct {
	ID         int64
	ExternalID string
	PaymentID  string
	Kind       TransactionKind
	Source     TransactionSource
	Amount     decimal.Decimal
	PayerName  string
	Note       string
	CreatedAt  time.Time
}

type ReceiverSettings struct {
	ReceiverID  int64
	Name        string
	Provider    string
	APIKey      string
	ViaUmbrella bool
}

type NotificationKind string

const (
	NotifyOrderConfirmation  NotificationKind = "order_confirmation"
	NotifyOrderPaid          NotificationKind = "order_paid"
	NotifyOrderCancelled     NotificationKind = "order_cancelled"
	NotifyFulfillmentRequest NotificationKind = "fulfillment_request"
	NotifyOperatorAlert      NotificationKind = "operator_alert"
)

// Notification is an outbox row picked up by the external mailer.
type Notification struct {
	ID        int64
	Kind      NotificationKind
	UserID    int64
	Recipient string
	OrderID   int64
	Payload   map[string]string
	CreatedAt time.Time
}

type WorkerState struct {
	Name       string
	Pings      int64
	Processed  int64
	LastSeenID int64
	UpdatedAt  time.Time
}

type Product struct {
	Kind        ProductKind
	Ref         int64
	ReceiverID  int64
	Description string
	Price       decimal.Decimal
	TaxRate     decimal.Decimal
	Stock       int64
	Fulfillment bool
	Delivered   int64
}
