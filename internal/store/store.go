package store

import (
	"context"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoStock  = errors.New("insufficient stock")
	ErrConflict = errors.New("already exists")
)

// Store runs fn inside one atomic unit of work. When fn returns an error
// nothing it did is kept.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	MutationTx
	CartTx
	OrderTx
	PaymentTx
	SequenceTx
	CatalogTx
	NotificationTx
	WorkerStateTx
}

type MutationTx interface {
	// EnqueueMutation finds the pending mutation with m.DedupKey or creates
	// it. m.ID is set either way; created reports which happened.
	EnqueueMutation(ctx context.Context, m *models.Mutation) (created bool, err error)
	GetMutation(ctx context.Context, id int64) (*models.Mutation, error)
	PendingMutations(ctx context.Context, queue models.Queue, afterID int64, limit int) ([]*models.Mutation, error)
	SaveMutationState(ctx context.Context, m *models.Mutation) error
	PurgeMutations(ctx context.Context, processedBefore time.Time) (int64, error)
}

type CartTx interface {
	GetCart(ctx context.Context, userID int64) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	SaveCart(ctx context.Context, cart *models.Cart) error
	AddCartLine(ctx context.Context, cartID int64, line *models.LineItem) error
	DeleteCartLine(ctx context.Context, cartID, lineID int64) error
	MoveLinesToOrder(ctx context.Context, orderID int64, lineIDs []int64) error
	PurgeEmptyCarts(ctx context.Context, untouchedSince time.Time) (int64, error)
}

type OrderTx interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number int64) (*models.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error)
	SaveOrder(ctx context.Context, order *models.Order) error
}

type PaymentTx interface {
	CreatePaymentSession(ctx context.Context, s *models.PaymentSession) error
	GetPaymentSession(ctx context.Context, id int64) (*models.PaymentSession, error)
	GetPaymentSessionByExternalID(ctx context.Context, externalID string) (*models.PaymentSession, error)
	// ActiveSessionByExternalID only returns sessions an order currently
	// references.
	ActiveSessionByExternalID(ctx context.Context, externalID string) (*models.PaymentSession, error)
	SavePaymentSession(ctx context.Context, s *models.PaymentSession) error

	// InsertTransaction stores t unless its ExternalID already exists. t.ID
	// is set to the stored row either way.
	InsertTransaction(ctx context.Context, t *models.Transaction) (created bool, err error)
	TransactionsForPayment(ctx context.Context, paymentID string) ([]*models.Transaction, error)
	AttachTransaction(ctx context.Context, orderID, transactionID int64) (attached bool, err error)
	OrderTransactions(ctx context.Context, orderID int64) ([]*models.Transaction, error)

	GetReceiverSettings(ctx context.Context, receiverID int64) (*models.ReceiverSettings, error)
}

type SequenceTx interface {
	// LockOrderSequence returns the highest issued order number and holds
	// an exclusive lock on it until the unit of work ends.
	LockOrderSequence(ctx context.Context) (int64, error)
	SetOrderSequence(ctx context.Context, value int64) error
}

type CatalogTx interface {
	GetProduct(ctx context.Context, kind models.ProductKind, ref int64) (*models.Product, error)
	// AdjustStock adds delta to the product's stock and returns ErrNoStock
	// when the result would drop below zero.
	AdjustStock(ctx context.Context, kind models.ProductKind, ref int64, delta int64) (int64, error)
	MarkDelivered(ctx context.Context, kind models.ProductKind, ref int64) error
}

type NotificationTx interface {
	QueueNotification(ctx context.Context, n *models.Notification) error
	// RecordAlert returns true the first time key is seen on day.
	RecordAlert(ctx context.Context, key string, day time.Time) (bool, error)
}

type WorkerStateTx interface {
	GetWorkerState(ctx context.Context, name string) (*models.WorkerState, error)
	SaveWorkerState(ctx context.Context, st *models.WorkerState) error
}
