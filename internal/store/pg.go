package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Postgres implements Store on a pgx pool. Every unit of work is one
// database transaction.
type Postgres struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

type pgTx struct {
	tx pgx.Tx
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// conflict maps a unique violation to ErrConflict.
func conflict(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Wrap(ErrConflict, what)
	}
	return err
}

func (t *pgTx) LockOrderSequence(ctx context.Context) (int64, error) {
	var v int64
	err := t.tx.QueryRow(ctx, `SELECT value FROM order_sequence WHERE id=1 FOR UPDATE`).Scan(&v)
	return v, notFound(err)
}

func (t *pgTx) SetOrderSequence(ctx context.Context, value int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE order_sequence SET value=$1 WHERE id=1`, value)
	return err
}

func (t *pgTx) GetProduct(ctx context.Context, kind models.ProductKind, ref int64) (*models.Product, error) {
	var p models.Product
	err := t.tx.QueryRow(ctx, `
		SELECT kind, ref, receiver_id, description, price, tax_rate,
			stock, fulfillment, delivered
		FROM products WHERE kind=$1 AND ref=$2
	`, kind, ref).Scan(
		&p.Kind,
		&p.Ref,
		&p.ReceiverID,
		&p.Description,
		&p.Price,
		&p.TaxRate,
		&p.Stock,
		&p.Fulfillment,
		&p.Delivered,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *pgTx) AdjustStock(ctx context.Context, kind models.ProductKind, ref int64, delta int64) (int64, error) {
	var stock int64
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock + $3
		WHERE kind=$1 AND ref=$2 AND stock + $3 >= 0
		RETURNING stock
	`, kind, ref, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if _, err := t.GetProduct(ctx, kind, ref); err != nil {
		return 0, err
	}
	return 0, ErrNoStock
}

func (t *pgTx) MarkDelivered(ctx context.Context, kind models.ProductKind, ref int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products SET delivered = delivered + 1 WHERE kind=$1 AND ref=$2
	`, kind, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) QueueNotification(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO notifications (kind, user_id, recipient, order_id, payload)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at
	`, n.Kind, n.UserID, n.Recipient, n.OrderID, payload).Scan(&n.ID, &n.CreatedAt)
}

func (t *pgTx) RecordAlert(ctx context.Context, key string, day time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO alerts (key, day) VALUES ($1, $2)
		ON CONFLICT (key, day) DO NOTHING
	`, key, day.UTC().Truncate(24*time.Hour))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) GetWorkerState(ctx context.Context, name string) (*models.WorkerState, error) {
	st := models.WorkerState{Name: name}
	err := t.tx.QueryRow(ctx, `
		SELECT pings, processed, last_seen_id, updated_at
		FROM worker_state WHERE name=$1
	`, name).Scan(&st.Pings, &st.Processed, &st.LastSeenID, &st.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return &st, nil
}

func (t *pgTx) SaveWorkerState(ctx context.Context, st *models.WorkerState) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO worker_state (name, pings, processed, last_seen_id, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (name) DO UPDATE SET
			pings=EXCLUDED.pings,
			processed=EXCLUDED.processed,
			last_seen_id=EXCLUDED.last_seen_id,
			updated_at=EXCLUDED.updated_at
	`, st.Name, st.Pings, st.Processed, st.LastSeenID)
	return err
}
