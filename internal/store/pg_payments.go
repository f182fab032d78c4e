package store

import (
	"context"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const sessionColumns = `s.id, s.order_id, s.receiver_id, s.external_id, s.checkout_url,
	s.external_status, s.amount, s.log, s.created_at, s.updated_at`

const transactionColumns = `t.id, t.external_id, t.payment_id, t.kind, t.source, t.amount,
	t.payer_name, t.note, t.created_at`

func (t *pgTx) CreatePaymentSession(ctx context.Context, s *models.PaymentSession) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO payment_sessions (
			order_id, receiver_id, external_id, checkout_url,
			external_status, amount, log
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at, updated_at
	`,
		s.OrderID,
		s.ReceiverID,
		s.ExternalID,
		s.CheckoutURL,
		s.ExternalStatus,
		s.Amount,
		s.Log,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (t *pgTx) GetPaymentSession(ctx context.Context, id int64) (*models.PaymentSession, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM payment_sessions s WHERE s.id=$1`, id)
	return scanSession(row)
}

func (t *pgTx) GetPaymentSessionByExternalID(ctx context.Context, externalID string) (*models.PaymentSession, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM payment_sessions s
		WHERE s.external_id=$1
		ORDER BY s.id DESC LIMIT 1
	`, externalID)
	return scanSession(row)
}

func (t *pgTx) ActiveSessionByExternalID(ctx context.Context, externalID string) (*models.PaymentSession, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM payment_sessions s
		JOIN orders o ON o.payment_session_id = s.id
		WHERE s.external_id=$1
	`, externalID)
	return scanSession(row)
}

func (t *pgTx) SavePaymentSession(ctx context.Context, s *models.PaymentSession) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE payment_sessions
		SET external_id=$2, checkout_url=$3, external_status=$4, log=$5, updated_at=now()
		WHERE id=$1
	`, s.ID, s.ExternalID, s.CheckoutURL, s.ExternalStatus, s.Log)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *models.Transaction) (bool, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (
			external_id, payment_id, kind, source, amount, payer_name, note
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, created_at
	`,
		tr.ExternalID,
		tr.PaymentID,
		tr.Kind,
		tr.Source,
		tr.Amount,
		tr.PayerName,
		tr.Note,
	).Scan(&tr.ID, &tr.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	err = t.tx.QueryRow(ctx, `
		SELECT id, created_at FROM transactions WHERE external_id=$1
	`, tr.ExternalID).Scan(&tr.ID, &tr.CreatedAt)
	return false, notFound(err)
}

func (t *pgTx) TransactionsForPayment(ctx context.Context, paymentID string) ([]*models.Transaction, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions t
		WHERE t.payment_id=$1 ORDER BY t.id
	`, paymentID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (t *pgTx) AttachTransaction(ctx context.Context, orderID, transactionID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO order_transactions (order_id, transaction_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, orderID, transactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) OrderTransactions(ctx context.Context, orderID int64) ([]*models.Transaction, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions t
		JOIN order_transactions ot ON ot.transaction_id = t.id
		WHERE ot.order_id=$1 ORDER BY t.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (t *pgTx) GetReceiverSettings(ctx context.Context, receiverID int64) (*models.ReceiverSettings, error) {
	var rs models.ReceiverSettings
	err := t.tx.QueryRow(ctx, `
		SELECT receiver_id, name, provider, api_key, via_umbrella
		FROM receiver_settings WHERE receiver_id=$1
	`, receiverID).Scan(&rs.ReceiverID, &rs.Name, &rs.Provider, &rs.APIKey, &rs.ViaUmbrella)
	if err != nil {
		return nil, notFound(err)
	}
	return &rs, nil
}

func scanSession(row pgx.Row) (*models.PaymentSession, error) {
	var s models.PaymentSession
	if err := row.Scan(
		&s.ID,
		&s.OrderID,
		&s.ReceiverID,
		&s.ExternalID,
		&s.CheckoutURL,
		&s.ExternalStatus,
		&s.Amount,
		&s.Log,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()
	var out []*models.Transaction
	for rows.Next() {
		var tr models.Transaction
		if err := rows.Scan(
			&tr.ID,
			&tr.ExternalID,
			&tr.PaymentID,
			&tr.Kind,
			&tr.Source,
			&tr.Amount,
			&tr.PayerName,
			&tr.Note,
			&tr.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &tr)
	}
	return out, rows.Err()
}
