package store

import (
	"context"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const mutationColumns = `id, queue, kind, dedup_key, payload, processed, attempts,
	last_error, created_at, processed_at`

func (t *pgTx) EnqueueMutation(ctx context.Context, m *models.Mutation) (bool, error) {
	raw, err := models.EncodePayload(m.Payload)
	if err != nil {
		return false, err
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO mutations (queue, kind, dedup_key, payload)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (dedup_key) WHERE NOT processed DO NOTHING
		RETURNING id, created_at
	`, m.Queue, m.Kind, m.DedupKey, raw).Scan(&m.ID, &m.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	err = t.tx.QueryRow(ctx, `
		SELECT id, created_at, attempts FROM mutations
		WHERE dedup_key=$1 AND NOT processed
	`, m.DedupKey).Scan(&m.ID, &m.CreatedAt, &m.Attempts)
	return false, notFound(err)
}

func (t *pgTx) GetMutation(ctx context.Context, id int64) (*models.Mutation, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+mutationColumns+` FROM mutations WHERE id=$1`, id)
	m, err := scanMutation(row)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (t *pgTx) PendingMutations(ctx context.Context, queue models.Queue, afterID int64, limit int) ([]*models.Mutation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+mutationColumns+` FROM mutations
		WHERE queue=$1 AND NOT processed AND id > $2
		ORDER BY id
		LIMIT $3
	`, queue, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveMutationState(ctx context.Context, m *models.Mutation) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE mutations
		SET processed=$2, attempts=$3, last_error=$4, processed_at=$5
		WHERE id=$1
	`, m.ID, m.Processed, m.Attempts, m.LastError, m.ProcessedAt)
	return err
}

func (t *pgTx) PurgeMutations(ctx context.Context, processedBefore time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM mutations WHERE processed AND processed_at < $1
	`, processedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// scanMutation leaves Payload nil when the stored payload cannot be decoded;
// LastError then carries the reason.
func scanMutation(row pgx.Row) (*models.Mutation, error) {
	var m models.Mutation
	var raw []byte
	err := row.Scan(
		&m.ID,
		&m.Queue,
		&m.Kind,
		&m.DedupKey,
		&raw,
		&m.Processed,
		&m.Attempts,
		&m.LastError,
		&m.CreatedAt,
		&m.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	p, err := models.DecodePayload(m.Kind, raw)
	if err != nil {
		m.LastError = err.Error()
		return &m, nil
	}
	m.Payload = p
	return &m, nil
}
