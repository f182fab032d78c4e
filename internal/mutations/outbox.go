package mutations

import (
	"context"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/wake"

	"github.com/pkg/errors"
)

// Outbox enqueues follow-up mutations inside a worker's unit of work. Pings
// are held back until Flush, which the worker calls after commit, so a
// woken worker never looks for rows that are not visible yet.
type Outbox struct {
	queues map[models.Queue]bool
}

func (o *Outbox) Enqueue(ctx context.Context, tx store.MutationTx, p models.Payload) (*models.Mutation, bool, error) {
	m := models.NewMutation(p)
	created, err := tx.EnqueueMutation(ctx, m)
	if err != nil {
		return nil, false, errors.Wrapf(err, "enqueue %s", m.Kind)
	}
	if o.queues == nil {
		o.queues = map[models.Queue]bool{}
	}
	o.queues[m.Queue] = true
	return m, created, nil
}

func (o *Outbox) Queues() []models.Queue {
	var out []models.Queue
	for _, q := range []models.Queue{models.QueueOrders, models.QueuePayments} {
		if o.queues[q] {
			out = append(out, q)
		}
	}
	return out
}

func (o *Outbox) Flush(ctx context.Context, p wake.Pinger) error {
	if p == nil {
		return nil
	}
	var first error
	for _, q := range o.Queues() {
		if err := p.Ping(ctx, q); err != nil && first == nil {
			first = err
		}
	}
	o.queues = nil
	return first
}
