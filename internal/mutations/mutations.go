// Package mutations is the producer side of the mutation log: deduplicating
// enqueue, worker pings and a bounded wait for completion.
package mutations

import (
	"context"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/wake"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWaitStart  = 200 * time.Millisecond
	DefaultWaitBudget = 3 * time.Second
)

type Log struct {
	Store store.Store
	Wake  wake.Pinger
	Log   logrus.FieldLogger

	WaitStart  time.Duration
	WaitBudget time.Duration
}

// Handle refers to a mutation row that was created or found by Enqueue.
type Handle struct {
	ID      int64
	Kind    models.MutationKind
	Created bool

	log *Log
}

// Enqueue finds or creates the pending mutation for p and pings its worker.
func (l *Log) Enqueue(ctx context.Context, p models.Payload) (*Handle, error) {
	m := models.NewMutation(p)
	var created bool
	err := l.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		created, err = tx.EnqueueMutation(ctx, m)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "enqueue %s", m.Kind)
	}

	l.logger().WithFields(logrus.Fields{
		"mutation": m.ID,
		"kind":     m.Kind,
		"created":  created,
	}).Debug("mutation enqueued")

	l.ping(ctx, m.Queue)
	return &Handle{ID: m.ID, Kind: m.Kind, Created: created, log: l}, nil
}

// Submit enqueues p and, unless fast is set, waits a bounded time for the
// worker to process it. Not being processed in time is not an error.
func (l *Log) Submit(ctx context.Context, p models.Payload, fast bool) (*Handle, error) {
	h, err := l.Enqueue(ctx, p)
	if err != nil {
		return nil, err
	}
	if !fast {
		h.Wait(ctx)
	}
	return h, nil
}

func (l *Log) ping(ctx context.Context, q models.Queue) {
	if l.Wake == nil {
		return
	}
	if err := l.Wake.Ping(ctx, q); err != nil {
		l.logger().WithError(err).WithField("queue", q).Warn("wake ping failed")
	}
}

func (l *Log) logger() logrus.FieldLogger {
	if l.Log == nil {
		return logrus.StandardLogger()
	}
	return l.Log
}

// Wait polls the mutation with doubling intervals until it is processed,
// the wait budget is used up or ctx ends. It reports whether the mutation
// was seen processed.
func (h *Handle) Wait(ctx context.Context) bool {
	start, budget := h.log.WaitStart, h.log.WaitBudget
	if start <= 0 {
		start = DefaultWaitStart
	}
	if budget <= 0 {
		budget = DefaultWaitBudget
	}
	deadline := time.Now().Add(budget)
	delay := start

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if delay > remaining {
			delay = remaining
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}

		done, err := h.Processed(ctx)
		if err != nil {
			h.log.logger().WithError(err).WithField("mutation", h.ID).Warn("poll mutation failed")
		}
		if done {
			return true
		}
		delay *= 2
	}
}

func (h *Handle) Processed(ctx context.Context) (bool, error) {
	var done bool
	err := h.log.Store.InTx(ctx, func(tx store.Tx) error {
		m, err := tx.GetMutation(ctx, h.ID)
		if err != nil {
			return err
		}
		done = m.Processed
		return nil
	})
	return done, err
}
