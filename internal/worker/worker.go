// Package worker drains one mutation queue serially. Every mutation runs
// in its own unit of work together with its processed flag, so a crash
// either keeps the whole effect or none of it.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/RamonvdW/nhb-apps-sub010/internal/alert"
	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/wake"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWakeTimeout = 5 * time.Second
	DefaultMaxAttempts = 5
	DefaultBatchSize   = 100
)

// Processor applies one mutation. Returning an error rolls the unit of work
// back and counts a failed attempt; stale or duplicate requests should be
// logged and return nil instead.
type Processor interface {
	Apply(ctx context.Context, tx store.Tx, m *models.Mutation, out *mutations.Outbox) error
}

type Worker struct {
	Name      string
	Queue     models.Queue
	Store     store.Store
	Processor Processor
	Wake      wake.Waiter
	Pinger    wake.Pinger
	Alerts    *alert.Reporter
	Log       logrus.FieldLogger

	WakeTimeout time.Duration
	MaxAttempts int
	BatchSize   int
	Retention   time.Duration
	Now         func() time.Time

	pings     int64
	processed int64
	lastSeen  int64
}

type Stats struct {
	Pings     int64
	Processed int64
	LastSeen  int64
}

func (w *Worker) Stats() Stats {
	return Stats{Pings: w.pings, Processed: w.processed, LastSeen: w.lastSeen}
}

// Run processes mutations until the deadline passes or ctx ends. Between
// passes it waits for a ping, or for the wake timeout when none comes.
func (w *Worker) Run(ctx context.Context, until time.Time) error {
	log := w.Log.WithField("worker", w.Name)
	if err := w.loadState(ctx); err != nil {
		return err
	}
	w.sweep(ctx)

	// a timed-out wait rescans from the start so rows that committed out
	// of id order are not skipped
	full := true
	for {
		if err := w.pass(ctx, full); err != nil {
			log.WithError(err).Error("worker pass failed")
		}
		w.saveState(ctx)

		remaining := time.Until(until)
		if remaining <= 0 || ctx.Err() != nil {
			break
		}
		timeout := w.wakeTimeout()
		if remaining < timeout {
			timeout = remaining
		}
		pinged, err := w.Wake.Wait(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.WithError(err).Warn("wait for wake failed")
			if !sleep(ctx, timeout) {
				break
			}
		}
		if pinged {
			w.pings++
		}
		full = !pinged
	}

	log.WithFields(logrus.Fields{
		"pings":     w.pings,
		"processed": w.processed,
		"last_seen": w.lastSeen,
	}).Info("worker stopped")
	return nil
}

// Drain runs passes until the queue is empty or only failing mutations are
// left. Used by quick mode and tests.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		before := w.processed
		if err := w.pass(ctx, true); err != nil {
			return err
		}
		if w.processed == before {
			w.saveState(ctx)
			return nil
		}
	}
}

func (w *Worker) pass(ctx context.Context, full bool) error {
	after := w.lastSeen
	if full {
		after = 0
	}
	for {
		var batch []*models.Mutation
		err := w.Store.InTx(ctx, func(tx store.Tx) error {
			var err error
			batch, err = tx.PendingMutations(ctx, w.Queue, after, w.batchSize())
			return err
		})
		if err != nil {
			return errors.Wrap(err, "list pending mutations")
		}
		if len(batch) == 0 {
			return nil
		}

		floor := w.lastSeen
		blocked := false
		for _, m := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			done := w.process(ctx, m)
			if !done {
				blocked = true
			}
			if !blocked && m.ID > floor {
				floor = m.ID
			}
			after = m.ID
		}
		w.lastSeen = floor
		if len(batch) < w.batchSize() {
			return nil
		}
	}
}

// process applies m and reports whether it ended up processed.
func (w *Worker) process(ctx context.Context, m *models.Mutation) bool {
	log := w.Log.WithFields(logrus.Fields{
		"worker":   w.Name,
		"mutation": m.ID,
		"kind":     m.Kind,
	})

	out := &mutations.Outbox{}
	var panicked any
	err := w.Store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetMutation(ctx, m.ID)
		if err != nil {
			return errors.Wrap(err, "reload mutation")
		}
		if cur.Processed {
			return nil
		}
		if cur.Payload == nil {
			log.WithField("error", cur.LastError).Error("undecodable mutation, skipped")
			return w.markDone(ctx, tx, cur, cur.LastError)
		}
		if err := w.apply(ctx, tx, cur, out, &panicked); err != nil {
			return err
		}
		return w.markDone(ctx, tx, cur, "")
	})
	if err == nil {
		w.processed++
		if err := out.Flush(ctx, w.Pinger); err != nil {
			log.WithError(err).Warn("wake ping failed")
		}
		return true
	}

	if panicked != nil {
		w.alert(ctx, fmt.Sprintf("%s worker: panic in %s: %v", w.Name, m.Kind, panicked))
		log.Errorf("%+v", err)
	} else {
		log.WithError(err).Error("mutation failed")
	}
	return w.recordFailure(ctx, m, err)
}

func (w *Worker) apply(ctx context.Context, tx store.Tx, m *models.Mutation, out *mutations.Outbox, panicked *any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			*panicked = r
			err = errors.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return w.Processor.Apply(ctx, tx, m, out)
}

func (w *Worker) markDone(ctx context.Context, tx store.Tx, m *models.Mutation, lastErr string) error {
	now := w.now()
	m.Processed = true
	m.ProcessedAt = &now
	m.LastError = lastErr
	return tx.SaveMutationState(ctx, m)
}

// recordFailure counts the attempt in a fresh unit of work. After the last
// allowed attempt the mutation is closed with its error and an alert.
func (w *Worker) recordFailure(ctx context.Context, m *models.Mutation, cause error) bool {
	var gaveUp bool
	err := w.Store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetMutation(ctx, m.ID)
		if err != nil {
			return err
		}
		cur.Attempts++
		cur.LastError = cause.Error()
		if len(cur.LastError) > 1000 {
			cur.LastError = cur.LastError[:1000]
		}
		if cur.Attempts >= w.maxAttempts() {
			gaveUp = true
			now := w.now()
			cur.Processed = true
			cur.ProcessedAt = &now
		}
		return tx.SaveMutationState(ctx, cur)
	})
	if err != nil {
		w.Log.WithError(err).WithField("mutation", m.ID).Error("recording failed attempt")
		return false
	}
	if gaveUp {
		w.alert(ctx, fmt.Sprintf("%s worker: giving up on %s after %d attempts: %v",
			w.Name, m.Kind, w.maxAttempts(), errors.Cause(cause)))
	}
	return gaveUp
}

func (w *Worker) alert(ctx context.Context, msg string) {
	if w.Alerts == nil {
		w.Log.WithField("worker", w.Name).Error(msg)
		return
	}
	w.Alerts.Report(ctx, msg)
}

// sweep deletes processed mutations and empty carts past retention.
func (w *Worker) sweep(ctx context.Context) {
	if w.Retention <= 0 {
		return
	}
	before := w.now().Add(-w.Retention)
	var muts, carts int64
	err := w.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if muts, err = tx.PurgeMutations(ctx, before); err != nil {
			return err
		}
		if w.Queue == models.QueueOrders {
			carts, err = tx.PurgeEmptyCarts(ctx, before)
		}
		return err
	})
	if err != nil {
		w.Log.WithError(err).WithField("worker", w.Name).Warn("retention sweep failed")
		return
	}
	if muts > 0 || carts > 0 {
		w.Log.WithFields(logrus.Fields{
			"worker":    w.Name,
			"mutations": muts,
			"carts":     carts,
		}).Info("retention sweep")
	}
}

func (w *Worker) loadState(ctx context.Context) error {
	return w.Store.InTx(ctx, func(tx store.Tx) error {
		st, err := tx.GetWorkerState(ctx, w.Name)
		if err != nil {
			return errors.Wrap(err, "load worker state")
		}
		w.lastSeen = st.LastSeenID
		w.pings = 0
		w.processed = 0
		return nil
	})
}

func (w *Worker) saveState(ctx context.Context) {
	err := w.Store.InTx(ctx, func(tx store.Tx) error {
		return tx.SaveWorkerState(ctx, &models.WorkerState{
			Name:       w.Name,
			Pings:      w.pings,
			Processed:  w.processed,
			LastSeenID: w.lastSeen,
		})
	})
	if err != nil {
		w.Log.WithError(err).WithField("worker", w.Name).Warn("saving worker state failed")
	}
}

// sleep waits d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func (w *Worker) wakeTimeout() time.Duration {
	if w.WakeTimeout > 0 {
		return w.WakeTimeout
	}
	return DefaultWakeTimeout
}

func (w *Worker) maxAttempts() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (w *Worker) batchSize() int {
	if w.BatchSize > 0 {
		return w.BatchSize
	}
	return DefaultBatchSize
}
