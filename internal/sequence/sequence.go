// Package sequence hands out order numbers.
package sequence

import (
	"context"

	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
)

type Allocator struct {
	Store store.Store
}

// Next allocates a number in its own unit of work. The number is only
// returned once the increment is committed.
func (a *Allocator) Next(ctx context.Context) (int64, error) {
	var n int64
	err := a.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		n, err = NextTx(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// NextTx allocates inside the caller's unit of work. The sequence row stays
// locked until that unit ends, so callers should commit promptly.
func NextTx(ctx context.Context, tx store.SequenceTx) (int64, error) {
	cur, err := tx.LockOrderSequence(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "lock order sequence")
	}
	next := cur + 1
	if err := tx.SetOrderSequence(ctx, next); err != nil {
		return 0, errors.Wrap(err, "store order sequence")
	}
	return next, nil
}
