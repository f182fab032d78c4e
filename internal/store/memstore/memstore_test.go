package memstore

import (
	"context"
	"testing"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueMutationFindsPending(t *testing.T) {
	s := New()
	ctx := context.Background()

	var first, second *models.Mutation
	var created []bool
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		first = models.NewMutation(&models.CartCheckout{UserID: 7})
		ok, err := tx.EnqueueMutation(ctx, first)
		created = append(created, ok)
		if err != nil {
			return err
		}
		second = models.NewMutation(&models.CartCheckout{UserID: 7})
		ok, err = tx.EnqueueMutation(ctx, second)
		created = append(created, ok)
		return err
	}))

	assert.Equal(t, []bool{true, false}, created)
	assert.Equal(t, first.ID, second.ID)
	require.Len(t, s.Mutations(), 1)

	// once processed, the same request creates a fresh row
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		first.Processed = true
		if err := tx.SaveMutationState(ctx, first); err != nil {
			return err
		}
		third := models.NewMutation(&models.CartCheckout{UserID: 7})
		ok, err := tx.EnqueueMutation(ctx, third)
		assert.True(t, ok)
		assert.NotEqual(t, first.ID, third.ID)
		return err
	}))
	assert.Len(t, s.Mutations(), 2)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.SetOrderSequence(ctx, 1000042); err != nil {
			return err
		}
		if _, err := tx.EnqueueMutation(ctx, models.NewMutation(&models.CartCheckout{UserID: 1})); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, int64(1000000), s.Sequence())
	assert.Empty(t, s.Mutations())
}

func TestAdjustStock(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutProduct(models.Product{Kind: models.KindWebshop, Ref: 3, Stock: 1, Price: decimal.NewFromInt(5)})

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		left, err := tx.AdjustStock(ctx, models.KindWebshop, 3, -1)
		assert.Equal(t, int64(0), left)
		return err
	}))
	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.AdjustStock(ctx, models.KindWebshop, 3, -1)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNoStock)

	err = s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.AdjustStock(ctx, models.KindWebshop, 99, 1)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoredValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	var order *models.Order
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		order = &models.Order{Number: 1000001, Status: models.OrderNew}
		order.Tax = []models.TaxBucket{{Rate: decimal.NewFromInt(21), Amount: decimal.NewFromInt(2)}}
		return tx.CreateOrder(ctx, order)
	}))
	order.Tax[0].Amount = decimal.NewFromInt(99)
	order.Status = models.OrderPaid

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderNew, got.Status)
		assert.True(t, got.Tax[0].Amount.Equal(decimal.NewFromInt(2)))
		return nil
	}))
}

func TestActiveSessionRequiresReferencingOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		o := &models.Order{Number: 1000001, Status: models.OrderNew}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		ps := &models.PaymentSession{OrderID: o.ID, ExternalID: "tr_abc"}
		if err := tx.CreatePaymentSession(ctx, ps); err != nil {
			return err
		}
		_, err := tx.ActiveSessionByExternalID(ctx, "tr_abc")
		assert.ErrorIs(t, err, store.ErrNotFound)

		o.PaymentSessionID = &ps.ID
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		got, err := tx.ActiveSessionByExternalID(ctx, "tr_abc")
		require.NoError(t, err)
		assert.Equal(t, ps.ID, got.ID)
		return nil
	}))
}

func TestSecondCartForUserConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateCart(ctx, &models.Cart{UserID: 3})
	}))

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateCart(ctx, &models.Cart{UserID: 3})
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	err = s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateOrder(ctx, &models.Order{Number: 1000001, BuyerID: 3}); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, &models.Order{Number: 1000001, BuyerID: 4})
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}
