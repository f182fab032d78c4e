package services

import (
	"context"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/mutations"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
)

var ErrInvalidTransport = errors.New("unknown transport choice")

type CartService struct {
	Store     store.Store
	Mutations *mutations.Log
}

// GetCart returns the buyer's cart; a buyer without one gets an empty cart.
func (s CartService) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	if userID <= 0 {
		return nil, ErrMissingUserID
	}
	var c *models.Cart
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.GetCart(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			c, err = &models.Cart{UserID: userID, Transport: models.TransportNone}, nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s CartService) Add(ctx context.Context, userID int64, kind models.ProductKind, ref int64, fast bool) (*models.Cart, error) {
	if userID <= 0 {
		return nil, ErrMissingUserID
	}
	if err := s.Mutations.AddToCart(ctx, userID, kind, ref, fast); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s CartService) Remove(ctx context.Context, userID, lineID int64, fast bool) (*models.Cart, error) {
	if userID <= 0 {
		return nil, ErrMissingUserID
	}
	if err := s.Mutations.RemoveFromCart(ctx, userID, lineID, fast); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s CartService) ChooseTransport(ctx context.Context, userID int64, t models.Transport, fast bool) (*models.Cart, error) {
	if userID <= 0 {
		return nil, ErrMissingUserID
	}
	if !t.Valid() {
		return nil, ErrInvalidTransport
	}
	if err := s.Mutations.ChooseTransport(ctx, userID, t, fast); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// Checkout places the orders; the buyer finds them in the order list once
// the worker got to it.
func (s CartService) Checkout(ctx context.Context, userID int64, fast bool) error {
	if userID <= 0 {
		return ErrMissingUserID
	}
	return s.Mutations.Checkout(ctx, userID, fast)
}
