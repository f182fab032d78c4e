// Package products is the product collaborator of the order pipeline. Each
// product kind implements Product; the pipeline only sees a quote and the
// reservation hooks.
package products

import (
	"context"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrSoldOut     = errors.New("product sold out")
	ErrUnknownKind = errors.New("unknown product kind")
)

type Quote struct {
	Description string
	Price       decimal.Decimal
	ReceiverID  int64
	TaxRate     decimal.Decimal
	Fulfillment bool
}

type Product interface {
	Describe(ctx context.Context, tx store.CatalogTx, ref int64) (Quote, error)
	Reserve(ctx context.Context, tx store.CatalogTx, ref int64) error
	Release(ctx context.Context, tx store.CatalogTx, ref int64) error
	MarkFulfilled(ctx context.Context, tx store.CatalogTx, ref int64) error
}

type Registry struct {
	kinds map[models.ProductKind]Product
}

// NewRegistry returns a registry with a catalog-backed product for every
// known kind.
func NewRegistry() *Registry {
	r := &Registry{kinds: map[models.ProductKind]Product{}}
	r.Register(models.KindCompetitionEntry, Catalog{Kind: models.KindCompetitionEntry, Prefix: "Competition entry"})
	r.Register(models.KindEventRegistration, Catalog{Kind: models.KindEventRegistration, Prefix: "Event registration"})
	r.Register(models.KindWebshop, Catalog{Kind: models.KindWebshop})
	return r
}

func (r *Registry) Register(kind models.ProductKind, p Product) {
	r.kinds[kind] = p
}

func (r *Registry) For(kind models.ProductKind) (Product, error) {
	p, ok := r.kinds[kind]
	if !ok {
		return nil, errors.Wrap(ErrUnknownKind, string(kind))
	}
	return p, nil
}

// Catalog is a product backed by the products table, with stock counting
// as the reservation.
type Catalog struct {
	Kind   models.ProductKind
	Prefix string
}

func (c Catalog) Describe(ctx context.Context, tx store.CatalogTx, ref int64) (Quote, error) {
	p, err := tx.GetProduct(ctx, c.Kind, ref)
	if err != nil {
		return Quote{}, err
	}
	desc := p.Description
	if c.Prefix != "" {
		desc = c.Prefix + ": " + desc
	}
	return Quote{
		Description: desc,
		Price:       p.Price,
		ReceiverID:  p.ReceiverID,
		TaxRate:     p.TaxRate,
		Fulfillment: p.Fulfillment,
	}, nil
}

func (c Catalog) Reserve(ctx context.Context, tx store.CatalogTx, ref int64) error {
	_, err := tx.AdjustStock(ctx, c.Kind, ref, -1)
	if errors.Is(err, store.ErrNoStock) {
		return ErrSoldOut
	}
	return err
}

func (c Catalog) Release(ctx context.Context, tx store.CatalogTx, ref int64) error {
	_, err := tx.AdjustStock(ctx, c.Kind, ref, 1)
	return err
}

func (c Catalog) MarkFulfilled(ctx context.Context, tx store.CatalogTx, ref int64) error {
	return tx.MarkDelivered(ctx, c.Kind, ref)
}
