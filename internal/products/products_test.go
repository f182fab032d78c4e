package products

import (
	"context"
	"testing"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store"
	"github.com/RamonvdW/nhb-apps-sub010/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCatalogReserveAndRelease(t *testing.T) {
	st := memstore.New()
	st.PutProduct(models.Product{
		Kind: models.KindEventRegistration, Ref: 4, ReceiverID: 9,
		Description: "Indoor clinic", Price: dec("12.50"), Stock: 1,
	})
	reg := NewRegistry()
	p, err := reg.For(models.KindEventRegistration)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		q, err := p.Describe(ctx, tx, 4)
		require.NoError(t, err)
		assert.Equal(t, "Event registration: Indoor clinic", q.Description)
		assert.Equal(t, int64(9), q.ReceiverID)
		return p.Reserve(ctx, tx, 4)
	}))

	err = st.InTx(ctx, func(tx store.Tx) error { return p.Reserve(ctx, tx, 4) })
	assert.ErrorIs(t, err, ErrSoldOut)

	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error { return p.Release(ctx, tx, 4) }))
	got, _ := st.Product(models.KindEventRegistration, 4)
	assert.Equal(t, int64(1), got.Stock)
}

func TestRegistryUnknownKind(t *testing.T) {
	_, err := NewRegistry().For("gift_card")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestComboDiscount(t *testing.T) {
	combo := Combo{MinLines: 2, Percent: dec("10")}
	a := &models.LineItem{Kind: models.KindCompetitionEntry, Price: dec("15.95")}
	b := &models.LineItem{Kind: models.KindWebshop, Price: dec("20.00"), Discount: dec("3")}
	lines := []*models.LineItem{a, b}

	combo.Apply(lines)
	assert.True(t, a.Discount.IsZero())
	assert.True(t, b.Discount.IsZero())

	c := &models.LineItem{Kind: models.KindCompetitionEntry, Price: dec("10.00")}
	lines = append(lines, c)
	combo.Apply(lines)
	assert.True(t, a.Discount.Equal(dec("1.60")), a.Discount.String())
	assert.True(t, c.Discount.Equal(dec("1.00")))
	assert.True(t, b.Discount.IsZero())
}
