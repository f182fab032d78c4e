package cart

import (
	"testing"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var shop = pricing.Service{Shipping: map[models.Transport]decimal.Decimal{
	models.TransportPost: dec("4.50"),
}}

func TestComputeTotal(t *testing.T) {
	lines := []*models.LineItem{
		{Price: dec("10.00"), Discount: dec("2.00"), TaxRate: dec("21")},
		{Price: dec("20.00"), Fulfillment: true},
	}
	got := Compute(shop, models.TransportPost, lines)

	assert.True(t, got.Subtotal.Equal(dec("28.00")))
	assert.True(t, got.ShippingCost.Equal(dec("4.50")))
	require.Len(t, got.Tax, 1)
	assert.True(t, got.Tax[0].Amount.Equal(dec("1.68")))
	assert.True(t, got.Total.Equal(dec("34.18")), got.Total.String())
}

func TestComputeSingleLineNoShipping(t *testing.T) {
	got := Compute(shop, models.TransportNone, []*models.LineItem{{Price: dec("10.00")}})
	assert.True(t, got.Total.Equal(dec("10.00")))
	assert.Empty(t, got.Tax)
}

func TestComputeClampsAtZero(t *testing.T) {
	got := Compute(shop, models.TransportNone, []*models.LineItem{{Price: dec("5"), Discount: dec("7")}})
	assert.True(t, got.Total.IsZero())
}

func TestComputeEmpty(t *testing.T) {
	got := Compute(shop, models.TransportPost, nil)
	assert.True(t, got.Total.IsZero())
	assert.True(t, got.ShippingCost.IsZero())
}

func TestPartitionByReceiver(t *testing.T) {
	lines := []*models.LineItem{
		{ID: 1, ReceiverID: 20},
		{ID: 2, ReceiverID: 10},
		{ID: 3, ReceiverID: 20},
	}
	groups := Partition(lines)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(10), groups[0].ReceiverID)
	assert.Equal(t, []int64{2}, LineIDs(groups[0].Lines))
	assert.Equal(t, int64(20), groups[1].ReceiverID)
	assert.Equal(t, []int64{1, 3}, LineIDs(groups[1].Lines))
}
