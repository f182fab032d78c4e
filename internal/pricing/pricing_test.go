package pricing

import (
	"testing"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestShippingOnlyForPostWithFulfillment(t *testing.T) {
	s := Service{Shipping: map[models.Transport]decimal.Decimal{
		models.TransportPost:   dec("6.95"),
		models.TransportPickup: dec("1.00"),
	}}
	shipped := []*models.LineItem{{Price: dec("10"), Fulfillment: true}}
	digital := []*models.LineItem{{Price: dec("10")}}

	assert.True(t, s.ShippingCost(models.TransportPost, shipped).Equal(dec("6.95")))
	assert.True(t, s.ShippingCost(models.TransportPost, digital).IsZero())
	assert.True(t, s.ShippingCost(models.TransportPickup, shipped).IsZero())
	assert.True(t, s.ShippingCost(models.TransportNone, shipped).IsZero())
}

func TestTaxBuckets(t *testing.T) {
	lines := []*models.LineItem{
		{Price: dec("10.00"), TaxRate: dec("21")},
		{Price: dec("5.00"), Discount: dec("1.00"), TaxRate: dec("21")},
		{Price: dec("3.33"), TaxRate: dec("9")},
		{Price: dec("7.00")},
	}
	got := TaxBuckets(lines)
	require.Len(t, got, 2)
	assert.True(t, got[0].Rate.Equal(dec("9")))
	assert.True(t, got[0].Amount.Equal(dec("0.30")), got[0].Amount.String())
	assert.True(t, got[1].Rate.Equal(dec("21")))
	assert.True(t, got[1].Amount.Equal(dec("2.94")), got[1].Amount.String())
}
