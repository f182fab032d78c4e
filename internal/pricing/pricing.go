// Package pricing computes shipping cost and tax buckets for a set of
// line items.
package pricing

import (
	"sort"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	// Shipping holds the cost per transport choice. Missing entries cost
	// nothing.
	Shipping map[models.Transport]decimal.Decimal
}

// Snapshot is the transport-dependent part of a cart or order total.
type Snapshot struct {
	Transport    models.Transport   `json:"transport"`
	ShippingCost decimal.Decimal    `json:"shipping_cost"`
	Tax          []models.TaxBucket `json:"tax"`
}

func (s Service) Snapshot(transport models.Transport, lines []*models.LineItem) Snapshot {
	return Snapshot{
		Transport:    transport,
		ShippingCost: s.ShippingCost(transport, lines),
		Tax:          TaxBuckets(lines),
	}
}

// ShippingCost is only charged for post when something has to be shipped.
func (s Service) ShippingCost(transport models.Transport, lines []*models.LineItem) decimal.Decimal {
	if transport != models.TransportPost || !NeedsFulfillment(lines) {
		return decimal.Zero
	}
	return s.Shipping[transport]
}

func NeedsFulfillment(lines []*models.LineItem) bool {
	for _, l := range lines {
		if l.Fulfillment {
			return true
		}
	}
	return false
}

// TaxBuckets groups net line amounts per tax rate, ordered by rate. Lines
// without a rate do not produce a bucket.
func TaxBuckets(lines []*models.LineItem) []models.TaxBucket {
	nets := map[string]decimal.Decimal{}
	rates := map[string]decimal.Decimal{}
	for _, l := range lines {
		if !l.TaxRate.IsPositive() {
			continue
		}
		key := l.TaxRate.String()
		rates[key] = l.TaxRate
		nets[key] = nets[key].Add(l.Net())
	}

	out := make([]models.TaxBucket, 0, len(nets))
	for key, net := range nets {
		rate := rates[key]
		out = append(out, models.TaxBucket{
			Rate:   rate,
			Amount: net.Mul(rate).Div(hundred).Round(2),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rate.LessThan(out[j].Rate) })
	return out
}
