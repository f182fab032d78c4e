package products

import (
	"github.com/RamonvdW/nhb-apps-sub010/internal/models"

	"github.com/shopspring/decimal"
)

// Combo gives Percent off every competition entry once a cart holds at
// least MinLines of them. A zero Combo never discounts.
type Combo struct {
	MinLines int
	Percent  decimal.Decimal
}

// Apply resets and recomputes the automatic discount of every line.
func (c Combo) Apply(lines []*models.LineItem) {
	entries := 0
	for _, l := range lines {
		if l.Kind == models.KindCompetitionEntry {
			entries++
		}
	}
	active := c.MinLines > 0 && c.Percent.IsPositive() && entries >= c.MinLines

	for _, l := range lines {
		l.Discount = decimal.Zero
		if !active || l.Kind != models.KindCompetitionEntry {
			continue
		}
		d := l.Price.Mul(c.Percent).Div(decimal.NewFromInt(100)).Round(2)
		if d.GreaterThan(l.Price) {
			d = l.Price
		}
		l.Discount = d
	}
}
