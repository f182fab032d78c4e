// Package cart computes totals and splits carts into per-receiver orders.
package cart

import (
	"sort"

	"github.com/RamonvdW/nhb-apps-sub010/internal/models"
	"github.com/RamonvdW/nhb-apps-sub010/internal/pricing"

	"github.com/shopspring/decimal"
)

// Compute returns sum(price - discount) + shipping + sum(tax), never below
// zero.
func Compute(p pricing.Service, transport models.Transport, lines []*models.LineItem) models.Totals {
	snap := p.Snapshot(transport, lines)

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Net())
	}
	total := subtotal.Add(snap.ShippingCost)
	for _, b := range snap.Tax {
		total = total.Add(b.Amount)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	return models.Totals{
		Subtotal:     subtotal,
		ShippingCost: snap.ShippingCost,
		Tax:          snap.Tax,
		Total:        total,
	}
}

// Recompute refreshes the cart's totals from its current lines.
func Recompute(p pricing.Service, c *models.Cart) {
	c.Totals = Compute(p, c.Transport, c.Lines)
}

type Group struct {
	ReceiverID int64
	Lines      []*models.LineItem
}

// Partition splits lines per receiving party, ordered by receiver id. Line
// order inside a group is preserved.
func Partition(lines []*models.LineItem) []Group {
	idx := map[int64]int{}
	var groups []Group
	for _, l := range lines {
		i, ok := idx[l.ReceiverID]
		if !ok {
			i = len(groups)
			idx[l.ReceiverID] = i
			groups = append(groups, Group{ReceiverID: l.ReceiverID})
		}
		groups[i].Lines = append(groups[i].Lines, l)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].ReceiverID < groups[j].ReceiverID })
	return groups
}

func LineIDs(lines []*models.LineItem) []int64 {
	out := make([]int64, len(lines))
	for i, l := range lines {
		out[i] = l.ID
	}
	return out
}
