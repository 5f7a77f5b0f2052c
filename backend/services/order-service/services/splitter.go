package services

import (
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderGroup is the part of a cart one farmer fulfils.
type OrderGroup struct {
	FarmerID uuid.UUID
	Lines    []PricedLine
	Pricing  models.Pricing
}

// LineTotal is price × quantity at two decimals.
func LineTotal(l PricedLine) decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

// SplitOrder groups lines by farmer in first-seen order and spreads the
// shared charges over the groups in proportion to their subtotals. The last
// group takes whatever rounding left over, so each charge is conserved to
// the cent. Charges are expected at two decimals (validateCheckout). No
// group's discount share exceeds its own subtotal plus delivery and tax as
// long as the cart's discount fits the cart.
func SplitOrder(lines []PricedLine, charges models.SharedCharges) []OrderGroup {
	var groups []OrderGroup
	for _, l := range lines {
		i := 0
		for i < len(groups) && groups[i].FarmerID != l.Product.FarmerID {
			i++
		}
		if i == len(groups) {
			groups = append(groups, OrderGroup{FarmerID: l.Product.FarmerID})
		}
		groups[i].Lines = append(groups[i].Lines, l)
	}
	if len(groups) == 0 {
		return nil
	}

	subtotals := make([]decimal.Decimal, len(groups))
	cartSubtotal := decimal.Zero
	for i := range groups {
		sub := decimal.Zero
		for _, l := range groups[i].Lines {
			sub = sub.Add(LineTotal(l))
		}
		subtotals[i] = sub
		cartSubtotal = cartSubtotal.Add(sub)
	}

	delivery := allocate(charges.Delivery, subtotals, cartSubtotal)
	tax := allocate(charges.Tax, subtotals, cartSubtotal)
	discount := capDiscount(allocate(charges.Discount, subtotals, cartSubtotal), subtotals, delivery, tax)

	for i := range groups {
		groups[i].Pricing = models.Pricing{
			Subtotal:      subtotals[i],
			DeliveryShare: delivery[i],
			DiscountShare: discount[i],
			TaxShare:      tax[i],
			Total:         subtotals[i].Add(delivery[i]).Add(tax[i]).Sub(discount[i]),
		}
	}
	return groups
}

// allocate splits charge by weight. With a zero cart subtotal every group
// gets an equal share.
func allocate(charge decimal.Decimal, weights []decimal.Decimal, total decimal.Decimal) []decimal.Decimal {
	n := len(weights)
	shares := make([]decimal.Decimal, n)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		var share decimal.Decimal
		if total.IsZero() {
			share = charge.Div(decimal.NewFromInt(int64(n))).Round(2)
		} else {
			share = charge.Mul(weights[i]).Div(total).Round(2)
		}
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[n-1] = charge.Sub(allocated)
	return shares
}

// capDiscount moves discount that would push a group below zero onto the
// groups that still have room, last group first. The shares keep their sum.
func capDiscount(shares, subtotals, delivery, tax []decimal.Decimal) []decimal.Decimal {
	limits := make([]decimal.Decimal, len(shares))
	excess := decimal.Zero
	for i := range shares {
		limits[i] = subtotals[i].Add(delivery[i]).Add(tax[i])
		if shares[i].GreaterThan(limits[i]) {
			excess = excess.Add(shares[i].Sub(limits[i]))
			shares[i] = limits[i]
		}
	}
	for i := len(shares) - 1; i >= 0 && excess.IsPositive(); i-- {
		room := limits[i].Sub(shares[i])
		if !room.IsPositive() {
			continue
		}
		take := decimal.Min(room, excess)
		shares[i] = shares[i].Add(take)
		excess = excess.Sub(take)
	}
	// Only a discount larger than the whole cart gets here; the checkout
	// rejects that, so the sum is all that has to hold.
	if excess.IsPositive() {
		last := len(shares) - 1
		shares[last] = shares[last].Add(excess)
	}
	return shares
}

// summarize totals the groups for the checkout response.
func summarize(groups []OrderGroup) models.CheckoutSummary {
	s := models.CheckoutSummary{
		OrderCount: len(groups),
		Subtotal:   decimal.Zero,
		Delivery:   decimal.Zero,
		Discount:   decimal.Zero,
		Tax:        decimal.Zero,
		Total:      decimal.Zero,
	}
	for _, g := range groups {
		s.Subtotal = s.Subtotal.Add(g.Pricing.Subtotal)
		s.Delivery = s.Delivery.Add(g.Pricing.DeliveryShare)
		s.Discount = s.Discount.Add(g.Pricing.DiscountShare)
		s.Tax = s.Tax.Add(g.Pricing.TaxShare)
		s.Total = s.Total.Add(g.Pricing.Total)
	}
	return s
}
