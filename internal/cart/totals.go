package cart

import "github.com/shopspring/decimal"

// Pricing holds the client-side pricing constants applied on top of the
// server-confirmed line items.
type Pricing struct {
	DiscountRate decimal.Decimal
	DeliveryFee  decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		DiscountRate: decimal.RequireFromString("0.20"),
		DeliveryFee:  decimal.NewFromInt(15),
	}
}

// Totals is the presentation-ready aggregate of a cart.
type Totals struct {
	ItemCount   int             `json:"itemCount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Total       decimal.Decimal `json:"total"`
}

// ComputeTotals derives Totals from a snapshot. The delivery fee is charged
// even when the cart is empty.
func ComputeTotals(c Cart, p Pricing) Totals {
	subtotal := decimal.Zero
	count := 0
	for _, it := range c.Items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		count += it.Quantity
	}

	discount := subtotal.Mul(p.DiscountRate).Floor()

	return Totals{
		ItemCount:   count,
		Subtotal:    subtotal,
		Discount:    discount,
		DeliveryFee: p.DeliveryFee,
		Total:       subtotal.Sub(discount).Add(p.DeliveryFee),
	}
}
