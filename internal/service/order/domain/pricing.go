// internal/service/order/domain/pricing.go
package domain

import "github.com/shopspring/decimal"

var (
	TaxRate               = decimal.RequireFromString("0.10")
	FreeShippingThreshold = decimal.NewFromInt(100)
	FlatShippingFee       = decimal.NewFromInt(10)
)

// PricedLine 是参与计价的一行: 下单时锁定的单价和数量
type PricedLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals 是订单的金额明细，均为两位小数
type Totals struct {
	ItemsPrice    decimal.Decimal
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	TotalPrice    decimal.Decimal
}

// CalculateTotals 是纯函数。逐行累加不做舍入，只在每个派生金额计算结束时四舍五入到两位。
func CalculateTotals(lines []PricedLine) Totals {
	items := decimal.Zero
	for _, l := range lines {
		items = items.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	items = items.Round(2)

	tax := items.Mul(TaxRate).Round(2)

	shipping := FlatShippingFee
	if items.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	shipping = shipping.Round(2)

	return Totals{
		ItemsPrice:    items,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    items.Add(tax).Add(shipping),
	}
}

// Balanced 检查 total == items + tax + shipping
func (t Totals) Balanced() bool {
	return t.TotalPrice.Equal(t.ItemsPrice.Add(t.TaxPrice).Add(t.ShippingPrice))
}
