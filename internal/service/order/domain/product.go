package domain

import "github.com/shopspring/decimal"

// Product 属于商品目录，对下单流程只读
type Product struct {
	ID    string
	Title string
	Image string
	Price decimal.Decimal
	Stock int
}
