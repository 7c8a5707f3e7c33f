// internal/service/order/application/dto.go
package application

import (
	"storefront/internal/pkg/auth"
	"storefront/internal/service/order/domain"
)

// PlaceOrderCommand 是下单用例的输入
type PlaceOrderCommand struct {
	Principal       auth.Principal `validate:"-"`
	Items           []CartItem     `json:"orderItems" validate:"required,min=1,dive"`
	ShippingAddress AddressInput   `json:"shippingAddress" validate:"required"`
	PaymentMethod   string         `json:"paymentMethod" validate:"required"`
}

type CartItem struct {
	ProductID string `json:"product" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type AddressInput struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Country string `json:"country" validate:"required"`
}

func (a AddressInput) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		ZipCode: a.ZipCode,
		Country: a.Country,
	}
}

// AdminListQuery 是管理端分页查询的输入，零值会被替换成默认值
type AdminListQuery struct {
	Status string
	Page   int
	Limit  int
}

// OrderPage 是分页查询的输出
type OrderPage struct {
	Orders      []*domain.Order
	TotalPages  int
	CurrentPage int
	Total       int64
}
