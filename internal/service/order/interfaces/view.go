package interfaces

import (
	"encoding/json"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"time"

	"github.com/shopspring/decimal"
)

type orderItemView struct {
	Product  string      `json:"product"`
	Title    string      `json:"title"`
	Image    string      `json:"image,omitempty"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

type addressView struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type orderView struct {
	ID              string          `json:"id"`
	User            string          `json:"user"`
	OrderItems      []orderItemView `json:"orderItems"`
	ShippingAddress addressView     `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	ItemsPrice      json.Number     `json:"itemsPrice"`
	TaxPrice        json.Number     `json:"taxPrice"`
	ShippingPrice   json.Number     `json:"shippingPrice"`
	TotalPrice      json.Number     `json:"totalPrice"`
	Status          string          `json:"status"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type orderPageView struct {
	Orders      []orderView `json:"orders"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Total       int64       `json:"total"`
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func newOrderView(o *domain.Order) orderView {
	items := make([]orderItemView, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = orderItemView{
			Product:  l.ProductID,
			Title:    l.Title,
			Image:    l.Image,
			Quantity: l.Quantity,
			Price:    money(l.UnitPrice),
		}
	}
	return orderView{
		ID:         o.ID,
		User:       o.UserID,
		OrderItems: items,
		ShippingAddress: addressView{
			Street:  o.ShippingAddress.Street,
			City:    o.ShippingAddress.City,
			State:   o.ShippingAddress.State,
			ZipCode: o.ShippingAddress.ZipCode,
			Country: o.ShippingAddress.Country,
		},
		PaymentMethod: string(o.PaymentMethod),
		ItemsPrice:    money(o.ItemsPrice),
		TaxPrice:      money(o.TaxPrice),
		ShippingPrice: money(o.ShippingPrice),
		TotalPrice:    money(o.TotalPrice),
		Status:        string(o.Status),
		IsPaid:        o.IsPaid,
		PaidAt:        o.PaidAt,
		IsDelivered:   o.IsDelivered,
		DeliveredAt:   o.DeliveredAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func newOrderViews(orders []*domain.Order) []orderView {
	views := make([]orderView, len(orders))
	for i, o := range orders {
		views[i] = newOrderView(o)
	}
	return views
}

func newOrderPageView(p *application.OrderPage) orderPageView {
	return orderPageView{
		Orders:      newOrderViews(p.Orders),
		TotalPages:  p.TotalPages,
		CurrentPage: p.CurrentPage,
		Total:       p.Total,
	}
}
