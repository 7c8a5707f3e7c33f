package infrastructure

import (
	"database/sql"
	"storefront/internal/service/order/domain"
	"time"
)

// ToDomainProduct 将数据库模型转换为领域模型
func ToDomainProduct(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}
	return &domain.Product{
		ID:    model.ID,
		Title: model.Title,
		Image: model.Image,
		Price: model.Price,
		Stock: model.Stock,
	}
}

// ToDomainOrder 将数据库模型转换为领域模型，订单行按写入顺序排列
func ToDomainOrder(model *OrderModel) *domain.Order {
	if model == nil {
		return nil
	}
	lines := make([]domain.OrderLine, len(model.Items))
	for i, item := range model.Items {
		lines[i] = domain.OrderLine{
			ProductID: item.ProductID,
			Title:     item.Title,
			Image:     item.Image,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return &domain.Order{
		ID:        model.ID,
		UserID:    model.UserID,
		UserEmail: model.UserEmail,
		Lines:     lines,
		ShippingAddress: domain.ShippingAddress{
			Street:  model.Street,
			City:    model.City,
			State:   model.State,
			ZipCode: model.ZipCode,
			Country: model.Country,
		},
		PaymentMethod: domain.PaymentMethod(model.PaymentMethod),
		Totals: domain.Totals{
			ItemsPrice:    model.ItemsPrice,
			TaxPrice:      model.TaxPrice,
			ShippingPrice: model.ShippingPrice,
			TotalPrice:    model.TotalPrice,
		},
		Status:      domain.Status(model.Status),
		IsPaid:      model.IsPaid,
		PaidAt:      fromNullTime(model.PaidAt),
		IsDelivered: model.IsDelivered,
		DeliveredAt: fromNullTime(model.DeliveredAt),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// FromDomainOrder 将领域模型转换为数据库模型 (用于插入)
func FromDomainOrder(o *domain.Order) *OrderModel {
	if o == nil {
		return nil
	}
	items := make([]OrderItemModel, len(o.Lines))
	for i, line := range o.Lines {
		items[i] = OrderItemModel{
			OrderID:   o.ID,
			Position:  i,
			ProductID: line.ProductID,
			Title:     line.Title,
			Image:     line.Image,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}
	return &OrderModel{
		ID:            o.ID,
		UserID:        o.UserID,
		UserEmail:     o.UserEmail,
		Street:        o.ShippingAddress.Street,
		City:          o.ShippingAddress.City,
		State:         o.ShippingAddress.State,
		ZipCode:       o.ShippingAddress.ZipCode,
		Country:       o.ShippingAddress.Country,
		PaymentMethod: string(o.PaymentMethod),
		ItemsPrice:    o.ItemsPrice,
		TaxPrice:      o.TaxPrice,
		ShippingPrice: o.ShippingPrice,
		TotalPrice:    o.TotalPrice,
		Status:        string(o.Status),
		IsPaid:        o.IsPaid,
		PaidAt:        toNullTime(o.PaidAt),
		IsDelivered:   o.IsDelivered,
		DeliveredAt:   toNullTime(o.DeliveredAt),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Items:         items,
	}
}

// FromDomainOutbox 转换待投递的事件
func FromDomainOutbox(e domain.OutboxEvent) *OutboxModel {
	return &OutboxModel{
		ID:         e.ID,
		EventType:  e.Type,
		MessageKey: e.Key,
		Payload:    e.Payload,
		CreatedAt:  e.CreatedAt,
	}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
