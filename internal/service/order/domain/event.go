// internal/service/order/domain/event.go
package domain

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderPlaced 是订单创建成功后发往外部自动化系统的摘要
type OrderPlaced struct {
	OrderID    string      `json:"orderId"`
	UserID     string      `json:"userId"`
	UserEmail  string      `json:"userEmail"`
	TotalPrice json.Number `json:"totalPrice"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
}

func NewOrderPlaced(o *Order) OrderPlaced {
	return OrderPlaced{
		OrderID:    o.ID,
		UserID:     o.UserID,
		UserEmail:  o.UserEmail,
		TotalPrice: json.Number(o.TotalPrice.StringFixed(2)),
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
	}
}

// OrderStatusChanged 推送给订单所属用户的在线会话
type OrderStatusChanged struct {
	OrderID   string    `json:"orderId"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OutboxEvent 是等待投递的消息，与订单同事务落库
type OutboxEvent struct {
	ID        string
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}
