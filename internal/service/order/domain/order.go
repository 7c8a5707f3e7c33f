// internal/service/order/domain/order.go
package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Order 是订单聚合的根实体。
// 创建之后只有状态、送达字段和 UpdatedAt 会变化。
type Order struct {
	ID              string
	UserID          string
	UserEmail       string
	Lines           []OrderLine
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	Totals
	Status      Status
	IsPaid      bool
	PaidAt      *time.Time
	IsDelivered bool
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderLine 在下单时锁定商品的标题和单价，之后不再变化
type OrderLine struct {
	ProductID string
	Title     string
	Image     string
	Quantity  int
	UnitPrice decimal.Decimal
}

type ShippingAddress struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// Missing 返回为空的字段名
func (a ShippingAddress) Missing() []string {
	var missing []string
	fields := []struct{ name, value string }{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
		{"country", a.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// NewOrderParams 是工厂函数的入参
type NewOrderParams struct {
	ID              string
	UserID          string
	UserEmail       string
	Lines           []OrderLine
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	Totals          Totals
	Now             time.Time
}

// NewOrder 创建一个处于 pending 状态的订单
func NewOrder(p NewOrderParams) (*Order, error) {
	if p.ID == "" || p.UserID == "" || len(p.Lines) == 0 {
		return nil, errors.New("cannot create order with empty required fields")
	}
	if !p.Totals.Balanced() {
		return nil, errors.Errorf("order totals do not balance: %s", p.Totals.TotalPrice)
	}

	lines := make([]OrderLine, len(p.Lines))
	copy(lines, p.Lines)

	return &Order{
		ID:              p.ID,
		UserID:          p.UserID,
		UserEmail:       p.UserEmail,
		Lines:           lines,
		ShippingAddress: p.ShippingAddress,
		PaymentMethod:   p.PaymentMethod,
		Totals:          p.Totals,
		Status:          StatusPending,
		CreatedAt:       p.Now,
		UpdatedAt:       p.Now,
	}, nil
}

// OwnedBy 判断订单是否属于该用户
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

// UpdateStatus 切换到任一合法状态，切到 delivered 时记录送达时间
func (o *Order) UpdateStatus(status Status, now time.Time) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}
	o.Status = status
	if status == StatusDelivered {
		o.IsDelivered = true
		deliveredAt := now
		o.DeliveredAt = &deliveredAt
	}
	o.UpdatedAt = now
	return nil
}

// CartLine 是客户端提交的一行购物车，不落库
type CartLine struct {
	ProductID string
	Quantity  int
}
