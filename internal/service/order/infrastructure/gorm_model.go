package infrastructure

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// ProductModel 对应数据库中的 products 表，库存由 mysql 账本直接扣减
type ProductModel struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)"`
	Title       string          `gorm:"type:varchar(255);not null"`
	Description string          `gorm:"type:text"`
	Category    string          `gorm:"type:varchar(64);index"`
	Image       string          `gorm:"type:varchar(512)"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Stock       int             `gorm:"not null;default:0;check:stock >= 0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "products"
}

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)"`
	UserID        string          `gorm:"type:varchar(64);not null;index:idx_orders_user_created,priority:1"`
	UserEmail     string          `gorm:"type:varchar(255)"`
	Street        string          `gorm:"type:varchar(255);not null"`
	City          string          `gorm:"type:varchar(128);not null"`
	State         string          `gorm:"type:varchar(128);not null"`
	ZipCode       string          `gorm:"type:varchar(32);not null"`
	Country       string          `gorm:"type:varchar(128);not null"`
	PaymentMethod string          `gorm:"type:varchar(32);not null"`
	ItemsPrice    decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	TaxPrice      decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ShippingPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Status        string          `gorm:"type:varchar(16);not null;index"`
	IsPaid        bool
	PaidAt        sql.NullTime
	IsDelivered   bool
	DeliveredAt   sql.NullTime
	CreatedAt     time.Time        `gorm:"precision:3;index:idx_orders_user_created,priority:2"`
	UpdatedAt     time.Time        `gorm:"precision:3"`
	Items         []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 对应 order_items 表，写入后不再修改
type OrderItemModel struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	OrderID   string          `gorm:"type:varchar(36);not null;index"`
	Position  int             `gorm:"not null"`
	ProductID string          `gorm:"type:varchar(36);not null"`
	Title     string          `gorm:"type:varchar(255);not null"`
	Image     string          `gorm:"type:varchar(512)"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null"`
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// OutboxModel 对应 order_outbox 表，DeliveredAt 为空表示待投递
type OutboxModel struct {
	ID          string       `gorm:"primaryKey;type:varchar(36)"`
	EventType   string       `gorm:"type:varchar(64);not null"`
	MessageKey  string       `gorm:"type:varchar(64)"`
	Payload     []byte       `gorm:"type:blob;not null"`
	Attempts    int          `gorm:"not null;default:0"`
	LastError   string       `gorm:"type:text"`
	DeliveredAt sql.NullTime `gorm:"index"`
	CreatedAt   time.Time    `gorm:"precision:3;index"`
}

func (OutboxModel) TableName() string {
	return "order_outbox"
}
