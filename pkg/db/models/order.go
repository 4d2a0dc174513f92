package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promptshop/backend/pkg/enums"
	"github.com/promptshop/backend/pkg/types"
)

// Order is the durable record the payment core mutates. The subtotal is the
// amount a slip must prove; transaction_id is unique across all orders so a
// bank transfer reference can only ever pay for one order.
type Order struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID string    `gorm:"column:order_id;not null;uniqueIndex:orders_order_id_key"`
	UserID  uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`

	Items   types.OrderItems       `gorm:"column:items;type:jsonb;serializer:json"`
	Address *types.ShippingAddress `gorm:"column:address;type:jsonb;serializer:json"`

	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'qr'"`
	Subtotal      decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`

	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	QRCodeData    *string    `gorm:"column:qr_code_data"`
	PaymentExpiry *time.Time `gorm:"column:payment_expiry"`

	TransactionID *string    `gorm:"column:transaction_id;uniqueIndex:orders_transaction_id_key"`
	PaidAt        *time.Time `gorm:"column:paid_at"`
	SlipImageURL  *string    `gorm:"column:slip_image_url"`

	HasConfirmedPayment bool `gorm:"column:has_confirmed_payment;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name regardless of GORM pluralization settings.
func (Order) TableName() string {
	return "orders"
}
