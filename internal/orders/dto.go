package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promptshop/backend/pkg/db/models"
	"github.com/promptshop/backend/pkg/enums"
	"github.com/promptshop/backend/pkg/types"
)

// CreateOrderInput is the buyer's checkout payload. The subtotal is always
// recomputed server-side from the line items.
type CreateOrderInput struct {
	Items         []types.OrderItem
	Address       *types.ShippingAddress
	PaymentMethod enums.PaymentMethod
}

// OrderDTO is the API view of an order.
type OrderDTO struct {
	OrderID             string                 `json:"orderId"`
	UserID              uuid.UUID              `json:"userId"`
	Items               []types.OrderItem      `json:"items"`
	Address             *types.ShippingAddress `json:"address,omitempty"`
	PaymentMethod       enums.PaymentMethod    `json:"paymentMethod"`
	Subtotal            decimal.Decimal        `json:"subtotal"`
	Status              enums.OrderStatus      `json:"status"`
	PaymentStatus       enums.PaymentStatus    `json:"paymentStatus"`
	PaymentExpiry       *time.Time             `json:"paymentExpiry,omitempty"`
	TransactionID       *string                `json:"transactionId,omitempty"`
	PaidAt              *time.Time             `json:"paidAt,omitempty"`
	SlipImageURL        *string                `json:"slipImageUrl,omitempty"`
	HasConfirmedPayment bool                   `json:"hasConfirmedPayment"`
	CreatedAt           time.Time              `json:"createdAt"`
}

// FromModel converts the storage model to its API view.
func FromModel(order *models.Order) *OrderDTO {
	return &OrderDTO{
		OrderID:             order.OrderID,
		UserID:              order.UserID,
		Items:               order.Items,
		Address:             order.Address,
		PaymentMethod:       order.PaymentMethod,
		Subtotal:            order.Subtotal,
		Status:              order.Status,
		PaymentStatus:       order.PaymentStatus,
		PaymentExpiry:       order.PaymentExpiry,
		TransactionID:       order.TransactionID,
		PaidAt:              order.PaidAt,
		SlipImageURL:        order.SlipImageURL,
		HasConfirmedPayment: order.HasConfirmedPayment,
		CreatedAt:           order.CreatedAt,
	}
}

func fromModels(orders []models.Order) []OrderDTO {
	dtos := make([]OrderDTO, 0, len(orders))
	for i := range orders {
		dtos = append(dtos, *FromModel(&orders[i]))
	}
	return dtos
}
