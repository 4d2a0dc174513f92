package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/promptshop/backend/pkg/db/models"
	"github.com/promptshop/backend/pkg/enums"
)

// SessionDTO is a freshly armed payment session: the QR the buyer scans
// plus the window it is valid for.
type SessionDTO struct {
	OrderID     string          `json:"orderId"`
	Amount      decimal.Decimal `json:"amount"`
	QRCodeText  string          `json:"qrCodeText"`
	QRCodeImage string          `json:"qrCodeDataURL"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Account     *BillAccountDTO `json:"accountInfo,omitempty"`
}

// BillAccountDTO describes the receiving bank account for bill-payment QRs.
type BillAccountDTO struct {
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	AccountName   string `json:"accountName"`
}

// StatusDTO is the buyer-facing view of an order's payment state.
type StatusDTO struct {
	OrderID       string              `json:"orderId"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	ExpiresAt     *time.Time          `json:"expiresAt,omitempty"`
	PaidAt        *time.Time          `json:"paidAt,omitempty"`
	TransactionID *string             `json:"transactionId,omitempty"`
}

func statusFromModel(order *models.Order) *StatusDTO {
	return &StatusDTO{
		OrderID:       order.OrderID,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		ExpiresAt:     order.PaymentExpiry,
		PaidAt:        order.PaidAt,
		TransactionID: order.TransactionID,
	}
}
