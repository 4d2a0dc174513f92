package payments

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/promptshop/backend/pkg/db/models"
	"github.com/promptshop/backend/pkg/enums"
)

// Repository provides the order reads and guarded writes the payment state
// machine needs. Write methods that return a bool report whether the
// guarded update actually happened.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	TransactionUsedByOther(ctx context.Context, transactionRef, orderID string) (bool, error)
	Save(ctx context.Context, order *models.Order) error
	MarkPaid(ctx context.Context, params MarkPaidParams) (bool, error)
	MarkCancelled(ctx context.Context, orderID string) (bool, error)
	MarkExpired(ctx context.Context, orderID string, now time.Time) (bool, error)
	FindPendingExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// MarkPaidParams carries the fields the pending→paid transition writes.
type MarkPaidParams struct {
	OrderID       string
	TransactionID string
	SlipImageURL  *string
	PaidAt        time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) TransactionUsedByOther(ctx context.Context, transactionRef, orderID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("transaction_id = ? AND order_id <> ?", transactionRef, orderID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// MarkPaid performs the pending→paid transition. The WHERE clause is the
// compare-and-swap: a concurrent verifier or an expired window leaves zero
// rows affected.
func (r *repository) MarkPaid(ctx context.Context, params MarkPaidParams) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND payment_status = ?", params.OrderID, enums.PaymentStatusPending).
		Where("payment_expiry IS NULL OR payment_expiry > ?", params.PaidAt).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"transaction_id": params.TransactionID,
			"slip_image_url": params.SlipImageURL,
			"paid_at":        params.PaidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkCancelled(ctx context.Context, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending).
		Update("payment_status", enums.PaymentStatusCancelled)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkExpired(ctx context.Context, orderID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending).
		Where("payment_expiry IS NOT NULL AND payment_expiry <= ?", now).
		Update("payment_status", enums.PaymentStatusExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindPendingExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Where("payment_status = ?", enums.PaymentStatusPending).
		Where("payment_expiry IS NOT NULL AND payment_expiry <= ?", cutoff).
		Order("payment_expiry ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
