package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/promptshop/backend/pkg/db"
	"github.com/promptshop/backend/pkg/db/models"
	"github.com/promptshop/backend/pkg/enums"
	pkgerrors "github.com/promptshop/backend/pkg/errors"
	"github.com/promptshop/backend/pkg/logger"
)

// Service exposes buyer-facing order operations.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*OrderDTO, error)
	GetByOrderID(ctx context.Context, orderID string) (*OrderDTO, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error)
	ListUnpaid(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error)
	Delete(ctx context.Context, userID uuid.UUID, orderID string) error
	ConfirmPaymentIntent(ctx context.Context, userID uuid.UUID, orderID string) (*OrderDTO, error)
}

// ServiceParams configure the orders service.
type ServiceParams struct {
	Logger *logger.Logger
	Repo   Repository
	Now    func() time.Time
}

type service struct {
	logg *logger.Logger
	repo Repository
	now  func() time.Time
}

// NewService builds an orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{logg: params.Logger, repo: params.Repo, now: now}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*OrderDTO, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodQR
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
	}

	subtotal := decimal.Zero
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %s has non-positive quantity", item.ProductID))
		}
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Qty)))
		subtotal = subtotal.Add(line)
	}

	order := &models.Order{
		ID:            uuid.New(),
		OrderID:       s.newOrderID(),
		UserID:        userID,
		Items:         input.Items,
		Address:       input.Address,
		PaymentMethod: method,
		Subtotal:      subtotal.Round(2),
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
	}

	created, err := s.repo.Create(ctx, order)
	if err != nil {
		if db.IsUniqueViolation(err, "orders_order_id_key") {
			// Astronomically unlikely collision on the generated id.
			order.OrderID = s.newOrderID()
			created, err = s.repo.Create(ctx, order)
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
	}
	s.logg.Info(s.logg.WithOrderID(ctx, created.OrderID), "order created")

	return FromModel(created), nil
}

func (s *service) GetByOrderID(ctx context.Context, orderID string) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return FromModel(order), nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error) {
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return fromModels(orders), nil
}

func (s *service) ListUnpaid(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error) {
	orders, err := s.repo.ListUnpaidByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unpaid orders")
	}
	return fromModels(orders), nil
}

// Delete removes a buyer's own order as long as it has not been paid.
func (s *service) Delete(ctx context.Context, userID uuid.UUID, orderID string) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders cannot be deleted")
	}

	if err := s.repo.Delete(ctx, order.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID), "order deleted")
	return nil
}

// ConfirmPaymentIntent flags that the buyer claims to have transferred the
// money, so the shop knows to look for the slip.
func (s *service) ConfirmPaymentIntent(ctx context.Context, userID uuid.UUID, orderID string) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
	}
	if order.HasConfirmedPayment {
		return FromModel(order), nil
	}

	applied, err := s.repo.SetPaymentConfirmed(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment intent")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s payment is %s", orderID, order.PaymentStatus))
	}

	return s.GetByOrderID(ctx, orderID)
}

func (s *service) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// newOrderID mints the human-facing order id, e.g. ORD-20260110-483920.
func (s *service) newOrderID() string {
	now := s.now()
	return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), orderIDSuffix(rand.Reader, now))
}

// orderIDSuffix draws a random six-digit suffix, falling back to the clock
// when the entropy source fails so consecutive ids stay distinct.
func orderIDSuffix(r io.Reader, now time.Time) int64 {
	n, err := rand.Int(r, big.NewInt(1_000_000))
	if err != nil {
		return now.UnixNano() % 1_000_000
	}
	return n.Int64()
}
