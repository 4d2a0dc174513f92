package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/promptshop/backend/pkg/db/models"
	"github.com/promptshop/backend/pkg/enums"
	pkgerrors "github.com/promptshop/backend/pkg/errors"
	"github.com/promptshop/backend/pkg/logger"
	"github.com/promptshop/backend/pkg/types"
)

type stubOrdersRepo struct {
	order   *models.Order
	findErr error

	created   []*models.Order
	createErr error

	deleted []uuid.UUID

	confirmResult bool
}

func (s *stubOrdersRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubOrdersRepo) Create(_ context.Context, order *models.Order) (*models.Order, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, order)
	return order, nil
}

func (s *stubOrdersRepo) FindByOrderID(context.Context, string) (*models.Order, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	clone := *s.order
	return &clone, nil
}

func (s *stubOrdersRepo) ListByUser(context.Context, uuid.UUID) ([]models.Order, error) {
	return []models.Order{*s.order}, nil
}

func (s *stubOrdersRepo) ListUnpaidByUser(context.Context, uuid.UUID) ([]models.Order, error) {
	return []models.Order{*s.order}, nil
}

func (s *stubOrdersRepo) Delete(_ context.Context, id uuid.UUID) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubOrdersRepo) SetPaymentConfirmed(context.Context, string) (bool, error) {
	return s.confirmResult, nil
}

var ordersNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestOrdersService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Repo:   repo,
		Now:    func() time.Time { return ordersNow },
	})
	require.NoError(t, err)
	return svc
}

func TestCreateComputesSubtotal(t *testing.T) {
	repo := &stubOrdersRepo{}
	svc := newTestOrdersService(t, repo)
	userID := uuid.New()

	dto, err := svc.Create(context.Background(), userID, CreateOrderInput{
		Items: []types.OrderItem{
			{ProductID: "p1", Name: "Flower", Price: 120.50, Qty: 2},
			{ProductID: "p2", Name: "Grinder", Price: 59.25, Qty: 1},
		},
	})
	require.NoError(t, err)
	require.True(t, dto.Subtotal.Equal(decimal.RequireFromString("300.25")), "got %s", dto.Subtotal)
	require.Equal(t, userID, dto.UserID)
	require.Equal(t, enums.PaymentMethodQR, dto.PaymentMethod)
	require.Equal(t, enums.PaymentStatusPending, dto.PaymentStatus)
	require.True(t, strings.HasPrefix(dto.OrderID, "ORD-20260110-"), "got %s", dto.OrderID)
	require.Len(t, repo.created, 1)
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	svc := newTestOrdersService(t, &stubOrdersRepo{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateOrderInput{})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCreateRejectsNonPositiveQty(t *testing.T) {
	svc := newTestOrdersService(t, &stubOrdersRepo{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateOrderInput{
		Items: []types.OrderItem{{ProductID: "p1", Price: 10, Qty: 0}},
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestGetByOrderIDMapsNotFound(t *testing.T) {
	svc := newTestOrdersService(t, &stubOrdersRepo{findErr: gorm.ErrRecordNotFound})

	_, err := svc.GetByOrderID(context.Background(), "ORD-404")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestDeleteChecksOwnership(t *testing.T) {
	owner := uuid.New()
	repo := &stubOrdersRepo{order: &models.Order{
		ID:            uuid.New(),
		OrderID:       "ORD-1",
		UserID:        owner,
		PaymentStatus: enums.PaymentStatusPending,
	}}
	svc := newTestOrdersService(t, repo)

	err := svc.Delete(context.Background(), uuid.New(), "ORD-1")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
	require.Empty(t, repo.deleted)

	require.NoError(t, svc.Delete(context.Background(), owner, "ORD-1"))
	require.Len(t, repo.deleted, 1)
}

func TestDeleteRefusesPaidOrder(t *testing.T) {
	owner := uuid.New()
	repo := &stubOrdersRepo{order: &models.Order{
		ID:            uuid.New(),
		OrderID:       "ORD-1",
		UserID:        owner,
		PaymentStatus: enums.PaymentStatusPaid,
	}}
	svc := newTestOrdersService(t, repo)

	err := svc.Delete(context.Background(), owner, "ORD-1")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestConfirmPaymentIntentIdempotent(t *testing.T) {
	owner := uuid.New()
	repo := &stubOrdersRepo{order: &models.Order{
		ID:                  uuid.New(),
		OrderID:             "ORD-1",
		UserID:              owner,
		PaymentStatus:       enums.PaymentStatusPending,
		HasConfirmedPayment: true,
	}}
	svc := newTestOrdersService(t, repo)

	dto, err := svc.ConfirmPaymentIntent(context.Background(), owner, "ORD-1")
	require.NoError(t, err)
	require.True(t, dto.HasConfirmedPayment)
}

func TestConfirmPaymentIntentSetsFlag(t *testing.T) {
	owner := uuid.New()
	repo := &stubOrdersRepo{
		order: &models.Order{
			ID:            uuid.New(),
			OrderID:       "ORD-1",
			UserID:        owner,
			PaymentStatus: enums.PaymentStatusPending,
		},
		confirmResult: true,
	}
	svc := newTestOrdersService(t, repo)

	_, err := svc.ConfirmPaymentIntent(context.Background(), owner, "ORD-1")
	require.NoError(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy unavailable")
}

func TestOrderIDSuffixFallsBackToClock(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 123456789, time.UTC)

	suffix := orderIDSuffix(failingReader{}, now)
	require.Equal(t, now.UnixNano()%1_000_000, suffix)
	require.NotZero(t, suffix)

	later := now.Add(37 * time.Nanosecond)
	require.NotEqual(t, suffix, orderIDSuffix(failingReader{}, later))
}

func TestOrderIDSuffixInRange(t *testing.T) {
	for i := 0; i < 32; i++ {
		suffix := orderIDSuffix(rand.Reader, time.Now())
		require.GreaterOrEqual(t, suffix, int64(0))
		require.Less(t, suffix, int64(1_000_000))
	}
}
