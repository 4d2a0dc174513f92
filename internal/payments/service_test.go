package payments

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/promptshop/backend/internal/slip"
	"github.com/promptshop/backend/pkg/config"
	"github.com/promptshop/backend/pkg/db/models"
	"github.com/promptshop/backend/pkg/enums"
	pkgerrors "github.com/promptshop/backend/pkg/errors"
	"github.com/promptshop/backend/pkg/logger"
)

type stubPaymentsRepo struct {
	order   *models.Order
	findErr error

	saved []*models.Order

	markPaidCalls  []MarkPaidParams
	markPaidResult bool
	markPaidErr    error

	cancelResult bool

	dueOrders    []models.Order
	expireResult bool
	expireCalls  int
}

func (s *stubPaymentsRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubPaymentsRepo) FindByOrderID(context.Context, string) (*models.Order, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	clone := *s.order
	return &clone, nil
}

func (s *stubPaymentsRepo) TransactionUsedByOther(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *stubPaymentsRepo) Save(_ context.Context, order *models.Order) error {
	s.saved = append(s.saved, order)
	return nil
}

func (s *stubPaymentsRepo) MarkPaid(_ context.Context, params MarkPaidParams) (bool, error) {
	s.markPaidCalls = append(s.markPaidCalls, params)
	return s.markPaidResult, s.markPaidErr
}

func (s *stubPaymentsRepo) MarkCancelled(context.Context, string) (bool, error) {
	return s.cancelResult, nil
}

func (s *stubPaymentsRepo) MarkExpired(context.Context, string, time.Time) (bool, error) {
	s.expireCalls++
	return s.expireResult, nil
}

func (s *stubPaymentsRepo) FindPendingExpiredBefore(context.Context, time.Time, int) ([]models.Order, error) {
	return s.dueOrders, nil
}

type stubVerifier struct {
	verdict *slip.Verdict
	err     error
}

func (s *stubVerifier) Verify(context.Context, slip.VerifyInput) (*slip.Verdict, error) {
	return s.verdict, s.err
}

// fakeLockStore is an in-memory stand-in for the Redis client.
type fakeLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{data: map[string]string{}}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[key]; exists {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeLockStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeLockStore) LockKey(scope, id string) string {
	return "ps:lock:" + scope + ":" + id
}

var serviceNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func testPromptPayConfig() config.PromptPayConfig {
	return config.PromptPayConfig{
		MerchantPhone:     "0812345678",
		BillAccountNumber: "0383870410",
		BillBankCode:      "004",
		BillAccountName:   "PromptShop Co.",
		ExpiryWindow:      15 * time.Minute,
		QRImageSize:       256,
	}
}

func newTestService(t *testing.T, repo Repository, verifier SlipVerifier) Service {
	t.Helper()
	lock, err := NewVerifyLock(newFakeLockStore(), time.Minute)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Repo:      repo,
		Verifier:  verifier,
		Lock:      lock,
		PromptPay: testPromptPayConfig(),
		Now:       func() time.Time { return serviceNow },
	})
	require.NoError(t, err)
	return svc
}

func stubPendingOrder() *models.Order {
	expiry := serviceNow.Add(10 * time.Minute)
	return &models.Order{
		OrderID:       "ORD-1001",
		Subtotal:      decimal.RequireFromString("150.00"),
		PaymentStatus: enums.PaymentStatusPending,
		PaymentExpiry: &expiry,
	}
}

func TestGenerateQRArmsSession(t *testing.T) {
	repo := &stubPaymentsRepo{order: stubPendingOrder()}
	svc := newTestService(t, repo, &stubVerifier{})

	session, err := svc.GenerateQR(context.Background(), "ORD-1001")
	require.NoError(t, err)
	require.Equal(t, "ORD-1001", session.OrderID)
	require.True(t, strings.HasPrefix(session.QRCodeImage, "data:image/png;base64,"))
	require.Contains(t, session.QRCodeText, "0066812345678")
	require.Equal(t, serviceNow.Add(15*time.Minute), session.ExpiresAt)
	require.Nil(t, session.Account)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	require.Equal(t, enums.PaymentStatusPending, saved.PaymentStatus)
	require.Equal(t, enums.PaymentMethodQR, saved.PaymentMethod)
	require.NotNil(t, saved.QRCodeData)
}

func TestGenerateBillQRIncludesAccount(t *testing.T) {
	repo := &stubPaymentsRepo{order: stubPendingOrder()}
	svc := newTestService(t, repo, &stubVerifier{})

	session, err := svc.GenerateBillQR(context.Background(), "ORD-1001")
	require.NoError(t, err)
	require.NotNil(t, session.Account)
	require.Equal(t, "0383870410", session.Account.AccountNumber)
	require.Equal(t, "Kasikornbank", session.Account.BankName)

	require.Len(t, repo.saved, 1)
	require.Equal(t, enums.PaymentMethodBankTransfer, repo.saved[0].PaymentMethod)
}

func TestGenerateQRRejectsPaidOrder(t *testing.T) {
	order := stubPendingOrder()
	order.PaymentStatus = enums.PaymentStatusPaid
	svc := newTestService(t, &stubPaymentsRepo{order: order}, &stubVerifier{})

	_, err := svc.GenerateQR(context.Background(), "ORD-1001")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestGenerateQRUnknownOrder(t *testing.T) {
	svc := newTestService(t, &stubPaymentsRepo{findErr: gorm.ErrRecordNotFound}, &stubVerifier{})

	_, err := svc.GenerateQR(context.Background(), "ORD-404")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestConfirmMarksPaid(t *testing.T) {
	repo := &stubPaymentsRepo{order: stubPendingOrder(), markPaidResult: true}
	svc := newTestService(t, repo, &stubVerifier{})

	_, err := svc.Confirm(context.Background(), "ORD-1001", "TXN-1")
	require.NoError(t, err)
	require.Len(t, repo.markPaidCalls, 1)
	require.Equal(t, "TXN-1", repo.markPaidCalls[0].TransactionID)
}

func TestConfirmIdempotentForSameTransaction(t *testing.T) {
	order := stubPendingOrder()
	order.PaymentStatus = enums.PaymentStatusPaid
	ref := "TXN-1"
	order.TransactionID = &ref
	repo := &stubPaymentsRepo{order: order}
	svc := newTestService(t, repo, &stubVerifier{})

	status, err := svc.Confirm(context.Background(), "ORD-1001", "TXN-1")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPaid, status.PaymentStatus)
	require.Empty(t, repo.markPaidCalls)

	// A different transaction id against a paid order is a conflict.
	_, err = svc.Confirm(context.Background(), "ORD-1001", "TXN-2")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestConfirmRejectsExpiredWindow(t *testing.T) {
	order := stubPendingOrder()
	expiry := serviceNow.Add(-time.Minute)
	order.PaymentExpiry = &expiry
	repo := &stubPaymentsRepo{order: order}
	svc := newTestService(t, repo, &stubVerifier{})

	_, err := svc.Confirm(context.Background(), "ORD-1001", "TXN-1")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	require.Empty(t, repo.markPaidCalls)
}

func TestCancelIdempotent(t *testing.T) {
	order := stubPendingOrder()
	order.PaymentStatus = enums.PaymentStatusCancelled
	svc := newTestService(t, &stubPaymentsRepo{order: order}, &stubVerifier{})

	status, err := svc.Cancel(context.Background(), "ORD-1001")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCancelled, status.PaymentStatus)
}

func validVerdict() *slip.Verdict {
	return &slip.Verdict{
		Valid:          true,
		Reason:         enums.VerdictReasonOK,
		OrderID:        "ORD-1001",
		TransactionRef: "KTB123456",
		SlipAmount:     decimal.RequireFromString("150.00"),
		AmountFound:    true,
		ExpectedAmount: decimal.RequireFromString("150.00"),
	}
}

func TestVerifySlipAppliesValidVerdict(t *testing.T) {
	repo := &stubPaymentsRepo{order: stubPendingOrder(), markPaidResult: true}
	svc := newTestService(t, repo, &stubVerifier{verdict: validVerdict()})

	verdict, err := svc.VerifySlip(context.Background(), slip.VerifyInput{
		OrderID:  "ORD-1001",
		ImageURL: "http://cdn/slip.jpg",
	})
	require.NoError(t, err)
	require.True(t, verdict.Valid)

	require.Len(t, repo.markPaidCalls, 1)
	call := repo.markPaidCalls[0]
	require.Equal(t, "KTB123456", call.TransactionID)
	require.NotNil(t, call.SlipImageURL)
	require.Equal(t, "http://cdn/slip.jpg", *call.SlipImageURL)
}

func TestVerifySlipRejectionSkipsWrite(t *testing.T) {
	rejected := validVerdict()
	rejected.Valid = false
	rejected.Reason = enums.VerdictReasonAmountMismatch
	repo := &stubPaymentsRepo{order: stubPendingOrder()}
	svc := newTestService(t, repo, &stubVerifier{verdict: rejected})

	verdict, err := svc.VerifySlip(context.Background(), slip.VerifyInput{OrderID: "ORD-1001"})
	require.NoError(t, err)
	require.False(t, verdict.Valid)
	require.Empty(t, repo.markPaidCalls)
}

func TestVerifySlipUniqueViolationBecomesDuplicate(t *testing.T) {
	repo := &stubPaymentsRepo{
		order:       stubPendingOrder(),
		markPaidErr: gorm.ErrDuplicatedKey,
	}
	svc := newTestService(t, repo, &stubVerifier{verdict: validVerdict()})

	verdict, err := svc.VerifySlip(context.Background(), slip.VerifyInput{OrderID: "ORD-1001"})
	require.NoError(t, err)
	require.False(t, verdict.Valid)
	require.Equal(t, enums.VerdictReasonDuplicateSlip, verdict.Reason)
}

func TestVerifySlipLockContention(t *testing.T) {
	store := newFakeLockStore()
	_, err := store.SetNX(context.Background(), store.LockKey("verify", "ORD-1001"), "other", time.Minute)
	require.NoError(t, err)

	lock, err := NewVerifyLock(store, time.Minute)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Repo:      &stubPaymentsRepo{order: stubPendingOrder()},
		Verifier:  &stubVerifier{verdict: validVerdict()},
		Lock:      lock,
		PromptPay: testPromptPayConfig(),
	})
	require.NoError(t, err)

	_, err = svc.VerifySlip(context.Background(), slip.VerifyInput{OrderID: "ORD-1001"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestVerifySlipReleasesLock(t *testing.T) {
	store := newFakeLockStore()
	lock, err := NewVerifyLock(store, time.Minute)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Repo:      &stubPaymentsRepo{order: stubPendingOrder(), markPaidResult: true},
		Verifier:  &stubVerifier{verdict: validVerdict()},
		Lock:      lock,
		PromptPay: testPromptPayConfig(),
	})
	require.NoError(t, err)

	_, err = svc.VerifySlip(context.Background(), slip.VerifyInput{OrderID: "ORD-1001"})
	require.NoError(t, err)

	_, err = svc.VerifySlip(context.Background(), slip.VerifyInput{OrderID: "ORD-1001"})
	require.NoError(t, err)
}

func TestExpireDueCountsFlippedOrders(t *testing.T) {
	repo := &stubPaymentsRepo{
		order:        stubPendingOrder(),
		dueOrders:    []models.Order{{OrderID: "ORD-1"}, {OrderID: "ORD-2"}},
		expireResult: true,
	}
	svc := newTestService(t, repo, &stubVerifier{})

	expired, err := svc.ExpireDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, expired)
	require.Equal(t, 2, repo.expireCalls)
}
