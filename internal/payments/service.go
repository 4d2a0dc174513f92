package payments

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/promptshop/backend/internal/promptpay"
	"github.com/promptshop/backend/internal/slip"
	"github.com/promptshop/backend/pkg/config"
	"github.com/promptshop/backend/pkg/db"
	"github.com/promptshop/backend/pkg/db/models"
	"github.com/promptshop/backend/pkg/enums"
	pkgerrors "github.com/promptshop/backend/pkg/errors"
	"github.com/promptshop/backend/pkg/logger"
)

const transactionIDConstraint = "orders_transaction_id_key"

// SlipVerifier runs a slip through the verification pipeline.
type SlipVerifier interface {
	Verify(ctx context.Context, input slip.VerifyInput) (*slip.Verdict, error)
}

// Service owns the order payment state machine: arming QR sessions,
// confirming and cancelling payments, applying slip verdicts and expiring
// stale sessions.
type Service interface {
	GenerateQR(ctx context.Context, orderID string) (*SessionDTO, error)
	GenerateBillQR(ctx context.Context, orderID string) (*SessionDTO, error)
	Status(ctx context.Context, orderID string) (*StatusDTO, error)
	Confirm(ctx context.Context, orderID, transactionID string) (*StatusDTO, error)
	Cancel(ctx context.Context, orderID string) (*StatusDTO, error)
	VerifySlip(ctx context.Context, input slip.VerifyInput) (*slip.Verdict, error)
	ExpireDue(ctx context.Context) (int, error)
}

// ServiceParams configure the payments service.
type ServiceParams struct {
	Logger    *logger.Logger
	Repo      Repository
	Verifier  SlipVerifier
	Lock      *VerifyLock
	PromptPay config.PromptPayConfig
	Now       func() time.Time
}

type service struct {
	logg     *logger.Logger
	repo     Repository
	verifier SlipVerifier
	lock     *VerifyLock
	cfg      config.PromptPayConfig
	now      func() time.Time
}

// NewService builds a payments service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("slip verifier required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("verify lock required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		logg:     params.Logger,
		repo:     params.Repo,
		verifier: params.Verifier,
		lock:     params.Lock,
		cfg:      params.PromptPay,
		now:      now,
	}, nil
}

func (s *service) GenerateQR(ctx context.Context, orderID string) (*SessionDTO, error) {
	return s.armSession(ctx, orderID, s.cfg.MerchantPhone, enums.PaymentMethodQR, nil)
}

func (s *service) GenerateBillQR(ctx context.Context, orderID string) (*SessionDTO, error) {
	account := &BillAccountDTO{
		AccountNumber: s.cfg.BillAccountNumber,
		BankName:      promptpay.BankName(s.cfg.BillBankCode),
		AccountName:   s.cfg.BillAccountName,
	}
	return s.armSession(ctx, orderID, s.cfg.BillAccountNumber, enums.PaymentMethodBankTransfer, account)
}

// armSession builds a fresh QR for the order and re-arms its payment
// window. Re-generating over a still-pending session is allowed; paid and
// cancelled orders are not.
func (s *service) armSession(ctx context.Context, orderID, target string, method enums.PaymentMethod, account *BillAccountDTO) (*SessionDTO, error) {
	ctx = s.logg.WithOrderID(ctx, orderID)

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s payment is already %s", orderID, order.PaymentStatus))
	}

	payload, err := promptpay.Encode(target, order.Subtotal.StringFixed(2))
	if err != nil {
		return nil, err
	}
	png, err := promptpay.Render(payload, s.cfg.QRImageSize)
	if err != nil {
		return nil, err
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	expiresAt := s.now().Add(s.cfg.ExpiryWindow)
	order.QRCodeData = &dataURL
	order.PaymentExpiry = &expiresAt
	order.PaymentStatus = enums.PaymentStatusPending
	order.PaymentMethod = method

	if err := s.repo.Save(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment session")
	}
	s.logg.Info(ctx, "payment session armed")

	return &SessionDTO{
		OrderID:     order.OrderID,
		Amount:      order.Subtotal,
		QRCodeText:  payload,
		QRCodeImage: dataURL,
		ExpiresAt:   expiresAt,
		Account:     account,
	}, nil
}

func (s *service) Status(ctx context.Context, orderID string) (*StatusDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return statusFromModel(order), nil
}

// Confirm marks the order paid with a caller-supplied transaction id.
// Confirming twice with the same transaction id is a no-op.
func (s *service) Confirm(ctx context.Context, orderID, transactionID string) (*StatusDTO, error) {
	ctx = s.logg.WithOrderID(ctx, orderID)

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == enums.PaymentStatusPaid {
		if order.TransactionID != nil && *order.TransactionID == transactionID {
			return statusFromModel(order), nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s is already paid", orderID))
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s payment is %s", orderID, order.PaymentStatus))
	}

	now := s.now()
	if order.PaymentExpiry != nil && now.After(*order.PaymentExpiry) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment window has expired")
	}

	applied, err := s.repo.MarkPaid(ctx, MarkPaidParams{
		OrderID:       orderID,
		TransactionID: transactionID,
		PaidAt:        now,
	})
	if err != nil {
		if db.IsUniqueViolation(err, transactionIDConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "transaction id already used by another order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s left the pending state", orderID))
	}
	s.logg.Info(ctx, "payment confirmed")

	return s.Status(ctx, orderID)
}

// Cancel voids a pending payment session. Cancelling an already-cancelled
// order is a no-op.
func (s *service) Cancel(ctx context.Context, orderID string) (*StatusDTO, error) {
	ctx = s.logg.WithOrderID(ctx, orderID)

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == enums.PaymentStatusCancelled {
		return statusFromModel(order), nil
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s is already paid", orderID))
	}

	applied, err := s.repo.MarkCancelled(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel payment")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s left the pending state", orderID))
	}
	s.logg.Info(ctx, "payment cancelled")

	return s.Status(ctx, orderID)
}

// VerifySlip runs the pipeline under the per-order lock and, on a valid
// verdict, applies the pending→paid transition. The unique index on
// transaction_id is the last line of defense against a slip paying for
// two orders at once.
func (s *service) VerifySlip(ctx context.Context, input slip.VerifyInput) (*slip.Verdict, error) {
	ctx = s.logg.WithOrderID(ctx, input.OrderID)

	release, ok, err := s.lock.Acquire(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire verify lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("verification already in progress for order %s", input.OrderID))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(ctx, "release verify lock: "+err.Error())
		}
	}()

	verdict, err := s.verifier.Verify(ctx, input)
	if err != nil {
		return nil, err
	}
	if !verdict.Valid {
		return verdict, nil
	}

	var slipURL *string
	if input.ImageURL != "" {
		url := input.ImageURL
		slipURL = &url
	}

	applied, err := s.repo.MarkPaid(ctx, MarkPaidParams{
		OrderID:       input.OrderID,
		TransactionID: verdict.TransactionRef,
		SlipImageURL:  slipURL,
		PaidAt:        s.now(),
	})
	if err != nil {
		if db.IsUniqueViolation(err, transactionIDConstraint) {
			verdict.Valid = false
			verdict.Reason = enums.VerdictReasonDuplicateSlip
			return verdict, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply verdict")
	}
	if !applied {
		return nil, s.explainRejectedSwap(ctx, input.OrderID)
	}
	s.logg.Info(ctx, "slip accepted, order paid")

	return verdict, nil
}

// explainRejectedSwap reloads the order to say why the compare-and-swap
// did not apply.
func (s *service) explainRejectedSwap(ctx context.Context, orderID string) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s is already paid", orderID))
	}
	if order.PaymentExpiry != nil && s.now().After(*order.PaymentExpiry) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment window has expired")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s left the pending state", orderID))
}

// ExpireDue sweeps pending orders whose payment window has passed and
// returns how many were flipped to expired.
func (s *service) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.FindPendingExpiredBefore(ctx, now, 500)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired sessions")
	}

	expired := 0
	for _, order := range due {
		applied, err := s.repo.MarkExpired(ctx, order.OrderID, now)
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire payment session")
		}
		if applied {
			expired++
		}
	}
	if expired > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired", expired), "expired stale payment sessions")
	}
	return expired, nil
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

// NewOrderLookup adapts the payments repository for the verification
// pipeline, translating storage errors into coded ones.
func NewOrderLookup(repo Repository) slip.OrderLookup {
	return &orderLookup{repo: repo}
}

type orderLookup struct {
	repo Repository
}

func (l *orderLookup) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := l.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (l *orderLookup) TransactionUsedByOther(ctx context.Context, transactionRef, orderID string) (bool, error) {
	used, err := l.repo.TransactionUsedByOther(ctx, transactionRef, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check transaction reuse")
	}
	return used, nil
}
