package slip

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/shopspring/decimal"

	"github.com/promptshop/backend/internal/promptpay"
	"github.com/promptshop/backend/pkg/db/models"
	"github.com/promptshop/backend/pkg/enums"
	pkgerrors "github.com/promptshop/backend/pkg/errors"
	"github.com/promptshop/backend/pkg/logger"
	"github.com/promptshop/backend/pkg/metrics"
)

// amountTolerance is how far the OCR'd slip amount may drift from the
// order subtotal before the slip is rejected.
var amountTolerance = decimal.NewFromFloat(0.01)

// ImageFetcher downloads a slip image by URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageNormalizer turns raw image bytes into a decoded, OCR-ready image.
type ImageNormalizer interface {
	Normalize(data []byte) (*NormalizedImage, error)
}

// QRScanner finds a QR payload inside an image.
type QRScanner interface {
	Scan(img image.Image) (string, bool, error)
}

// OrderLookup provides the order reads the verification pipeline needs.
type OrderLookup interface {
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	TransactionUsedByOther(ctx context.Context, transactionRef, orderID string) (bool, error)
}

// Verdict is the outcome of running a slip through the pipeline. A verdict
// is always a judgement about the slip; infrastructure and state problems
// surface as errors instead.
type Verdict struct {
	Valid           bool
	Reason          enums.VerdictReason
	OrderID         string
	TransactionRef  string
	TransactionTime time.Time
	SendingBank     string
	ReceivingBank   string
	SlipAmount      decimal.Decimal
	AmountFound     bool
	ExpectedAmount  decimal.Decimal
}

// VerifyInput identifies the order being paid and carries the slip image
// either by URL or as an already-uploaded buffer.
type VerifyInput struct {
	OrderID   string
	ImageURL  string
	ImageData []byte
}

// EngineParams wires the pipeline stages.
type EngineParams struct {
	Logger     *logger.Logger
	Fetcher    ImageFetcher
	Normalizer ImageNormalizer
	Scanner    QRScanner
	Recognizer TextRecognizer
	Orders     OrderLookup
	Metrics    *metrics.SlipVerificationMetrics
	Now        func() time.Time
}

// Engine runs the slip verification pipeline: fetch, normalize, scan,
// decode, order checks, OCR, amount comparison.
type Engine struct {
	logg       *logger.Logger
	fetcher    ImageFetcher
	normalizer ImageNormalizer
	scanner    QRScanner
	recognizer TextRecognizer
	orders     OrderLookup
	metrics    *metrics.SlipVerificationMetrics
	now        func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("slip engine requires a logger")
	}
	if params.Fetcher == nil {
		return nil, fmt.Errorf("slip engine requires a fetcher")
	}
	if params.Normalizer == nil {
		return nil, fmt.Errorf("slip engine requires a normalizer")
	}
	if params.Scanner == nil {
		return nil, fmt.Errorf("slip engine requires a scanner")
	}
	if params.Recognizer == nil {
		return nil, fmt.Errorf("slip engine requires a text recognizer")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("slip engine requires an order lookup")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		logg:       params.Logger,
		fetcher:    params.Fetcher,
		normalizer: params.Normalizer,
		scanner:    params.Scanner,
		recognizer: params.Recognizer,
		orders:     params.Orders,
		metrics:    params.Metrics,
		now:        now,
	}, nil
}

// Verify runs the full pipeline and returns a verdict. Order-not-found,
// already-paid and infrastructure failures return typed errors; everything
// the slip itself can be blamed for becomes a rejection verdict.
func (e *Engine) Verify(ctx context.Context, input VerifyInput) (*Verdict, error) {
	started := time.Now()
	verdict, err := e.verify(ctx, input)
	e.metrics.ObserveDuration(time.Since(started))
	if err != nil {
		e.metrics.IncFailure()
		return nil, err
	}
	e.metrics.ObserveVerdict(string(verdict.Reason))
	return verdict, nil
}

func (e *Engine) verify(ctx context.Context, input VerifyInput) (*Verdict, error) {
	ctx = e.logg.WithOrderID(ctx, input.OrderID)

	data := input.ImageData
	if len(data) == 0 {
		fetched, err := e.fetcher.Fetch(ctx, input.ImageURL)
		if err != nil {
			return nil, err
		}
		data = fetched
	}

	normalized, err := e.normalizer.Normalize(data)
	if err != nil {
		return nil, err
	}
	defer normalized.Close()

	verdict := &Verdict{OrderID: input.OrderID, Reason: enums.VerdictReasonOK}

	payload, found, err := e.scanner.Scan(normalized.Image)
	if err != nil {
		return nil, err
	}
	if !found {
		verdict.Reason = enums.VerdictReasonNoQRFound
		return verdict, nil
	}

	decoded, decodeErr := promptpay.Decode(payload)
	if decodeErr != nil || decoded.TransactionRef == "" {
		e.logg.Info(ctx, "slip qr carried no transaction reference")
		verdict.Reason = enums.VerdictReasonNoPayloadRef
		return verdict, nil
	}
	verdict.TransactionRef = decoded.TransactionRef
	verdict.SendingBank = promptpay.BankName(decoded.SendingBankCode)
	if decoded.ReceivingBankCode != "" {
		verdict.ReceivingBank = promptpay.BankName(decoded.ReceivingBankCode)
	}
	verdict.TransactionTime = e.transactionTime(decoded)

	order, err := e.orders.FindByOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	verdict.ExpectedAmount = order.Subtotal

	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s is already paid", order.OrderID))
	}
	if order.PaymentStatus == enums.PaymentStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order %s is cancelled", order.OrderID))
	}
	if e.orderExpired(order) {
		verdict.Reason = enums.VerdictReasonExpired
		return verdict, nil
	}

	duplicate, err := e.orders.TransactionUsedByOther(ctx, decoded.TransactionRef, order.OrderID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		verdict.Reason = enums.VerdictReasonDuplicateSlip
		return verdict, nil
	}

	text, err := e.recognizer.Recognize(ctx, normalized.Path)
	if err != nil {
		return nil, err
	}

	amount, ok := ExtractAmount(text)
	if !ok {
		verdict.Reason = enums.VerdictReasonNoAmountData
		return verdict, nil
	}
	verdict.SlipAmount = amount
	verdict.AmountFound = true

	if amount.Sub(order.Subtotal).Abs().GreaterThanOrEqual(amountTolerance) {
		verdict.Reason = enums.VerdictReasonAmountMismatch
		return verdict, nil
	}

	verdict.Valid = true
	return verdict, nil
}

func (e *Engine) orderExpired(order *models.Order) bool {
	if order.PaymentStatus == enums.PaymentStatusExpired {
		return true
	}
	return order.PaymentExpiry != nil && e.now().After(*order.PaymentExpiry)
}

// transactionTime combines the payload's date and time fields. Slips that
// omit them get the wall clock, which keeps the verdict usable for
// bookkeeping without blocking verification.
func (e *Engine) transactionTime(decoded *promptpay.DecodedPayload) time.Time {
	if decoded.TransactionDate == "" || decoded.TransactionTime == "" {
		return e.now()
	}
	ts, err := time.ParseInLocation("20060102150405", decoded.TransactionDate+decoded.TransactionTime, time.Local)
	if err != nil {
		return e.now()
	}
	return ts
}
