package controllers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/promptshop/backend/api/responses"
	"github.com/promptshop/backend/api/validators"
	"github.com/promptshop/backend/internal/payments"
	"github.com/promptshop/backend/internal/slip"
	"github.com/promptshop/backend/pkg/enums"
	pkgerrors "github.com/promptshop/backend/pkg/errors"
	"github.com/promptshop/backend/pkg/logger"
)

type generateQRRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type confirmPaymentRequest struct {
	OrderID       string `json:"orderId" validate:"required"`
	TransactionID string `json:"transactionId" validate:"required"`
}

type verifySlipRequest struct {
	OrderID  string `json:"orderId" validate:"required"`
	ImageURL string `json:"imageUrl" validate:"required,url"`
}

// GenerateQR arms a PromptPay QR payment session for an order.
func GenerateQR(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateQRRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.GenerateQR(r.Context(), req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "QR code generated", session)
	}
}

// GenerateBillQR arms a bill-payment QR session targeting the shop's bank
// account.
func GenerateBillQR(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateQRRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.GenerateBillQR(r.Context(), req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Bill payment QR code generated", session)
	}
}

// PaymentStatus returns the payment state of an order.
func PaymentStatus(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		status, err := svc.Status(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "", status)
	}
}

// ConfirmPayment marks an order paid with a caller-supplied transaction id.
func ConfirmPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.Confirm(r.Context(), req.OrderID, validators.SanitizeString(req.TransactionID, 64))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment confirmed", status)
	}
}

// CancelPayment voids a pending payment session.
func CancelPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		status, err := svc.Cancel(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Payment cancelled", status)
	}
}

// VerifySlip runs a slip image, referenced by URL, through the
// verification pipeline.
func VerifySlip(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifySlipRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		verdict, err := svc.VerifySlip(r.Context(), slip.VerifyInput{
			OrderID:  req.OrderID,
			ImageURL: req.ImageURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeVerdict(w, verdict)
	}
}

// maxSlipUploadBytes caps direct slip uploads.
const maxSlipUploadBytes = 5 << 20

// VerifySlipUpload accepts a multipart slip upload and runs it through the
// verification pipeline.
func VerifySlipUpload(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSlipUploadBytes)
		if err := r.ParseMultipartForm(maxSlipUploadBytes); err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "slip upload too large or malformed"))
			return
		}

		orderID := strings.TrimSpace(r.FormValue("orderId"))
		if orderID == "" {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "orderId is required"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "slip file is required"))
			return
		}
		defer file.Close()

		if contentType := header.Header.Get("Content-Type"); contentType != "" && !strings.HasPrefix(contentType, "image/") {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported slip content type %q", contentType)))
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read slip upload"))
			return
		}

		verdict, err := svc.VerifySlip(r.Context(), slip.VerifyInput{
			OrderID:   orderID,
			ImageData: data,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeVerdict(w, verdict)
	}
}

// verdictResponse is the wire shape of a verification outcome, including
// the per-check breakdown the storefront renders.
type verdictResponse struct {
	OrderID             string             `json:"orderId"`
	IsValid             bool               `json:"isValid"`
	Reason              string             `json:"reason"`
	TransactionRef      string             `json:"transRef,omitempty"`
	TransactionDateTime string             `json:"transactionDateTime,omitempty"`
	SendingBank         string             `json:"sendingBank,omitempty"`
	ReceivingBank       string             `json:"receivingBank,omitempty"`
	Amount              string             `json:"amount,omitempty"`
	ExpectedAmount      string             `json:"expectedAmount,omitempty"`
	Validations         verdictValidations `json:"validations"`
}

type verdictValidations struct {
	QRCodeFound  bool `json:"qrCodeFound"`
	AmountMatch  bool `json:"amountMatch"`
	NotDuplicate bool `json:"notDuplicate"`
	NotExpired   bool `json:"notExpired"`
}

func writeVerdict(w http.ResponseWriter, verdict *slip.Verdict) {
	resp := verdictResponse{
		OrderID:        verdict.OrderID,
		IsValid:        verdict.Valid,
		Reason:         string(verdict.Reason),
		TransactionRef: verdict.TransactionRef,
		SendingBank:    verdict.SendingBank,
		ReceivingBank:  verdict.ReceivingBank,
		Validations: verdictValidations{
			QRCodeFound:  verdict.Reason != enums.VerdictReasonNoQRFound,
			AmountMatch:  verdict.Valid,
			NotDuplicate: verdict.Reason != enums.VerdictReasonDuplicateSlip,
			NotExpired:   verdict.Reason != enums.VerdictReasonExpired,
		},
	}
	if !verdict.TransactionTime.IsZero() {
		resp.TransactionDateTime = verdict.TransactionTime.Format("2006-01-02T15:04:05Z07:00")
	}
	if verdict.AmountFound {
		resp.Amount = verdict.SlipAmount.StringFixed(2)
	}
	if !verdict.ExpectedAmount.IsZero() {
		resp.ExpectedAmount = verdict.ExpectedAmount.StringFixed(2)
	}

	if verdict.Valid {
		responses.WriteSuccess(w, "Slip verified, payment completed", resp)
		return
	}
	responses.WriteRejection(w, verdictMessage(verdict), resp)
}

func verdictMessage(verdict *slip.Verdict) string {
	switch verdict.Reason {
	case enums.VerdictReasonNoQRFound:
		return "No QR code found in the image; make sure it is a transfer slip"
	case enums.VerdictReasonNoPayloadRef:
		return "Could not read a transaction reference from the slip; use the bank's success slip, not a payment QR"
	case enums.VerdictReasonDuplicateSlip:
		return "This slip has already been used"
	case enums.VerdictReasonNoAmountData:
		return "Could not read the transfer amount from the slip"
	case enums.VerdictReasonAmountMismatch:
		return fmt.Sprintf("Amount does not match the order (expected %s, slip shows %s)",
			verdict.ExpectedAmount.StringFixed(2), verdict.SlipAmount.StringFixed(2))
	case enums.VerdictReasonExpired:
		return "The payment window for this order has expired"
	default:
		return "Slip rejected"
	}
}
