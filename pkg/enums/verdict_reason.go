package enums

// VerdictReason explains why a slip verification verdict accepted or
// rejected a payment proof. Every rejection carries exactly one reason.
type VerdictReason string

const (
	VerdictReasonOK             VerdictReason = "ok"
	VerdictReasonNoQRFound      VerdictReason = "no_qr_found"
	VerdictReasonNoPayloadRef   VerdictReason = "no_payload_ref"
	VerdictReasonDuplicateSlip  VerdictReason = "duplicate_slip"
	VerdictReasonAmountMismatch VerdictReason = "amount_mismatch"
	VerdictReasonNoAmountData   VerdictReason = "no_amount_data"
	VerdictReasonExpired        VerdictReason = "expired"
)

var validVerdictReasons = []VerdictReason{
	VerdictReasonOK,
	VerdictReasonNoQRFound,
	VerdictReasonNoPayloadRef,
	VerdictReasonDuplicateSlip,
	VerdictReasonAmountMismatch,
	VerdictReasonNoAmountData,
	VerdictReasonExpired,
}

// IsValid reports whether the value matches the canonical verdict reason enum.
func (v VerdictReason) IsValid() bool {
	for _, candidate := range validVerdictReasons {
		if candidate == v {
			return true
		}
	}
	return false
}
