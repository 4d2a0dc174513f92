package promptpay

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/promptshop/backend/pkg/errors"
)

// EMV tag ids used by the Thai PromptPay payload schema.
const (
	tagFormatIndicator   = "00"
	tagPointOfInitiation = "01"
	tagMerchantInfo      = "29"
	tagCurrency          = "53"
	tagAmount            = "54"
	tagCountryCode       = "58"
	tagAdditionalData    = "62"
	tagCRC               = "63"

	subTagAID        = "00"
	subTagPhone      = "01"
	subTagNationalID = "02"
	subTagEWallet    = "03"

	subTagRef  = "05"
	subTagDate = "07"
	subTagTime = "08"

	// Slip mini-QR template (nested under tag 00 on bank transfer slips).
	slipSubTagAPIID         = "00"
	slipSubTagSendingBank   = "01"
	slipSubTagRef           = "02"
	slipSubTagReceivingBank = "03"

	aidPromptPay    = "A000000677010111"
	currencyTHB     = "764"
	countryThailand = "TH"

	initiationStatic  = "11"
	initiationDynamic = "12"
)

// DecodedPayload is the flattened view of a scanned QR payload. A payment
// QR fills MerchantID/Amount and the tag-62 fields; a slip mini-QR fills
// TransactionRef and the bank codes. Absent fields stay empty.
type DecodedPayload struct {
	TransactionRef    string
	TransactionDate   string
	TransactionTime   string
	SendingBankCode   string
	ReceivingBankCode string
	MerchantID        string
	Amount            string
}

// field is one TLV element of an EMV payload.
type field struct {
	Tag   string
	Value string
}

// Encode builds a PromptPay payment payload for the given proxy target.
// Target is either a Thai mobile number (0XXXXXXXXX), a 13-digit national
// id, or an e-wallet id; amount is the pre-formatted decimal string and must
// be positive, or empty for a static QR.
func Encode(target, amount string) (string, error) {
	proxy, err := merchantProxy(target)
	if err != nil {
		return "", err
	}

	initiation := initiationStatic
	if amount != "" {
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("malformed amount %q", amount))
		}
		if !parsed.IsPositive() {
			return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must be positive, got %s", amount))
		}
		initiation = initiationDynamic
	}

	fields := []field{
		{tagFormatIndicator, "01"},
		{tagPointOfInitiation, initiation},
		{tagMerchantInfo, encodeFields([]field{
			{subTagAID, aidPromptPay},
			proxy,
		})},
		{tagCurrency, currencyTHB},
	}
	if amount != "" {
		fields = append(fields, field{tagAmount, amount})
	}
	fields = append(fields, field{tagCountryCode, countryThailand})

	payload := encodeFields(fields) + tagCRC + "04"
	return payload + checksum(payload), nil
}

// merchantProxy classifies the proxy target into the matching tag-29
// sub-field. Phone numbers are rewritten to the 0066 international form
// zero-padded to 13 digits, the format the PromptPay rail expects.
func merchantProxy(target string) (field, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, target)

	switch {
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		return field{subTagPhone, "0066" + digits[1:]}, nil
	case len(digits) == 13:
		return field{subTagNationalID, digits}, nil
	case len(digits) >= 15:
		return field{subTagEWallet, digits}, nil
	default:
		return field{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized promptpay target %q", target))
	}
}

func encodeFields(fields []field) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.Tag)
		b.WriteString(lengthPrefix(f.Value))
		b.WriteString(f.Value)
	}
	return b.String()
}

func lengthPrefix(value string) string {
	n := len(value)
	return string([]byte{'0' + byte(n/10%10), '0' + byte(n%10)})
}

// Decode parses a scanned payload into its flattened fields. It accepts
// both payment QRs and the mini-QR printed on bank transfer slips: on a
// slip, tag 00 holds a nested template instead of the "01" format
// indicator.
func Decode(payload string) (*DecodedPayload, error) {
	fields, err := parseFields(payload)
	if err != nil {
		return nil, err
	}
	decoded := &DecodedPayload{}

	isSlip := false
	if root, ok := fields[tagFormatIndicator]; ok && root != "01" {
		slip, err := parseFields(root)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed slip template")
		}
		isSlip = true
		decoded.SendingBankCode = slip[slipSubTagSendingBank]
		decoded.TransactionRef = slip[slipSubTagRef]
		decoded.ReceivingBankCode = slip[slipSubTagReceivingBank]
	}

	if merchant, ok := fields[tagMerchantInfo]; ok && !isSlip {
		sub, err := parseFields(merchant)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed merchant template")
		}
		for _, tag := range []string{subTagPhone, subTagNationalID, subTagEWallet} {
			if v := sub[tag]; v != "" {
				decoded.MerchantID = v
				break
			}
		}
	}
	if !isSlip {
		decoded.Amount = fields[tagAmount]
	}

	if extra, ok := fields[tagAdditionalData]; ok {
		sub, err := parseFields(extra)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed additional data template")
		}
		if decoded.TransactionRef == "" {
			decoded.TransactionRef = sub[subTagRef]
		}
		decoded.TransactionDate = sub[subTagDate]
		decoded.TransactionTime = sub[subTagTime]
	}

	return decoded, nil
}

// parseFields reads one level of TLV fields. Later duplicates win, which
// matches how the rail treats repeated tags.
func parseFields(payload string) (map[string]string, error) {
	fields := make(map[string]string)
	for i := 0; i < len(payload); {
		if i+4 > len(payload) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("truncated field header at offset %d", i))
		}
		tag := payload[i : i+2]
		length, ok := parseLength(payload[i+2 : i+4])
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid length for tag %s", tag))
		}
		i += 4
		if i+length > len(payload) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("field %s overruns payload", tag))
		}
		fields[tag] = payload[i : i+length]
		i += length
	}
	return fields, nil
}

func parseLength(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// checksum computes the CRC-16/CCITT-FALSE of the payload (initial value
// 0xFFFF, polynomial 0x1021) as four uppercase hex digits.
func checksum(payload string) string {
	crc := uint16(0xFFFF)
	for i := 0; i < len(payload); i++ {
		crc ^= uint16(payload[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	const hex = "0123456789ABCDEF"
	return string([]byte{
		hex[crc>>12&0xF], hex[crc>>8&0xF], hex[crc>>4&0xF], hex[crc&0xF],
	})
}

// VerifyChecksum reports whether the payload's trailing CRC matches its
// contents. Scanners tolerate payloads without a CRC field; callers that
// care should check the Decode error instead.
func VerifyChecksum(payload string) bool {
	idx := strings.LastIndex(payload, tagCRC+"04")
	if idx < 0 || idx+8 != len(payload) {
		return false
	}
	return checksum(payload[:idx+4]) == payload[idx+4:]
}
