package promptpay

import (
	qrcode "github.com/skip2/go-qrcode"

	pkgerrors "github.com/promptshop/backend/pkg/errors"
)

// Render encodes the payload as a PNG QR image of the given edge size in
// pixels.
func Render(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "empty payload")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render qr image")
	}
	return png, nil
}
