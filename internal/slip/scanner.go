package slip

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	pkgerrors "github.com/promptshop/backend/pkg/errors"
)

// Scanner locates and decodes a QR code inside a slip image.
type Scanner struct {
	reader gozxing.Reader
}

func NewScanner() *Scanner {
	return &Scanner{reader: qrcode.NewQRCodeReader()}
}

// Scan returns the QR payload and whether one was found. A slip without a
// readable QR is a negative result, not an error.
func (s *Scanner) Scan(img image.Image) (string, bool, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "binarize slip image")
	}

	result, err := s.reader.Decode(bmp, map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	})
	if err != nil {
		if _, ok := err.(gozxing.NotFoundException); ok {
			return "", false, nil
		}
		if _, ok := err.(gozxing.ReaderException); ok {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode slip qr")
	}
	return result.GetText(), true, nil
}
