package slip

import (
	"context"
	"regexp"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/promptshop/backend/pkg/errors"
)

// TextRecognizer extracts printed text from an image file. The production
// implementation shells into tesseract; tests stub it.
type TextRecognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// TesseractRecognizer runs OCR through the tesseract C library.
type TesseractRecognizer struct {
	languages []string
}

// NewTesseractRecognizer takes a "+"-separated language list, e.g.
// "tha+eng".
func NewTesseractRecognizer(languages string) *TesseractRecognizer {
	return &TesseractRecognizer{languages: strings.Split(languages, "+")}
}

func (r *TesseractRecognizer) Recognize(ctx context.Context, imagePath string) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		client := gosseract.NewClient()
		defer client.Close()

		if err := client.SetLanguage(r.languages...); err != nil {
			done <- result{err: err}
			return
		}
		if err := client.SetImage(imagePath); err != nil {
			done <- result{err: err}
			return
		}
		text, err := client.Text()
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "ocr cancelled")
	case res := <-done:
		if res.err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, res.err, "run ocr")
		}
		return res.text, nil
	}
}

// Thai bank slips print the amount with comma thousand separators and two
// decimals, optionally suffixed with THB or the Thai baht word.
var amountPattern = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*\.\d{2})\s?(?:THB|บาท)?`)

// ExtractAmount pulls the first non-zero money-looking figure out of OCR
// text. Zero figures are skipped because slips print fee lines like
// "0.00" above the transfer total; all-zero text counts as absent.
func ExtractAmount(text string) (decimal.Decimal, bool) {
	for _, match := range amountPattern.FindAllStringSubmatch(text, -1) {
		amount, err := decimal.NewFromString(strings.ReplaceAll(match[1], ",", ""))
		if err != nil || amount.IsZero() {
			continue
		}
		return amount, true
	}
	return decimal.Zero, false
}
