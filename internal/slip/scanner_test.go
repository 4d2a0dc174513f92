package slip

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	qrencode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/require"
)

func TestScanFindsQRPayload(t *testing.T) {
	const payload = "00020101021229370016A00000067701011101130066812345678530376463041234"

	data, err := qrencode.Encode(payload, qrencode.Medium, 256)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	scanner := NewScanner()
	got, found, err := scanner.Scan(img)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload, got)
}

func TestScanReportsAbsentQR(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.White)
		}
	}

	scanner := NewScanner()
	_, found, err := scanner.Scan(img)
	require.NoError(t, err)
	require.False(t, found)
}
