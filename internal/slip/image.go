package slip

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"os"
	"time"

	_ "image/png"

	_ "golang.org/x/image/webp"

	pkgerrors "github.com/promptshop/backend/pkg/errors"
)

// Fetcher downloads slip images over HTTP with a hard byte ceiling.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads the image at url. Oversized bodies and non-2xx statuses
// are dependency errors so callers can distinguish them from bad slips.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build image request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "download slip image")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("slip image fetch returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read slip image body")
	}
	if int64(len(data)) > f.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("slip image exceeds %d bytes", f.maxBytes))
	}
	return data, nil
}

// NormalizedImage is a slip image decoded into memory and persisted as a
// canonical JPEG on disk for the OCR engine. Callers must Close it to
// release the temp file.
type NormalizedImage struct {
	Image image.Image
	Path  string
}

func (n *NormalizedImage) Close() error {
	if n == nil || n.Path == "" {
		return nil
	}
	return os.Remove(n.Path)
}

// Normalizer decodes JPEG, PNG and WEBP slips into a canonical JPEG.
type Normalizer struct {
	tempDir string
}

func NewNormalizer(tempDir string) *Normalizer {
	return &Normalizer{tempDir: tempDir}
}

// Normalize decodes the raw image bytes and writes a JPEG temp file.
// Already-JPEG input is written as-is; other formats are re-encoded.
func (n *Normalizer) Normalize(data []byte) (*NormalizedImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported slip image format")
	}

	file, err := os.CreateTemp(n.tempDir, "slip-*.jpg")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create temp slip file")
	}

	if format == "jpeg" {
		_, err = file.Write(data)
	} else {
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(file.Name())
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write normalized slip image")
	}

	return &NormalizedImage{Image: img, Path: file.Name()}, nil
}
