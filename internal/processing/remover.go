package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrProcessing wraps every background-removal failure.
var ErrProcessing = errors.New("background removal failed")

// Progress receives a completion fraction in [0, 1]. Calls are monotonic.
type Progress func(fraction float64)

// Remover turns an image into one whose background is transparent.
type Remover interface {
	Remove(ctx context.Context, img image.Image, progress Progress) (image.Image, error)
}

// New returns an HTTPRemover when url is set, otherwise the local MatteRemover.
func New(url string, maxSide int) Remover {
	if url != "" {
		return NewHTTPRemover(url, nil)
	}
	return NewMatteRemover(maxSide)
}

// Decode reads any PNG, JPEG, GIF or WebP image.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %v", ErrProcessing, err)
	}
	return img, format, nil
}

// EncodePNG writes img as PNG, keeping its alpha channel.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("%w: encode png: %v", ErrProcessing, err)
	}
	return nil
}

// RemoveBytes decodes r, removes its background and returns PNG bytes.
func RemoveBytes(ctx context.Context, rm Remover, r io.Reader, progress Progress) ([]byte, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	src, _, err := Decode(r)
	if err != nil {
		return nil, err
	}
	out, err := rm.Remove(ctx, src, progress)
	if err != nil {
		if errors.Is(err, ErrProcessing) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	var buf bytes.Buffer
	if err := EncodePNG(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toNRGBA returns img as a packed NRGBA anchored at the origin, so Pix holds
// exactly Dx*Dy pixels with Stride == 4*Dx. Sub-images are copied.
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) &&
		nrgba.Stride == 4*nrgba.Rect.Dx() && len(nrgba.Pix) == nrgba.Stride*nrgba.Rect.Dy() {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// hasUsefulAlpha reports whether any pixel is not fully opaque.
func hasUsefulAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}
