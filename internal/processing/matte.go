package processing

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/gift"
	"github.com/nfnt/resize"
)

const (
	DefaultMaxSide   = 512
	DefaultTolerance = 0.12
	DefaultFeather   = 1.2
)

// MatteRemover separates the subject from a roughly uniform backdrop. It
// estimates the backdrop colour from the border, flood-fills everything
// connected to the border within Tolerance and feathers the resulting mask.
// Images that already carry transparency are returned unchanged.
type MatteRemover struct {
	// MaxSide bounds the longest side of the working copy used for the mask.
	MaxSide int
	// Tolerance is the normalized RGB distance still counted as backdrop.
	Tolerance float64
	// Feather is the Gaussian blur sigma applied to the mask edge.
	Feather float32
}

func NewMatteRemover(maxSide int) *MatteRemover {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	return &MatteRemover{MaxSide: maxSide, Tolerance: DefaultTolerance, Feather: DefaultFeather}
}

func (m *MatteRemover) Remove(ctx context.Context, img image.Image, progress Progress) (image.Image, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	src := toNRGBA(img)
	if src.Rect.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrProcessing)
	}
	if hasUsefulAlpha(src) {
		progress(1)
		return src, nil
	}

	small := resizeWithinMax(src, m.MaxSide)
	progress(0.15)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bg := borderColor(small)
	mask, fg, err := m.floodMask(ctx, small, bg)
	if err != nil {
		return nil, err
	}
	if fg == 0 {
		return nil, fmt.Errorf("%w: no foreground detected", ErrProcessing)
	}
	progress(0.6)

	w, h := src.Rect.Dx(), src.Rect.Dy()
	filters := []gift.Filter{}
	if m.Feather > 0 {
		filters = append(filters, gift.GaussianBlur(m.Feather))
	}
	if mask.Rect.Dx() != w || mask.Rect.Dy() != h {
		filters = append(filters, gift.Resize(w, h, gift.LinearResampling))
	}
	g := gift.New(filters...)
	alpha := image.NewGray(g.Bounds(mask.Bounds()))
	g.Draw(alpha, mask)
	progress(0.85)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := image.NewNRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	for y := 0; y < h; y++ {
		row := y * out.Stride
		arow := y * alpha.Stride
		for x := 0; x < w; x++ {
			out.Pix[row+x*4+3] = alpha.Pix[arow+x]
		}
	}
	progress(1)
	return out, nil
}

// floodMask marks every pixel reachable from the border through
// backdrop-coloured neighbours as transparent. It returns the mask and the
// number of foreground pixels.
func (m *MatteRemover) floodMask(ctx context.Context, img *image.NRGBA, bg [3]float64) (*image.Gray, int, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	limit := m.Tolerance * math.Sqrt(3) * 255
	limit *= limit

	isBackdrop := func(x, y int) bool {
		i := y*img.Stride + x*4
		dr := float64(img.Pix[i]) - bg[0]
		dg := float64(img.Pix[i+1]) - bg[1]
		db := float64(img.Pix[i+2]) - bg[2]
		return dr*dr+dg*dg+db*db <= limit
	}

	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}
	visited := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		idx := y*w + x
		if visited[idx] {
			return
		}
		visited[idx] = true
		if isBackdrop(x, y) {
			queue = append(queue, idx)
		}
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	cleared := 0
	for n := 0; len(queue) > 0; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := idx%w, idx/w
		mask.Pix[y*mask.Stride+x] = 0
		cleared++
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}
	return mask, w*h - cleared, nil
}

// borderColor averages the outermost ring of pixels.
func borderColor(img *image.NRGBA) [3]float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var sum [3]float64
	n := 0
	add := func(x, y int) {
		i := y*img.Stride + x*4
		sum[0] += float64(img.Pix[i])
		sum[1] += float64(img.Pix[i+1])
		sum[2] += float64(img.Pix[i+2])
		n++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		if h > 1 {
			add(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		if w > 1 {
			add(w-1, y)
		}
	}
	for i := range sum {
		sum[i] /= float64(n)
	}
	return sum
}

// resizeWithinMax scales img down so its longest side is at most maxSize.
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	longest := max(w, h)
	if maxSize <= 0 || longest <= maxSize {
		return img
	}
	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))
	return toNRGBA(resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3))
}
