package embedding

import (
	"context"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	thumbSize   = 16
	gridCells   = 4
	orientBins  = 8
	gradWeight  = 1.5
	thumbVector = thumbSize*thumbSize + gridCells*gridCells*orientBins
)

// ThumbnailEmbedder is a deterministic Model built from a tiny grayscale
// thumbnail: mean-centred intensities plus gradient orientation histograms
// over a 4x4 grid. It only separates grossly different views, which is all
// the ranking stage needs to order candidates for verification.
type ThumbnailEmbedder struct{}

// NewThumbnailEmbedder returns the embedder.
func NewThumbnailEmbedder() *ThumbnailEmbedder {
	return &ThumbnailEmbedder{}
}

// Dim is the length of the vectors Embed returns.
func (ThumbnailEmbedder) Dim() int {
	return thumbVector
}

// Embed computes the normalized thumbnail vector.
func (ThumbnailEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}

	thumb := image.NewGray(image.Rect(0, 0, thumbSize, thumbSize))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Src, nil)

	px := func(x, y int) float64 {
		x = max(0, min(thumbSize-1, x))
		y = max(0, min(thumbSize-1, y))
		return float64(thumb.GrayAt(x, y).Y) / 255
	}

	var mean float64
	for y := 0; y < thumbSize; y++ {
		for x := 0; x < thumbSize; x++ {
			mean += px(x, y)
		}
	}
	mean /= thumbSize * thumbSize

	v := make([]float32, thumbVector)
	for y := 0; y < thumbSize; y++ {
		for x := 0; x < thumbSize; x++ {
			v[y*thumbSize+x] = float32(px(x, y) - mean)
		}
	}

	hist := v[thumbSize*thumbSize:]
	cell := thumbSize / gridCells
	for y := 0; y < thumbSize; y++ {
		for x := 0; x < thumbSize; x++ {
			gx := px(x+1, y) - px(x-1, y)
			gy := px(x, y+1) - px(x, y-1)
			mag := math.Hypot(gx, gy)
			if mag == 0 {
				continue
			}
			angle := math.Atan2(gy, gx)
			if angle < 0 {
				angle += math.Pi
			}
			bin := int(angle / math.Pi * orientBins)
			if bin >= orientBins {
				bin = orientBins - 1
			}
			c := (y/cell)*gridCells + x/cell
			hist[c*orientBins+bin] += float32(gradWeight * mag)
		}
	}

	return Normalize(v), nil
}
