package cvfeatures

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"testing"
)

// texturedImage draws random grey blocks so the detector has corners to find.
func texturedImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	const block = 16
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			v := uint8(rng.Intn(256))
			for y := by; y < by+block && y < h; y++ {
				for x := bx; x < bx+block && x < w; x++ {
					img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
				}
			}
		}
	}
	return img
}

func TestExtractAndSelfMatch(t *testing.T) {
	a, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	img := texturedImage(320, 240, 7)
	fs, err := a.Extract(context.Background(), img)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	defer fs.Close()

	if fs.Len() == 0 {
		t.Fatal("no keypoints on a textured image")
	}
	if fs.Width != 320 || fs.Height != 240 {
		t.Errorf("size = %dx%d", fs.Width, fs.Height)
	}

	corrs, err := a.Match(fs, fs)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(corrs) == 0 {
		t.Fatal("self match produced no correspondences")
	}
	for _, c := range corrs {
		if c.Query != c.Train {
			t.Errorf("self match paired %v with %v", c.Query, c.Train)
			break
		}
	}
}

func TestUnknownDetector(t *testing.T) {
	if _, err := New(Options{Detector: "sift-9000"}); err == nil {
		t.Error("expected error for unknown detector")
	}
}

func TestExtractCancelled(t *testing.T) {
	a, err := New(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Extract(ctx, texturedImage(64, 64, 1)); err == nil {
		t.Error("expected context error")
	}
}
