package embedding

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestFOVBucket(t *testing.T) {
	tests := []struct {
		fov  float64
		want int
	}{
		{73, 70},
		{70, 70},
		{74.9, 70},
		{75, 80},
		{89, 90},
		{4, 0},
	}
	for _, tt := range tests {
		if got := FOVBucket(tt.fov); got != tt.want {
			t.Errorf("FOVBucket(%v) = %d, want %d", tt.fov, got, tt.want)
		}
	}
}

func TestCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryPersistence())

	emb := Normalize([]float32{3, 4, 0})
	if err := c.Set(ctx, "cell-1", "cand-a", 73, emb); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := c.Get(ctx, "cell-1", "cand-a", 70)
	if err != nil || !ok {
		t.Fatalf("Get(70) after Set(73): ok=%v err=%v", ok, err)
	}
	if len(got) != 3 || got[0] != emb[0] || got[1] != emb[1] {
		t.Errorf("Get returned %v, want %v", got, emb)
	}

	if _, ok, _ := c.Get(ctx, "cell-1", "cand-a", 90); ok {
		t.Error("different bucket should miss")
	}
	if _, ok, _ := c.Get(ctx, "cell-1", "unknown", 70); ok {
		t.Error("unset key should miss")
	}
}

func TestCacheGetMany(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewMemoryPersistence())

	for i, id := range []string{"a", "b", "c"} {
		v := make([]float32, 3)
		v[i] = 1
		if err := c.Set(ctx, "cell", id, 60, v); err != nil {
			t.Fatal(err)
		}
	}

	got, err := c.GetMany(ctx, "cell", []string{"a", "c", "missing"}, 62)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("GetMany returned %d entries, want 2", len(got))
	}
	if got["c"][2] != 1 {
		t.Errorf("entry c = %v", got["c"])
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing candidate present in result")
	}
}

func TestCacheClearCell(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPersistence()
	c := NewCache(store)

	_ = c.Set(ctx, "cell-1", "a", 60, []float32{1})
	_ = c.Set(ctx, "cell-2", "a", 60, []float32{1})

	if err := c.ClearCell(ctx, "cell-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "cell-1", "a", 60); ok {
		t.Error("cleared cell still present")
	}
	if _, ok, _ := c.Get(ctx, "cell-2", "a", 60); !ok {
		t.Error("other cell was cleared")
	}

	if err := c.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 {
		t.Errorf("ClearAll left %d records", store.Len())
	}
}

func TestCacheMaxAge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(NewMemoryPersistence(), WithMaxAge(time.Hour), WithClock(func() time.Time { return now }))

	_ = c.Set(ctx, "cell", "a", 60, []float32{1})

	now = now.Add(30 * time.Minute)
	if _, ok, _ := c.Get(ctx, "cell", "a", 60); !ok {
		t.Error("fresh entry missed")
	}

	now = now.Add(time.Hour)
	if _, ok, _ := c.Get(ctx, "cell", "a", 60); ok {
		t.Error("expired entry returned")
	}
	if got, _ := c.GetMany(ctx, "cell", []string{"a"}, 60); len(got) != 0 {
		t.Error("expired entry returned by GetMany")
	}
}

type failingStore struct {
	*MemoryPersistence
}

func (failingStore) Get(ctx context.Context, key string) (Record, bool, error) {
	return Record{}, false, errors.New("disk on fire")
}

func TestCacheGetError(t *testing.T) {
	c := NewCache(failingStore{NewMemoryPersistence()})
	if _, _, err := c.Get(context.Background(), "cell", "a", 60); err == nil {
		t.Error("expected persistence error to surface")
	}
}

func TestEncodeDecode(t *testing.T) {
	v := []float32{0.25, -1.5, 3e-7}
	got, err := Decode(Encode(v))
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: %v != %v", i, got[i], v[i])
		}
	}
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestCosine(t *testing.T) {
	a := Normalize([]float32{1, 1, 0})
	b := Normalize([]float32{1, 0, 0})
	if got := Cosine(a, b); !floatEquals(got, math.Sqrt2/2, 1e-6) {
		t.Errorf("Cosine = %v", got)
	}
	if got := Cosine(a, []float32{1}); got != 0 {
		t.Errorf("length mismatch cosine = %v", got)
	}
}

func gradientImage(w, h int, horizontal bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255 * y / h)
			if horizontal {
				v = uint8(255 * x / w)
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestThumbnailEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewThumbnailEmbedder()

	h1, err := e.Embed(ctx, gradientImage(200, 100, true))
	if err != nil {
		t.Fatal(err)
	}
	if len(h1) != e.Dim() {
		t.Fatalf("dim = %d, want %d", len(h1), e.Dim())
	}

	var norm float64
	for _, x := range h1 {
		norm += float64(x) * float64(x)
	}
	if !floatEquals(norm, 1, 1e-5) {
		t.Errorf("embedding norm^2 = %v, want 1", norm)
	}

	// a resized copy of the same scene stays close
	h2, _ := e.Embed(ctx, gradientImage(400, 200, true))
	v1, _ := e.Embed(ctx, gradientImage(200, 100, false))

	same := Cosine(h1, h2)
	diff := Cosine(h1, v1)
	if same <= diff {
		t.Errorf("same-scene similarity %v should exceed different-scene %v", same, diff)
	}
	if same < 0.95 {
		t.Errorf("same-scene similarity %v too low", same)
	}

	if _, err := e.Embed(ctx, nil); err == nil {
		t.Error("expected error for nil image")
	}
}
