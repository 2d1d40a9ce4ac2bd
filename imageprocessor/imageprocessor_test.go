package imageprocessor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/barasher/go-exiftool"

	"panofinder/types"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestFormats(t *testing.T) {
	tests := []struct {
		path   string
		format FormatType
		raw    bool
	}{
		{"a.JPG", FormatJPEG, false},
		{"dir/b.tiff", FormatTIFF, false},
		{"c.webp", FormatWEBP, false},
		{"d.CR3", FormatRAW, true},
		{"e.txt", FormatUnknown, false},
		{"noext", FormatUnknown, false},
	}
	for _, tt := range tests {
		if got := GetFileFormat(tt.path); got != tt.format {
			t.Errorf("GetFileFormat(%q) = %v, want %v", tt.path, got, tt.format)
		}
		if got := IsRawFormat(tt.path); got != tt.raw {
			t.Errorf("IsRawFormat(%q) = %v", tt.path, got)
		}
		if got := IsImageFile(tt.path); got != (tt.format != FormatUnknown) {
			t.Errorf("IsImageFile(%q) = %v", tt.path, got)
		}
	}
}

func TestRegistryLoadsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.png")
	writePNG(t, path, 64, 48)

	r := NewImageLoaderRegistry()
	if !r.CanLoadFile(path) {
		t.Fatal("registry cannot load .png")
	}
	if r.CanLoadFile("notes.txt") {
		t.Error("registry claims .txt")
	}
	if _, ok := r.GetLoader("x.nef").(*RawPreviewLoader); !ok {
		t.Error(".nef should use the RAW preview loader")
	}

	img, err := r.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("bounds = %v", b)
	}

	if _, err := r.LoadImage(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestStandardLoaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewStandardImageLoader()
	if !l.CanLoad(path) {
		t.Error("CanLoad should accept an existing .jpg")
	}
	if _, err := l.LoadImage(path); err == nil {
		t.Error("garbage decoded")
	}
}

func TestDecodeBinaryField(t *testing.T) {
	if data, ok := decodeBinaryField("base64:aGVsbG8="); !ok || string(data) != "hello" {
		t.Errorf("decode = %q, %v", data, ok)
	}
	if _, ok := decodeBinaryField("(Binary data 123 bytes)"); ok {
		t.Error("non-base64 value accepted")
	}
}

func TestFOVFromFocalLength35mm(t *testing.T) {
	// 24mm on a 24mm-tall frame: 2*atan(0.5)
	if got := FOVFromFocalLength35mm(24, true); !floatEquals(got, 53.1301, 1e-3) {
		t.Errorf("landscape 24mm = %v", got)
	}
	if got := FOVFromFocalLength35mm(18, false); !floatEquals(got, 90, 1e-9) {
		t.Errorf("portrait 18mm = %v", got)
	}
	if FOVFromFocalLength35mm(0, true) != 0 {
		t.Error("zero focal length should give 0")
	}
}

func TestParseMetadata(t *testing.T) {
	fm := exiftool.EmptyFileMetadata()
	fm.SetFloat("ImageWidth", 4000)
	fm.SetFloat("ImageHeight", 3000)
	fm.SetFloat("GPSLatitude", 33.87)
	fm.SetString("GPSLatitudeRef", "S")
	fm.SetFloat("GPSLongitude", 151.21)
	fm.SetString("GPSLongitudeRef", "E")
	fm.SetFloat("GPSAltitude", 12.5)
	fm.SetInt("GPSAltitudeRef", 0)
	fm.SetFloat("GPSImgDirection", 271.5)
	fm.SetFloat("FocalLengthIn35mmFormat", 24)

	md := parseMetadata(fm)
	if !md.HasPosition || md.Position.Lat() != -33.87 || md.Position.Lon() != 151.21 {
		t.Errorf("position = %v (has=%v)", md.Position, md.HasPosition)
	}
	if md.Altitude != 12.5 || md.Heading != 271.5 {
		t.Errorf("alt/heading = %v/%v", md.Altitude, md.Heading)
	}
	if md.Width != 4000 || md.Height != 3000 {
		t.Errorf("size = %dx%d", md.Width, md.Height)
	}
	if !floatEquals(md.FOV, 53.1301, 1e-3) {
		t.Errorf("fov = %v", md.FOV)
	}

	empty := parseMetadata(exiftool.EmptyFileMetadata())
	if empty.HasPosition || empty.FOV != 0 {
		t.Errorf("empty metadata = %+v", empty)
	}
}

type fakeLoader struct {
	img  image.Image
	err  error
	path string
}

func (f *fakeLoader) LoadImage(path string) (image.Image, error) {
	f.path = path
	return f.img, f.err
}

func TestFileViewSource(t *testing.T) {
	loader := &fakeLoader{img: image.NewGray(image.Rect(0, 0, 2000, 1000))}
	src := &FileViewSource{Loader: loader, DefaultFOV: 70, MaxDimension: 800}

	view, err := src.LoadView(context.Background(), types.Candidate{ID: "c1", ImagePath: "/data/c1.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if loader.path != "/data/c1.jpg" {
		t.Errorf("loaded %q", loader.path)
	}
	if view.View != (types.ViewParameters{FOV: 70}) {
		t.Errorf("view = %+v", view.View)
	}
	if b := view.Image.Bounds(); b.Dx() != 800 || b.Dy() != 400 {
		t.Errorf("downscaled to %v", b)
	}

	view, _ = src.LoadView(context.Background(), types.Candidate{ID: "c2", ImagePath: "x", FOV: 55})
	if view.View.FOV != 55 {
		t.Errorf("candidate fov ignored: %v", view.View.FOV)
	}

	if _, err := src.LoadView(context.Background(), types.Candidate{ID: "c3"}); err == nil {
		t.Error("candidate without image accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.LoadView(ctx, types.Candidate{ID: "c4", ImagePath: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx err = %v", err)
	}
}

func TestDownscale(t *testing.T) {
	small := image.NewGray(image.Rect(0, 0, 100, 300))
	if Downscale(small, 400) != image.Image(small) {
		t.Error("small image should be returned unchanged")
	}
	if b := Downscale(small, 150).Bounds(); b.Dx() != 50 || b.Dy() != 150 {
		t.Errorf("portrait downscale = %v", b)
	}
	if Downscale(small, 0) != image.Image(small) {
		t.Error("maxDim 0 should be a no-op")
	}
}
