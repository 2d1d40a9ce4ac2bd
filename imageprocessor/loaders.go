package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"strings"

	"github.com/barasher/go-exiftool"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"panofinder/logging"
)

// BaseImageLoader provides common functionality for all image loaders
type BaseImageLoader struct {
	SupportedFormats []FormatType
}

// CanLoad checks if this loader supports the file's format
func (l *BaseImageLoader) CanLoad(path string) bool {
	format := GetFileFormat(path)
	for _, supported := range l.SupportedFormats {
		if format == supported {
			return fileExists(path)
		}
	}
	return false
}

// StandardImageLoader decodes formats with a registered Go decoder.
type StandardImageLoader struct {
	BaseImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatJPEG, FormatPNG, FormatGIF, FormatTIFF, FormatBMP, FormatWEBP},
		},
	}
}

// LoadImage decodes the file by sniffing its header.
func (l *StandardImageLoader) LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, newImageLoadError(fmt.Sprintf("failed to decode image (%v)", err), path)
	}
	return img, nil
}

// previewTags are tried in order when pulling an embedded JPEG out of a RAW file.
var previewTags = []string{
	"JpgFromRaw",
	"LargestImagePreview",
	"PreviewImage",
	"OtherImage",
	"ThumbnailImage",
}

// RawPreviewLoader reads RAW captures through the largest embedded preview.
// It needs the exiftool binary on PATH.
type RawPreviewLoader struct {
	BaseImageLoader
}

// NewRawPreviewLoader creates a RAW loader.
func NewRawPreviewLoader() *RawPreviewLoader {
	return &RawPreviewLoader{
		BaseImageLoader: BaseImageLoader{SupportedFormats: []FormatType{FormatRAW}},
	}
}

// LoadImage extracts and decodes the embedded preview.
func (l *RawPreviewLoader) LoadImage(path string) (image.Image, error) {
	et, err := exiftool.NewExiftool(exiftool.ExtractAllBinaryMetadata())
	if err != nil {
		return nil, fmt.Errorf("initializing exiftool: %w", err)
	}
	defer et.Close()

	infos := et.ExtractMetadata(path)
	if len(infos) == 0 {
		return nil, newImageLoadError("no metadata extracted", path)
	}
	if infos[0].Err != nil {
		return nil, infos[0].Err
	}

	for _, tag := range previewTags {
		raw, err := infos[0].GetString(tag)
		if err != nil {
			continue
		}
		data, ok := decodeBinaryField(raw)
		if !ok {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			logging.DebugLog("Preview %s of %s is not decodable: %v", tag, path, err)
			continue
		}
		logging.DebugLog("Loaded %s from %s", tag, path)
		return img, nil
	}
	return nil, newImageLoadError("no decodable preview", path)
}

// decodeBinaryField unpacks exiftool's "base64:" encoding of binary tags.
func decodeBinaryField(v string) ([]byte, bool) {
	const prefix = "base64:"
	if !strings.HasPrefix(v, prefix) {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(v[len(prefix):])
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newImageLoadError(message, path string) error {
	return fmt.Errorf("%s: %s", message, path)
}
