package imageprocessor

import (
	"path/filepath"
	"strings"
)

// FormatType represents a known image format type
type FormatType string

// Known image format constants
const (
	FormatUnknown FormatType = "unknown"
	FormatJPEG    FormatType = "jpeg"
	FormatPNG     FormatType = "png"
	FormatGIF     FormatType = "gif"
	FormatTIFF    FormatType = "tiff"
	FormatBMP     FormatType = "bmp"
	FormatWEBP    FormatType = "webp"
	FormatRAW     FormatType = "raw"
)

var formatExtensions = map[string]FormatType{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".bmp":  FormatBMP,
	".webp": FormatWEBP,

	// RAW captures are read through their embedded preview
	".cr2": FormatRAW,
	".cr3": FormatRAW,
	".nef": FormatRAW,
	".arw": FormatRAW,
	".dng": FormatRAW,
	".raf": FormatRAW,
}

// IsImageFile checks if a file is a supported image based on extension
func IsImageFile(path string) bool {
	return GetFileFormat(path) != FormatUnknown
}

// GetFileFormat returns the format type based on file extension
func GetFileFormat(path string) FormatType {
	format, ok := formatExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return FormatUnknown
	}
	return format
}

// IsRawFormat checks if a file is in RAW format
func IsRawFormat(path string) bool {
	return GetFileFormat(path) == FormatRAW
}
