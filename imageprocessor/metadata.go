package imageprocessor

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/paulmach/orb"
)

// ErrNoPosition is returned when a capture carries no GPS fix.
var ErrNoPosition = errors.New("capture has no GPS position")

// CaptureMetadata is what the indexer needs from a capture file.
type CaptureMetadata struct {
	Position    orb.Point
	Altitude    float64
	HasPosition bool
	Heading     float64 // GPSImgDirection, 0 when absent
	FOV         float64 // vertical, 0 when unknown
	Width       int
	Height      int
}

// MetadataReader reads capture metadata from a file.
type MetadataReader interface {
	ReadMetadata(path string) (CaptureMetadata, error)
}

// ExiftoolReader reads metadata through a long-running exiftool process.
// Calls are serialized over the one process.
type ExiftoolReader struct {
	mu sync.Mutex
	et *exiftool.Exiftool
}

// NewExiftoolReader starts exiftool with numeric output.
func NewExiftoolReader() (*ExiftoolReader, error) {
	et, err := exiftool.NewExiftool(exiftool.NoPrintConversion())
	if err != nil {
		return nil, fmt.Errorf("starting exiftool: %w", err)
	}
	return &ExiftoolReader{et: et}, nil
}

// Close stops the exiftool process.
func (r *ExiftoolReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.et.Close()
}

// ReadMetadata implements MetadataReader.
func (r *ExiftoolReader) ReadMetadata(path string) (CaptureMetadata, error) {
	r.mu.Lock()
	infos := r.et.ExtractMetadata(path)
	r.mu.Unlock()

	if len(infos) == 0 {
		return CaptureMetadata{}, fmt.Errorf("no metadata extracted: %s", path)
	}
	if infos[0].Err != nil {
		return CaptureMetadata{}, infos[0].Err
	}
	return parseMetadata(infos[0]), nil
}

func parseMetadata(fm exiftool.FileMetadata) CaptureMetadata {
	var md CaptureMetadata

	if w, err := fm.GetInt("ImageWidth"); err == nil {
		md.Width = int(w)
	}
	if h, err := fm.GetInt("ImageHeight"); err == nil {
		md.Height = int(h)
	}

	lat, errLat := fm.GetFloat("GPSLatitude")
	lon, errLon := fm.GetFloat("GPSLongitude")
	if errLat == nil && errLon == nil {
		if ref, err := fm.GetString("GPSLatitudeRef"); err == nil && strings.EqualFold(ref, "S") && lat > 0 {
			lat = -lat
		}
		if ref, err := fm.GetString("GPSLongitudeRef"); err == nil && strings.EqualFold(ref, "W") && lon > 0 {
			lon = -lon
		}
		md.Position = orb.Point{lon, lat}
		md.HasPosition = true
	}

	if alt, err := fm.GetFloat("GPSAltitude"); err == nil {
		// ref 1 is below sea level
		if ref, err := fm.GetInt("GPSAltitudeRef"); err == nil && ref == 1 && alt > 0 {
			alt = -alt
		}
		md.Altitude = alt
	}

	if dir, err := fm.GetFloat("GPSImgDirection"); err == nil {
		md.Heading = dir
	}

	if f, err := fm.GetFloat("FocalLengthIn35mmFormat"); err == nil && f > 0 {
		md.FOV = FOVFromFocalLength35mm(f, md.Width >= md.Height)
	}
	return md
}

// FOVFromFocalLength35mm returns the vertical field of view (degrees) of a
// 36x24mm frame at the given 35mm-equivalent focal length.
func FOVFromFocalLength35mm(focal float64, landscape bool) float64 {
	if focal <= 0 {
		return 0
	}
	side := 24.0
	if !landscape {
		side = 36.0
	}
	return 2 * math.Atan(side/(2*focal)) * 180 / math.Pi
}
