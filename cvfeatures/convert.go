package cvfeatures

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// grayMatFromImage converts a Go image to a single-channel OpenCV Mat.
func grayMatFromImage(img image.Image) (gocv.Mat, error) {
	if img == nil {
		return gocv.NewMat(), fmt.Errorf("nil image")
	}

	if g, ok := img.(*image.Gray); ok {
		return gocv.ImageGrayToMatGray(g)
	}

	bgr, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("converting image: %w", err)
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	if gray.Empty() {
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("grayscale conversion produced an empty image")
	}
	return gray, nil
}
