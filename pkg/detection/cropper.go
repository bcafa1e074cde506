package detection

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Cropper cuts the best detected face out of a frame. It satisfies the
// matcher's face gate: frames without a face are reported as not ok and
// never reach the embedding service.
type Cropper struct {
	detector Detector
	margin   float64
	quality  int
}

// NewCropper wraps detector. margin and quality come from Config.
func NewCropper(detector Detector, margin float64, quality int) *Cropper {
	if margin < 0 {
		margin = 0
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultConfig().Quality
	}
	return &Cropper{detector: detector, margin: margin, quality: quality}
}

// matDetector is implemented by detectors that can reuse a decoded frame.
type matDetector interface {
	DetectMat(img gocv.Mat) []Detection
}

// Crop returns the JPEG-encoded face region of image. The frame is decoded
// once when the detector accepts decoded images.
func (c *Cropper) Crop(image []byte) ([]byte, bool, error) {
	img, err := decodeFrame(image)
	if err != nil {
		return nil, false, err
	}
	defer img.Close()

	var dets []Detection
	if md, ok := c.detector.(matDetector); ok {
		dets = md.DetectMat(img)
	} else if dets, err = c.detector.Detect(image); err != nil {
		return nil, false, err
	}
	best := SelectBest(dets)
	if best == nil {
		return nil, false, nil
	}

	rect := best.Rect(img.Cols(), img.Rows(), c.margin)
	if rect.Empty() {
		return nil, false, nil
	}

	face := img.Region(rect)
	defer face.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, face, []int{gocv.IMWriteJpegQuality, c.quality})
	if err != nil {
		return nil, false, fmt.Errorf("encode face: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), true, nil
}
