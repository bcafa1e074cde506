// Package detection finds faces in frames so only frames with a face are
// sent for embedding.
package detection

import (
	"errors"
	"image"
)

// ErrModelNotFound is returned when the detector model file is missing.
var ErrModelNotFound = errors.New("detection: model file not found")

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Rect returns the detection in pixels for an image of cols x rows,
// grown by margin (a fraction of the box size) on every side and clipped
// to the image.
func (d Detection) Rect(cols, rows int, margin float64) image.Rectangle {
	mx := d.W * margin
	my := d.H * margin
	r := image.Rect(
		int((d.X-mx)*float64(cols)),
		int((d.Y-my)*float64(rows)),
		int((d.X+d.W+mx)*float64(cols)),
		int((d.Y+d.H+my)*float64(rows)),
	)
	return r.Intersect(image.Rect(0, 0, cols, rows))
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in the JPEG image
	Detect(jpeg []byte) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  `toml:"model_path"`
	ConfidenceThresh float64 `toml:"confidence"`
	InputWidth       int     `toml:"input_width"`
	InputHeight      int     `toml:"input_height"`

	// Margin grows the crop around the face, as a fraction of its size.
	Margin float64 `toml:"margin"`
	// Quality is the JPEG quality of the cropped face.
	Quality int `toml:"quality"`
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
		Margin:           0.25,
		Quality:          90,
	}
}

// SelectBest picks the best face from multiple detections.
// Score: confidence * 0.7 + relative area * 0.3, so the person standing
// closest to the kiosk wins ties.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}
