package detection

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when a frame decodes to an empty matrix.
var ErrEmptyImage = errors.New("detection: empty image")

const (
	yunetNMS  = 0.3
	yunetTopK = 5000

	// Columns of a YuNet result row: box (x, y, w, h) in pixels, five
	// landmark pairs, then the score.
	yunetCols     = 15
	yunetScoreCol = 14
)

// YuNetDetector finds faces with OpenCV's FaceDetectorYN. Inference is
// serialized because the underlying net is not safe for concurrent use.
type YuNetDetector struct {
	mu       sync.Mutex
	net      gocv.FaceDetectorYN
	minScore float64
	logger   *slog.Logger
}

// NewYuNet loads the model at cfg.ModelPath. A nil logger uses slog.Default.
func NewYuNet(cfg Config, logger *slog.Logger) (*YuNetDetector, error) {
	info, err := os.Stat(cfg.ModelPath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}
	if logger == nil {
		logger = slog.Default()
	}

	net := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath, "",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		yunetNMS, yunetTopK,
		int(gocv.NetBackendDefault), int(gocv.NetTargetCPU),
	)
	return &YuNetDetector{
		net:      net,
		minScore: cfg.ConfidenceThresh,
		logger:   logger.With("component", "yunet", "model", cfg.ModelPath),
	}, nil
}

// Detect decodes a JPEG frame and returns the faces in it, most confident
// first.
func (d *YuNetDetector) Detect(jpeg []byte) ([]Detection, error) {
	img, err := decodeFrame(jpeg)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return d.DetectMat(img), nil
}

// DetectMat runs the net on an already decoded image.
func (d *YuNetDetector) DetectMat(img gocv.Mat) []Detection {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := gocv.NewMat()
	defer out.Close()

	d.net.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	d.net.Detect(img, &out)

	rows := make([][]float32, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		row := make([]float32, yunetCols)
		for c := range row {
			row[c] = out.GetFloatAt(r, c)
		}
		rows = append(rows, row)
	}

	dets := parseFaces(rows, img.Cols(), img.Rows(), d.minScore)
	if len(dets) > 0 {
		d.logger.Debug("faces detected", "count", len(dets), "best", dets[0].Confidence)
	}
	return dets
}

// Close releases the net.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}

// parseFaces turns raw YuNet rows into normalized detections for an image
// of cols x rows pixels. Boxes are clipped to the image; rows that are
// short, below minScore, or empty after clipping are dropped.
func parseFaces(raw [][]float32, cols, rows int, minScore float64) []Detection {
	if cols <= 0 || rows <= 0 {
		return nil
	}
	w, h := float64(cols), float64(rows)

	var dets []Detection
	for _, row := range raw {
		if len(row) < yunetCols {
			continue
		}
		score := float64(row[yunetScoreCol])
		if score < minScore {
			continue
		}
		x0 := clamp01(float64(row[0]) / w)
		y0 := clamp01(float64(row[1]) / h)
		x1 := clamp01(float64(row[0]+row[2]) / w)
		y1 := clamp01(float64(row[1]+row[3]) / h)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		dets = append(dets, Detection{X: x0, Y: y0, W: x1 - x0, H: y1 - y0, Confidence: score})
	}
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
	return dets
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func decodeFrame(jpeg []byte) (gocv.Mat, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return img, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return img, ErrEmptyImage
	}
	return img, nil
}
