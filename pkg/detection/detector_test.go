package detection

import (
	"image"
	"testing"
)

func TestDetection_Center(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		expectX float64
		expectY float64
	}{
		{"center of image", Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}, 0.5, 0.5},
		{"top left corner", Detection{X: 0, Y: 0, W: 0.2, H: 0.2}, 0.1, 0.1},
		{"bottom right corner", Detection{X: 0.8, Y: 0.8, W: 0.2, H: 0.2}, 0.9, 0.9},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.det.Center()
			if x != tc.expectX {
				t.Errorf("Center X: got %.2f, want %.2f", x, tc.expectX)
			}
			if y != tc.expectY {
				t.Errorf("Center Y: got %.2f, want %.2f", y, tc.expectY)
			}
		})
	}
}

func TestDetection_Area(t *testing.T) {
	d := Detection{W: 0.1, H: 0.2}
	if got := d.Area(); got < 0.0199 || got > 0.0201 {
		t.Errorf("Area: got %f, want 0.02", got)
	}
}

func TestDetection_Rect(t *testing.T) {
	tests := []struct {
		name   string
		det    Detection
		margin float64
		want   image.Rectangle
	}{
		{
			name: "no margin",
			det:  Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			want: image.Rect(160, 120, 480, 360),
		},
		{
			name:   "margin grows box",
			det:    Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			margin: 0.1,
			want:   image.Rect(128, 96, 512, 384),
		},
		{
			name:   "clipped to image",
			det:    Detection{X: 0.9, Y: 0.9, W: 0.2, H: 0.2},
			margin: 0.5,
			want:   image.Rect(512, 384, 640, 480),
		},
		{
			name: "outside image",
			det:  Detection{X: 1.5, Y: 1.5, W: 0.1, H: 0.1},
			want: image.Rectangle{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.det.Rect(640, 480, tc.margin)
			if got != tc.want && !(got.Empty() && tc.want.Empty()) {
				t.Errorf("Rect: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name       string
		detections []Detection
		expectNil  bool
		expectIdx  int
	}{
		{
			name:       "empty list",
			detections: []Detection{},
			expectNil:  true,
		},
		{
			name:       "single detection",
			detections: []Detection{{X: 0.4, Y: 0.4, W: 0.2, H: 0.2, Confidence: 0.9}},
			expectIdx:  0,
		},
		{
			// 0.95*0.7 + 0.25*0.3 = 0.74 against 0.5*0.7 + 1.0*0.3 = 0.65
			name: "high confidence beats larger area",
			detections: []Detection{
				{X: 0.0, Y: 0.0, W: 0.4, H: 0.4, Confidence: 0.5},
				{X: 0.3, Y: 0.3, W: 0.2, H: 0.2, Confidence: 0.95},
			},
			expectIdx: 1,
		},
		{
			name: "similar confidence picks larger",
			detections: []Detection{
				{X: 0.0, Y: 0.0, W: 0.5, H: 0.5, Confidence: 0.8},
				{X: 0.3, Y: 0.3, W: 0.1, H: 0.1, Confidence: 0.8},
			},
			expectIdx: 0,
		},
		{
			name: "zero area boxes",
			detections: []Detection{
				{Confidence: 0.4},
				{Confidence: 0.6},
			},
			expectIdx: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			best := SelectBest(tc.detections)
			if tc.expectNil {
				if best != nil {
					t.Errorf("SelectBest: expected nil, got %+v", best)
				}
				return
			}
			if best == nil {
				t.Fatal("SelectBest: expected non-nil, got nil")
			}
			expected := &tc.detections[tc.expectIdx]
			if best != expected {
				t.Errorf("SelectBest: got %+v, want %+v", best, expected)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}
	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		t.Errorf("DefaultConfig: input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		t.Errorf("DefaultConfig: Quality %d", cfg.Quality)
	}
}
