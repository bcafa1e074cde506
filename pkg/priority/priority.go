// Package priority scores how urgently a recognized user should be served.
package priority

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-elevatr/internal/httpc"
)

// Predictor maps a designation to a priority score.
type Predictor interface {
	Predict(ctx context.Context, designation string) (float64, error)
}

// HTTPPredictor calls a prediction service: POST {url}/predict with
// {"designation": "..."} answering {"priority": 1.5}.
type HTTPPredictor struct {
	url    string
	client *http.Client
}

// NewHTTPPredictor creates a predictor for the service at baseURL.
func NewHTTPPredictor(baseURL string, timeout time.Duration) (*HTTPPredictor, error) {
	if baseURL == "" {
		return nil, errors.New("priority: service URL required")
	}
	if timeout <= 0 {
		timeout = httpc.DefaultTimeout
	}
	return &HTTPPredictor{
		url:    strings.TrimSuffix(baseURL, "/") + "/predict",
		client: httpc.NewClient(timeout),
	}, nil
}

type predictRequest struct {
	Designation string `json:"designation"`
}

type predictResponse struct {
	Priority *float64 `json:"priority"`
}

// Predict asks the service for a score.
func (p *HTTPPredictor) Predict(ctx context.Context, designation string) (float64, error) {
	var resp predictResponse
	if err := httpc.DoJSON(ctx, p.client, http.MethodPost, p.url, predictRequest{Designation: designation}, &resp); err != nil {
		return 0, fmt.Errorf("predict %q: %w", designation, err)
	}
	if resp.Priority == nil || math.IsNaN(*resp.Priority) {
		return 0, fmt.Errorf("predict %q: response has no priority", designation)
	}
	return *resp.Priority, nil
}

// TablePredictor scores designations from a fixed table. Lookups are
// case-insensitive; unknown designations get Default.
type TablePredictor struct {
	scores  map[string]float64
	Default float64
}

// NewTablePredictor builds a table predictor.
func NewTablePredictor(scores map[string]float64, def float64) *TablePredictor {
	t := &TablePredictor{scores: make(map[string]float64, len(scores)), Default: def}
	for k, v := range scores {
		t.scores[normalize(k)] = v
	}
	return t
}

// Predict returns the table score.
func (t *TablePredictor) Predict(_ context.Context, designation string) (float64, error) {
	if v, ok := t.scores[normalize(designation)]; ok {
		return v, nil
	}
	return t.Default, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Func adapts a function to the Predictor interface.
type Func func(ctx context.Context, designation string) (float64, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, designation string) (float64, error) {
	return f(ctx, designation)
}

var (
	_ Predictor = (*HTTPPredictor)(nil)
	_ Predictor = (*TablePredictor)(nil)
	_ Predictor = Func(nil)
)
