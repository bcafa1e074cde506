package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/teslashibe/go-elevatr/internal/httpc"
)

const defaultEmbeddingURL = "http://localhost:8000"

// ErrNoFace is returned when the embedding server finds no face.
var ErrNoFace = errors.New("matcher: no face in image")

// Embedder turns a face image into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
}

// FaceDetection is one face reported by the embedding server.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse is the body of POST /embed/face.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// EmbeddingClient computes face embeddings with the embedding server.
type EmbeddingClient struct {
	baseURL string
	client  *http.Client
}

// NewEmbeddingClient creates a client for the server at baseURL.
func NewEmbeddingClient(baseURL string, timeout time.Duration) *EmbeddingClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if timeout <= 0 {
		timeout = httpc.DefaultTimeout
	}
	return &EmbeddingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpc.NewClient(timeout),
	}
}

// Faces detects faces in a JPEG image and returns their embeddings.
func (c *EmbeddingClient) Faces(ctx context.Context, image []byte) (*FaceResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := c.baseURL + "/embed/face"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpc.StatusError{Method: http.MethodPost, URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var faces FaceResponse
	if err := json.Unmarshal(body, &faces); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &faces, nil
}

// Embed returns the embedding of the most confident face in image.
func (c *EmbeddingClient) Embed(ctx context.Context, image []byte) ([]float32, error) {
	faces, err := c.Faces(ctx, image)
	if err != nil {
		return nil, err
	}

	var best *FaceDetection
	for i := range faces.Faces {
		f := &faces.Faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if best == nil || f.DetScore > best.DetScore {
			best = f
		}
	}
	if best == nil {
		return nil, ErrNoFace
	}
	return best.Embedding, nil
}

var _ Embedder = (*EmbeddingClient)(nil)
