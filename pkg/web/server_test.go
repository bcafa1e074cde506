package web_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-elevatr/internal/log"
	"github.com/teslashibe/go-elevatr/pkg/camera"
	"github.com/teslashibe/go-elevatr/pkg/directory"
	"github.com/teslashibe/go-elevatr/pkg/frames"
	"github.com/teslashibe/go-elevatr/pkg/matcher"
	"github.com/teslashibe/go-elevatr/pkg/pipeline"
	"github.com/teslashibe/go-elevatr/pkg/priority"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
	"github.com/teslashibe/go-elevatr/pkg/web"
)

type idleSource struct{}

func (idleSource) Read() (frames.Frame, error) {
	time.Sleep(time.Millisecond)
	return frames.Frame{JPEG: []byte{0xFF, 0xD8}}, nil
}
func (idleSource) Close() error { return nil }

type emptyDirectory struct{}

func (emptyDirectory) FindUser(context.Context, string) (*directory.User, error) {
	return nil, directory.ErrNotFound
}
func (emptyDirectory) FirstReservation(context.Context, string) (*recognition.Reservation, error) {
	return nil, directory.ErrNotFound
}

func newRunner(t *testing.T) *pipeline.Runner {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Source = idleSource{}
	cfg.Display = camera.NewHeadless()
	cfg.Matcher = matcher.Func(func(context.Context, frames.Frame, string) ([]matcher.Candidate, error) {
		return nil, nil
	})
	cfg.Directory = emptyDirectory{}
	cfg.Predictor = priority.NewTablePredictor(nil, 1)
	cfg.Logger = log.Discard()
	r, err := pipeline.NewRunner(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestHealthz(t *testing.T) {
	s := web.NewServer(web.Config{Logger: log.Discard()})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d", resp.StatusCode)
	}
}

func TestStatusWithoutSession(t *testing.T) {
	s := web.NewServer(web.Config{Logger: log.Discard()})
	for _, req := range []struct{ method, path string }{{"GET", "/api/status"}, {"POST", "/api/stop"}} {
		resp, err := s.App().Test(httptest.NewRequest(req.method, req.path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 503 {
			t.Errorf("%s %s: got %d, want 503", req.method, req.path, resp.StatusCode)
		}
	}
}

func TestStatusReportsSession(t *testing.T) {
	s := web.NewServer(web.Config{Logger: log.Discard()})
	r := newRunner(t)
	s.Bind(r)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	var st web.Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if st.SessionID != r.Session().ID || st.CapturePhase != "running" || st.MatchPhase != "searching" {
		t.Errorf("status: %+v", st)
	}
	if st.Stopped || st.Recognized {
		t.Errorf("fresh session reported stopped or recognized: %+v", st)
	}
}

func TestStopEndsSession(t *testing.T) {
	s := web.NewServer(web.Config{Logger: log.Discard()})
	r := newRunner(t)
	s.Bind(r)

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/stop", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 202 {
		t.Errorf("status code: got %d", resp.StatusCode)
	}
	var out struct {
		Stopped bool   `json:"stopped"`
		Reason  string `json:"reason"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if !out.Stopped || out.Reason != pipeline.ReasonRemoteStop {
		t.Errorf("response: %+v", out)
	}

	// A second stop is accepted but does not change the reason.
	resp, _ = s.App().Test(httptest.NewRequest("POST", "/api/stop", nil))
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Stopped || out.Reason != pipeline.ReasonRemoteStop {
		t.Errorf("second stop: %+v", out)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := web.NewServer(web.Config{Logger: log.Discard()})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status: got %d, want 426", resp.StatusCode)
	}
}

func serve(t *testing.T, s *web.Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return ln.Addr().String()
}

func dial(t *testing.T, addr, path string) *websocket.Conn {
	t.Helper()
	var conn *websocket.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+path, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", path, err)
	return nil
}

func TestStatusWebsocket(t *testing.T) {
	s := web.NewServer(web.Config{Logger: log.Discard(), StatusInterval: 20 * time.Millisecond})
	r := newRunner(t)
	s.Bind(r)
	conn := dial(t, serve(t, s), "/ws/status")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var st web.Status
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if st.SessionID != r.Session().ID {
		t.Errorf("session: got %q", st.SessionID)
	}

	r.Stop(pipeline.ReasonRemoteStop)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("read status: %v", err)
		}
		if st.Stopped {
			break
		}
	}
	if !st.Stopped || st.StopReason != pipeline.ReasonRemoteStop {
		t.Errorf("pushed status: %+v", st)
	}
}

func TestCameraWebsocket(t *testing.T) {
	s := web.NewServer(web.Config{Logger: log.Discard(), FrameStride: 1})
	conn := dial(t, serve(t, s), "/ws/camera")

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Registration is asynchronous; keep feeding frames until one arrives.
	got := make(chan []byte, 1)
	go func() {
		typ, data, err := conn.ReadMessage()
		if err == nil && typ == websocket.BinaryMessage {
			got <- data
		}
		close(got)
	}()
	for i := 0; i < 200; i++ {
		s.ObserveFrame(frames.Frame{Seq: uint64(i), JPEG: jpeg})
		select {
		case data, ok := <-got:
			if !ok || string(data) != string(jpeg) {
				t.Fatalf("frame: %v ok=%v", data, ok)
			}
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatal("no frame received")
}
