package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-elevatr/internal/log"
	"github.com/teslashibe/go-elevatr/pkg/frames"
	"github.com/teslashibe/go-elevatr/pkg/pipeline"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
	"github.com/teslashibe/go-elevatr/pkg/speech"
)

type countingObserver struct {
	mu   sync.Mutex
	seqs []uint64
}

func (o *countingObserver) ObserveFrame(f frames.Frame) {
	o.mu.Lock()
	o.seqs = append(o.seqs, f.Seq)
	o.mu.Unlock()
}

func (o *countingObserver) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seqs)
}

type captureHarness struct {
	sess      *pipeline.Session
	loop      *pipeline.CaptureLoop
	source    *fakeSource
	display   *fakeDisplay
	speaker   *speech.Mock
	notifier  *pipeline.Notifier
	sequencer *pipeline.Sequencer
	recorder  *fakeRecorder
}

func newCaptureHarness(t *testing.T, src *fakeSource, disp *fakeDisplay, cfg pipeline.CaptureConfig) *captureHarness {
	t.Helper()
	h := &captureHarness{
		sess:     pipeline.NewSession(),
		source:   src,
		display:  disp,
		speaker:  speech.NewMock(),
		recorder: &fakeRecorder{},
	}
	h.notifier = pipeline.NewNotifier(h.speaker, time.Second, log.Discard())
	h.sequencer = pipeline.NewSequencer(h.sess, pipeline.SequencerConfig{
		Recorders: []pipeline.Recorder{h.recorder},
		Now:       cfg.Now,
		Logger:    log.Discard(),
	})
	cfg.Source = src
	cfg.Display = disp
	cfg.Notifier = h.notifier
	cfg.Sequencer = h.sequencer
	cfg.Logger = log.Discard()

	loop, err := pipeline.NewCaptureLoop(h.sess, cfg)
	if err != nil {
		t.Fatalf("NewCaptureLoop: %v", err)
	}
	h.loop = loop
	return h
}

func (h *captureHarness) latch() recognition.Recognition {
	r := sampleRecognition()
	h.sess.State.TryLatch(recognition.DisplayLines(r), r)
	return r
}

func runWithTimeout(t *testing.T, loop *pipeline.CaptureLoop, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("capture loop did not stop")
	}
}

func TestNewCaptureLoopRequiresSource(t *testing.T) {
	if _, err := pipeline.NewCaptureLoop(pipeline.NewSession(), pipeline.CaptureConfig{}); err == nil {
		t.Error("expected error without a source")
	}
}

func TestCaptureStopsAfterDisplayDuration(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	step := time.Second
	h := newCaptureHarness(t,
		&fakeSource{clock: clock, step: step},
		&fakeDisplay{},
		pipeline.CaptureConfig{DisplayDuration: 10 * time.Second, Now: clock.Now},
	)
	h.latch()

	runWithTimeout(t, h.loop, 2*time.Second)

	// The first frame read is the one that observes the recognition.
	transition := start.Add(step)
	elapsed := h.source.closedAt.Sub(transition)
	if elapsed < 10*time.Second {
		t.Errorf("stopped early: %v after the transition", elapsed)
	}
	if elapsed > 10*time.Second+step {
		t.Errorf("stopped late: %v after the transition", elapsed)
	}
	if h.sess.Signal.Reason() != pipeline.ReasonDisplayTimeout {
		t.Errorf("reason: got %q", h.sess.Signal.Reason())
	}
	if h.loop.Phase() != pipeline.CaptureStopped {
		t.Errorf("phase: got %s", h.loop.Phase())
	}
}

func TestCaptureAnnouncesAndPersistsOnce(t *testing.T) {
	clock := newFakeClock()
	h := newCaptureHarness(t,
		&fakeSource{clock: clock, step: 100 * time.Millisecond},
		&fakeDisplay{},
		pipeline.CaptureConfig{DisplayDuration: 10 * time.Second, Now: clock.Now},
	)
	h.latch()

	runWithTimeout(t, h.loop, 2*time.Second)
	if err := h.notifier.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	// About a hundred displaying frames, one announcement.
	if h.display.Renders() < 100 {
		t.Errorf("renders: got %d", h.display.Renders())
	}
	if h.speaker.CallCount() != 1 {
		t.Errorf("announcements: got %d, want 1", h.speaker.CallCount())
	}
	if n := len(h.recorder.Entries()); n != 1 {
		t.Errorf("persisted entries: got %d, want 1", n)
	}
	if !h.sequencer.Ran() || !h.sequencer.Persisted() {
		t.Error("sequencer did not persist")
	}
}

func TestCaptureOverlayOnlyWhenRecognized(t *testing.T) {
	disp := &fakeDisplay{quitAfter: 3}
	h := newCaptureHarness(t, &fakeSource{}, disp, pipeline.CaptureConfig{})

	runWithTimeout(t, h.loop, 2*time.Second)

	for i, lines := range disp.overlays {
		if len(lines) != 0 {
			t.Errorf("frame %d drew overlay %q without a recognition", i, lines)
		}
	}
	if h.speaker.CallCount() != 0 {
		t.Error("announced without a recognition")
	}
	if len(h.recorder.Entries()) != 0 {
		t.Error("persisted without a recognition")
	}
}

func TestCaptureManualQuit(t *testing.T) {
	disp := &fakeDisplay{quitAfter: 5}
	h := newCaptureHarness(t, &fakeSource{}, disp, pipeline.CaptureConfig{})

	runWithTimeout(t, h.loop, 2*time.Second)

	if h.sess.Signal.Reason() != pipeline.ReasonManualQuit {
		t.Errorf("reason: got %q", h.sess.Signal.Reason())
	}
	if disp.Renders() != 5 {
		t.Errorf("renders: got %d, want 5", disp.Renders())
	}
	if !h.source.closed.Load() || !disp.closed {
		t.Error("device or display not closed")
	}
}

func TestCaptureDropsWhenNobodyConsumes(t *testing.T) {
	obs := &countingObserver{}
	disp := &fakeDisplay{quitAfter: 20}
	h := newCaptureHarness(t, &fakeSource{}, disp, pipeline.CaptureConfig{Observer: obs})

	runWithTimeout(t, h.loop, 2*time.Second)

	stats := h.sess.Frames.Stats()
	if h.sess.Frames.Len() > 2 {
		t.Errorf("channel holds %d frames", h.sess.Frames.Len())
	}
	if stats.Published != 2 || stats.Dropped != 18 {
		t.Errorf("stats: %+v", stats)
	}
	if obs.Count() != 20 {
		t.Errorf("observer saw %d frames, want 20", obs.Count())
	}
}

func TestCaptureSkipsFailedReads(t *testing.T) {
	disp := &fakeDisplay{quitAfter: 3}
	h := newCaptureHarness(t, &fakeSource{failFirst: 4}, disp, pipeline.CaptureConfig{})

	runWithTimeout(t, h.loop, 2*time.Second)

	if h.loop.ReadFailures() != 4 {
		t.Errorf("read failures: got %d", h.loop.ReadFailures())
	}
	if h.sess.Signal.Reason() != pipeline.ReasonManualQuit {
		t.Errorf("reason: got %q", h.sess.Signal.Reason())
	}
}

func TestCaptureDeviceFailureLimit(t *testing.T) {
	h := newCaptureHarness(t, &fakeSource{alwaysFail: true}, &fakeDisplay{},
		pipeline.CaptureConfig{Retry: pipeline.RetryPolicy{Delay: time.Millisecond, MaxConsecutive: 3}})

	runWithTimeout(t, h.loop, 2*time.Second)

	if h.sess.Signal.Reason() != pipeline.ReasonDeviceFailure {
		t.Errorf("reason: got %q", h.sess.Signal.Reason())
	}
	if h.loop.ReadFailures() != 3 {
		t.Errorf("read failures: got %d", h.loop.ReadFailures())
	}
	if !h.sequencer.Ran() {
		t.Error("shutdown sequence skipped")
	}
}

func TestCaptureExternalStop(t *testing.T) {
	h := newCaptureHarness(t, &fakeSource{delay: time.Millisecond}, &fakeDisplay{}, pipeline.CaptureConfig{})
	h.latch()

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.sess.Signal.Stop(pipeline.ReasonRemoteStop)
	}()
	runWithTimeout(t, h.loop, 2*time.Second)

	if h.sess.Signal.Reason() != pipeline.ReasonRemoteStop {
		t.Errorf("reason: got %q", h.sess.Signal.Reason())
	}
	if len(h.recorder.Entries()) != 1 {
		t.Error("recognition not persisted on remote stop")
	}
}
