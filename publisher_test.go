package ndibridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// stubSource fills the buffer with a constant, cheap enough that tests
// measure loop pacing rather than pattern math.
type stubSource struct{}

func (stubSource) Produce(spec FrameSpec, frameIndex uint64, elapsed time.Duration, out []byte) {
	for i := 0; i < len(out); i += 4 {
		out[i+3] = 255
	}
}

// scriptedSink implements OutputSink for loop tests.
type scriptedSink struct {
	delay      time.Duration
	failOn     int   // 1-based publish call that fails; 0 = never
	failFatal  bool  // fatal vs transient failure
	repeatFail bool  // fail every failOn-th call instead of once
	blockCh    chan struct{}

	mu     sync.Mutex
	calls  int
	closes int
}

func (s *scriptedSink) Publish(buf []byte, spec FrameSpec) error {
	if s.blockCh != nil {
		<-s.blockCh
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	shouldFail := s.failOn > 0 && (s.calls == s.failOn || (s.repeatFail && s.calls%s.failOn == 0))
	if shouldFail {
		if s.failFatal {
			return Fatal(errors.New("sender destroyed"))
		}
		return errors.New("frame dropped")
	}
	return nil
}

func (s *scriptedSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *scriptedSink) Name() string { return "scripted" }

func (s *scriptedSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedSink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func smallSpec(fps int) FrameSpec {
	return FrameSpec{Width: 32, Height: 24, Format: PixelFormatBGRA32, Rate: FrameRate{fps, 1}}
}

func runPublisherFor(t *testing.T, p *Publisher, d time.Duration) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background()) }()

	time.Sleep(d)
	p.Token.Set()

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop after token was set")
		return nil
	}
}

func TestPublisher_HoldsTargetRate(t *testing.T) {
	sink := &scriptedSink{}
	p := &Publisher{
		Spec:   smallSpec(50), // 20ms interval
		Source: stubSource{},
		Sink:   sink,
		Token:  &StopToken{},
	}

	if err := runPublisherFor(t, p, 600*time.Millisecond); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Nominal 30 frames in 600ms; generous bounds for loaded CI hosts.
	frames := p.Stats().FramesPublished
	if frames < 15 || frames > 40 {
		t.Errorf("published %d frames in 600ms at 50fps, want roughly 30", frames)
	}
}

func TestPublisher_NoCatchUpBursts(t *testing.T) {
	// Each publish takes ~3 frame intervals. The loop must degrade to the
	// sink's pace instead of bursting frames to compensate.
	sink := &scriptedSink{delay: 60 * time.Millisecond}
	p := &Publisher{
		Spec:   smallSpec(50),
		Source: stubSource{},
		Sink:   sink,
		Token:  &StopToken{},
	}

	if err := runPublisherFor(t, p, 600*time.Millisecond); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	stats := p.Stats()
	// At one frame per 60ms, 600ms fits about 10 frames. Anything close to
	// the nominal 30 means the loop burst to catch up.
	if stats.FramesPublished > 15 {
		t.Errorf("published %d frames with a slow sink, want about 10", stats.FramesPublished)
	}
	if stats.FramesLate == 0 {
		t.Error("slow ticks were not counted late")
	}
}

func TestPublisher_FatalSinkErrorStopsLoop(t *testing.T) {
	sink := &scriptedSink{failOn: 5, failFatal: true}
	p := &Publisher{
		Spec:   smallSpec(100),
		Source: stubSource{},
		Sink:   sink,
		Token:  &StopToken{},
	}

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil after a fatal sink error")
	}
	if !IsFatalSinkError(err) {
		t.Errorf("Run error %v is not a FatalSinkError", err)
	}
	if frames := p.Stats().FramesPublished; frames != 4 {
		t.Errorf("published %d frames before the fatal error, want 4", frames)
	}
}

func TestPublisher_TransientSinkErrorContinues(t *testing.T) {
	sink := &scriptedSink{failOn: 3, repeatFail: true}
	p := &Publisher{
		Spec:   smallSpec(100),
		Source: stubSource{},
		Sink:   sink,
		Token:  &StopToken{},
	}

	if err := runPublisherFor(t, p, 300*time.Millisecond); err != nil {
		t.Fatalf("Run returned error on transient failures: %v", err)
	}

	stats := p.Stats()
	if stats.TransientErrors == 0 {
		t.Error("transient errors were not counted")
	}
	if stats.FramesPublished == 0 {
		t.Error("loop stopped publishing after a transient error")
	}
}

func TestPublisher_StopLatencyWithinOneInterval(t *testing.T) {
	sink := &scriptedSink{}
	p := &Publisher{
		Spec:   smallSpec(10), // 100ms interval
		Source: stubSource{},
		Sink:   sink,
		Token:  &StopToken{},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background()) }()

	time.Sleep(150 * time.Millisecond) // mid-run
	stopAt := time.Now()
	p.Token.Set()

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}

	// One interval plus scheduling slack.
	if latency := time.Since(stopAt); latency > 300*time.Millisecond {
		t.Errorf("stop latency %v exceeds one frame interval", latency)
	}
}

func TestPublisher_StalledPublishIsFatal(t *testing.T) {
	sink := &scriptedSink{blockCh: make(chan struct{})}
	defer close(sink.blockCh)

	p := &Publisher{
		Spec:           smallSpec(30),
		Source:         stubSource{},
		Sink:           sink,
		Token:          &StopToken{},
		PublishTimeout: 50 * time.Millisecond,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if !IsFatalSinkError(err) {
			t.Errorf("Run error %v is not fatal", err)
		}
		if !errors.Is(err, ErrPublishStalled) {
			t.Errorf("Run error %v does not wrap ErrPublishStalled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stalled publish did not stop the loop")
	}
}

func TestPublisher_ContextCancelStops(t *testing.T) {
	sink := &scriptedSink{}
	p := &Publisher{
		Spec:   smallSpec(10),
		Source: stubSource{},
		Sink:   sink,
		Token:  &StopToken{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run after context cancel = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher ignored context cancellation")
	}
}

func TestPublisher_RejectsInvalidSpec(t *testing.T) {
	p := &Publisher{
		Spec:   FrameSpec{Width: 0, Height: 720, Format: PixelFormatBGRA32, Rate: FrameRate{30, 1}},
		Source: stubSource{},
		Sink:   &scriptedSink{},
		Token:  &StopToken{},
	}
	if err := p.Run(context.Background()); err == nil {
		t.Error("Run accepted a zero-width spec")
	}
}
