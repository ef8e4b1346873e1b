package ndibridge

import (
	"errors"
	"fmt"
	"testing"
)

func TestFatalSinkErrorClassification(t *testing.T) {
	base := errors.New("sender destroyed")

	if !IsFatalSinkError(Fatal(base)) {
		t.Error("Fatal() result not classified fatal")
	}
	if IsFatalSinkError(base) {
		t.Error("bare error classified fatal")
	}
	if IsFatalSinkError(nil) {
		t.Error("nil classified fatal")
	}

	// Classification must survive wrapping.
	wrapped := fmt.Errorf("publish frame 7: %w", Fatal(base))
	if !IsFatalSinkError(wrapped) {
		t.Error("wrapped fatal error lost its classification")
	}
	if !errors.Is(Fatal(base), base) {
		t.Error("Fatal() does not unwrap to the cause")
	}
	if Fatal(nil) != nil {
		t.Error("Fatal(nil) should be nil")
	}
}

func TestNullSink(t *testing.T) {
	spec := smallSpec(30)
	sink := NewNullSink("TestCam")
	buf := NewFrameBuffer(spec)

	for i := 0; i < 3; i++ {
		if err := sink.Publish(buf, spec); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	if got := sink.Published(); got != 3 {
		t.Errorf("Published() = %d, want 3", got)
	}

	if err := sink.Publish(buf[:8], spec); err == nil {
		t.Error("Publish accepted a wrong-sized buffer")
	}

	if err := sink.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("double Close failed: %v", err)
	}

	err := sink.Publish(buf, spec)
	if !IsFatalSinkError(err) {
		t.Errorf("Publish after Close = %v, want fatal", err)
	}
}

func TestNewOutputSink_Registry(t *testing.T) {
	spec := smallSpec(30)

	sink, err := NewOutputSink("null:", "TestCam", spec)
	if err != nil {
		t.Fatalf("NewOutputSink(null:) failed: %v", err)
	}
	defer sink.Close()

	if _, ok := sink.(*NullSink); !ok {
		t.Errorf("NewOutputSink(null:) returned %T", sink)
	}

	if _, err := NewOutputSink("smoke://signals", "TestCam", spec); err == nil {
		t.Error("unknown scheme should fail")
	}
	if _, err := NewOutputSink("://", "TestCam", spec); err == nil {
		t.Error("unparseable url should fail")
	}
}
