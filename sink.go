package ndibridge

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
)

// OutputSink transmits finished frames over an outbound video interface.
// Publish is called once per tick with the shared frame buffer; the sink
// must treat buf as read-only and must not retain it past the call.
type OutputSink interface {
	// Publish transmits one frame. A returned FatalSinkError stops the
	// publish loop; any other error is logged and the loop continues.
	Publish(buf []byte, spec FrameSpec) error

	// Close releases the sink. Safe to call more than once.
	Close() error

	// Name identifies the sink for status lines.
	Name() string
}

// FatalSinkError marks a sink failure the publish loop cannot recover from
// (output destroyed, transport gone). Transient publish errors are returned
// bare.
type FatalSinkError struct {
	Err error
}

func (e *FatalSinkError) Error() string {
	return fmt.Sprintf("fatal sink error: %v", e.Err)
}

func (e *FatalSinkError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalSinkError.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalSinkError{Err: err}
}

// IsFatalSinkError reports whether err (or anything it wraps) is fatal to
// the publish loop.
func IsFatalSinkError(err error) bool {
	var fatal *FatalSinkError
	return errors.As(err, &fatal)
}

// ErrSinkClosed is returned by Publish after Close.
var ErrSinkClosed = errors.New("sink closed")

// SinkFactory creates a sink from a parsed output URL and the advertised
// source name.
type SinkFactory func(u *url.URL, sourceName string, spec FrameSpec) (OutputSink, error)

type sinkRegistry struct {
	factories map[string]SinkFactory
	mu        sync.RWMutex
}

var globalSinkRegistry = &sinkRegistry{
	factories: make(map[string]SinkFactory),
}

// RegisterSink registers a sink factory for a URL scheme.
func RegisterSink(scheme string, factory SinkFactory) {
	globalSinkRegistry.mu.Lock()
	defer globalSinkRegistry.mu.Unlock()
	globalSinkRegistry.factories[scheme] = factory
}

// NewOutputSink creates a sink from an output URL such as "ndi:", a
// "rtp://host:port" address, or "ws://host/path". Construction failure is
// fatal to the process; there is no degraded sink mode.
func NewOutputSink(rawURL, sourceName string, spec FrameSpec) (OutputSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse sink url %q: %w", rawURL, err)
	}

	globalSinkRegistry.mu.RLock()
	factory, ok := globalSinkRegistry.factories[u.Scheme]
	globalSinkRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported sink scheme %q", u.Scheme)
	}
	return factory(u, sourceName, spec)
}

// NullSink discards frames and counts them. Useful for bring-up on hosts
// without the NDI runtime and as a test double.
type NullSink struct {
	name      string
	published atomic.Uint64
	closed    atomic.Bool
}

// NewNullSink creates a counting discard sink.
func NewNullSink(sourceName string) *NullSink {
	return &NullSink{name: sourceName}
}

func (s *NullSink) Publish(buf []byte, spec FrameSpec) error {
	if s.closed.Load() {
		return Fatal(ErrSinkClosed)
	}
	if len(buf) != spec.BufferSize() {
		return fmt.Errorf("frame buffer size %d, want %d", len(buf), spec.BufferSize())
	}
	s.published.Add(1)
	return nil
}

func (s *NullSink) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *NullSink) Name() string {
	return s.name + " (null)"
}

// Published returns the number of frames accepted so far.
func (s *NullSink) Published() uint64 {
	return s.published.Load()
}

func init() {
	RegisterSink("null", func(u *url.URL, sourceName string, spec FrameSpec) (OutputSink, error) {
		return NewNullSink(sourceName), nil
	})
}
