// Core frame types shared across the bridge.
package ndibridge

import (
	"fmt"
	"time"
)

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatBGRA32 PixelFormat = iota // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// BytesPerPixel returns the number of bytes per pixel for this format.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatBGRA32:
		return 4
	default:
		return 0
	}
}

// FrameRate is a frame rate expressed as a positive rational (Num/Den).
// Integer rates use Den=1; NTSC-style rates use e.g. 30000/1001.
type FrameRate struct {
	Num int
	Den int
}

func (r FrameRate) String() string {
	if r.Den == 1 {
		return fmt.Sprintf("%d", r.Num)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Valid reports whether the rate is positive.
func (r FrameRate) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Interval returns the duration of one frame at this rate.
func (r FrameRate) Interval() time.Duration {
	if !r.Valid() {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(r.Den) / int64(r.Num))
}

// FPS returns the rate as frames per second.
func (r FrameRate) FPS() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// FrameSpec describes the geometry and timing of the frames moving through
// the publish loop. It is created once at startup and never mutated.
type FrameSpec struct {
	Width  int
	Height int
	Format PixelFormat
	Rate   FrameRate
}

// Validate checks the spec for non-positive dimensions or rate.
func (s FrameSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", s.Width, s.Height)
	}
	if s.Format.BytesPerPixel() == 0 {
		return fmt.Errorf("unsupported pixel format %v", s.Format)
	}
	if !s.Rate.Valid() {
		return fmt.Errorf("invalid frame rate %s", s.Rate)
	}
	return nil
}

// Stride returns the row stride in bytes.
func (s FrameSpec) Stride() int {
	return s.Width * s.Format.BytesPerPixel()
}

// BufferSize returns the exact byte size of one frame.
func (s FrameSpec) BufferSize() int {
	return s.Stride() * s.Height
}

// NewFrameBuffer allocates a single reusable frame buffer for the spec.
// The publisher owns the buffer: the source fills it in place each tick and
// the sink reads it during Publish. Exactly one writer at a time.
func NewFrameBuffer(spec FrameSpec) []byte {
	return make([]byte, spec.BufferSize())
}

// DiscoveryResult is the outcome of one upstream stream lookup.
// It is created once by the DiscoveryClient and read-only thereafter;
// it labels the output but never gates whether the publisher runs.
type DiscoveryResult struct {
	Found    bool
	StreamID string
}
