package ndibridge

import (
	"testing"
	"time"
)

func TestFrameRate_Interval(t *testing.T) {
	tests := []struct {
		name string
		rate FrameRate
		want time.Duration
	}{
		{"30fps", FrameRate{30, 1}, time.Second / 30},
		{"60fps", FrameRate{60, 1}, time.Second / 60},
		{"ntsc", FrameRate{30000, 1001}, time.Duration(int64(time.Second) * 1001 / 30000)},
		{"invalid", FrameRate{0, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rate.Interval(); got != tt.want {
				t.Errorf("Interval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameSpec_Validate(t *testing.T) {
	valid := FrameSpec{Width: 1280, Height: 720, Format: PixelFormatBGRA32, Rate: FrameRate{30, 1}}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}

	tests := []struct {
		name string
		spec FrameSpec
	}{
		{"zero width", FrameSpec{Width: 0, Height: 720, Format: PixelFormatBGRA32, Rate: FrameRate{30, 1}}},
		{"negative height", FrameSpec{Width: 1280, Height: -1, Format: PixelFormatBGRA32, Rate: FrameRate{30, 1}}},
		{"zero rate", FrameSpec{Width: 1280, Height: 720, Format: PixelFormatBGRA32, Rate: FrameRate{0, 1}}},
		{"zero rate denominator", FrameSpec{Width: 1280, Height: 720, Format: PixelFormatBGRA32, Rate: FrameRate{30, 0}}},
		{"unknown format", FrameSpec{Width: 1280, Height: 720, Format: PixelFormat(99), Rate: FrameRate{30, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.spec.Validate(); err == nil {
				t.Error("Validate() accepted an invalid spec")
			}
		})
	}
}

func TestFrameSpec_BufferSize(t *testing.T) {
	spec := FrameSpec{Width: 320, Height: 240, Format: PixelFormatBGRA32, Rate: FrameRate{30, 1}}

	if got := spec.BufferSize(); got != 320*240*4 {
		t.Errorf("BufferSize() = %d, want %d", got, 320*240*4)
	}
	if got := spec.Stride(); got != 320*4 {
		t.Errorf("Stride() = %d, want %d", got, 320*4)
	}
	if buf := NewFrameBuffer(spec); len(buf) != spec.BufferSize() {
		t.Errorf("NewFrameBuffer length = %d, want %d", len(buf), spec.BufferSize())
	}
}

func TestFrameRate_String(t *testing.T) {
	if got := (FrameRate{30, 1}).String(); got != "30" {
		t.Errorf("String() = %q, want %q", got, "30")
	}
	if got := (FrameRate{30000, 1001}).String(); got != "30000/1001" {
		t.Errorf("String() = %q, want %q", got, "30000/1001")
	}
}
