package ndibridge

import (
	"math"
	"time"
)

// SyntheticSource generates deterministic test frames in place of the real
// mobile camera decode. Output is a pure function of (spec, frameIndex,
// elapsed) except for the optional dither term on the Subject pattern.
type SyntheticSource struct {
	kind PatternKind

	// Dither adds low-amplitude sensor-style noise to the Subject pattern.
	// Disable for byte-identical reproducibility.
	Dither bool

	rngState uint64
}

// NewSyntheticSource creates a synthetic frame source for the given pattern.
func NewSyntheticSource(kind PatternKind) *SyntheticSource {
	return &SyntheticSource{
		kind:     kind,
		Dither:   kind == PatternSubject,
		rngState: uint64(time.Now().UnixNano()) | 1,
	}
}

// Kind returns the pattern kind this source renders.
func (s *SyntheticSource) Kind() PatternKind {
	return s.kind
}

// Produce fills out with one frame. Every byte is overwritten; alpha is
// always fully opaque.
func (s *SyntheticSource) Produce(spec FrameSpec, frameIndex uint64, elapsed time.Duration, out []byte) {
	switch s.kind {
	case PatternPlasma:
		s.producePlasma(spec, frameIndex, out)
	case PatternStatusFlash:
		s.produceStatusFlash(spec, frameIndex, out)
	case PatternOrbit:
		s.produceOrbit(spec, frameIndex, out)
	default:
		s.produceSubject(spec, frameIndex, elapsed, out)
	}
}

// produceSubject simulates a person framed by a mobile camera: a breathing
// "face" zone blending through shoulders into a room background, with slow
// head drift and global lighting modulation.
func (s *SyntheticSource) produceSubject(spec FrameSpec, frameIndex uint64, elapsed time.Duration, out []byte) {
	w, h := spec.Width, spec.Height
	f := float64(frameIndex)
	t := elapsed.Seconds() * 3

	breathing := 1.0 + 0.1*math.Sin(t)
	headDrift := 0.05 * math.Sin(t*0.5)
	cx := float64(w)/2 + headDrift*float64(w)
	cy := float64(h)/2 + headDrift*float64(h)*0.5
	lighting := 0.8 + 0.2*math.Sin(t*0.3)

	faceRadius := 100 * breathing
	bodyRadius := 150 * breathing

	idx := 0
	for y := 0; y < h; y++ {
		dy := float64(y) - cy
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			dist := math.Sqrt(dx*dx + dy*dy)

			var r, g, b float64
			switch {
			case dist < faceRadius:
				// Skin tones with fine sinusoidal texture
				r = 220 + 30*math.Sin((float64(x)+f)*0.01) + 10*math.Sin(t)
				g = 180 + 20*math.Sin((float64(y)+f)*0.01) + 5*math.Cos(t)
				b = 160 + 15*math.Sin((float64(x+y)+f)*0.005) + 5*math.Sin(t*1.5)
			case dist < bodyRadius:
				// Blend from face into body colors
				factor := (dist - faceRadius) / (bodyRadius - faceRadius)
				r = 220*(1-factor) + 120*factor
				g = 180*(1-factor) + 100*factor
				b = 160*(1-factor) + 80*factor
			case dist < 250:
				// Near background (room)
				r = 80 + 30*math.Sin((float64(x)+f)*0.003)
				g = 100 + 30*math.Sin((float64(y)+f)*0.003)
				b = 140 + 30*math.Sin((float64(x+y)+f)*0.002)
			default:
				// Far background
				r = 60 + 20*math.Sin((float64(x)+f)*0.002)
				g = 70 + 20*math.Sin((float64(y)+f)*0.002)
				b = 100 + 20*math.Sin((float64(x+y)+f)*0.001)
			}

			r *= lighting
			g *= lighting
			b *= lighting

			if s.Dither {
				r += float64(s.nextDither())
				g += float64(s.nextDither())
				b += float64(s.nextDither())
			}

			out[idx+0] = clampByte(b)
			out[idx+1] = clampByte(g)
			out[idx+2] = clampByte(r)
			out[idx+3] = 255
			idx += 4
		}
	}
}

// producePlasma renders a full-field sinusoidal plasma.
func (s *SyntheticSource) producePlasma(spec FrameSpec, frameIndex uint64, out []byte) {
	w, h := spec.Width, spec.Height
	f := float64(frameIndex)

	idx := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := 128 + 127*math.Sin((float64(x)+f)*0.01)
			g := 128 + 127*math.Sin((float64(y)+f)*0.01)
			b := 128 + 127*math.Sin((float64(x+y)+f)*0.005)

			out[idx+0] = clampByte(b)
			out[idx+1] = clampByte(g)
			out[idx+2] = clampByte(r)
			out[idx+3] = 255
			idx += 4
		}
	}
}

// produceStatusFlash alternates a green and a blue field once per nominal
// second, with a white band across the frame center.
func (s *SyntheticSource) produceStatusFlash(spec FrameSpec, frameIndex uint64, out []byte) {
	w, h := spec.Width, spec.Height

	period := uint64(math.Round(spec.Rate.FPS()))
	if period < 2 {
		period = 2
	}
	green := frameIndex%period < period/2

	bandTop, bandBottom := h/2-50, h/2+50
	bandLeft, bandRight := w/2-200, w/2+200

	idx := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, b uint8
			if green {
				g = 255
			} else {
				b = 255
			}
			if y > bandTop && y < bandBottom && x > bandLeft && x < bandRight {
				r, g, b = 255, 255, 255
			}

			out[idx+0] = b
			out[idx+1] = g
			out[idx+2] = r
			out[idx+3] = 255
			idx += 4
		}
	}
}

// produceOrbit renders a bright disc circling the frame center on a dark
// field.
func (s *SyntheticSource) produceOrbit(spec FrameSpec, frameIndex uint64, out []byte) {
	w, h := spec.Width, spec.Height

	// Dark field first
	for i := 0; i < len(out); i += 4 {
		out[i+0] = 24
		out[i+1] = 16
		out[i+2] = 16
		out[i+3] = 255
	}

	angle := float64(frameIndex) * 0.1
	cx := float64(w)/2 + float64(w)/6*math.Sin(angle)
	cy := float64(h)/2 + float64(h)/7*math.Cos(angle)
	radius := float64(minInt(w, h)) / 14

	x0, x1 := int(cx-radius), int(cx+radius)
	y0, y1 := int(cy-radius), int(cy+radius)
	for y := maxInt(y0, 0); y <= y1 && y < h; y++ {
		dy := float64(y) - cy
		for x := maxInt(x0, 0); x <= x1 && x < w; x++ {
			dx := float64(x) - cx
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			idx := (y*w + x) * 4
			out[idx+0] = 0
			out[idx+1] = 255
			out[idx+2] = 0
			out[idx+3] = 255
		}
	}
}

// nextDither returns a small signed noise term in [-4, 3] from a xorshift64
// generator.
func (s *SyntheticSource) nextDither() int {
	s.rngState ^= s.rngState << 13
	s.rngState ^= s.rngState >> 7
	s.rngState ^= s.rngState << 17
	return int(s.rngState%8) - 4
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Register the synthetic patterns.
func init() {
	for _, kind := range []PatternKind{PatternSubject, PatternPlasma, PatternStatusFlash, PatternOrbit} {
		k := kind
		RegisterFrameSource(k, func() FrameSource { return NewSyntheticSource(k) })
	}
}
