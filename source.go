package ndibridge

import (
	"fmt"
	"sync"
	"time"
)

// FrameSource produces one fully populated frame per tick.
type FrameSource interface {
	// Produce overwrites every byte of out with the frame for frameIndex.
	// out is spec.BufferSize() bytes, row-major BGRA. Produce performs no
	// I/O, does not block, and cannot fail.
	Produce(spec FrameSpec, frameIndex uint64, elapsed time.Duration, out []byte)
}

// PatternKind identifies a synthetic pattern generator.
type PatternKind int

const (
	PatternSubject     PatternKind = iota // Simulated person: breathing concentric zones
	PatternPlasma                         // Full-field sinusoidal plasma
	PatternStatusFlash                    // Alternating status colors with a center band
	PatternOrbit                          // Bright disc orbiting the frame center
)

func (p PatternKind) String() string {
	switch p {
	case PatternSubject:
		return "Subject"
	case PatternPlasma:
		return "Plasma"
	case PatternStatusFlash:
		return "StatusFlash"
	case PatternOrbit:
		return "Orbit"
	default:
		return "Unknown"
	}
}

// ParsePatternKind maps a config string to a PatternKind.
func ParsePatternKind(s string) (PatternKind, error) {
	switch s {
	case "subject", "":
		return PatternSubject, nil
	case "plasma":
		return PatternPlasma, nil
	case "status":
		return PatternStatusFlash, nil
	case "orbit":
		return PatternOrbit, nil
	default:
		return 0, fmt.Errorf("unknown pattern kind %q", s)
	}
}

// FrameSourceFactory creates a frame source for a pattern kind.
type FrameSourceFactory func() FrameSource

// sourceRegistry holds registered source factories. A real decoder source
// registers here and the rest of the system is unchanged.
type sourceRegistry struct {
	factories map[PatternKind]FrameSourceFactory
	mu        sync.RWMutex
}

var globalSourceRegistry = &sourceRegistry{
	factories: make(map[PatternKind]FrameSourceFactory),
}

// RegisterFrameSource registers a source factory for a pattern kind.
func RegisterFrameSource(kind PatternKind, factory FrameSourceFactory) {
	globalSourceRegistry.mu.Lock()
	defer globalSourceRegistry.mu.Unlock()
	globalSourceRegistry.factories[kind] = factory
}

// CreateFrameSource creates a frame source for the given pattern kind.
func CreateFrameSource(kind PatternKind) (FrameSource, error) {
	globalSourceRegistry.mu.RLock()
	factory, ok := globalSourceRegistry.factories[kind]
	globalSourceRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("frame source not available: %v", kind)
	}
	return factory(), nil
}

// AvailableFrameSources returns the registered pattern kinds.
func AvailableFrameSources() []PatternKind {
	globalSourceRegistry.mu.RLock()
	defer globalSourceRegistry.mu.RUnlock()

	kinds := make([]PatternKind, 0, len(globalSourceRegistry.factories))
	for k := range globalSourceRegistry.factories {
		kinds = append(kinds, k)
	}
	return kinds
}
