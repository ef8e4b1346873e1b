//go:build darwin || linux

// NDI transmission via the NDI runtime (libndi) loaded with purego, so the
// package builds and cross-compiles with CGO_ENABLED=0.

package ndibridge

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	ndiOnce    sync.Once
	ndiHandle  uintptr
	ndiInitErr error
)

// libndi function pointers
var (
	ndiInitialize      func() bool
	ndiSendCreate      func(desc uintptr) uintptr
	ndiSendDestroy     func(sender uintptr)
	ndiSendSendVideoV2 func(sender uintptr, frame uintptr)
)

// Constants from Processing.NDI.Lib.h
const (
	ndiFourCCBGRA = int32('B') | int32('G')<<8 | int32('R')<<16 | int32('A')<<24

	ndiFrameFormatProgressive = int32(1)

	// NDIlib_send_timecode_synthesize
	ndiTimecodeSynthesize = int64(math.MaxInt64)
)

// ndiSendCreateDesc mirrors NDIlib_send_create_t.
type ndiSendCreateDesc struct {
	Name       *byte
	Groups     *byte
	ClockVideo bool
	ClockAudio bool
}

// ndiVideoFrameV2 mirrors NDIlib_video_frame_v2_t.
type ndiVideoFrameV2 struct {
	Xres               int32
	Yres               int32
	FourCC             int32
	FrameRateN         int32
	FrameRateD         int32
	PictureAspectRatio float32
	FrameFormatType    int32
	Timecode           int64
	Data               *byte
	LineStrideInBytes  int32
	Metadata           *byte
	Timestamp          int64
}

// loadNDI loads the NDI runtime shared library once per process.
func loadNDI() error {
	ndiOnce.Do(func() {
		ndiInitErr = loadNDILib()
	})
	return ndiInitErr
}

func loadNDILib() error {
	var lastErr error
	for _, path := range ndiLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		ndiHandle = handle
		loadNDISymbols()
		if !ndiInitialize() {
			purego.Dlclose(handle)
			return errors.New("NDI runtime refused to initialize on this CPU")
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load NDI runtime: %w", lastErr)
	}
	return errors.New("NDI runtime not found in any standard location")
}

func ndiLibPaths() []string {
	libName := "libndi.so.5"
	if runtime.GOOS == "darwin" {
		libName = "libndi.dylib"
	}

	var paths []string
	if envPath := os.Getenv("NDI_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	if envDir := os.Getenv("NDI_RUNTIME_DIR_V5"); envDir != "" {
		paths = append(paths, filepath.Join(envDir, libName))
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			"/usr/local/lib/libndi.dylib",
			"/Library/NDI SDK for Apple/lib/macOS/libndi.dylib",
		)
	case "linux":
		paths = append(paths,
			libName,
			"libndi.so",
			"/usr/local/lib/libndi.so.5",
			"/usr/lib/libndi.so.5",
		)
	}
	return paths
}

func loadNDISymbols() {
	purego.RegisterLibFunc(&ndiInitialize, ndiHandle, "NDIlib_initialize")
	purego.RegisterLibFunc(&ndiSendCreate, ndiHandle, "NDIlib_send_create")
	purego.RegisterLibFunc(&ndiSendDestroy, ndiHandle, "NDIlib_send_destroy")
	purego.RegisterLibFunc(&ndiSendSendVideoV2, ndiHandle, "NDIlib_send_send_video_v2")
}

// IsNDIAvailable reports whether the NDI runtime could be loaded.
func IsNDIAvailable() bool {
	return loadNDI() == nil
}

// NDISink transmits frames as an NDI video source on the local network.
type NDISink struct {
	name   string
	sender uintptr

	// nameBytes keeps the advertised name alive for the sender's lifetime;
	// the runtime holds the pointer passed at create time.
	nameBytes []byte

	mu     sync.Mutex
	closed bool
}

// NewNDISink creates an NDI sender advertised under sourceName. Failure to
// load the runtime or create the sender is a sink initialization failure:
// the caller must treat it as fatal.
func NewNDISink(sourceName string, spec FrameSpec) (*NDISink, error) {
	if err := loadNDI(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	s := &NDISink{
		name:      sourceName,
		nameBytes: append([]byte(sourceName), 0),
	}

	desc := ndiSendCreateDesc{
		Name:       &s.nameBytes[0],
		ClockVideo: true,
	}
	s.sender = ndiSendCreate(uintptr(unsafe.Pointer(&desc)))
	runtime.KeepAlive(&desc)
	if s.sender == 0 {
		return nil, fmt.Errorf("cannot create NDI sender %q", sourceName)
	}
	return s, nil
}

// Publish sends one BGRA frame. The buffer is only read for the duration of
// the call; the sender clocks transmission to the advertised frame rate.
func (s *NDISink) Publish(buf []byte, spec FrameSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Fatal(ErrSinkClosed)
	}
	if len(buf) != spec.BufferSize() {
		return fmt.Errorf("frame buffer size %d, want %d", len(buf), spec.BufferSize())
	}

	frame := ndiVideoFrameV2{
		Xres:               int32(spec.Width),
		Yres:               int32(spec.Height),
		FourCC:             ndiFourCCBGRA,
		FrameRateN:         int32(spec.Rate.Num),
		FrameRateD:         int32(spec.Rate.Den),
		PictureAspectRatio: float32(spec.Width) / float32(spec.Height),
		FrameFormatType:    ndiFrameFormatProgressive,
		Timecode:           ndiTimecodeSynthesize,
		Data:               &buf[0],
		LineStrideInBytes:  int32(spec.Stride()),
	}
	ndiSendSendVideoV2(s.sender, uintptr(unsafe.Pointer(&frame)))
	runtime.KeepAlive(&frame)
	runtime.KeepAlive(buf)
	return nil
}

// Close destroys the NDI sender. Safe to call more than once.
func (s *NDISink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.sender != 0 {
		ndiSendDestroy(s.sender)
		s.sender = 0
	}
	return nil
}

func (s *NDISink) Name() string {
	return s.name + " (ndi)"
}

func init() {
	RegisterSink("ndi", func(u *url.URL, sourceName string, spec FrameSpec) (OutputSink, error) {
		return NewNDISink(sourceName, spec)
	})
}
