// Package ndibridge turns a mobile camera bridge's streams into an NDI-style
// video feed. Until real WebRTC decode lands, frames come from synthetic
// pattern generators paced at a fixed rate.
//
// Key pieces include:
//   - FrameSpec/FrameBuffer and the BGRA32 frame layout
//   - FrameSource implementations (synthetic patterns; a real decoder plugs
//     in behind the same Produce contract)
//   - DiscoveryClient for polling the bridge's /streams catalog
//   - OutputSinks: native NDI (via purego), raw RTP over UDP, WebSocket
//   - Publisher, the drift-compensating fixed-rate publish loop
//   - Bridge, the lifecycle controller wiring the above together
//
// # Architecture
//
//	Bridge -> DiscoveryClient (best effort)
//	Bridge -> Publisher: FrameSource -> FrameBuffer -> OutputSink, per tick
//
// # Native NDI
//
// NDISink loads the NDI runtime (libndi) dynamically via purego, so the
// package builds with CGO_ENABLED=0. Set NDI_LIB_PATH to the shared library
// if it is not in a standard location. When the runtime is missing, sink
// construction fails and the process exits before entering the loop; the
// rtp, ws, and null sinks need no native code.
package ndibridge
