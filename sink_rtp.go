package ndibridge

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/pion/rtp"
)

const (
	// DefaultMTU bounds a single RTP packet on typical LANs.
	DefaultMTU = 1200

	// rtpVideoClockRate is the standard 90 kHz video clock.
	rtpVideoClockRate = 90000

	defaultRTPSSRC        = 0x4E444942 // "NDIB"
	defaultRTPPayloadType = 96
)

// RTPSink streams uncompressed BGRA frames over UDP as RTP packets: each
// frame is fragmented across MTU-sized payloads with the marker bit set on
// the final packet, for receivers that reassemble by timestamp. Intended
// for same-host or LAN consumption where bandwidth is not a concern.
type RTPSink struct {
	name        string
	conn        net.Conn
	ssrc        uint32
	payloadType uint8
	mtu         int
	sequencer   rtp.Sequencer

	timestamp     uint32
	timestampStep uint32

	mu     sync.Mutex
	closed bool
}

// NewRTPSink dials addr (host:port) over UDP and prepares the packetizer.
func NewRTPSink(addr, sourceName string, spec FrameSpec) (*RTPSink, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial rtp sink %q: %w", addr, err)
	}

	return &RTPSink{
		name:          sourceName,
		conn:          conn,
		ssrc:          defaultRTPSSRC,
		payloadType:   defaultRTPPayloadType,
		mtu:           DefaultMTU,
		sequencer:     rtp.NewRandomSequencer(),
		timestampStep: uint32(rtpVideoClockRate * spec.Rate.Den / spec.Rate.Num),
	}, nil
}

// SetMTU overrides the packet size bound. Must be called before Publish.
func (s *RTPSink) SetMTU(mtu int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mtu > 0 {
		s.mtu = mtu
	}
}

// Publish fragments and sends one frame. A UDP write error is transient;
// the loop keeps running and the receiver misses one frame.
func (s *RTPSink) Publish(buf []byte, spec FrameSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Fatal(ErrSinkClosed)
	}
	if len(buf) != spec.BufferSize() {
		return fmt.Errorf("frame buffer size %d, want %d", len(buf), spec.BufferSize())
	}

	payloadSize := s.mtu - 12 // RTP header
	for offset := 0; offset < len(buf); offset += payloadSize {
		end := offset + payloadSize
		if end > len(buf) {
			end = len(buf)
		}

		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         end == len(buf),
				PayloadType:    s.payloadType,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      s.timestamp,
				SSRC:           s.ssrc,
			},
			Payload: buf[offset:end],
		}

		raw, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("marshal rtp packet: %w", err)
		}
		if _, err := s.conn.Write(raw); err != nil {
			s.timestamp += s.timestampStep
			return fmt.Errorf("write rtp packet: %w", err)
		}
	}

	s.timestamp += s.timestampStep
	return nil
}

// Close closes the UDP socket. Safe to call more than once.
func (s *RTPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *RTPSink) Name() string {
	return fmt.Sprintf("%s (rtp %s)", s.name, s.conn.RemoteAddr())
}

func init() {
	RegisterSink("rtp", func(u *url.URL, sourceName string, spec FrameSpec) (OutputSink, error) {
		sink, err := NewRTPSink(u.Host, sourceName, spec)
		if err != nil {
			return nil, err
		}
		if mtuStr := u.Query().Get("mtu"); mtuStr != "" {
			mtu, err := strconv.Atoi(mtuStr)
			if err != nil || mtu <= 12 {
				sink.Close()
				return nil, fmt.Errorf("invalid mtu %q", mtuStr)
			}
			sink.SetMTU(mtu)
		}
		return sink, nil
	})
}
