package ndibridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// StopToken is a cooperative cancellation flag. The publish loop checks it
// once per tick; a signal handler's only permitted action is Set, which is
// a single atomic store and safe in any execution context.
type StopToken struct {
	stopped atomic.Bool
}

// Set requests a stop. Idempotent, allocation-free, reentrancy-safe.
func (t *StopToken) Set() {
	t.stopped.Store(true)
}

// Stopped reports whether a stop has been requested.
func (t *StopToken) Stopped() bool {
	return t.stopped.Load()
}

// PublisherStats counts what the loop has done so far.
type PublisherStats struct {
	FramesPublished uint64
	FramesLate      uint64 // ticks whose work exceeded the frame interval
	TransientErrors uint64
	PublishTimeUs   uint64
}

// Publisher drives the fixed-rate produce-and-publish loop: one frame per
// tick from Source into the shared buffer, then out through Sink, with
// sleep times compensated for per-tick processing cost so the average rate
// holds. A slow tick lowers the instantaneous rate; the loop never bursts
// multiple frames to catch up.
type Publisher struct {
	Spec   FrameSpec
	Source FrameSource
	Sink   OutputSink
	Token  *StopToken

	// PublishTimeout bounds one Sink.Publish call. Zero means a small
	// multiple of the frame interval.
	PublishTimeout time.Duration

	Log *logrus.Entry

	stats   PublisherStats
	statsMu sync.Mutex
}

// ErrPublishStalled is wrapped in the fatal error returned when a single
// publish call exceeds the stall timeout.
var ErrPublishStalled = errors.New("sink publish stalled")

// Stats returns a snapshot of the loop counters.
func (p *Publisher) Stats() PublisherStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// Run executes the loop until the token is set, the context is cancelled,
// or the sink fails fatally. Only fatal sink errors are returned; transient
// publish errors are logged and the loop continues.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.Spec.Validate(); err != nil {
		return err
	}
	if p.Source == nil || p.Sink == nil || p.Token == nil {
		return errors.New("publisher needs a source, a sink, and a stop token")
	}

	log := p.log()
	interval := p.Spec.Rate.Interval()
	stallTimeout := p.PublishTimeout
	if stallTimeout <= 0 {
		stallTimeout = 4 * interval
	}

	// One buffer for the whole run: the source fills it in place, the sink
	// reads it. The loop goroutine is the only writer.
	buffer := NewFrameBuffer(p.Spec)

	log.WithFields(logrus.Fields{
		"resolution": fmt.Sprintf("%dx%d", p.Spec.Width, p.Spec.Height),
		"rate":       p.Spec.Rate.String(),
		"sink":       p.Sink.Name(),
	}).Info("publish loop started")

	var frameIndex uint64
	start := time.Now()
	nextReport := start.Add(time.Second)
	reportedFrames := uint64(0)

	for !p.Token.Stopped() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		tickStart := time.Now()

		p.Source.Produce(p.Spec, frameIndex, tickStart.Sub(start), buffer)

		publishStart := time.Now()
		err := p.publishWithTimeout(buffer, stallTimeout)
		publishTime := time.Since(publishStart)

		p.statsMu.Lock()
		p.stats.PublishTimeUs += uint64(publishTime.Microseconds())
		p.statsMu.Unlock()

		if err != nil {
			if IsFatalSinkError(err) {
				log.WithError(err).Error("sink failed, stopping publish loop")
				return err
			}
			p.statsMu.Lock()
			p.stats.TransientErrors++
			p.statsMu.Unlock()
			log.WithError(err).WithField("frame", frameIndex).Warn("frame publish failed")
		} else {
			p.statsMu.Lock()
			p.stats.FramesPublished++
			p.statsMu.Unlock()
		}

		frameIndex++

		if now := time.Now(); now.After(nextReport) {
			stats := p.Stats()
			log.WithFields(logrus.Fields{
				"frames": stats.FramesPublished,
				"fps":    stats.FramesPublished - reportedFrames,
				"late":   stats.FramesLate,
			}).Info("publishing")
			reportedFrames = stats.FramesPublished
			for !nextReport.After(now) {
				nextReport = nextReport.Add(time.Second)
			}
		}

		elapsedTick := time.Since(tickStart)
		if elapsedTick < interval {
			if !sleepCtx(ctx, interval-elapsedTick) {
				return nil
			}
		} else {
			p.statsMu.Lock()
			p.stats.FramesLate++
			p.statsMu.Unlock()
		}
	}

	log.WithField("frames", p.Stats().FramesPublished).Info("stop requested, publish loop exiting")
	return nil
}

// publishWithTimeout bounds a single Publish call. On timeout the call is
// abandoned and the loop stops with a fatal error, so the abandoned sink
// call never races a later buffer rewrite.
func (p *Publisher) publishWithTimeout(buffer []byte, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- p.Sink.Publish(buffer, p.Spec)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return Fatal(fmt.Errorf("%w after %v", ErrPublishStalled, timeout))
	}
}

// sleepCtx sleeps for d unless the context ends first. Returns false when
// the context ended.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Publisher) log() *logrus.Entry {
	if p.Log != nil {
		return p.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
