package ndibridge

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Config parameterizes one bridge instance. The original deployment ran a
// separate binary per pattern/name combination; one Config now covers them
// all.
type Config struct {
	// SourceName is the name the output is advertised under.
	SourceName string

	// Spec is the frame geometry and rate.
	Spec FrameSpec

	// Pattern selects the synthetic frame source. Ignored when Source is
	// set.
	Pattern PatternKind

	// SinkURL selects the output ("ndi:", "rtp://host:port",
	// "ws://host/path", "null:"). Ignored when Sink is set.
	SinkURL string

	// BridgeURL is the stream catalog base URL. Empty disables discovery.
	BridgeURL string

	// DiscoveryTimeout, DiscoveryAttempts and DiscoveryInterval tune the
	// startup poll. Zero values mean one attempt with the default timeout.
	DiscoveryTimeout  time.Duration
	DiscoveryAttempts int
	DiscoveryInterval time.Duration

	// HandleSignals installs a SIGINT/SIGTERM handler that requests a
	// cooperative stop.
	HandleSignals bool

	// Source and Sink override construction from Pattern/SinkURL.
	Source FrameSource
	Sink   OutputSink

	Log *logrus.Entry
}

// DefaultConfig returns the settings the original deployment ran with.
func DefaultConfig() Config {
	return Config{
		SourceName: "MobileCam_TestPattern",
		Spec: FrameSpec{
			Width:  1280,
			Height: 720,
			Format: PixelFormatBGRA32,
			Rate:   FrameRate{Num: 30, Den: 1},
		},
		Pattern:       PatternSubject,
		SinkURL:       "ndi:",
		BridgeURL:     "http://localhost:8000",
		HandleSignals: true,
	}
}

// Validate rejects configurations that must not reach initialization.
func (c Config) Validate() error {
	if c.SourceName == "" {
		return fmt.Errorf("source name must not be empty")
	}
	if err := c.Spec.Validate(); err != nil {
		return err
	}
	if c.Sink == nil && c.SinkURL == "" {
		return fmt.Errorf("sink url must not be empty")
	}
	return nil
}

// Bridge owns the startup and shutdown ordering: sink init, best-effort
// discovery, signal wiring, publish loop, sink teardown. Teardown runs on
// every exit path, exactly once.
type Bridge struct {
	config Config
	token  StopToken

	discovery DiscoveryResult

	publisher *Publisher
}

// NewBridge validates the configuration. No resources are acquired yet, so
// an invalid config leaves nothing to tear down.
func NewBridge(config Config) (*Bridge, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Bridge{config: config}, nil
}

// Stop requests a cooperative stop of a running bridge. The publish loop
// observes it within one frame interval.
func (b *Bridge) Stop() {
	b.token.Set()
}

// Discovery returns the startup discovery result.
func (b *Bridge) Discovery() DiscoveryResult {
	return b.discovery
}

// Stats returns the publish loop counters, zero before Run.
func (b *Bridge) Stats() PublisherStats {
	if b.publisher == nil {
		return PublisherStats{}
	}
	return b.publisher.Stats()
}

// Run executes the bridge until the stop token is set or the sink fails
// fatally. The returned error is nil for a cooperative shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	log := b.log()
	cfg := b.config

	source := cfg.Source
	if source == nil {
		var err error
		source, err = CreateFrameSource(cfg.Pattern)
		if err != nil {
			return err
		}
	}

	sink := cfg.Sink
	if sink == nil {
		var err error
		sink, err = NewOutputSink(cfg.SinkURL, cfg.SourceName, cfg.Spec)
		if err != nil {
			return fmt.Errorf("sink init: %w", err)
		}
	}
	log.WithField("sink", sink.Name()).Info("output sink ready")

	// Teardown in reverse order of acquisition, on every exit path.
	var closeOnce sync.Once
	defer closeOnce.Do(func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Warn("sink teardown failed")
		} else {
			log.Info("output sink closed")
		}
	})

	if cfg.BridgeURL != "" {
		client := &DiscoveryClient{
			BaseURL:       cfg.BridgeURL,
			Timeout:       cfg.DiscoveryTimeout,
			Attempts:      cfg.DiscoveryAttempts,
			RetryInterval: cfg.DiscoveryInterval,
			Log:           log,
		}
		b.discovery = client.Discover(ctx)
	}

	if cfg.HandleSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			// Setting the token is the handler's only action.
			b.token.Set()
		}()
	}

	b.publisher = &Publisher{
		Spec:   cfg.Spec,
		Source: source,
		Sink:   sink,
		Token:  &b.token,
		Log:    log,
	}

	err := b.publisher.Run(ctx)
	if err != nil {
		log.WithError(err).Error("bridge stopped on error")
		return err
	}
	log.Info("bridge shut down")
	return nil
}

func (b *Bridge) log() *logrus.Entry {
	if b.config.Log != nil {
		return b.config.Log.WithField("source", b.config.SourceName)
	}
	return logrus.WithField("source", b.config.SourceName)
}
