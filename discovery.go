package ndibridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultDiscoveryTimeout bounds a single /streams request.
	DefaultDiscoveryTimeout = 5 * time.Second

	// maxDiscoveryBody caps how much of a catalog response is read.
	maxDiscoveryBody = 1 << 20
)

// DiscoveryClient polls the bridge's stream catalog for an active upstream
// stream identifier. All failures degrade to "not found"; discovery never
// aborts the bridge.
type DiscoveryClient struct {
	// BaseURL is the bridge base, e.g. http://localhost:8000.
	BaseURL string

	// Timeout bounds each request. Defaults to DefaultDiscoveryTimeout.
	Timeout time.Duration

	// Attempts is the number of polls before giving up. Defaults to 1;
	// the retry policy is configuration, not guessed.
	Attempts int

	// RetryInterval spaces consecutive attempts.
	RetryInterval time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	Log *logrus.Entry
}

// streamEntry tolerates both catalog shapes the bridge has shipped:
// an object carrying at least an "id" field, or a bare identifier string.
type streamEntry struct {
	ID string `json:"id"`
}

func (e *streamEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}
	type entry streamEntry
	var obj entry
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	return nil
}

type streamCatalog struct {
	Streams []streamEntry `json:"streams"`
}

// Discover polls GET <BaseURL>/streams and extracts the first stream's
// identifier. Transport failures, non-2xx responses, and malformed bodies
// all yield {Found:false}; the caller proceeds in degraded mode.
func (c *DiscoveryClient) Discover(ctx context.Context) DiscoveryResult {
	log := c.log()
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		result, err := c.poll(ctx)
		if err == nil && result.Found {
			log.WithField("stream_id", result.StreamID).Info("upstream stream discovered")
			return result
		}
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("stream discovery failed")
		}
		if attempt >= attempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			return DiscoveryResult{}
		case <-time.After(c.RetryInterval):
		}
	}

	log.Info("no upstream stream found, continuing in degraded mode")
	return DiscoveryResult{}
}

func (c *DiscoveryClient) poll(ctx context.Context) (DiscoveryResult, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(c.BaseURL, "/") + "/streams"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("build catalog request: %w", err)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DiscoveryResult{}, fmt.Errorf("catalog request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBody))
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("read catalog response: %w", err)
	}

	var catalog streamCatalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		return DiscoveryResult{}, fmt.Errorf("parse catalog response: %w", err)
	}
	if len(catalog.Streams) == 0 || catalog.Streams[0].ID == "" {
		return DiscoveryResult{}, nil
	}

	return DiscoveryResult{Found: true, StreamID: catalog.Streams[0].ID}, nil
}

func (c *DiscoveryClient) log() *logrus.Entry {
	if c.Log != nil {
		return c.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
