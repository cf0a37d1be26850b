package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tcplink/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second

	// serviceTag is added to every point.
	serviceTag = "tcplink"
)

// Stats holds write counters.
type Stats struct {
	Points   uint64 // points handed to the batch writer
	Failures uint64 // batches the server rejected
}

// Client records link and peer history in an InfluxDB v2 bucket.
//
// Writes are batched and never block the caller. Batches the server rejects
// are reported through the SetOnError callback.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI

	closed    atomic.Bool
	closeOnce sync.Once
	errsDone  chan struct{}

	onErrorMu sync.RWMutex
	onError   func(err error)

	points   atomic.Uint64
	failures atomic.Uint64
}

// Connect pings the server and opens a batched writer on cfg.Bucket.
//
// Parameters:
//   - cfg: InfluxDB configuration; FlushInterval is in seconds
//
// Returns:
//   - *Client: Ready for writes
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the ping failure
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		influx:   influx,
		writer:   influx.WriteAPI(cfg.Org, cfg.Bucket),
		errsDone: make(chan struct{}),
	}
	go c.drainErrors()
	return c, nil
}

// writeOptions maps the config onto client batching options.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := defaultBatchSize
	if cfg.BatchSize > 0 {
		batch = cfg.BatchSize
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).                   // #nosec G115 -- positive
		SetFlushInterval(uint(flush.Milliseconds())). // #nosec G115 -- positive
		AddDefaultTag("service", serviceTag)
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	healthy, err := influx.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return ErrUnhealthy
	}
	return nil
}

// drainErrors forwards write failures until the writer is closed.
func (c *Client) drainErrors() {
	defer close(c.errsDone)
	for err := range c.writer.Errors() {
		c.failures.Add(1)

		c.onErrorMu.RLock()
		fn := c.onError
		c.onErrorMu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// writePoint hands p to the batch writer unless the client is closed.
func (c *Client) writePoint(p *write.Point) {
	if c.closed.Load() {
		return
	}
	c.points.Add(1)
	c.writer.WritePoint(p)
}

// SetOnError sets the callback for rejected batches.
func (c *Client) SetOnError(fn func(err error)) {
	c.onErrorMu.Lock()
	c.onError = fn
	c.onErrorMu.Unlock()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush writes buffered points now. No-op after Close.
func (c *Client) Flush() {
	if c.closed.Load() {
		return
	}
	c.writer.Flush()
}

// Stats returns write counters.
func (c *Client) Stats() Stats {
	return Stats{Points: c.points.Load(), Failures: c.failures.Load()}
}

// Close flushes buffered points and releases the client. Safe to call
// multiple times, and on a zero Client.
func (c *Client) Close() error {
	if c.influx == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writer.Flush()
		c.influx.Close()
	})
	return nil
}
