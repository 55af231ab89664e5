package shipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/herbieproject/herbie-dash/internal/backoff"
	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/poller"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 60 * time.Second
	writeTimeout   = 10 * time.Second
)

// Shipper buffers points and writes them to InfluxDB.
// Ship() is non-blocking; when the buffer is full the oldest point is evicted.
// Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg    config.InfluxConfig
	buf    chan *write.Point
	client influxdb2.Client
	writer api.WriteAPIBlocking
	bo     *backoff.Backoff
}

// New creates a Shipper writing to cfg.Bucket in cfg.Org.
func New(cfg config.InfluxConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultInfluxBufferSize
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token(),
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(writeTimeout/time.Second)))
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *write.Point, size),
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bo:     backoff.New(backoffInitial, backoffMax),
	}
}

// Ship converts the frame's latest row to a point and enqueues it.
// Frames without a fresh reading are ignored.
func (s *Shipper) Ship(f *poller.Frame) {
	p := toPoint(f)
	if p == nil {
		return
	}
	select {
	case s.buf <- p:
	default:
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest point",
				"source", f.SourceID, "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- p:
		default:
		}
	}
}

// Pending returns the number of buffered points.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer until ctx is cancelled, then closes the client.
func (s *Shipper) Run(ctx context.Context) {
	defer s.client.Close()
	slog.Info("shipper: started", "url", s.cfg.URL, "org", s.cfg.Org, "bucket", s.cfg.Bucket)

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-s.buf:
			err := s.write(ctx, p)
			if err == nil {
				s.bo.Reset()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if isPermanentError(err) {
				slog.Error("shipper: permanent write error, discarding point", "err", err)
				continue
			}

			// Put the point back if there's room; the next cycle retries it.
			select {
			case s.buf <- p:
			default:
			}
			wait := s.bo.Next()
			slog.Warn("shipper: write failed, will retry", "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

func (s *Shipper) write(ctx context.Context, p *write.Point) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := s.writer.WritePoint(wctx, p); err != nil {
		return fmt.Errorf("write point: %w", err)
	}
	return nil
}

// isPermanentError reports InfluxDB rejections that retrying cannot fix:
// malformed points and auth failures.
func isPermanentError(err error) bool {
	var herr *ihttp.Error
	if !errors.As(err, &herr) {
		return false
	}
	switch herr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusRequestEntityTooLarge:
		return true
	}
	return false
}
