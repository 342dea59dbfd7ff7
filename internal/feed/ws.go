package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradestream/candle-data/internal/config"
)

// WS consumes a live WebSocket trade feed and pushes every tick into the
// sink. A dropped connection reconnects with exponential backoff and
// re-subscribes to the configured streams.
type WS struct {
	cfg    config.FeedConfig
	sink   Sink
	logger *slog.Logger

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cmdID atomic.Int64

	mu   sync.Mutex
	conn *conn
}

// NewWS creates a WebSocket feed.
func NewWS(cfg config.FeedConfig, sink Sink, logger *slog.Logger) *WS {
	if logger == nil {
		logger = slog.Default()
	}
	return &WS{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
	}
}

// Start begins consuming the feed.
func (f *WS) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.run()

	f.logger.Info("ws feed started", "url", f.cfg.WSURL, "streams", len(f.cfg.Streams))
	return nil
}

// Stop shuts the feed down.
func (f *WS) Stop(ctx context.Context) error {
	f.logger.Info("stopping ws feed")

	if f.cancel != nil {
		f.cancel()
	}

	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.logger.Info("ws feed stopped")
		return nil
	case <-ctx.Done():
		f.logger.Warn("ws feed stop timed out")
		return ctx.Err()
	}
}

// run owns the connect / consume / reconnect cycle.
func (f *WS) run() {
	defer f.wg.Done()

	wait := f.cfg.ReconnectBaseDelay.Std()

	for {
		if f.ctx.Err() != nil {
			return
		}

		c, err := f.connect()
		if err != nil {
			f.logger.Warn("feed connect failed", "error", err, "retry_in", wait)
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(wait):
			}
			// Exponential backoff
			wait *= 2
			if wait > f.cfg.ReconnectMaxDelay.Std() {
				wait = f.cfg.ReconnectMaxDelay.Std()
			}
			continue
		}

		// Connected and subscribed; reset backoff.
		wait = f.cfg.ReconnectBaseDelay.Std()

		f.consume(c)
		c.Close()

		select {
		case <-f.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connect dials the feed and subscribes to the configured streams.
func (f *WS) connect() (*conn, error) {
	cfg := DefaultConnConfig()
	cfg.URL = f.cfg.WSURL
	if rt := f.cfg.ReadTimeout.Std(); rt > 0 {
		cfg.PingTimeout = rt
	}
	if iv := f.cfg.PingInterval.Std(); iv > 0 {
		cfg.PingInterval = iv
	}

	streams := make([]string, 0, len(f.cfg.Streams))
	for _, s := range f.cfg.Streams {
		streams = append(streams, StreamID(s))
	}

	c, err := dial(f.ctx, cfg, f.cmdID.Add(1), streams, f.logger)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.conn = c
	f.mu.Unlock()

	f.logger.Info("feed subscribed", "streams", streams)
	return c, nil
}

// consume offers decoded ticks to the sink until the connection drops or the
// feed stops.
func (f *WS) consume(c *conn) {
	for {
		select {
		case <-f.ctx.Done():
			return
		case err := <-c.Errs():
			f.logger.Warn("feed connection lost", "error", err)
			return
		case raw := <-c.Ticks():
			if err := f.sink.Offer(f.ctx, raw); err != nil {
				// Rejections are counted by the engine; anything else
				// means it is shutting down or saturated.
				f.logger.Debug("tick not admitted", "error", err)
			}
		}
	}
}
