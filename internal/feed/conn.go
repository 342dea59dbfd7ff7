package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradestream/candle-data/internal/model"
)

// conn is one live subscription to the trade feed. It dials, sends the
// subscribe command, and decodes every inbound text frame into raw ticks.
// A conn is single-use: once it fails or is closed, the owner dials again.
type conn struct {
	cfg    ConnConfig
	logger *slog.Logger

	ws    *websocket.Conn
	ticks chan model.RawTrade
	errs  chan error
	done  chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	// lastSeen is the unix-nano time of the last inbound frame. Trade
	// frames count as liveness: a busy feed may never ping.
	lastSeen atomic.Int64
}

// dial connects, subscribes to the given streams, and starts the read and
// keepalive loops.
func dial(ctx context.Context, cfg ConnConfig, cmdID int64, streams []string, logger *slog.Logger) (*conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, err
	}

	c := &conn{
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		ticks:  make(chan model.RawTrade, cfg.BufferSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	c.touch()

	ws.SetPingHandler(func(data string) error {
		c.touch()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	if err := c.subscribe(cmdID, streams); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()
	go c.keepalive()

	logger.Debug("feed connected", "url", cfg.URL, "streams", streams)
	return c, nil
}

// Ticks returns the decoded raw trades, in arrival order.
func (c *conn) Ticks() <-chan model.RawTrade { return c.ticks }

// Errs reports the first fatal connection error (read failure or staleness).
func (c *conn) Errs() <-chan error { return c.errs }

// Close tears the connection down. Idempotent; a close initiated here is not
// reported through Errs.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}

func (c *conn) subscribe(id int64, streams []string) error {
	data, err := json.Marshal(Command{
		ID:     id,
		Cmd:    "subscribe",
		Params: SubscribeParams{Streams: streams},
	})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *conn) fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// readLoop decodes inbound frames into ticks until the connection drops.
func (c *conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Closed locally; not an error.
			default:
				c.fail(err)
			}
			return
		}
		c.touch()

		for _, raw := range decodeTicks(data) {
			select {
			case c.ticks <- raw:
			case <-c.done:
				return
			default:
				c.logger.Warn("tick buffer full, dropping tick",
					"exchange", raw.Exchange,
					"time", raw.Time,
				)
			}
		}
	}
}

// keepalive pings the server on every interval and fails the connection when
// nothing at all has arrived for PingTimeout, trade frames included.
func (c *conn) keepalive() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
			}

			idle := time.Since(time.Unix(0, c.lastSeen.Load()))
			if idle > c.cfg.PingTimeout {
				c.logger.Warn("feed connection stale", "idle", idle)
				c.fail(ErrStaleConnection)
				return
			}
		}
	}
}

// decodeTicks decodes one text frame: a single raw trade object or an array
// of them. Anything else (command acks, heartbeats) yields nothing.
func decodeTicks(data []byte) []model.RawTrade {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var raws []model.RawTrade
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil
		}
		return raws
	}

	var raw model.RawTrade
	if err := json.Unmarshal(trimmed, &raw); err != nil || raw.Exchange == "" {
		return nil
	}
	return []model.RawTrade{raw}
}
