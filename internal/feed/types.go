package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradestream/candle-data/internal/config"
	"github.com/tradestream/candle-data/internal/model"
)

// ErrStaleConnection means nothing arrived on the feed within the stale
// window; the owning loop reconnects.
var ErrStaleConnection = errors.New("connection stale")

// Sink accepts raw ticks from a feed source. The aggregation engine's Offer
// satisfies it.
type Sink interface {
	Offer(ctx context.Context, raw model.RawTrade) error
}

// Command is a WebSocket command to send to the server.
type Command struct {
	ID     int64           `json:"id"`
	Cmd    string          `json:"cmd"`
	Params SubscribeParams `json:"params"`
}

// SubscribeParams are parameters for a subscribe command.
type SubscribeParams struct {
	Streams []string `json:"streams"`
}

// StreamID renders the wire form of a stream subscription.
func StreamID(s config.StreamSpec) string {
	return fmt.Sprintf("%s:%s/%s", s.Exchange, s.Asset, s.Currency)
}

// ConnConfig configures one feed connection.
type ConnConfig struct {
	URL          string        // WebSocket URL
	PingInterval time.Duration // Interval between keepalive pings
	PingTimeout  time.Duration // Max time without any inbound frame before the conn is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Tick channel buffer size
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   10000,
	}
}
