package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnSubscribeAndTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotCmd := make(chan Command, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			t.Errorf("decode subscribe: %v", err)
			return
		}
		gotCmd <- cmd

		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"exchange":"kraken","asset":"BTC","currency":"USD","time":1000,"side":"buy","price":1,"amount":1}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`[
			{"exchange":"kraken","asset":"BTC","currency":"USD","time":2000,"side":"buy","price":1,"amount":1},
			{"exchange":"kraken","asset":"BTC","currency":"USD","time":3000,"side":"sell","price":1,"amount":1}
		]`))

		// Hold the connection until the client closes it.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := DefaultConnConfig()
	cfg.URL = wsURL(srv)
	c, err := dial(context.Background(), cfg, 7, []string{"kraken:BTC/USD"}, testLogger())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	cmd := <-gotCmd
	if cmd.ID != 7 || cmd.Cmd != "subscribe" {
		t.Errorf("subscribe command = %+v, want id 7 cmd subscribe", cmd)
	}
	if len(cmd.Params.Streams) != 1 || cmd.Params.Streams[0] != "kraken:BTC/USD" {
		t.Errorf("subscribed streams = %v, want [kraken:BTC/USD]", cmd.Params.Streams)
	}

	var times []int64
	timeout := time.After(2 * time.Second)
	for len(times) < 3 {
		select {
		case raw := <-c.Ticks():
			times = append(times, raw.Time)
		case err := <-c.Errs():
			t.Fatalf("connection failed: %v", err)
		case <-timeout:
			t.Fatalf("received %d ticks before timeout, want 3", len(times))
		}
	}
	for i, want := range []int64{1000, 2000, 3000} {
		if times[i] != want {
			t.Errorf("tick[%d].Time = %d, want %d", i, times[i], want)
		}
	}
}

func TestConnStaleWithoutTraffic(t *testing.T) {
	upgrader := websocket.Upgrader{}
	hold := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		// Swallow the subscribe, then go silent. Control frames are only
		// processed during reads, so the client's pings get no pong.
		ws.ReadMessage()
		<-hold
	}))
	defer srv.Close()
	defer close(hold)

	cfg := DefaultConnConfig()
	cfg.URL = wsURL(srv)
	cfg.PingInterval = 5 * time.Millisecond
	cfg.PingTimeout = 20 * time.Millisecond
	c, err := dial(context.Background(), cfg, 1, nil, testLogger())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	select {
	case err := <-c.Errs():
		if !errors.Is(err, ErrStaleConnection) {
			t.Fatalf("connection error = %v, want ErrStaleConnection", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no staleness reported on a silent connection")
	}
}

// A feed that streams trades but never pings or pongs is alive; only total
// silence is stale.
func TestConnTradeFramesCountAsLiveness(t *testing.T) {
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.ReadMessage() // Subscribe; pings are never read after this, so no pongs either.

		tick := []byte(`{"exchange":"kraken","asset":"BTC","currency":"USD","time":1000,"side":"buy","price":1,"amount":1}`)
		for {
			if err := ws.WriteMessage(websocket.TextMessage, tick); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}))
	defer srv.Close()

	cfg := DefaultConnConfig()
	cfg.URL = wsURL(srv)
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 500 * time.Millisecond
	c, err := dial(context.Background(), cfg, 1, nil, testLogger())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	ticks := 0
	deadline := time.After(600 * time.Millisecond)
	for {
		select {
		case <-c.Ticks():
			ticks++
		case err := <-c.Errs():
			t.Fatalf("connection failed under steady traffic: %v", err)
		case <-deadline:
			if ticks == 0 {
				t.Fatal("no ticks received")
			}
			return
		}
	}
}
