package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tradestream/candle-data/internal/model"
	"github.com/tradestream/candle-data/internal/pipeline"
)

// Replay streams a fixture of raw trades into the sink. Two formats are
// accepted: a single JSON array of trade objects, or NDJSON with one trade
// per line. Format is detected from the first non-space byte.
//
// Replay returns the number of ticks offered. Rejected ticks are counted by
// the engine and do not stop the replay; an engine shutdown does.
func Replay(ctx context.Context, r io.Reader, sink Sink) (int, error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("read fixture: %w", err)
	}

	if first == '[' {
		return replayArray(ctx, br, sink)
	}
	return replayLines(ctx, br, sink)
}

// ReplayFile streams a fixture file into the sink.
func ReplayFile(ctx context.Context, path string, sink Sink) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	return Replay(ctx, f, sink)
}

func replayArray(ctx context.Context, r io.Reader, sink Sink) (int, error) {
	dec := json.NewDecoder(r)

	// Consume the opening bracket, then decode element-wise so large
	// fixtures never materialize in memory at once.
	if _, err := dec.Token(); err != nil {
		return 0, fmt.Errorf("parse fixture: %w", err)
	}

	n := 0
	for dec.More() {
		var raw model.RawTrade
		if err := dec.Decode(&raw); err != nil {
			return n, fmt.Errorf("parse fixture entry %d: %w", n, err)
		}
		if err := offer(ctx, sink, raw); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func replayLines(ctx context.Context, r *bufio.Reader, sink Sink) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var raw model.RawTrade
		if err := json.Unmarshal(data, &raw); err != nil {
			return n, fmt.Errorf("parse fixture line %d: %w", line, err)
		}
		if err := offer(ctx, sink, raw); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read fixture: %w", err)
	}
	return n, nil
}

// offer pushes one tick, swallowing per-tick rejections. Context or engine
// shutdown aborts the replay.
func offer(ctx context.Context, sink Sink, raw model.RawTrade) error {
	err := sink.Offer(ctx, raw)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, pipeline.ErrClosed):
		return err
	default:
		// Validation rejection, counted by the engine.
		return nil
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			if err := br.UnreadByte(); err != nil {
				return 0, err
			}
			return b, nil
		}
	}
}
