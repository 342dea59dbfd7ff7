package sequence

import (
	"container/heap"

	"github.com/tradestream/candle-data/internal/model"
)

// Release is a trade handed downstream by the sequencer.
type Release struct {
	Trade model.Trade

	// Late marks a trade that arrived older than the watermark. It is
	// released immediately (never dropped); the bucketizer decides whether
	// it still fits an open bucket or becomes a correction.
	Late bool
}

// Sequencer orders one stream's trades by (time, sequence), tolerating
// bounded out-of-order delivery. Trades are buffered in a min-heap and
// released once they fall behind the watermark (max observed event time
// minus the allowed delay), which bounds buffering while tolerating
// realistic network jitter.
//
// Not safe for concurrent use: each pipeline worker owns its own Sequencer.
type Sequencer struct {
	maxDelayMs int64

	heap    tradeHeap
	maxTime int64
	late    int64
}

// NewSequencer creates a sequencer allowing maxDelayMs of reordering.
func NewSequencer(maxDelayMs int64) *Sequencer {
	return &Sequencer{maxDelayMs: maxDelayMs}
}

// Watermark returns the event time below which no further in-order trades
// are expected.
func (s *Sequencer) Watermark() int64 {
	return s.maxTime - s.maxDelayMs
}

// Push adds a trade and returns every trade now releasable, in
// (time, sequence) order. A trade older than the current watermark is
// returned immediately, flagged late.
func (s *Sequencer) Push(t model.Trade) []Release {
	if t.Time < s.Watermark() {
		s.late++
		return []Release{{Trade: t, Late: true}}
	}

	heap.Push(&s.heap, t)
	if t.Time > s.maxTime {
		s.maxTime = t.Time
	}
	return s.drain(s.Watermark())
}

// Flush releases everything still buffered, in order. Used on shutdown so
// no admitted trade is lost.
func (s *Sequencer) Flush() []Release {
	return s.drain(s.maxTime + 1)
}

// Len returns the number of buffered trades.
func (s *Sequencer) Len() int { return s.heap.Len() }

// Late returns the number of late releases so far.
func (s *Sequencer) Late() int64 { return s.late }

func (s *Sequencer) drain(watermark int64) []Release {
	var out []Release
	for s.heap.Len() > 0 && s.heap[0].Time <= watermark {
		t := heap.Pop(&s.heap).(model.Trade)
		out = append(out, Release{Trade: t})
	}
	return out
}

// tradeHeap is a min-heap ordered by (Time, Sequence).
type tradeHeap []model.Trade

func (h tradeHeap) Len() int { return len(h) }

func (h tradeHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Sequence < h[j].Sequence
}

func (h tradeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *tradeHeap) Push(x any) { *h = append(*h, x.(model.Trade)) }

func (h *tradeHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
