package dedup

import (
	"hash/fnv"
	"strconv"

	"github.com/tradestream/candle-data/internal/model"
)

// Filter suppresses exact-duplicate ticks re-delivered by a feed. It keeps a
// sliding event-time window of fingerprints for one stream key; entries older
// than the window are evicted so memory stays bounded regardless of stream
// length.
//
// Duplicate identity covers the seven business fields only; a re-delivered
// tick with a fresh Sequence is still a duplicate. First-seen wins.
//
// Not safe for concurrent use: each pipeline worker owns its own Filter.
type Filter struct {
	windowMs int64

	// seen maps fingerprint -> trades sharing it. The slice confirms true
	// field equality so a hash collision can never drop a distinct trade.
	seen map[uint64][]model.Trade

	count      int
	duplicates int64
}

// NewFilter creates a filter with the given event-time window in ms.
// Window length should be bucketWidth * (1 + dedupWindowMultiplier).
func NewFilter(windowMs int64) *Filter {
	return &Filter{
		windowMs: windowMs,
		seen:     make(map[uint64][]model.Trade),
	}
}

// Offer records a trade's fingerprint. It returns false if an identical
// trade was already seen within the window; the caller drops (and counts)
// the record.
func (f *Filter) Offer(t model.Trade) bool {
	fp := fingerprint(t)
	for _, prev := range f.seen[fp] {
		if prev.DuplicateOf(t) {
			f.duplicates++
			return false
		}
	}
	f.seen[fp] = append(f.seen[fp], t)
	f.count++
	return true
}

// Evict drops fingerprints whose event time fell out of the window behind
// the given watermark. Called as the pipeline's watermark advances.
func (f *Filter) Evict(watermarkMs int64) {
	cutoff := watermarkMs - f.windowMs
	for fp, trades := range f.seen {
		kept := trades[:0]
		for _, t := range trades {
			if t.Time >= cutoff {
				kept = append(kept, t)
			}
		}
		f.count -= len(trades) - len(kept)
		if len(kept) == 0 {
			delete(f.seen, fp)
			continue
		}
		f.seen[fp] = kept
	}
}

// Len returns the number of fingerprints currently held.
func (f *Filter) Len() int { return f.count }

// Duplicates returns the number of records dropped so far.
func (f *Filter) Duplicates() int64 { return f.duplicates }

// fingerprint hashes the seven business fields with FNV-1a. Decimal values
// are hashed through their canonical string form so equal values with
// different representations (0.004 vs 4e-3) collide as required.
func fingerprint(t model.Trade) uint64 {
	h := fnv.New64a()
	h.Write([]byte(t.Exchange))
	h.Write([]byte{0})
	h.Write([]byte(t.Asset))
	h.Write([]byte{0})
	h.Write([]byte(t.Currency))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(t.Time, 10)))
	h.Write([]byte{0, byte(t.Side), 0})
	h.Write([]byte(t.Price.String()))
	h.Write([]byte{0})
	h.Write([]byte(t.Amount.String()))
	return h.Sum64()
}
