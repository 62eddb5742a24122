// Package tiles serialises raw tile fetches of one product and caches the
// decoded samples.
package tiles

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enmap_tile_fetches_total",
		Help: "Tile requests by result (hit, miss, error).",
	}, []string{"result"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enmap_tile_fetch_duration_seconds",
		Help:    "Time spent in the raster decoder per tile, lock wait included.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	cachedTiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enmap_tile_cache_entries",
		Help: "Tiles held in the decoded tile caches of all open products.",
	})
)

// ErrClosed is returned by Fetch once Close has run.
var ErrClosed = errors.New("tiles: fetcher closed")

// Source reads rectangles of one band.
type Source interface {
	ReadTile(rect image.Rectangle, dst []int32) error
}

// Key identifies a cached tile.
type Key struct {
	Band string
	Rect image.Rectangle
}

// Fetcher funnels every decoder call of a product through one mutex. The
// decoders behind a product are not safe for concurrent reads, and two
// bands may share a file.
type Fetcher struct {
	mu     sync.Mutex
	closed bool
	cache  *lru.Cache[Key, []int32]
}

// New creates a fetcher caching up to cacheSize tiles. A size of zero or
// less disables the cache.
func New(cacheSize int) (*Fetcher, error) {
	f := &Fetcher{}
	if cacheSize > 0 {
		cache, err := lru.NewWithEvict[Key, []int32](cacheSize, func(Key, []int32) {
			cachedTiles.Dec()
		})
		if err != nil {
			return nil, fmt.Errorf("tiles: create cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// Fetch fills dst with the samples of rect. Only the decoder call holds
// the lock; cache lookups and copies do not.
func (f *Fetcher) Fetch(band string, src Source, rect image.Rectangle, dst []int32) error {
	n := rect.Dx() * rect.Dy()
	if len(dst) < n {
		return fmt.Errorf("tiles: buffer holds %d samples, need %d", len(dst), n)
	}
	key := Key{Band: band, Rect: rect}
	if f.cache != nil {
		if cached, ok := f.cache.Get(key); ok {
			fetchesTotal.WithLabelValues("hit").Inc()
			copy(dst, cached)
			return nil
		}
	}

	start := time.Now()
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	err := src.ReadTile(rect, dst[:n])
	f.mu.Unlock()
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return err
	}
	fetchesTotal.WithLabelValues("miss").Inc()

	if f.cache != nil {
		if present, _ := f.cache.ContainsOrAdd(key, append([]int32(nil), dst[:n]...)); !present {
			cachedTiles.Inc()
		}
	}
	return nil
}

// Len returns the number of cached tiles.
func (f *Fetcher) Len() int {
	if f.cache == nil {
		return 0
	}
	return f.cache.Len()
}

// Purge drops every cached tile.
func (f *Fetcher) Purge() {
	if f.cache != nil {
		f.cache.Purge()
	}
}

// Close runs release while holding the decoder lock, so no ReadTile is in
// flight while the sources are freed, and fails every later Fetch. The
// cache is purged. Only the first call runs release.
func (f *Fetcher) Close(release func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	var err error
	if release != nil {
		err = release()
	}
	f.Purge()
	return err
}
