package enmap

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/raster"
)

const (
	defaultTileCacheSize = 256
	tracerName           = "github.com/example/go-enmap/enmap"
)

type config struct {
	logger        *slog.Logger
	opener        raster.Opener
	tracer        trace.Tracer
	pixelMasks    bool
	tileCacheSize int
	stores        map[string]container.Store
	remote        []container.RemoteOption
}

// Option configures Open and Qualify.
type Option func(*config) error

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) error {
		if l == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = l
		return nil
	}
}

// WithOpener replaces the GDAL raster decoder. Builds without cgo, or with
// the nogdal tag, have no default decoder and need this option.
func WithOpener(o raster.Opener) Option {
	return func(c *config) error {
		if o == nil {
			return fmt.Errorf("raster opener cannot be nil")
		}
		c.opener = o
		return nil
	}
}

// WithTracer sets the tracer used for the assembly spans. It defaults to the
// tracer of the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) error {
		if t == nil {
			return fmt.Errorf("tracer cannot be nil")
		}
		c.tracer = t
		return nil
	}
}

// WithPixelMasks toggles the per spectral band pixel mask flag bands.
// They are included by default.
func WithPixelMasks(enabled bool) Option {
	return func(c *config) error {
		c.pixelMasks = enabled
		return nil
	}
}

// WithTileCache sets the number of decoded tiles cached per session. Zero
// disables the cache.
func WithTileCache(size int) Option {
	return func(c *config) error {
		if size < 0 {
			return fmt.Errorf("tile cache size cannot be negative")
		}
		c.tileCacheSize = size
		return nil
	}
}

// WithStore registers an object store for the URI scheme it serves.
func WithStore(s container.Store) Option {
	return func(c *config) error {
		if s == nil {
			return fmt.Errorf("store cannot be nil")
		}
		if c.stores == nil {
			c.stores = make(map[string]container.Store)
		}
		c.stores[s.Scheme()] = s
		return nil
	}
}

// WithRemoteOptions passes options to the fetch of remote products.
func WithRemoteOptions(opts ...container.RemoteOption) Option {
	return func(c *config) error {
		c.remote = append(c.remote, opts...)
		return nil
	}
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		pixelMasks:    true,
		tileCacheSize: defaultTileCacheSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("enmap: apply option: %w", err)
		}
	}
	cfg.ensureDefaults()
	return cfg, nil
}

func (c *config) ensureDefaults() {
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
}

// rasterOpener defers GDAL driver registration until a product is opened.
func (c *config) rasterOpener() raster.Opener {
	if c.opener == nil {
		c.opener = defaultOpener()
	}
	return c.opener
}
