package enmap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/imagery"
	"github.com/example/go-enmap/enmap/internal/tiles"
	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/product"
)

// minScaleChunk is the smallest number of samples scaled by one goroutine.
const minScaleChunk = 4096

// Session is an opened product. It owns the container and every raster
// file behind the product bands; Close releases them.
type Session struct {
	id        string
	product   *product.Product
	md        meta.Metadata
	container container.Container
	series    []*imagery.Series
	fetcher   *tiles.Fetcher
	logger    *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// ID identifies the session in log records.
func (s *Session) ID() string {
	return s.id
}

// Product returns the sealed product.
func (s *Session) Product() *product.Product {
	return s.product
}

// Metadata returns the parsed metadata document.
func (s *Session) Metadata() meta.Metadata {
	return s.md
}

// Location returns the name of the container the product was read from.
func (s *Session) Location() string {
	return s.container.Name()
}

// ReadRaster returns the raw samples of rect in row-major order. Decoder
// calls of all bands of the session are serialised.
func (s *Session) ReadRaster(ctx context.Context, band string, rect image.Rectangle) ([]int32, error) {
	b, err := s.band(ctx, band)
	if err != nil {
		return nil, err
	}
	return s.read(b, rect)
}

// ReadGeophysical returns the scaled samples of a spectral band. No-data
// samples are NaN. Scaling runs in parallel once the raw samples are read.
func (s *Session) ReadGeophysical(ctx context.Context, band string, rect image.Rectangle) ([]float64, error) {
	b, err := s.band(ctx, band)
	if err != nil {
		return nil, err
	}
	if b.SpectralIndex < 0 || b.IsFlagBand() {
		return nil, fmt.Errorf("%w: %s", ErrNotSpectral, band)
	}
	raw, err := s.read(b, rect)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(raw))
	chunk := len(raw)/runtime.GOMAXPROCS(0) + 1
	if chunk < minScaleChunk {
		chunk = minScaleChunk
	}
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(raw); start += chunk {
		end := min(start+chunk, len(raw))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = b.Scale(raw[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) band(ctx context.Context, name string) (*product.Band, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	b := s.product.Band(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBand, name)
	}
	return b, nil
}

func (s *Session) read(b *product.Band, rect image.Rectangle) ([]int32, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("enmap: empty rectangle %v", rect)
	}
	dst := make([]int32, rect.Dx()*rect.Dy())
	if err := b.Source().ReadTile(rect, dst); err != nil {
		return nil, fmt.Errorf("enmap: read %s %v: %w", b.Name, rect, err)
	}
	return dst, nil
}

// Close closes the raster files in reverse order of opening, then the
// container. It waits for a decoder call in flight and is safe to call more
// than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.fetcher.Close(func() error {
			return release(s.series, s.container)
		})
		openSessions.Dec()
		s.logger.Debug("session closed", "error", s.closeErr)
	})
	return s.closeErr
}

// release closes series last to first and the container after them.
func release(series []*imagery.Series, c container.Container) error {
	var errs []error
	for i := len(series) - 1; i >= 0; i-- {
		if err := series[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", series[i].Key(), err))
		}
	}
	if c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close container %s: %w", c.Name(), err))
		}
	}
	if len(errs) > 0 {
		return CloseError{Errors: errs}
	}
	return nil
}

// bandSource routes the reads of one band through the session's fetcher.
type bandSource struct {
	name    string
	img     imagery.Image
	fetcher *tiles.Fetcher
}

func (b bandSource) Size() image.Point {
	return b.img.Size()
}

func (b bandSource) ReadTile(rect image.Rectangle, dst []int32) error {
	err := b.fetcher.Fetch(b.name, b.img, rect, dst)
	if errors.Is(err, tiles.ErrClosed) {
		return ErrSessionClosed
	}
	return err
}
